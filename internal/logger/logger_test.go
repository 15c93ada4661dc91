package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "json")
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level to be enabled")
	}
	l.Info("channel list loaded", "count", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "channel list loaded" {
		t.Fatalf("unexpected msg: %#v", record["msg"])
	}
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobby.log")
	closer, err := InitFile(path, "warn", "text")
	if err != nil {
		t.Fatalf("init file logger: %v", err)
	}
	defer closer.Close()

	if L.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info level to be disabled at warn")
	}
}

func TestContextLogger(t *testing.T) {
	customLogger := Discard().With("component", "tui")

	ctx := WithContext(context.Background(), customLogger)
	if got := FromContext(ctx); got != customLogger {
		t.Fatal("expected context logger to be returned")
	}
	if got := FromContext(context.Background()); got != L {
		t.Fatal("expected global logger without context value")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
