// Package config loads and exposes application configuration (TOML, .env, environment).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath       = "lobby.toml"
	DefaultDotEnvPath       = ".env"
	DefaultGraphQLURL       = "http://127.0.0.1:8080/graphql"
	DefaultSubscriptionsURL = "ws://127.0.0.1:8080/subscriptions"
	DefaultRequestTimeout   = "30s"
	DefaultRedirectAddr     = "127.0.0.1:4455"
	DefaultScopes           = "openid profile"
	DefaultDevAddr          = ":8080"
	DefaultJWTExpiresIn     = "24h"
	DefaultKeepAlive        = "15s"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Backend    BackendConfig    `toml:"backend"`
	Auth       AuthConfig       `toml:"auth"`
	DevBackend DevBackendConfig `toml:"devbackend"`
}

// LogConfig holds logging level, format and an optional file (used by the TUI).
type LogConfig struct {
	Level  string `toml:"level" env:"LOBBY_LOG_LEVEL"`
	Format string `toml:"format" env:"LOBBY_LOG_FORMAT"`
	File   string `toml:"file" env:"LOBBY_LOG_FILE"`
}

// BackendConfig points at the GraphQL backend.
type BackendConfig struct {
	GraphQLURL       string `toml:"graphql_url" env:"LOBBY_GRAPHQL_URL"`
	SubscriptionsURL string `toml:"subscriptions_url" env:"LOBBY_SUBSCRIPTIONS_URL"`
	Timeout          string `toml:"timeout" env:"LOBBY_REQUEST_TIMEOUT"`
}

// RequestTimeout parses Timeout, falling back to the default.
func (c BackendConfig) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, DefaultRequestTimeout)
}

// AuthConfig holds the identity provider client settings.
type AuthConfig struct {
	ClientID     string `toml:"client_id" env:"LOBBY_AUTH_CLIENT_ID"`
	Domain       string `toml:"domain" env:"LOBBY_AUTH_DOMAIN"`
	Audience     string `toml:"audience" env:"LOBBY_AUTH_AUDIENCE"`
	Scopes       string `toml:"scopes" env:"LOBBY_AUTH_SCOPES"`
	RedirectAddr string `toml:"redirect_addr" env:"LOBBY_AUTH_REDIRECT_ADDR"`
	SessionPath  string `toml:"session_path" env:"LOBBY_SESSION_PATH"`
}

// ScopeList splits Scopes on whitespace.
func (c AuthConfig) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

// Validate reports missing provider settings.
func (c AuthConfig) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("auth.client_id is required")
	}
	if strings.TrimSpace(c.Domain) == "" {
		return errors.New("auth.domain is required")
	}
	return nil
}

// DevBackendConfig holds the development backend listen address and token settings.
type DevBackendConfig struct {
	Addr           string   `toml:"addr" env:"LOBBY_DEV_ADDR"`
	JWTSecret      string   `toml:"jwt_secret" env:"LOBBY_DEV_JWT_SECRET"`
	JWTExpiresIn   string   `toml:"jwt_expires_in" env:"LOBBY_DEV_JWT_EXPIRES_IN"`
	KeepAlive      string   `toml:"keep_alive" env:"LOBBY_DEV_KEEP_ALIVE"`
	AllowedOrigins []string `toml:"allowed_origins" env:"LOBBY_DEV_ALLOWED_ORIGINS" envSeparator:","`
	SeedChannels   []string `toml:"seed_channels" env:"LOBBY_DEV_SEED_CHANNELS" envSeparator:","`
}

// TokenTTL parses JWTExpiresIn, falling back to the default.
func (c DevBackendConfig) TokenTTL() time.Duration {
	return parseDuration(c.JWTExpiresIn, DefaultJWTExpiresIn)
}

// KeepAliveInterval parses KeepAlive, falling back to the default.
func (c DevBackendConfig) KeepAliveInterval() time.Duration {
	return parseDuration(c.KeepAlive, DefaultKeepAlive)
}

// Validate reports settings the dev backend cannot start without.
func (c DevBackendConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("devbackend.jwt_secret is required")
	}
	return nil
}

// Load reads the TOML config file at path, applies defaults for missing fields,
// then loads .env (if present) and applies LOBBY_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Backend: BackendConfig{
			GraphQLURL:       DefaultGraphQLURL,
			SubscriptionsURL: DefaultSubscriptionsURL,
			Timeout:          DefaultRequestTimeout,
		},
		Auth: AuthConfig{
			Scopes:       DefaultScopes,
			RedirectAddr: DefaultRedirectAddr,
		},
		DevBackend: DevBackendConfig{
			Addr:           DefaultDevAddr,
			JWTExpiresIn:   DefaultJWTExpiresIn,
			KeepAlive:      DefaultKeepAlive,
			AllowedOrigins: []string{"*"},
			SeedChannels:   []string{"general", "random"},
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := godotenv.Load(DefaultDotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", DefaultDotEnvPath, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

func parseDuration(value, fallback string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
