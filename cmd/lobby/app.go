package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/memohai/lobby/internal/backend"
	"github.com/memohai/lobby/internal/config"
	"github.com/memohai/lobby/internal/controller"
	"github.com/memohai/lobby/internal/identity"
	"github.com/memohai/lobby/internal/logger"
)

const defaultLogFile = "lobby/lobby.log"

// app holds the wired client for one command invocation.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	auth    *identity.Client
	backend *backend.Service
	ctrl    *controller.Controller
	closer  io.Closer
}

// newApp loads configuration and builds the client stack. When toFile is set
// logs go to a file so the terminal stays free for the UI.
func newApp(configPath string, toFile bool) (*app, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg}
	if toFile {
		path := cfg.Log.File
		if path == "" {
			if path, err = xdg.StateFile(defaultLogFile); err != nil {
				return nil, fmt.Errorf("resolve log file: %w", err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		closer, err := logger.InitFile(path, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
		a.closer = closer
	} else {
		logger.Init(cfg.Log.Level, cfg.Log.Format)
	}
	a.logger = logger.L

	httpClient := &http.Client{Timeout: cfg.Backend.RequestTimeout()}
	a.backend = backend.NewService(a.logger, cfg.Backend.GraphQLURL, cfg.Backend.SubscriptionsURL, httpClient)

	store, err := identity.NewFileStore(cfg.Auth.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	provider := identity.NewOAuthProvider(a.logger, identity.OAuthConfig{
		ClientID:     cfg.Auth.ClientID,
		Domain:       cfg.Auth.Domain,
		Audience:     cfg.Auth.Audience,
		Scopes:       cfg.Auth.ScopeList(),
		RedirectAddr: cfg.Auth.RedirectAddr,
		HTTPClient:   httpClient,
	})
	a.auth = identity.NewClient(a.logger, provider, store, identity.WithPrompt(func(authURL string) {
		fmt.Fprintf(os.Stderr, "Open this URL to log in:\n  %s\n", authURL)
	}))
	a.ctrl = controller.New(a.logger, a.backend, a.auth)
	return a, nil
}

func (a *app) Close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}
