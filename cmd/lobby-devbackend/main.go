package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/lobby/internal/channels/event"
	"github.com/memohai/lobby/internal/config"
	"github.com/memohai/lobby/internal/handlers"
	"github.com/memohai/lobby/internal/logger"
	"github.com/memohai/lobby/internal/server"
	"github.com/memohai/lobby/internal/store"
	"github.com/memohai/lobby/internal/version"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.DevBackend.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(cfg config.Config) *store.Store {
	return store.New(cfg.DevBackend.SeedChannels)
}

func provideGraphQLHandler(log *slog.Logger, st *store.Store, hub *event.Hub, cfg config.Config) *handlers.GraphQLHandler {
	return handlers.NewGraphQLHandler(log, st, hub, cfg.DevBackend.JWTSecret, cfg.DevBackend.TokenTTL())
}

func provideSubscriptionHandler(log *slog.Logger, hub *event.Hub, cfg config.Config) *handlers.SubscriptionHandler {
	return handlers.NewSubscriptionHandler(log, hub, cfg.DevBackend.JWTSecret, cfg.DevBackend.KeepAliveInterval())
}

func providePingHandler(hub *event.Hub) *handlers.PingHandler {
	return handlers.NewPingHandler(hub)
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			event.NewHub,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideGraphQLHandler),
			provideServerHandler(provideSubscriptionHandler),
			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	dev := params.Config.DevBackend
	return server.NewServer(params.Logger, server.Options{
		Addr:           dev.Addr,
		JWTSecret:      dev.JWTSecret,
		AllowedOrigins: dev.AllowedOrigins,
	}, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	logger.Info("starting lobby dev backend", slog.String("version", version.Get().String()))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
