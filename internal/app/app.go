package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/config"
	"github.com/skygrid/roomdir-server/internal/core"
	"github.com/skygrid/roomdir-server/internal/simengine"
	lksim "github.com/skygrid/roomdir-server/internal/simengine/livekit"
	transporthttp "github.com/skygrid/roomdir-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	engine, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}

	publisher := core.NewPublisher(cfg.SubscriberBuffer, logger)
	registry := core.NewRegistry(publisher, core.PublicRoomInfo{
		Name:        cfg.PublicRoomName,
		Description: cfg.PublicRoomDescription,
	}, logger)
	if err := registry.Bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap registry: %w", err)
	}

	negotiator := core.NewNegotiator(registry, engine, logger)
	server := transporthttp.NewServer(registry, negotiator, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        registry,
		log:             logger,
	}, nil
}

func buildEngine(cfg *config.Config) (simengine.Engine, error) {
	switch cfg.Engine {
	case "", "standalone":
		if cfg.SessionSecret == "" {
			return nil, fmt.Errorf("standalone engine requires session_secret")
		}
		return simengine.NewStandalone([]byte(cfg.SessionSecret), cfg.SimURL), nil
	case "livekit":
		if cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
			return nil, fmt.Errorf("livekit engine requires api key and secret")
		}
		return lksim.New(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
