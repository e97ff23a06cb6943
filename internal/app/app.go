package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcast/internal/config"
	"github.com/vovakirdan/chatcast/internal/core"
	applog "github.com/vovakirdan/chatcast/internal/log"
	"github.com/vovakirdan/chatcast/internal/store"
	"github.com/vovakirdan/chatcast/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatcast/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	framePolicy, err := core.ParseFramePolicy(cfg.FramePolicy)
	if err != nil {
		return nil, err
	}
	storagePolicy, err := core.ParseStoragePolicy(cfg.StorageFailurePolicy)
	if err != nil {
		return nil, err
	}

	// Initialize database store
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	registry := core.NewRegistry(st, logger,
		core.WithWriteTimeout(cfg.WriteTimeout),
		core.WithIdleTimeout(cfg.IdleTimeout),
		core.WithFramePolicy(framePolicy),
		core.WithStoragePolicy(storagePolicy),
	)
	server := transporthttp.NewServer(registry, st, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        registry,
		store:           st,
		log:             logger,
	}, nil
}

// Apply takes the settings that may change while running from cfg.
// Everything else requires a restart.
func (a *App) Apply(cfg config.Config) {
	applog.SetLevel(cfg.LogLevel)

	if p, err := core.ParseFramePolicy(cfg.FramePolicy); err == nil {
		a.registry.SetFramePolicy(p)
	} else {
		a.log.Warn().Err(err).Msg("keeping frame policy")
	}
	if p, err := core.ParseStoragePolicy(cfg.StorageFailurePolicy); err == nil {
		a.registry.SetStoragePolicy(p)
	} else {
		a.log.Warn().Err(err).Msg("keeping storage failure policy")
	}

	a.log.Info().
		Str("log_level", cfg.LogLevel).
		Str("frame_policy", a.registry.FramePolicy().String()).
		Str("storage_failure_policy", a.registry.StoragePolicy().String()).
		Msg("configuration reloaded")
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.log.Info().Str("addr", ln.Addr().String()).Msg("chat server listening")
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)

	// Sessions hold hijacked connections that Shutdown does not track, so
	// they are ended through their request context instead.
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Int("sessions", a.registry.Len()).Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup lets running sessions finish their leave sequence, bounded by the
// shutdown timeout, and closes the database.
func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.registry.Drain(ctx); err != nil {
		a.log.Warn().Err(err).Int("sessions", a.registry.Len()).Msg("sessions still open at store close")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
