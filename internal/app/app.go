package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/auth"
	"github.com/lbessard/canal/internal/config"
	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/service/identity"
	"github.com/lbessard/canal/internal/service/membership"
	"github.com/lbessard/canal/internal/service/message"
	"github.com/lbessard/canal/internal/service/nickname"
	"github.com/lbessard/canal/internal/store"
	"github.com/lbessard/canal/internal/store/sqlite"
	transporthttp "github.com/lbessard/canal/internal/transport/http"
)

// App wires together storage, services and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	members         *membership.Manager
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.SessionTTL,
	}
	authService := auth.NewService(jwtConfig)

	hub := core.NewHub(logger)
	nicks := nickname.NewResolver(st, logger)
	members := membership.NewManager(st, nicks, hub, logger)
	identities := identity.NewService(st, members, logger)
	messages := message.NewRouter(st, nicks, hub, logger)

	svc := &transporthttp.Services{
		Identity: identities,
		Members:  members,
		Messages: messages,
		Nicks:    nicks,
		Auth:     authService,
		Hub:      hub,
	}
	server := transporthttp.NewServer(svc, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		members:         members,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// error.
func (a *App) Run(ctx context.Context) error {
	if err := a.members.EnsureGeneral(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("ensure default channel: %w", err)
	}

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
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
