// Package server is the composition root: it opens the store, wires
// services and handlers, defines the routes and runs the HTTP server with
// graceful shutdown.
//
//	config → store (sqlite | postgres) → services → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/attendance-ledger/internal/auth"
	"github.com/sakif/attendance-ledger/internal/config"
	"github.com/sakif/attendance-ledger/internal/handler"
	"github.com/sakif/attendance-ledger/internal/middleware"
	"github.com/sakif/attendance-ledger/internal/repository"
	"github.com/sakif/attendance-ledger/internal/repository/postgres"
	sqliteRepo "github.com/sakif/attendance-ledger/internal/repository/sqlite"
	"github.com/sakif/attendance-ledger/internal/service"
	"github.com/sakif/attendance-ledger/internal/temporal"
)

// Server owns the router and the store. The store is closed when Start
// returns.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	store  repository.Store
}

// New opens the configured store and builds the server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds the server over an already open store.
func NewWithStore(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		if !strings.HasPrefix(cfg.DBPath, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqliteRepo.New(ctx, cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes wires every layer and registers the routes.
//
//	GET    /healthz                   liveness + store ping
//	GET    /auth/github/login         start GitHub login (when configured)
//	GET    /auth/github/callback      finish GitHub login
//	POST   /auth/logout               clear the token cookie
//	GET    /api/me                    caller's profile
//	POST   /api/users                 create user
//	GET    /api/users                 list active users
//	GET    /api/users/lookup?email=   active user by email
//	GET    /api/users/{id}            get active user
//	PATCH  /api/users/{id}            update profile
//	DELETE /api/users/{id}            soft delete
//	DELETE /api/users/{id}/purge      hard delete (caller only)
//	POST   /api/events                append for the caller
//	GET    /api/events                caller's history
//	GET    /api/events/{id}           one of the caller's events
//	GET    /api/summaries/daily       reconciled day
//	GET    /api/summaries/buckets     events per local date
//
// Middleware order: RequestID first so the logger and error envelope can
// read it, Recoverer last so a panic still gets logged as a 500.
func (s *Server) setupRoutes() error {
	zones, err := temporal.NewZoneRegistry(s.cfg.OrganizationZone, s.cfg.AllowedZones)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return err
	}

	identity := service.NewIdentityService(s.store, s.logger)
	ledger := service.NewLedgerService(s.store, s.store, zones, s.cfg.SplitAtMidnight, s.logger)
	authService := service.NewAuthService(identity, tokens, s.logger)

	orgZone, _ := zones.Organization()
	users := handler.NewUserHandler(identity, s.logger)
	events := handler.NewEventHandler(ledger, s.logger)
	summaries := handler.NewSummaryHandler(ledger, orgZone, s.logger)
	health := handler.NewHealthHandler(s.store, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", health.HandleHealth)

	if s.cfg.GitHub.Enabled() {
		gh := auth.NewGitHubProvider(s.cfg.GitHub.ClientID, s.cfg.GitHub.ClientSecret, s.cfg.GitHub.CallbackURL)
		authHandler := handler.NewAuthHandler(gh, authService, tokens, s.cfg.SecureCookies, s.logger)
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.router.Post("/auth/logout", authHandler.HandleLogout)
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID not set, GitHub login is disabled")
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, handler.Unauthorized))

		r.Get("/me", users.HandleMe)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", users.HandleCreate)
			r.Get("/", users.HandleList)
			r.Get("/lookup", users.HandleLookup)
			r.Get("/{id}", users.HandleGet)
			r.Patch("/{id}", users.HandleUpdate)
			r.Delete("/{id}", users.HandleSoftDelete)
			r.Delete("/{id}/purge", users.HandlePurge)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", events.HandleAppend)
			r.Get("/", events.HandleHistory)
			r.Get("/{id}", events.HandleGet)
		})

		r.Get("/summaries/daily", summaries.HandleDaily)
		r.Get("/summaries/buckets", summaries.HandleBuckets)
	})

	return nil
}

// Start serves until ctx is cancelled (main cancels it on SIGINT/SIGTERM),
// then gives in-flight requests 30 seconds to finish and closes the store.
func (s *Server) Start(ctx context.Context) error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("driver", s.cfg.DBDriver),
			slog.String("database", s.cfg.DSN()),
			slog.String("organizationZone", s.cfg.OrganizationZone),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
