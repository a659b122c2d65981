// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New builds every dependency once and
// setupRoutes decides which middleware guards which route.
//
//	config → sqlite.DB ─┬→ whitelist caches → role.Resolver ─┐
//	                    └────────────────────────────────────┴→ SessionService → handlers
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/contribhub/internal/auth"
	"github.com/sakif/contribhub/internal/cache"
	"github.com/sakif/contribhub/internal/config"
	"github.com/sakif/contribhub/internal/gate"
	"github.com/sakif/contribhub/internal/handler"
	"github.com/sakif/contribhub/internal/metrics"
	"github.com/sakif/contribhub/internal/middleware"
	"github.com/sakif/contribhub/internal/model"
	"github.com/sakif/contribhub/internal/repository"
	sqliteRepo "github.com/sakif/contribhub/internal/repository/sqlite"
	"github.com/sakif/contribhub/internal/role"
	"github.com/sakif/contribhub/internal/service"
)

// Server owns the router and the connections it closes on shutdown.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	redis   *redis.Client // nil when the shared cache is disabled
	metrics *metrics.Metrics

	admins    *role.AdminAllowlist
	tokens    *auth.TokenService
	providers *auth.Providers
	sessions  *service.SessionService
}

// New builds every dependency and the routes.
//
// A missing Redis or an unreachable Google discovery endpoint is logged and
// skipped; the server still starts with whatever is left.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(nil),
		admins:  role.ParseAllowlist(cfg.Admins.Usernames, cfg.Admins.Emails),
	}

	if err := s.wire(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) wire(ctx context.Context) error {
	tokens, err := auth.NewTokenService(s.config.Session.Secret, s.config.Session.TTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	s.tokens = tokens

	for _, username := range s.config.Whitelist.Seed {
		if err := s.db.AddToWhitelist(ctx, username); err != nil {
			return fmt.Errorf("seeding whitelist with %q: %w", username, err)
		}
	}

	// Lookups go memory → redis → sqlite.
	var whitelist repository.WhitelistRepository = s.db
	if url := s.config.Whitelist.RedisURL; url != "" {
		client, err := cache.NewRedisClient(ctx, url)
		if err != nil {
			s.logger.Warn("redis unavailable, whitelist cache is process-local",
				slog.String("error", err.Error()),
			)
		} else {
			s.redis = client
			whitelist = cache.NewRedis(client, whitelist, s.config.Whitelist.CacheTTL, s.logger, s.metrics)
		}
	}
	whitelist = cache.NewMemory(whitelist, s.config.Whitelist.CacheSize, s.config.Whitelist.CacheTTL, s.metrics)

	resolver := role.NewResolver(s.admins, whitelist, s.db, s.logger, s.metrics)
	usernames := auth.NewUsernameExtractor(auth.RemoteLookupClaim{Logger: s.logger}, s.logger)
	s.sessions = service.NewSessionService(s.db, resolver, usernames, tokens, s.logger)

	s.providers = auth.NewProviders()
	if gh := s.config.GitHub; gh.Enabled() {
		p := auth.NewGitHubProvider(auth.GitHubConfig{
			ClientID:     gh.ClientID,
			ClientSecret: gh.ClientSecret,
			CallbackURL:  gh.CallbackURL,
		})
		if err := s.providers.Use(model.ProviderGitHub, p); err != nil {
			return fmt.Errorf("registering github provider: %w", err)
		}
	}
	if g := s.config.Google; g.Enabled() {
		p, err := auth.NewGoogleProvider(ctx, auth.GoogleConfig{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			CallbackURL:  g.CallbackURL,
		})
		if err != nil {
			s.logger.Warn("google sign-in unavailable", slog.String("error", err.Error()))
		} else if err := s.providers.Use(model.ProviderGoogle, p); err != nil {
			return fmt.Errorf("registering google provider: %w", err)
		}
	}

	s.logger.Info("access control loaded",
		slog.Int("admin_entries", s.admins.Len()),
		slog.Int("whitelist_seeded", len(s.config.Whitelist.Seed)),
		slog.Bool("redis_cache", s.redis != nil),
	)
	return nil
}

// setupRoutes configures all middleware and route handlers.
//
// GET  /healthz                    liveness, pings the database
// GET  /metrics                    prometheus
// GET  /auth/{provider}/login      start sign-in
// GET  /auth/{provider}/callback   finish sign-in
// POST /auth/logout
// GET  /api/session                rehydrated session
// GET  /api/me                     stored profile
// GET  /dashboard                  redirect to the caller's dashboard
// GET  /dashboard/{section}/*      gated by role
// GET  /admin/*                    admin role or admin email
//
// Global middleware order: RequestID, RealIP, Recoverer, Logger, CORS.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger, s.metrics))

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	cookie := auth.CookieConfig{Secure: s.config.Session.CookieSecure, TTL: s.tokens.TTL()}
	withSession := middleware.Session(s.sessions, cookie, s.logger)
	gated := func(req gate.Requirement) func(http.Handler) http.Handler {
		return middleware.RequireRole(req, s.admins, s.metrics, s.logger)
	}

	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(s.providers, s.sessions, cookie, s.logger, s.metrics)
	dashboardHandler := handler.NewDashboardHandler(s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/login", authHandler.HandleLogin)
		r.Get("/{provider}/callback", authHandler.HandleCallback)
		r.With(auth.OptionalAuth(s.tokens)).Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.With(withSession).Get("/session", authHandler.HandleSession)
		r.With(auth.RequireAuth(s.tokens)).Get("/me", authHandler.HandleMe)
	})

	s.router.Route("/dashboard", func(r chi.Router) {
		r.Use(middleware.RouteBoundary(auth.SessionCookieName))
		r.Use(withSession)

		r.Get("/", dashboardHandler.HandleEntry)

		sections := []gate.Requirement{
			{Surface: "admin", Roles: []model.Role{model.RoleAdmin}},
			{Surface: "maintainer", Roles: []model.Role{model.RoleMaintainer}},
			{Surface: "contributor"},
		}
		for _, req := range sections {
			h := dashboardHandler.HandleSection(req.Surface)
			r.Route("/"+req.Surface, func(r chi.Router) {
				r.Use(gated(req))
				r.Get("/", h)
				r.Get("/*", h)
			})
		}
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(withSession)
		r.Use(gated(gate.Requirement{
			Surface:         "admin-tools",
			Roles:           []model.Role{model.RoleAdmin},
			AllowAdminEmail: true,
		}))
		h := dashboardHandler.HandleSection("admin-tools")
		r.Get("/", h)
		r.Get("/*", h)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and Redis connections.
func (s *Server) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the connections.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
