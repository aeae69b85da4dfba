package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/internal/db"
	"github.com/thinkstack/apiserver/internal/events"
	"github.com/thinkstack/apiserver/internal/handlers"
	"github.com/thinkstack/apiserver/internal/logging"
	"github.com/thinkstack/apiserver/internal/mq"
	"github.com/thinkstack/apiserver/internal/services"
)

// Server wraps the HTTP server and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	db         *sql.DB
	broker     mq.Backend
	logger     *slog.Logger
}

// New opens the database and the event broker and builds the HTTP server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open events backend: %w", err)
	}
	var publisher services.EventPublisher = services.NopPublisher{}
	if broker != nil {
		publisher = events.NewPublisher(broker, time.Now)
	}

	svcs := NewServices(NewTransactor(dbConn), cfg.Policy, publisher, logger, time.Now)
	router := NewRouter(svcs, cfg, logger, time.Now)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		logger:     logger,
	}, nil
}

// NewRouter builds the HTTP routes over svcs.
func NewRouter(svcs *Services, cfg config.Config, logger *slog.Logger, now func() time.Time) chi.Router {
	auth := handlers.NewAuthHandler(svcs.Identity, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)
	challenges := handlers.NewChallengeHandler(svcs.Challenges, svcs.Solutions, logger, now)
	solutions := handlers.NewSolutionHandler(svcs.Solutions, logger)
	leaderboard := handlers.NewLeaderboardHandler(svcs.Leaderboard, logger)
	teams := handlers.NewTeamHandler(svcs.Teams, logger)
	admin := handlers.NewAdminHandler(svcs.Identity, svcs.Challenges, svcs.Leaderboard, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, auth)
	})
	router.Route("/challenges", func(r chi.Router) {
		handlers.ChallengeRouter(r, challenges, auth.RequireAuth, auth.OptionalAuth)
	})
	router.Route("/solutions", func(r chi.Router) {
		handlers.SolutionRouter(r, solutions, auth.RequireAuth)
	})
	router.Route("/leaderboard", func(r chi.Router) {
		handlers.LeaderboardRouter(r, leaderboard)
	})
	router.Route("/teams", func(r chi.Router) {
		handlers.TeamRouter(r, teams, auth.RequireAuth)
	})
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, admin, auth.RequireAuth)
	})
	return router
}

// Router exposes the router for route registration.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then closes the broker and the
// database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if closeErr := s.broker.Close(); closeErr != nil {
			s.logger.Warn("close events backend", "error", closeErr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
