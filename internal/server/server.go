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

	"github.com/twelves/apiserver/config"
	"github.com/twelves/apiserver/internal/analytics"
	"github.com/twelves/apiserver/internal/auth"
	"github.com/twelves/apiserver/internal/db"
	"github.com/twelves/apiserver/internal/handlers"
	"github.com/twelves/apiserver/internal/mq"
	"github.com/twelves/apiserver/internal/ratelimit"
	"github.com/twelves/apiserver/internal/services"
	"github.com/twelves/apiserver/internal/store"
)

const (
	registerLimitMessage = "Too many registration attempts, please try again later"
	funnelLimitMessage   = "Too many requests, please try again later"
)

// Services bundles the use cases exposed over HTTP. Events is the analytics
// sink behind Leads and is drained on shutdown.
type Services struct {
	Accounts handlers.Accounts
	Leads    handlers.Leads
	Events   *analytics.Sink
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         mq.Backend
	events     *analytics.Sink
	logger     *slog.Logger
}

// New opens the database and broker and constructs a Server around them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	broker, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("connect mq: %w", err)
	}
	if broker == nil {
		logger.Info("no mq backend configured, analytics events will only be logged")
	}

	svc := NewServices(cfg, dbConn, broker, logger)
	router := NewRouter(cfg, svc, logger)

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
		mq:         broker,
		events:     svc.Events,
		logger:     logger,
	}, nil
}

// NewServices builds the account and lead services over dbConn. A nil
// broker leaves the analytics sink in log-only mode.
func NewServices(cfg config.Config, dbConn *sql.DB, broker mq.Backend, logger *slog.Logger) Services {
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.LeadTokenTTL)

	var publisher analytics.Publisher
	if broker != nil {
		publisher = broker
	}
	sink := analytics.NewSink(publisher, cfg.MQ.AnalyticsChannel, logger)

	return Services{
		Accounts: services.NewAccountService(store.NewUserRepository(dbConn), hasher, tokens),
		Leads:    services.NewLeadService(store.NewLeadRepository(dbConn), hasher, tokens, sink),
		Events:   sink,
	}
}

// NewRouter mounts every route on a fresh chi router.
func NewRouter(cfg config.Config, svc Services, logger *slog.Logger) *chi.Mux {
	authHandler := handlers.NewAuthHandler(svc.Accounts, handlers.SessionCookie{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.IsProduction(),
		MaxAge: cfg.Auth.SessionTTL,
	}, logger)
	userHandler := handlers.NewUserHandler(svc.Accounts, logger)
	leadHandler := handlers.NewLeadHandler(svc.Leads, logger)

	registerLimit := ratelimit.PerHour(cfg.RateLimit.RegisterPerHour, registerLimitMessage)
	funnelLimit := ratelimit.PerHour(cfg.RateLimit.RegisterPerHour, funnelLimitMessage)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, registerLimit.Middleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userHandler, authHandler.RequireSession)
	})
	router.Route("/customers", func(r chi.Router) {
		handlers.LeadRouter(r, leadHandler, funnelLimit.Middleware)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and queued analytics events, then
// releases the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.events != nil {
		if cerr := s.events.Close(ctx); cerr != nil {
			s.logger.Error("drain analytics events", "error", cerr)
		}
	}
	if s.mq != nil {
		if cerr := s.mq.Close(); cerr != nil {
			s.logger.Error("close mq", "error", cerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
