package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jjudge-oj/problemgen/config"
	"github.com/jjudge-oj/problemgen/internal/handlers"
	"github.com/jjudge-oj/problemgen/internal/metrics"
	"github.com/jjudge-oj/problemgen/internal/mq"
	"github.com/jjudge-oj/problemgen/internal/pipeline"
	"github.com/jjudge-oj/problemgen/internal/ratelimit"
	"github.com/jjudge-oj/problemgen/internal/services"
	"github.com/jjudge-oj/problemgen/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server wraps the HTTP server, router and background components.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger

	stores   *Stores
	pipeline *pipeline.Pipeline
	reaper   *pipeline.Reaper
	queue    mq.Backend
	redis    *redis.Client
}

// Generator is the AI capability behind the on-demand routes.
type Generator interface {
	services.TestcaseGenerator
	services.SolutionGenerator
}

// Dependencies are the collaborators routed by NewRouter.
type Dependencies struct {
	Config    config.Config
	Logger    *zap.Logger
	Stores    *Stores
	Pipeline  *pipeline.Pipeline
	Generator Generator
	Storage   storage.ObjectStorage
	Limiter   handlers.RateLimiter
}

// New connects every configured backend and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.closeBackends(context.Background())
		}
	}()

	var err error
	if s.stores, err = OpenStores(ctx, cfg, logger); err != nil {
		return nil, err
	}

	gen, err := NewGenerator(ctx, cfg.Gemini, logger)
	if err != nil {
		return nil, err
	}

	if s.pipeline, s.queue, err = NewPipeline(ctx, cfg, s.stores.Problems, gen, logger); err != nil {
		return nil, err
	}

	if s.reaper, err = pipeline.NewReaper(s.stores.Problems, cfg.Pipeline.StaleAfter, cfg.Pipeline.ReaperSchedule, logger); err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}

	var limiter handlers.RateLimiter
	if s.redis, err = ratelimit.NewClient(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if s.redis != nil {
		limiter = ratelimit.New(s.redis, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	s.router = NewRouter(Dependencies{
		Config:    cfg,
		Logger:    logger,
		Stores:    s.stores,
		Pipeline:  s.pipeline,
		Generator: gen,
		Storage:   objects,
		Limiter:   limiter,
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return s, nil
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	testcaseService := services.NewTestcaseService(deps.Stores.Problems, deps.Stores.Testcases, deps.Generator, deps.Storage, logger)
	problemService := services.NewProblemService(deps.Stores.Problems, deps.Pipeline, testcaseService, logger)
	solutionService := services.NewSolutionService(deps.Stores.Problems, deps.Generator, logger)
	userService := services.NewUserService(deps.Stores.Users)
	authHandler := handlers.NewAuthHandler(userService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)

	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger),
		metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After", "X-Archive-SHA256"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(requestTimeout),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(map[string]handlers.Check{
		"store": deps.Stores.Problems.Ping,
		"generator": func(context.Context) error {
			if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
				return errors.New("gemini api key is not configured")
			}
			return nil
		},
	}))
	router.Handle("/metrics", metrics.Handler())

	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/problems", func(r chi.Router) {
		handlers.ProblemRouter(r, handlers.NewProblemHandler(problemService, solutionService, deps.Limiter, logger), authHandler.RequireAuth)
	})
	router.Route("/testcases", func(r chi.Router) {
		handlers.TestcaseRouter(r, handlers.NewTestcaseHandler(testcaseService, logger), authHandler.RequireAuth)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the reaper and the HTTP server. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.reaper.Start()
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, waits for locally running enrichment
// runs until ctx ends and closes every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.reaper.Stop()
	if waitErr := s.pipeline.Wait(ctx); waitErr != nil {
		s.logger.Warn("enrichment runs still in flight at shutdown; the reaper will fail them", zap.Error(waitErr))
	}
	s.closeBackends(ctx)
	return err
}

func (s *Server) closeBackends(ctx context.Context) {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("failed to close queue", zap.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.stores != nil {
		if err := s.stores.Close(ctx); err != nil {
			s.logger.Warn("failed to close store", zap.Error(err))
		}
	}
}
