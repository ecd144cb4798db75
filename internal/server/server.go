package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/intprep/apiserver/config"
	"github.com/intprep/apiserver/internal/cache"
	"github.com/intprep/apiserver/internal/db"
	"github.com/intprep/apiserver/internal/handlers"
	"github.com/intprep/apiserver/internal/judge"
	"github.com/intprep/apiserver/internal/logging"
	"github.com/intprep/apiserver/internal/mq"
	"github.com/intprep/apiserver/internal/services"
	"github.com/intprep/apiserver/internal/storage"
	"github.com/intprep/apiserver/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minRequestTimeout = 60 * time.Second
	requestHeadroom   = 30 * time.Second
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	objects    *storage.Storage
	broker     *mq.MQ
}

// Dependencies are the collaborators the router is built from.
type Dependencies struct {
	Config      config.Config
	Logger      *zap.Logger
	Users       services.UserRepository
	Problems    services.ProblemRepository
	Submissions interface {
		services.SubmissionWriter
		services.SubmissionRepository
	}
	Playlists services.PlaylistRepository
	Judge     services.Judge
	UserCache cache.UserCache
	Storage   *storage.Storage
	Events    services.EventPublisher
}

// New opens every configured backend and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	srv := &Server{logger: logger, db: dbConn}

	redisClient, err := cache.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		srv.closeBackends()
		return nil, err
	}
	srv.redis = redisClient
	var userCache cache.UserCache
	if redisClient != nil {
		userCache = cache.NewRedisUserCache(redisClient, cfg.Redis.UserCacheTTL)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		srv.closeBackends()
		return nil, err
	}
	srv.objects = objects

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		srv.closeBackends()
		return nil, err
	}
	srv.broker = broker
	var events services.EventPublisher
	if broker != nil {
		events = mq.NewSubmissionEvents(broker, cfg.MQ.SubmissionChannel)
	}

	router := NewRouter(Dependencies{
		Config:      cfg,
		Logger:      logger,
		Users:       store.NewUserRepository(dbConn),
		Problems:    store.NewProblemRepository(dbConn),
		Submissions: store.NewSubmissionRepository(dbConn),
		Playlists:   store.NewPlaylistRepository(dbConn),
		Judge:       judge.NewClient(cfg.Judge, logger),
		UserCache:   userCache,
		Storage:     objects,
		Events:      events,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	timeout := RequestTimeout(cfg.Judge)
	srv.router = router
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server configured",
		zap.Int("port", port),
		zap.Duration("request_timeout", timeout),
		zap.Bool("user_cache", userCache != nil),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("mq", cfg.MQ.Backend),
	)
	return srv, nil
}

// RequestTimeout bounds a request by the judge work it may trigger. Problem
// authoring executes one batch per reference-solution language in sequence.
func RequestTimeout(cfg config.JudgeConfig) time.Duration {
	timeout := judge.Budget(cfg)*time.Duration(judge.LanguageCount()) + requestHeadroom
	return max(timeout, minRequestTimeout)
}

// NewRouter wires services and handlers onto a chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	userService := services.NewUserService(deps.Users, deps.UserCache, logger)
	problemService := services.NewProblemService(deps.Problems, deps.Judge, deps.Storage, logger)
	executionService := services.NewExecutionService(deps.Judge, deps.Problems, deps.Submissions, deps.Events, logger)
	submissionService := services.NewSubmissionService(deps.Submissions)
	playlistService := services.NewPlaylistService(deps.Playlists)

	auth := handlers.NewAuthHandler(userService, deps.Config.JWTSecret, deps.Config.SecureCookie, logger)
	submissionHandler := handlers.NewSubmissionHandler(submissionService, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(RequestTimeout(deps.Config.Judge)),
		cors.Handler(cors.Options{
			AllowedOrigins:   deps.Config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	router.Get("/healthz", handlers.Healthz)
	handlers.DocsRouter(router)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, auth)
	})
	router.Route("/problems", func(r chi.Router) {
		handlers.ProblemRouter(r, handlers.NewProblemHandler(problemService, logger), auth.RequireAuth)
		handlers.ProblemSubmissionRouter(r, submissionHandler, auth.RequireAuth)
	})
	router.Route("/execute", func(r chi.Router) {
		handlers.ExecuteRouter(r, handlers.NewExecuteHandler(executionService, logger), auth.RequireAuth)
	})
	router.Route("/submissions", func(r chi.Router) {
		handlers.SubmissionRouter(r, submissionHandler, auth.RequireAuth)
	})
	router.Route("/playlists", func(r chi.Router) {
		handlers.PlaylistRouter(r, handlers.NewPlaylistHandler(playlistService, logger), auth.RequireAuth)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Warn("close message queue", zap.Error(err))
		}
	}
	if err := s.objects.Close(); err != nil {
		s.logger.Warn("close object storage", zap.Error(err))
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
