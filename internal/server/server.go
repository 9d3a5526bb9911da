package server

import (
	"context"
	"time"

	"rapport/internal/analytics"
	"rapport/internal/cache"
	"rapport/internal/classifier"
	"rapport/internal/config"
	"rapport/internal/correlation"
	"rapport/internal/embeddings"
	"rapport/internal/handlers"
	"rapport/internal/insights"
	"rapport/internal/openai"
	"rapport/internal/topics"
	"rapport/internal/worker"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Server represents the application server
type Server struct {
	echo   *echo.Echo
	db     *sqlx.DB
	config *config.Config
	logger zerolog.Logger
	cache  *cache.Cache

	store      *topics.Store
	embedder   *embeddings.Service
	classifier *classifier.Classifier
	engine     *correlation.Engine
	insights   *insights.Service
	analytics  *analytics.Service
	worker     *worker.Worker
}

// New creates a new server instance and wires its services
func New(cfg *config.Config, db *sqlx.DB, logger zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		db:     db,
		logger: logger,
		cache:  cache.New(),
	}

	// The OpenAI client is optional; without it embeddings fall back to the
	// local hash model.
	var client *openai.Client
	if c, err := openai.NewClient(cfg); err != nil {
		logger.Warn().Err(err).Msg("Remote embeddings unavailable, using local model")
	} else {
		client = c
	}

	s.store = topics.NewStore(db, cfg, logger)
	s.embedder = embeddings.NewService(client, db, logger)
	s.classifier = classifier.New(db, s.store, s.embedder, cfg.InternalDomains, logger)
	s.engine = correlation.NewEngine(db, logger)
	s.insights = insights.NewService(db, logger)
	s.analytics = analytics.NewService(db, logger)
	s.worker = worker.New(64, logger)

	return s
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	api.GET("/", handlers.RootHandler(s.config.Version))

	// Topic hierarchy
	api.POST("/topics", handlers.CreateTopicHandler(s.store, s.cache))
	api.GET("/topics/hierarchy", handlers.TopicHierarchyHandler(s.store, s.cache))
	api.GET("/topics/level/:level", handlers.TopicsByLevelHandler(s.store))
	api.DELETE("/topics/:id", handlers.DeleteTopicHandler(s.store, s.cache))
	api.POST("/topics/merge", handlers.MergeTopicsHandler(s.store, s.cache))
	api.GET("/topics/:id/keywords", handlers.TopicKeywordsHandler(s.store))
	api.POST("/topics/:id/keywords", handlers.AddKeywordHandler(s.store))
	api.DELETE("/topics/:id/keywords/:keyword", handlers.RemoveKeywordHandler(s.store))
	api.GET("/topics/:id/similar", handlers.SimilarTopicsHandler(s.store))
	api.POST("/topics/:id/similarity/:other", handlers.CalculateSimilarityHandler(s.store))
	api.GET("/topics/:id/emails", handlers.TopicEmailsHandler(s.store))

	// Email classification
	api.POST("/emails/:id/classify", handlers.ClassifyEmailHandler(s.classifier))
	api.GET("/emails/:id/topics", handlers.EmailTopicsHandler(s.store))
	api.POST("/emails/:id/topics", handlers.AssignTopicHandler(s.store))
	api.DELETE("/emails/:id/topics/:topicId", handlers.RemoveTopicHandler(s.store))
	api.POST("/emails/:id/topics/:topicId/verify", handlers.VerifyAssignmentHandler(s.store))

	// Per-customer operations
	api.POST("/customers/:id/classify", handlers.BatchClassifyHandler(s.classifier))
	api.GET("/customers/:id/topic-suggestions", handlers.SuggestTopicsHandler(s.classifier))
	api.GET("/customers/:id/classification-analytics", handlers.ClassificationAnalyticsHandler(s.analytics))
	api.POST("/customers/:id/correlate", handlers.CorrelateFilesHandler(s.engine, s.worker))
	api.POST("/customers/:id/importance", handlers.UpdateImportanceHandler(s.engine))
	api.GET("/customers/:id/file-timeline", handlers.FileTimelineHandler(s.engine))
	api.GET("/customers/:id/insights", handlers.InsightsHandler(s.insights, s.cache))
	api.POST("/customers/:id/insights", handlers.InsightsHandler(s.insights, s.cache))
	api.POST("/customers/:id/backfill-embeddings", handlers.BackfillEmbeddingsHandler(s.embedder, s.worker))
	api.POST("/customers/:id/extract-topics", handlers.ExtractTopicsHandler(s.embedder, s.classifier))

	// Background tasks
	api.GET("/tasks/:id", handlers.TaskStatusHandler(s.worker))
	api.DELETE("/tasks/:id", handlers.CancelTaskHandler(s.worker))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown drains the background worker and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.worker.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Worker shutdown timed out")
	}
	return s.echo.Shutdown(ctx)
}
