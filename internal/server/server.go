package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"plantcare/internal/classifier"
	"plantcare/internal/config"
	"plantcare/internal/handler"
	"plantcare/internal/remedy"
	"plantcare/internal/repository"
	"plantcare/internal/service"
	"plantcare/internal/staging"
	"plantcare/internal/upstream"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	repo, err := newStagingRepository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	policy := upstream.PolicyFrom(cfg.Upstream)

	cls, err := classifier.NewClient(cfg.Classifier.URL, cfg.Classifier.Token, policy, &http.Client{}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier client: %w", err)
	}

	gen, err := newGenerator(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	retriever, err := remedy.NewRetriever(gen, policy, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create remedy retriever: %w", err)
	}

	plantService := service.NewPlantService(staging.NewStore(repo, log), cls, retriever, cfg, log)
	h := handler.NewHandler(plantService, cfg, log)

	server := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           NewRouter(h, cfg, log),
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("staging_backend", cfg.Staging.Backend))

	return server, nil
}

func newStagingRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.StagingRepository, error) {
	switch cfg.Staging.Backend {
	case config.BackendS3:
		repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 repository: %w", err)
		}
		return repo, nil
	default:
		repo, err := repository.NewFSRepository(cfg.Staging.Dir, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create staging repository: %w", err)
		}
		return repo, nil
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, log *zap.Logger) (remedy.Generator, error) {
	if cfg.Gemini.APIKey == "" {
		log.Warn("GEMINI_API_KEY is not set, remedy search is disabled")
		return remedy.DisabledGenerator{}, nil
	}

	gen, err := remedy.NewGeminiGenerator(ctx, remedy.GeminiOptions{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create remedy generator: %w", err)
	}
	return gen, nil
}

// NewRouter wires the HTTP surface onto h.
func NewRouter(h *handler.Handler, cfg *config.Config, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	router.MaxMultipartMemory = cfg.App.MaxUploadSize

	router.GET("/health", h.HealthCheck)
	router.POST("/upload", h.UploadImage)
	router.POST("/remedysearch", h.SearchRemedy)

	api := router.Group("/api")
	{
		api.POST("/analyze-disease", h.AnalyzeDisease)
	}

	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
