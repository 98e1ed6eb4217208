package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"upscaler/internal/enhance"
	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/logging"
	"upscaler/internal/pipeline"
	"upscaler/internal/stage"
)

// JobService is the subset of the pipeline supervisor the API drives.
type JobService interface {
	Submit(ctx context.Context, sub pipeline.Submission) (jobs.Record, error)
	Status(id string) (jobs.View, error)
	Get(id string) (jobs.Record, error)
	Cancel(ctx context.Context, id string) error
}

// ModelCatalog lists enhancement models.
type ModelCatalog interface {
	Describe() []enhance.Info
}

// HistoryReader reads the outcome ledger.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Options configures the router.
type Options struct {
	Jobs    JobService
	Models  ModelCatalog
	History HistoryReader
	// Health reports stage readiness for /health; nil omits it.
	Health            func(ctx context.Context) []stage.Health
	MaxUploadBytes    int64
	AllowedExtensions []string
	DefaultModel      string
	DefaultScale      int
	ServiceName       string
	Logger            *slog.Logger
}

type handler struct {
	jobs         JobService
	models       ModelCatalog
	history      HistoryReader
	health       func(ctx context.Context) []stage.Health
	maxUpload    int64
	extensions   map[string]struct{}
	defaultModel string
	defaultScale int
	service      string
	logger       *slog.Logger
}

// NewRouter builds the gin engine serving every endpoint.
func NewRouter(opts Options) *gin.Engine {
	h := &handler{
		jobs:         opts.Jobs,
		models:       opts.Models,
		history:      opts.History,
		health:       opts.Health,
		maxUpload:    opts.MaxUploadBytes,
		extensions:   make(map[string]struct{}, len(opts.AllowedExtensions)),
		defaultModel: opts.DefaultModel,
		defaultScale: opts.DefaultScale,
		service:      opts.ServiceName,
		logger:       logging.NewComponentLogger(opts.Logger, "api"),
	}
	for _, ext := range opts.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		h.extensions[ext] = struct{}{}
	}
	if h.service == "" {
		h.service = "upscaler"
	}
	if h.defaultModel == "" {
		h.defaultModel = string(enhance.ModelWaifu2x)
	}
	if h.defaultScale == 0 {
		h.defaultScale = 2
	}

	router := gin.New()
	router.Use(requestContext(), requestLogger(h.logger), recovery(h.logger))
	router.HandleMethodNotAllowed = true
	router.NoRoute(func(c *gin.Context) { notFound(c, "Route not found") })
	router.NoMethod(func(c *gin.Context) {
		JSONError(c, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	router.GET("/", h.root)
	router.GET("/health", h.healthCheck)
	router.POST("/enhance_video", h.enhanceVideo)
	router.GET("/status/:job_id", h.status)
	router.GET("/download/:job_id", h.download)
	router.DELETE("/job/:job_id", h.cancel)
	router.GET("/models", h.listModels)
	router.GET("/history", h.listHistory)
	return router
}
