// Package api serves the stylization HTTP API.
//
//	POST /generate         multipart image + prompt, returns the stylized PNG
//	GET  /health           liveness
//	GET  /api/status       pipeline state, queue and generation metrics
//	GET  /api/generations  recent generation history
//
// Everything except /health requires the x-api-key header.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stylizer/core"
	"stylizer/db"
	"stylizer/metrics"
	"stylizer/sdruntime"
)

// Response headers set by /generate.
const (
	GenerationIDHeader  = "X-Generation-ID"
	AnimationFileHeader = "X-Animation-File"
)

// OutputFilename is the attachment name of every generated image.
const OutputFilename = "generated_image.png"

// Generator runs one stylization at a time.
type Generator interface {
	Generate(ctx context.Context, req sdruntime.Request) (*sdruntime.Result, error)
	Waiting() int64
	Busy() bool
}

// PipelineStatus exposes the model lifecycle for /api/status.
type PipelineStatus interface {
	State() sdruntime.State
	Device() sdruntime.Device
	Loads() int64
}

// History persists finished generations.
type History interface {
	InsertGeneration(ctx context.Context, rec db.GenerationRecord) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]db.GenerationRecord, error)
}

// Operations tracks in-flight work for graceful shutdown.
type Operations interface {
	WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error
	IsShuttingDown() bool
}

// Deps are the collaborators of a Server. Generator, Pipelines, Metrics and
// Verifier are required.
type Deps struct {
	Generator  Generator
	Pipelines  PipelineStatus
	Metrics    metrics.Collector
	Verifier   *KeyVerifier
	Limiter    *FailureLimiter // optional
	History    History         // optional
	Operations Operations      // optional
}

// Server is the HTTP front end of the generator.
type Server struct {
	cfg        *core.Config
	deps       Deps
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
	now        func() time.Time
}

// NewServer wires the routes. It does not start listening.
func NewServer(cfg *core.Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("api: config is required")
	}
	if deps.Generator == nil || deps.Pipelines == nil || deps.Metrics == nil || deps.Verifier == nil {
		return nil, errors.New("api: generator, pipelines, metrics and verifier are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, APIKeyHeader)
	corsConfig.ExposeHeaders = []string{GenerationIDHeader, AnimationFileHeader, "Content-Disposition"}

	r.Use(
		Recovery(s.logger),
		RequestLogger(s.logger, "/health"),
		cors.New(corsConfig),
	)

	auth := RequireAPIKey(s.deps.Verifier, s.deps.Limiter, s.logger)

	r.GET("/health", s.handleHealth)
	r.POST("/generate", auth, LimitBody(s.cfg.MaxContentLength), s.handleGenerate)

	apiGroup := r.Group("/api", auth)
	apiGroup.GET("/status", s.handleStatus)
	apiGroup.GET("/generations", s.handleGenerations)

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called. It serves HTTPS when the
// certificate and key exist and plain HTTP otherwise.
func (s *Server) Start() error {
	var err error
	if s.cfg.TLSEnabled() {
		s.logger.Info("Starting HTTPS server",
			zap.String("addr", s.httpServer.Addr),
			zap.String("cert", s.cfg.CertFile()),
		)
		err = s.httpServer.ListenAndServeTLS(s.cfg.CertFile(), s.cfg.KeyFile())
	} else {
		s.logger.Warn("TLS certificate or key not found, serving plain HTTP",
			zap.String("addr", s.httpServer.Addr),
			zap.String("certs_folder", s.cfg.CertsFolder),
		)
		err = s.httpServer.ListenAndServe()
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
