// Package server exposes the editor service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/audit"
	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/editor"
)

// HistoryReader returns past audit records for a source file
type HistoryReader interface {
	History(ctx context.Context, sourcePath string, limit int) ([]audit.Record, error)
}

// Server serves the editor API
type Server struct {
	svc      *editor.Service
	cfg      *config.Config
	history  HistoryReader
	gatherer prometheus.Gatherer
	validate *validator.Validate
	logger   *zap.Logger
	router   *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithHistory enables the audit history endpoint
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithGatherer enables the /metrics endpoint for g
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a server and its routes
func New(svc *editor.Service, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger.Named("server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Edit values keep their exact JSON text; BIGINT and DECIMAL values
	// would otherwise lose precision as float64.
	binding.EnableDecoderUseNumber = true

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes(router)
	s.router = router
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/config", s.handleConfig)
		v1.GET("/pages", s.handleLoadPage)
		v1.POST("/compile", s.handleCompile)
		v1.POST("/commit", s.handleCommit)
		v1.GET("/audit", s.handleHistory)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.handleOpenSession)
			sessions.GET("", s.handleListSessions)
			sessions.GET("/:sessionId", s.handleGetSession)
			sessions.DELETE("/:sessionId", s.handleCloseSession)
			sessions.POST("/:sessionId/edits", s.handleApplyEdits)
			sessions.PUT("/:sessionId/source", s.handleSelectSource)
			sessions.POST("/:sessionId/preview", s.handlePreviewSession)
			sessions.POST("/:sessionId/commit", s.handleCommitSession)
		}
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("Request failed", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields...)
		default:
			logger.Debug("Request served", fields...)
		}
	}
}

// statusFor maps service error categories onto HTTP status codes
func statusFor(err error) int {
	switch editor.CategoryOf(err) {
	case editor.ErrorCategoryInvalidRequest:
		return http.StatusBadRequest
	case editor.ErrorCategoryNotFound, editor.ErrorCategoryUnreachableSource:
		return http.StatusNotFound
	case editor.ErrorCategoryConflict:
		return http.StatusConflict
	case editor.ErrorCategoryEmptyResult, editor.ErrorCategoryCompilationRejected:
		return http.StatusUnprocessableEntity
	case editor.ErrorCategoryEngineExecution, editor.ErrorCategoryVerification:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abort writes err as a JSON error response
func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"error":    err.Error(),
		"category": editor.CategoryOf(err).String(),
	})
}

// badRequest writes a request decoding failure
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":    err.Error(),
		"category": editor.ErrorCategoryInvalidRequest.String(),
	})
}
