// Package server implements the admin HTTP server: health probes, metrics,
// engine analytics and manual flushes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jittakal/resistor/pkg/analytics"
)

// HealthChecker reports component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	Status() map[string]string
}

// Engine is the part of the batching engine exposed over HTTP.
type Engine interface {
	Analytics() analytics.Snapshot
	Flush(ctx context.Context, wait bool) error
}

// Config contains the admin server settings.
type Config struct {
	Port          int
	Mode          string
	LivenessPath  string
	ReadinessPath string
	MetricsPath   string
}

// Server is the admin HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates the admin server. A nil gatherer disables the metrics
// route and a nil level disables the log level route.
func NewServer(
	cfg Config,
	checker HealthChecker,
	engine Engine,
	gatherer prometheus.Gatherer,
	level *zap.AtomicLevel,
	logger *zap.Logger,
) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.LivenessPath == "" {
		cfg.LivenessPath = "/health/live"
	}
	if cfg.ReadinessPath == "" {
		cfg.ReadinessPath = "/health/ready"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET(cfg.LivenessPath, LivenessHandler(checker))
	router.GET(cfg.ReadinessPath, ReadinessHandler(checker))
	if gatherer != nil {
		router.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if engine != nil {
		router.GET("/analytics", AnalyticsHandler(engine))
		router.POST("/flush", FlushHandler(engine, logger))
	}
	if level != nil {
		router.GET("/log/level", gin.WrapH(level))
		router.PUT("/log/level", gin.WrapH(level))
	}

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called. A closed server returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting admin server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
