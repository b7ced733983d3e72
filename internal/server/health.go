package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// FlushRequest is the optional body of POST /flush.
type FlushRequest struct {
	Wait bool `json:"wait"`
}

// FlushResponse is returned by POST /flush.
type FlushResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// LivenessHandler answers liveness probes. It fails only when the process
// needs a restart.
func LivenessHandler(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "alive"
		code := http.StatusOK
		if !checker.Liveness() {
			status = "not alive"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessHandler answers readiness probes with the per-check status.
func ReadinessHandler(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ready"
		code := http.StatusOK
		if !checker.Readiness(c.Request.Context()) {
			status = "not ready"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.Status(),
		})
	}
}

// AnalyticsHandler returns the engine analytics snapshot.
func AnalyticsHandler(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Analytics())
	}
}

// FlushHandler triggers a flush of the buffered records. With {"wait":true}
// the response is sent after the batch finished.
func FlushHandler(engine Engine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FlushRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, FlushResponse{Status: "invalid request", Error: err.Error()})
				return
			}
		}
		if err := engine.Flush(c.Request.Context(), req.Wait); err != nil {
			logger.Warn("manual flush failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, FlushResponse{Status: "failed", Error: err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, FlushResponse{Status: "flushed"})
	}
}

// Check is a named readiness probe.
type Check func(ctx context.Context) error

// Health is a HealthChecker built from named readiness checks. Liveness holds
// until MarkStopping is called.
type Health struct {
	mu       sync.RWMutex
	checks   map[string]Check
	stopping bool
}

// NewHealth creates an empty Health.
func NewHealth() *Health {
	return &Health{checks: make(map[string]Check)}
}

// Register adds or replaces a readiness check.
func (h *Health) Register(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// MarkStopping makes readiness fail while the service shuts down.
func (h *Health) MarkStopping() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopping = true
}

// Liveness implements HealthChecker.
func (h *Health) Liveness() bool {
	return true
}

// Readiness implements HealthChecker.
func (h *Health) Readiness(ctx context.Context) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopping {
		return false
	}
	for _, check := range h.checks {
		if check(ctx) != nil {
			return false
		}
	}
	return true
}

// Status implements HealthChecker.
func (h *Health) Status() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status := make(map[string]string, len(h.checks)+1)
	for name, check := range h.checks {
		if err := check(context.Background()); err != nil {
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	if h.stopping {
		status["shutdown"] = "in progress"
	}
	return status
}
