package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is set at build time.
var Version = "dev"

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]Pinger
	info   map[string]any
}

// NewHealthHandler creates a health handler. Nil checks are skipped, so a
// process running on the in-memory store is always ready.
func NewHealthHandler(checks map[string]Pinger, info map[string]any) *HealthHandler {
	live := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			live[name] = p
		}
	}
	return &HealthHandler{checks: live, info: info}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(c.Request.Context()); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status, code = "error", http.StatusServiceUnavailable
			continue
		}
		results[name] = "healthy"
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{"app": "tradeledger", "version": Version}
	for k, v := range h.info {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
