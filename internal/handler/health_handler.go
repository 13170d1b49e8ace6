package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is a dependency that can answer a readiness ping
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	version    string
	components map[string]HealthChecker
}

// NewHealthHandler checks every non-nil component on /ready. A nil component
// is reported as not configured and does not fail readiness.
func NewHealthHandler(version string, components map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{version: version, components: components}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
}

type ReadyResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// Health is the liveness probe
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready is the readiness probe
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.components))
	allHealthy := true
	for name, checker := range h.components {
		if checker == nil {
			components[name] = "not configured"
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		components[name] = "healthy"
	}

	resp := ReadyResponse{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}
	if allHealthy {
		resp.Status = "ready"
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Status = "not ready"
	c.JSON(http.StatusServiceUnavailable, resp)
}
