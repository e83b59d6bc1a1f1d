package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-authoring/internal/response"
)

// HealthChecker reports the state of each backing store.
type HealthChecker interface {
	Status(ctx context.Context) (map[string]string, bool)
}

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health godoc
// GET /health
// Returns 200 when PostgreSQL and Redis answer, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	stores, ok := h.checker.Status(c.Request.Context())
	if !ok {
		response.Success(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "stores": stores})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok", "stores": stores})
}
