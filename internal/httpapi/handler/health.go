package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dteg/orchestrator/internal/health"
)

// HealthHandler exposes liveness/readiness over HTTP.
type HealthHandler struct {
	checker *health.Checker
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Liveness reports whether the process is running.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Liveness(c.Request.Context()))
}

// Readiness reports whether every durable dependency is reachable.
func (h *HealthHandler) Readiness(c *gin.Context) {
	result := h.checker.Readiness(c.Request.Context())
	status := http.StatusOK
	if result.Status != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
