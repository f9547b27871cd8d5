package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"verifyflow.backend/internal/usecases"
)

type healthChecker interface {
	Check(ctx context.Context) (*usecases.HealthReport, bool)
}

type HealthHandler struct {
	checker healthChecker
}

func NewHealthHandler(checker *usecases.HealthUsecase) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health always answers 200 and reports degraded components in the body
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	report, _ := h.checker.Check(c.Request.Context())
	c.JSON(http.StatusOK, report)
}

// Ready answers 503 when a critical dependency is down
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	report, ready := h.checker.Check(c.Request.Context())
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
