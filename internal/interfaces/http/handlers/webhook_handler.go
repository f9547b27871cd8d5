package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/interfaces/http/response"
	"verifyflow.backend/internal/usecases"
)

const (
	SignatureHeader       = "X-Provider-Signature"
	LegacySignatureHeader = "X-Dojah-Signature"

	maxWebhookBytes = 1 << 20
)

type webhookService interface {
	ProcessProviderWebhook(ctx context.Context, raw []byte, signature string) (*usecases.WebhookResult, error)
}

// WebhookHandler handles webhook endpoints
type WebhookHandler struct {
	webhookUsecase webhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookUsecase *usecases.WebhookUsecase) *WebhookHandler {
	return &WebhookHandler{webhookUsecase: webhookUsecase}
}

// HandleProviderWebhook handles asynchronous verification results
// POST /api/v1/webhooks/provider
func (h *WebhookHandler) HandleProviderWebhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("could not read body"))
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		signature = c.GetHeader(LegacySignatureHeader)
	}

	result, err := h.webhookUsecase.ProcessProviderWebhook(c.Request.Context(), raw, signature)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
