package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/interfaces/http/middleware"
	"verifyflow.backend/internal/interfaces/http/response"
	"verifyflow.backend/internal/usecases"
	"verifyflow.backend/pkg/utils"
)

type adminService interface {
	ListRequests(ctx context.Context, filter entities.RequestFilter, page, limit int) ([]*entities.VerificationRequest, utils.PaginationMeta, error)
	GetRequestDetail(ctx context.Context, requestID uuid.UUID) (*usecases.RequestDetail, error)
	OverrideRequest(ctx context.Context, adminID string, requestID uuid.UUID, target entities.RequestStatus, reason string) (*entities.VerificationRequest, error)
	ResolveDocument(ctx context.Context, adminID string, documentID uuid.UUID, status entities.DocumentStatus, reason string) (*entities.ProcessResult, error)
	ReverifyDocument(ctx context.Context, adminID string, documentID uuid.UUID) (*entities.VerificationDocument, error)
	ListProviderLogs(ctx context.Context, filter entities.CallLogFilter, page, limit int) ([]*entities.ProviderCallLog, utils.PaginationMeta, error)
	DocumentDownloadURL(ctx context.Context, documentID uuid.UUID) (string, time.Time, error)
	QueueStats(ctx context.Context) (*entities.QueueStats, error)
}

// AdminHandler serves the review endpoints
type AdminHandler struct {
	service adminService
}

func NewAdminHandler(service *usecases.AdminUsecase) *AdminHandler {
	return &AdminHandler{service: service}
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ResolveDocumentRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// ListVerifications lists requests
// GET /api/v1/admin/verifications?status=&customer_id=&page=&limit=
func (h *AdminHandler) ListVerifications(c *gin.Context) {
	filter := entities.RequestFilter{Status: entities.RequestStatus(c.Query("status"))}
	if raw := c.Query("customer_id"); raw != "" {
		customerID, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, domainerrors.BadRequest("invalid customer_id"))
			return
		}
		filter.CustomerID = &customerID
	}
	page, limit := pagination(c)

	items, meta, err := h.service.ListRequests(c.Request.Context(), filter, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"items": items, "meta": meta})
}

// GetVerification returns a request with documents and history
// GET /api/v1/admin/verifications/:id
func (h *AdminHandler) GetVerification(c *gin.Context) {
	id, ok := pathID(c, "invalid verification ID")
	if !ok {
		return
	}
	detail, err := h.service.GetRequestDetail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// ApproveVerification forces a request to approved
// POST /api/v1/admin/verifications/:id/approve
func (h *AdminHandler) ApproveVerification(c *gin.Context) {
	h.override(c, entities.RequestStatusApproved)
}

// RejectVerification forces a request to rejected
// POST /api/v1/admin/verifications/:id/reject
func (h *AdminHandler) RejectVerification(c *gin.Context) {
	h.override(c, entities.RequestStatusRejected)
}

func (h *AdminHandler) override(c *gin.Context, target entities.RequestStatus) {
	id, ok := pathID(c, "invalid verification ID")
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest("reason is required"))
		return
	}

	result, err := h.service.OverrideRequest(c.Request.Context(), adminID(c), id, target, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verification": result})
}

// ResolveDocument records a manual review decision
// POST /api/v1/admin/documents/:id/resolve
func (h *AdminHandler) ResolveDocument(c *gin.Context) {
	id, ok := pathID(c, "invalid document ID")
	if !ok {
		return
	}
	var req ResolveDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	result, err := h.service.ResolveDocument(c.Request.Context(), adminID(c), id, entities.DocumentStatus(req.Status), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ReverifyDocument supersedes a document and schedules a new check
// POST /api/v1/admin/documents/:id/reverify
func (h *AdminHandler) ReverifyDocument(c *gin.Context) {
	id, ok := pathID(c, "invalid document ID")
	if !ok {
		return
	}
	doc, err := h.service.ReverifyDocument(c.Request.Context(), adminID(c), id)
	if err != nil && doc == nil {
		response.Error(c, err)
		return
	}
	// the replacement exists even when scheduling failed
	response.Success(c, http.StatusAccepted, gin.H{"document": doc, "queued": err == nil})
}

// ListProviderLogs lists provider calls
// GET /api/v1/admin/provider-logs?document_id=&provider=&page=&limit=
func (h *AdminHandler) ListProviderLogs(c *gin.Context) {
	filter := entities.CallLogFilter{Provider: c.Query("provider")}
	if raw := c.Query("document_id"); raw != "" {
		docID, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, domainerrors.BadRequest("invalid document_id"))
			return
		}
		filter.DocumentID = &docID
	}
	page, limit := pagination(c)

	items, meta, err := h.service.ListProviderLogs(c.Request.Context(), filter, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"items": items, "meta": meta})
}

// GetDownloadURL returns a short lived link to the uploaded file
// GET /api/v1/admin/documents/:id/download-url
func (h *AdminHandler) GetDownloadURL(c *gin.Context) {
	id, ok := pathID(c, "invalid document ID")
	if !ok {
		return
	}
	url, expiresAt, err := h.service.DocumentDownloadURL(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"url": url, "expiresAt": expiresAt})
}

// GetQueueStats
// GET /api/v1/admin/queue/stats
func (h *AdminHandler) GetQueueStats(c *gin.Context) {
	stats, err := h.service.QueueStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

func pathID(c *gin.Context, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(message))
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(utils.DefaultPageLimit)))
	return page, limit
}

func adminID(c *gin.Context) string {
	id, _ := middleware.GetSubjectID(c)
	return id.String()
}
