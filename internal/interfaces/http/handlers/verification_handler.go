package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/interfaces/http/middleware"
	"verifyflow.backend/internal/interfaces/http/response"
	"verifyflow.backend/internal/usecases"
)

type verificationService interface {
	CreateRequest(ctx context.Context, input *usecases.CreateRequestInput) (*entities.VerificationRequest, bool, error)
	GetCurrent(ctx context.Context, customerID uuid.UUID) (*entities.VerificationRequest, error)
	GetRequest(ctx context.Context, customerID, requestID uuid.UUID) (*entities.VerificationRequest, error)
	UploadDocument(ctx context.Context, input *usecases.UploadDocumentInput) (*entities.VerificationDocument, error)
}

// VerificationHandler serves the customer verification endpoints
type VerificationHandler struct {
	service verificationService
}

func NewVerificationHandler(service *usecases.VerificationUsecase) *VerificationHandler {
	return &VerificationHandler{service: service}
}

type CreateVerificationRequest struct {
	CustomerType string `json:"customerType" binding:"required"`
	FirstName    string `json:"firstName" binding:"required"`
	LastName     string `json:"lastName" binding:"required"`
	State        string `json:"state"`
}

// CreateVerification opens a request or returns the open one
// POST /api/v1/verifications
func (h *VerificationHandler) CreateVerification(c *gin.Context) {
	customerID, ok := middleware.GetSubjectID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("unauthorized"))
		return
	}

	var req CreateVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	result, created, err := h.service.CreateRequest(c.Request.Context(), &usecases.CreateRequestInput{
		CustomerID:   customerID,
		CustomerType: entities.CustomerType(req.CustomerType),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		State:        req.State,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"verification": result, "created": created})
}

// GetCurrentVerification returns the caller's latest request
// GET /api/v1/verifications/current
func (h *VerificationHandler) GetCurrentVerification(c *gin.Context) {
	customerID, ok := middleware.GetSubjectID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("unauthorized"))
		return
	}

	result, err := h.service.GetCurrent(c.Request.Context(), customerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verification": result})
}

// GetVerification returns one of the caller's requests
// GET /api/v1/verifications/:id
func (h *VerificationHandler) GetVerification(c *gin.Context) {
	customerID, ok := middleware.GetSubjectID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("unauthorized"))
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid verification ID"))
		return
	}

	result, err := h.service.GetRequest(c.Request.Context(), customerID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verification": result})
}

// UploadDocument accepts a multipart document submission
// POST /api/v1/verifications/:id/documents
func (h *VerificationHandler) UploadDocument(c *gin.Context) {
	customerID, ok := middleware.GetSubjectID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("unauthorized"))
		return
	}
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid verification ID"))
		return
	}

	documentType := c.PostForm("document_type")
	if documentType == "" {
		response.Error(c, domainerrors.BadRequest("document_type is required"))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, domainerrors.BadRequest("file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, domainerrors.BadRequest("file could not be read"))
		return
	}
	defer file.Close()

	doc, err := h.service.UploadDocument(c.Request.Context(), &usecases.UploadDocumentInput{
		CustomerID:     customerID,
		RequestID:      requestID,
		DocumentType:   entities.DocumentType(documentType),
		DocumentNumber: c.PostForm("document_number"),
		FileName:       header.Filename,
		FileSize:       header.Size,
		ContentType:    header.Header.Get("Content-Type"),
		File:           file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"document": doc})
}
