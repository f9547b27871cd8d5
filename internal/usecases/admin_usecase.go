package usecases

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/domain/repositories"
	"verifyflow.backend/pkg/logger"
	"verifyflow.backend/pkg/utils"
)

// DefaultPresignTTL is how long admin download links stay valid
const DefaultPresignTTL = 15 * time.Minute

// RequestDetail is the admin view of one request
type RequestDetail struct {
	Request *entities.VerificationRequest   `json:"request"`
	History []*entities.VerificationHistory `json:"history"`
}

// AdminUsecase backs the admin review surface
type AdminUsecase struct {
	*workflow
	callLogRepo repositories.ProviderCallLogRepository
	storage     ObjectStorage
	queue       JobQueue
	presignTTL  time.Duration
}

// NewAdminUsecase creates a new admin usecase
func NewAdminUsecase(
	uow repositories.UnitOfWork,
	requestRepo repositories.VerificationRequestRepository,
	documentRepo repositories.VerificationDocumentRepository,
	historyRepo repositories.VerificationHistoryRepository,
	callLogRepo repositories.ProviderCallLogRepository,
	storage ObjectStorage,
	queue JobQueue,
	notifier Notifier,
	presignTTL time.Duration,
) *AdminUsecase {
	if presignTTL <= 0 {
		presignTTL = DefaultPresignTTL
	}
	return &AdminUsecase{
		workflow:    newWorkflow(uow, requestRepo, documentRepo, historyRepo, notifier),
		callLogRepo: callLogRepo,
		storage:     storage,
		queue:       queue,
		presignTTL:  presignTTL,
	}
}

// ListRequests pages through requests, newest first
func (u *AdminUsecase) ListRequests(ctx context.Context, filter entities.RequestFilter, page, limit int) ([]*entities.VerificationRequest, utils.PaginationMeta, error) {
	params := utils.GetPaginationParams(page, limit)
	items, total, err := u.requestRepo.List(ctx, filter, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return items, utils.CalculateMeta(total, params.Page, params.Limit), nil
}

// GetRequestDetail returns a request with documents and audit history
func (u *AdminUsecase) GetRequestDetail(ctx context.Context, requestID uuid.UUID) (*RequestDetail, error) {
	req, err := u.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	docs, err := u.documentRepo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req.Documents = docs
	history, err := u.historyRepo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &RequestDetail{Request: req, History: history}, nil
}

// OverrideRequest forces a request to approved or rejected. The reason is
// mandatory and both the override and the resulting transition are logged.
func (u *AdminUsecase) OverrideRequest(ctx context.Context, adminID string, requestID uuid.UUID, target entities.RequestStatus, reason string) (*entities.VerificationRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domainerrors.BadRequest("reason is required")
	}
	if !target.IsTerminal() {
		return nil, domainerrors.BadRequest("override target must be approved or rejected")
	}

	var req *entities.VerificationRequest
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		current, err := u.requestRepo.GetByID(lockCtx, requestID)
		if err != nil {
			return err
		}
		if current.Status == target {
			return domainerrors.ErrInvalidTransition
		}

		completedAt := u.now()
		rejection := ""
		if target == entities.RequestStatusRejected {
			rejection = reason
		}
		if err := u.requestRepo.TransitionStatus(lockCtx, requestID, []entities.RequestStatus{current.Status}, target, &completedAt, rejection); err != nil {
			return err
		}
		if err := u.historyRepo.Append(lockCtx, &entities.VerificationHistory{
			RequestID:   requestID,
			Action:      entities.ActionAdminOverride,
			PerformedBy: adminID,
			Details: details(map[string]any{
				"from":   string(current.Status),
				"to":     string(target),
				"reason": reason,
			}),
		}); err != nil {
			return err
		}
		action := entities.ActionRequestApproved
		if target == entities.RequestStatusRejected {
			action = entities.ActionRequestRejected
		}
		if err := u.historyRepo.Append(lockCtx, &entities.VerificationHistory{
			RequestID:   requestID,
			Action:      action,
			PerformedBy: adminID,
			Details:     details(map[string]any{"reason": reason, "override": true}),
		}); err != nil {
			return err
		}

		current.Status = target
		current.CompletedAt = &completedAt
		if rejection != "" {
			current.RejectionReason.SetValid(rejection)
		}
		req = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Admin override applied",
		zap.String("request_id", requestID.String()),
		zap.String("admin_id", adminID),
		zap.String("status", string(target)),
	)
	u.notifyOutcome(ctx, outcome{request: req, requestStatus: target, finalized: true})
	return req, nil
}

// ResolveDocument records an admin decision on a manually reviewed document
func (u *AdminUsecase) ResolveDocument(ctx context.Context, adminID string, documentID uuid.UUID, status entities.DocumentStatus, reason string) (*entities.ProcessResult, error) {
	if !status.IsTerminal() {
		return nil, domainerrors.BadRequest("status must be verified or failed")
	}
	reason = strings.TrimSpace(reason)
	if status == entities.DocumentStatusFailed && reason == "" {
		return nil, domainerrors.BadRequest("reason is required when failing a document")
	}

	doc, err := u.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.DocumentType.RequiresManualReview() {
		return nil, domainerrors.BadRequest("only address documents are resolved manually")
	}
	if doc.Status.IsTerminal() || !doc.IsActive() {
		return nil, domainerrors.ErrInvalidTransition
	}

	result := &entities.VerificationResult{
		Status:      entities.ProviderStatusVerified,
		Confidence:  100,
		ReferenceID: doc.ProviderReference.String,
		Provider:    providerManual,
		Data:        map[string]any{"manual_review": true, "reviewed_by": adminID, "note": reason},
	}
	if status == entities.DocumentStatusFailed {
		result.Status = entities.ProviderStatusFailed
		result.Confidence = 0
		result.Error = reason
	}

	res, err := u.applyResult(ctx, documentID, result, applyOptions{performedBy: adminID, allowPending: true})
	if err != nil {
		return nil, err
	}
	if res.AlreadyProcessed {
		return nil, domainerrors.ErrInvalidTransition
	}
	return res, nil
}

// ReverifyDocument supersedes a document with a fresh copy and enqueues it.
// Only documents of open requests can be re-verified.
func (u *AdminUsecase) ReverifyDocument(ctx context.Context, adminID string, documentID uuid.UUID) (*entities.VerificationDocument, error) {
	var replacement *entities.VerificationDocument
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		old, err := u.documentRepo.GetByID(lockCtx, documentID)
		if err != nil {
			return err
		}
		if !old.IsActive() {
			return domainerrors.ErrInvalidTransition
		}
		req, err := u.requestRepo.GetByID(lockCtx, old.RequestID)
		if err != nil {
			return err
		}
		if req.Status.IsTerminal() {
			return domainerrors.ErrRequestNotOpen
		}

		replacement = &entities.VerificationDocument{
			ID:                      utils.GenerateUUIDv7(),
			RequestID:               old.RequestID,
			DocumentType:            old.DocumentType,
			DocumentNumberEncrypted: old.DocumentNumberEncrypted,
			DocumentNumberHint:      old.DocumentNumberHint,
			FileURL:                 old.FileURL,
			FileKey:                 old.FileKey,
			FileName:                old.FileName,
			FileSize:                old.FileSize,
			MimeType:                old.MimeType,
			Status:                  entities.DocumentStatusPending,
		}
		// supersede first so the active-document index never sees two rows
		if err := u.documentRepo.MarkSuperseded(lockCtx, old.ID, replacement.ID); err != nil {
			return err
		}
		if err := u.documentRepo.Create(lockCtx, replacement); err != nil {
			return err
		}
		if err := u.historyRepo.Append(lockCtx, &entities.VerificationHistory{
			RequestID:   old.RequestID,
			DocumentID:  uuidPtr(replacement.ID),
			Action:      entities.ActionAdminOverride,
			PerformedBy: adminID,
			Details: details(map[string]any{
				"operation":   "reverify",
				"supersedes":  old.ID.String(),
				"prev_status": string(old.Status),
			}),
		}); err != nil {
			return err
		}
		_, err = u.reconcileRequest(lockCtx, old.RequestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, err := u.queue.Enqueue(ctx, replacement.ID.String(), entities.JobPriorityHigh); err != nil {
		logger.Error(ctx, "Failed to enqueue re-verification", zap.String("document_id", replacement.ID.String()), zap.Error(err))
		return replacement, err
	}
	return replacement, nil
}

// ListProviderLogs pages through provider call logs
func (u *AdminUsecase) ListProviderLogs(ctx context.Context, filter entities.CallLogFilter, page, limit int) ([]*entities.ProviderCallLog, utils.PaginationMeta, error) {
	params := utils.GetPaginationParams(page, limit)
	items, total, err := u.callLogRepo.List(ctx, filter, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return items, utils.CalculateMeta(total, params.Page, params.Limit), nil
}

// DocumentDownloadURL presigns the document file for a short time
func (u *AdminUsecase) DocumentDownloadURL(ctx context.Context, documentID uuid.UUID) (string, time.Time, error) {
	doc, err := u.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return "", time.Time{}, err
	}
	if doc.FileKey == "" {
		return "", time.Time{}, domainerrors.NotFound("document has no file")
	}
	url, err := u.storage.PresignGet(ctx, doc.FileKey, u.presignTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, u.now().Add(u.presignTTL), nil
}

// QueueStats reports job queue depth
func (u *AdminUsecase) QueueStats(ctx context.Context) (*entities.QueueStats, error) {
	return u.queue.Stats(ctx)
}
