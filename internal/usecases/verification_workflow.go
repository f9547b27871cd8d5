package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/domain/repositories"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/logger"
)

// workflow is the single mutation path for document results and request
// finalization. The worker, the webhook receiver and the admin surface all
// go through it.
type workflow struct {
	uow          repositories.UnitOfWork
	requestRepo  repositories.VerificationRequestRepository
	documentRepo repositories.VerificationDocumentRepository
	historyRepo  repositories.VerificationHistoryRepository
	notifier     Notifier
	now          func() time.Time
}

func newWorkflow(
	uow repositories.UnitOfWork,
	requestRepo repositories.VerificationRequestRepository,
	documentRepo repositories.VerificationDocumentRepository,
	historyRepo repositories.VerificationHistoryRepository,
	notifier Notifier,
) *workflow {
	return &workflow{
		uow:          uow,
		requestRepo:  requestRepo,
		documentRepo: documentRepo,
		historyRepo:  historyRepo,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// outcome collects what must happen after a transaction commits
type outcome struct {
	request       *entities.VerificationRequest
	requestStatus entities.RequestStatus
	finalized     bool
	failedDoc     *entities.VerificationDocument
	manualReview  *entities.VerificationDocument
}

// applyOptions tunes applyResult for its callers
type applyOptions struct {
	performedBy string
	// webhook appends webhook_received once the document is confirmed in progress
	webhook        bool
	webhookDetails map[string]any
	// allowPending lets an admin resolve a document that never started
	allowPending bool
}

// applyResult persists a provider result under a row lock. A document that
// is already terminal is left untouched and reported as already processed.
func (w *workflow) applyResult(ctx context.Context, documentID uuid.UUID, result *entities.VerificationResult, opts applyOptions) (*entities.ProcessResult, error) {
	if opts.performedBy == "" {
		opts.performedBy = entities.PerformedBySystem
	}
	var (
		out  *entities.ProcessResult
		next outcome
	)
	err := w.uow.Do(ctx, func(txCtx context.Context) error {
		lockCtx := w.uow.WithLock(txCtx)
		doc, err := w.documentRepo.GetByID(lockCtx, documentID)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			out = storedResult(doc, true)
			return nil
		}
		if doc.Status == entities.DocumentStatusPending {
			if !opts.allowPending {
				out = storedResult(doc, true)
				return nil
			}
			if err := w.documentRepo.TransitionStatus(lockCtx, doc.ID, entities.DocumentStatusInProgress); err != nil {
				return err
			}
			if err := w.appendHistory(lockCtx, doc, entities.ActionVerificationStarted, opts.performedBy, nil); err != nil {
				return err
			}
		}
		if opts.webhook {
			if err := w.appendHistory(lockCtx, doc, entities.ActionWebhookReceived, entities.PerformedBySystem, opts.webhookDetails); err != nil {
				return err
			}
		}

		status := result.DocumentStatus()
		update := repositories.DocumentResultUpdate{
			Status:            status,
			Provider:          result.Provider,
			ProviderReference: result.ReferenceID,
			Confidence:        result.Confidence,
		}
		if len(result.Data) > 0 {
			if raw, err := json.Marshal(crypto.Redact(result.Data)); err == nil {
				update.VerificationData = raw
			}
		}
		switch status {
		case entities.DocumentStatusVerified:
			at := w.now()
			update.VerifiedAt = &at
		case entities.DocumentStatusFailed:
			update.FailureReason = failureReason(result.Error)
		}
		if doc.ProviderReference.Valid && doc.ProviderReference.String == update.ProviderReference {
			update.ProviderReference = ""
		}

		if err := w.documentRepo.ApplyResult(lockCtx, doc.ID, update); err != nil {
			return err
		}
		doc.Status = status
		doc.Confidence = result.Confidence
		if update.FailureReason != "" {
			doc.FailureReason.SetValid(update.FailureReason)
		}
		if result.ReferenceID != "" {
			doc.ProviderReference.SetValid(result.ReferenceID)
		}

		if status.IsTerminal() {
			action := entities.ActionDocumentVerified
			if status == entities.DocumentStatusFailed {
				action = entities.ActionDocumentFailed
			}
			if err := w.appendHistory(lockCtx, doc, action, opts.performedBy, map[string]any{
				"provider":   result.Provider,
				"confidence": result.Confidence,
				"reference":  result.ReferenceID,
				"reason":     update.FailureReason,
			}); err != nil {
				return err
			}
		}

		next, err = w.reconcileRequest(lockCtx, doc.RequestID)
		if err != nil {
			return err
		}
		if status == entities.DocumentStatusFailed {
			next.failedDoc = doc
		}
		out = storedResult(doc, false)
		out.RequestStatus = next.requestStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.notifyOutcome(ctx, next)
	return out, nil
}

// failDocument forces a document to failed after an unrecoverable error
func (w *workflow) failDocument(ctx context.Context, documentID uuid.UUID, cause error, kind string) (*entities.ProcessResult, error) {
	reason := cause.Error()
	var (
		out  *entities.ProcessResult
		next outcome
	)
	err := w.uow.Do(ctx, func(txCtx context.Context) error {
		lockCtx := w.uow.WithLock(txCtx)
		doc, err := w.documentRepo.GetByID(lockCtx, documentID)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			out = storedResult(doc, true)
			return nil
		}
		if doc.Status == entities.DocumentStatusPending {
			if err := w.documentRepo.TransitionStatus(lockCtx, doc.ID, entities.DocumentStatusInProgress); err != nil {
				return err
			}
		}
		if err := w.appendHistory(lockCtx, doc, entities.ActionVerificationError, entities.PerformedBySystem, map[string]any{
			"error":      reason,
			"error_kind": kind,
			"retrying":   false,
		}); err != nil {
			return err
		}
		if err := w.documentRepo.ApplyResult(lockCtx, doc.ID, repositories.DocumentResultUpdate{
			Status:        entities.DocumentStatusFailed,
			FailureReason: reason,
		}); err != nil {
			return err
		}
		doc.Status = entities.DocumentStatusFailed
		doc.FailureReason.SetValid(reason)
		if err := w.appendHistory(lockCtx, doc, entities.ActionDocumentFailed, entities.PerformedBySystem, map[string]any{
			"reason":     reason,
			"error_kind": kind,
		}); err != nil {
			return err
		}

		next, err = w.reconcileRequest(lockCtx, doc.RequestID)
		if err != nil {
			return err
		}
		next.failedDoc = doc
		out = storedResult(doc, false)
		out.RequestStatus = next.requestStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.notifyOutcome(ctx, next)
	return out, nil
}

// reconcileRequest re-derives the request status from its documents. Only
// the writer whose conditional update changes the row records the terminal
// transition.
func (w *workflow) reconcileRequest(ctx context.Context, requestID uuid.UUID) (outcome, error) {
	req, err := w.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return outcome{}, err
	}
	res := outcome{request: req, requestStatus: req.Status}
	if req.Status.IsTerminal() {
		return res, nil
	}

	docs, err := w.documentRepo.ListByRequest(ctx, requestID)
	if err != nil {
		return res, err
	}
	target := entities.AggregateRequestStatus(docs)
	if target == req.Status {
		return res, nil
	}

	if !target.IsTerminal() {
		err := w.requestRepo.TransitionStatus(ctx, requestID, []entities.RequestStatus{req.Status}, target, nil, "")
		if err != nil && !errors.Is(err, domainerrors.ErrInvalidTransition) {
			return res, err
		}
		if err == nil {
			res.requestStatus = target
		}
		return res, nil
	}

	completedAt := w.now()
	reason := ""
	if target == entities.RequestStatusRejected {
		reason = rejectionSummary(docs)
	}
	err = w.requestRepo.TransitionStatus(ctx, requestID, entities.OpenRequestStatuses, target, &completedAt, reason)
	if errors.Is(err, domainerrors.ErrInvalidTransition) {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	action := entities.ActionRequestApproved
	if target == entities.RequestStatusRejected {
		action = entities.ActionRequestRejected
	}
	if err := w.historyRepo.Append(ctx, &entities.VerificationHistory{
		RequestID:   requestID,
		Action:      action,
		PerformedBy: entities.PerformedBySystem,
		Details:     details(map[string]any{"reason": reason, "documents": len(docs)}),
	}); err != nil {
		return res, err
	}

	req.Status = target
	req.CompletedAt = &completedAt
	if reason != "" {
		req.RejectionReason.SetValid(reason)
	}
	res.requestStatus = target
	res.finalized = true
	return res, nil
}

// notifyOutcome sends post-commit notifications. Failures are logged only.
func (w *workflow) notifyOutcome(ctx context.Context, o outcome) {
	if o.request == nil {
		return
	}
	customerID := o.request.CustomerID.String()
	if o.finalized {
		kind := entities.NotificationRequestApproved
		if o.requestStatus == entities.RequestStatusRejected {
			kind = entities.NotificationRequestRejected
		}
		w.notify(ctx, customerID, kind, map[string]any{
			"requestId": o.request.ID.String(),
			"status":    string(o.requestStatus),
			"reason":    o.request.RejectionReason.String,
		})
		return
	}
	if o.failedDoc != nil && !o.requestStatus.IsTerminal() {
		w.notify(ctx, customerID, entities.NotificationDocumentFailed, map[string]any{
			"requestId":    o.request.ID.String(),
			"documentId":   o.failedDoc.ID.String(),
			"documentType": string(o.failedDoc.DocumentType),
			"reason":       o.failedDoc.FailureReason.String,
		})
	}
	if o.manualReview != nil {
		w.notify(ctx, customerID, entities.NotificationAdminManualReview, map[string]any{
			"requestId":    o.request.ID.String(),
			"documentId":   o.manualReview.ID.String(),
			"documentType": string(o.manualReview.DocumentType),
			"reference":    o.manualReview.ProviderReference.String,
		})
	}
}

func (w *workflow) notify(ctx context.Context, customerID string, kind entities.NotificationKind, payload map[string]any) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, customerID, kind, payload); err != nil {
		logger.Error(ctx, "Notification failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (w *workflow) appendHistory(ctx context.Context, doc *entities.VerificationDocument, action entities.HistoryAction, performedBy string, extra map[string]any) error {
	return w.historyRepo.Append(ctx, &entities.VerificationHistory{
		RequestID:   doc.RequestID,
		DocumentID:  uuidPtr(doc.ID),
		Action:      action,
		PerformedBy: performedBy,
		Details:     details(extra),
	})
}

func storedResult(doc *entities.VerificationDocument, alreadyProcessed bool) *entities.ProcessResult {
	return &entities.ProcessResult{
		DocumentID:       doc.ID.String(),
		Status:           doc.Status,
		AlreadyProcessed: alreadyProcessed,
		Confidence:       doc.Confidence,
		ReferenceID:      doc.ProviderReference.String,
		FailureReason:    doc.FailureReason.String,
	}
}

func failureReason(providerError string) string {
	if providerError == "" {
		return "verification_failed"
	}
	return providerError
}

func rejectionSummary(docs []*entities.VerificationDocument) string {
	var parts []string
	for _, d := range docs {
		if !d.IsActive() || d.Status != entities.DocumentStatusFailed {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", d.DocumentType, failureReason(d.FailureReason.String)))
	}
	return strings.Join(parts, "; ")
}
