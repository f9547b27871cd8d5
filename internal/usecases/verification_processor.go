package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/domain/repositories"
	"verifyflow.backend/pkg/logger"
)

// VerificationProcessor runs one verification job end to end
type VerificationProcessor struct {
	*workflow
	provider ProviderClient
	cipher   DocumentCipher
}

// NewVerificationProcessor creates a new processor
func NewVerificationProcessor(
	uow repositories.UnitOfWork,
	requestRepo repositories.VerificationRequestRepository,
	documentRepo repositories.VerificationDocumentRepository,
	historyRepo repositories.VerificationHistoryRepository,
	provider ProviderClient,
	cipher DocumentCipher,
	notifier Notifier,
) *VerificationProcessor {
	return &VerificationProcessor{
		workflow: newWorkflow(uow, requestRepo, documentRepo, historyRepo, notifier),
		provider: provider,
		cipher:   cipher,
	}
}

// Process verifies a document as a single, final attempt
func (p *VerificationProcessor) Process(ctx context.Context, documentID uuid.UUID) (*entities.ProcessResult, error) {
	return p.process(ctx, documentID, true)
}

// ProcessJob verifies the document referenced by job. Retryable failures
// leave the document in progress until the job's last attempt.
func (p *VerificationProcessor) ProcessJob(ctx context.Context, job *entities.VerificationJob) (*entities.ProcessResult, error) {
	documentID, err := uuid.Parse(job.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid document id %q", ErrPermanentFailure, job.DocumentID)
	}
	return p.process(ctx, documentID, job.IsFinalAttempt())
}

func (p *VerificationProcessor) process(ctx context.Context, documentID uuid.UUID, finalAttempt bool) (result *entities.ProcessResult, err error) {
	if logger.DocumentID(ctx) == "" {
		ctx = logger.WithDocument(ctx, documentID.String())
	}
	ctx, span := otel.Tracer("verification").Start(ctx, "verification.process")
	span.SetAttributes(attribute.String("document.id", documentID.String()))
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Panic while processing document", zap.Any("panic", r))
			result, err = p.handleError(ctx, documentID, fmt.Errorf("panic: %v", r), errorKindPanic, finalAttempt)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	doc, err := p.documentRepo.GetByID(ctx, documentID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: document %s not found", ErrPermanentFailure, documentID)
	}
	if err != nil {
		return nil, err
	}
	if doc.Status.IsTerminal() {
		return storedResult(doc, true), nil
	}
	// awaiting a webhook or an admin decision
	if doc.ProviderReference.Valid {
		return storedResult(doc, true), nil
	}

	if doc.DocumentType.RequiresManualReview() {
		return p.requestManualReview(ctx, doc)
	}

	started, err := p.start(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if started.Status.IsTerminal() {
		return storedResult(started, true), nil
	}

	req, err := p.requestRepo.GetByID(ctx, started.RequestID)
	if err != nil {
		return p.handleError(ctx, documentID, err, errorKindInternal, finalAttempt)
	}

	identifier := ""
	if started.DocumentNumberEncrypted.Valid {
		identifier, err = p.cipher.Decrypt(started.DocumentNumberEncrypted.String)
		if err != nil {
			return p.handleError(ctx, documentID, err, errorKindDecryption, true)
		}
	}

	verification, err := p.provider.Verify(ctx, started.DocumentType, identifier, applicantFor(req))
	if errors.Is(err, domainerrors.ErrUnsupportedDocumentType) {
		return p.handleError(ctx, documentID, err, errorKindValidation, true)
	}
	if err != nil {
		return p.handleError(ctx, documentID, err, errorKindProvider, finalAttempt)
	}

	result, err = p.applyResult(ctx, documentID, verification, applyOptions{})
	if err != nil {
		return p.handleError(ctx, documentID, err, errorKindInternal, finalAttempt)
	}
	logger.Info(ctx, "Document processed",
		zap.String("status", string(result.Status)),
		zap.String("request_status", string(result.RequestStatus)),
		zap.Int("confidence", result.Confidence),
	)
	return result, nil
}

// start moves the document to in_progress under a row lock. A replayed job
// finds it already in progress and carries on.
func (p *VerificationProcessor) start(ctx context.Context, documentID uuid.UUID) (*entities.VerificationDocument, error) {
	var doc *entities.VerificationDocument
	err := p.uow.Do(ctx, func(txCtx context.Context) error {
		lockCtx := p.uow.WithLock(txCtx)
		current, err := p.documentRepo.GetByID(lockCtx, documentID)
		if err != nil {
			return err
		}
		doc = current
		if current.Status.IsTerminal() {
			return nil
		}
		if err := p.documentRepo.TransitionStatus(lockCtx, documentID, entities.DocumentStatusInProgress); err != nil {
			return err
		}
		// retries re-enter in_progress; only the first attempt is a start
		wasPending := doc.Status == entities.DocumentStatusPending
		doc.Status = entities.DocumentStatusInProgress
		if wasPending {
			if err := p.appendHistory(lockCtx, doc, entities.ActionVerificationStarted, entities.PerformedBySystem, nil); err != nil {
				return err
			}
		}
		_, err = p.reconcileRequest(lockCtx, doc.RequestID)
		return err
	})
	return doc, err
}

// requestManualReview parks an address document for an administrator. It
// stays pending; the reference is attached once so replays stay silent.
func (p *VerificationProcessor) requestManualReview(ctx context.Context, doc *entities.VerificationDocument) (*entities.ProcessResult, error) {
	verification, err := p.provider.Verify(ctx, doc.DocumentType, "", entities.Applicant{})
	if err != nil {
		return nil, err
	}
	provider := verification.Provider
	if provider == "" {
		provider = providerManual
	}

	err = p.documentRepo.AttachReference(ctx, doc.ID, provider, verification.ReferenceID)
	if errors.Is(err, domainerrors.ErrInvalidTransition) {
		return storedResult(doc, true), nil
	}
	if err != nil {
		return nil, err
	}
	doc.Provider.SetValid(provider)
	doc.ProviderReference.SetValid(verification.ReferenceID)

	req, err := p.requestRepo.GetByID(ctx, doc.RequestID)
	if err != nil {
		return nil, err
	}
	p.notifyOutcome(ctx, outcome{request: req, requestStatus: req.Status, manualReview: doc})

	res := storedResult(doc, false)
	res.RequestStatus = req.Status
	return res, nil
}

// handleError applies the retry policy. While attempts remain the document
// stays in progress and the error is returned for backoff. Otherwise the
// document fails and the error is marked permanent.
func (p *VerificationProcessor) handleError(ctx context.Context, documentID uuid.UUID, cause error, kind string, finalAttempt bool) (*entities.ProcessResult, error) {
	if !finalAttempt && isRetryable(cause) {
		logger.Warn(ctx, "Verification attempt failed, will retry", zap.String("error_kind", kind), zap.Error(cause))
		doc, err := p.documentRepo.GetByID(ctx, documentID)
		if err == nil {
			if appendErr := p.appendHistory(ctx, doc, entities.ActionVerificationError, entities.PerformedBySystem, map[string]any{
				"error":      cause.Error(),
				"error_kind": kind,
				"retrying":   true,
			}); appendErr != nil {
				logger.Error(ctx, "Failed to record verification error", zap.Error(appendErr))
			}
		}
		return nil, cause
	}

	logger.Error(ctx, "Verification failed permanently", zap.String("error_kind", kind), zap.Error(cause))
	result, err := p.failDocument(ctx, documentID, cause, kind)
	if err != nil {
		return nil, fmt.Errorf("mark document failed: %w (cause: %v)", err, cause)
	}
	return result, fmt.Errorf("%w: %w", ErrPermanentFailure, cause)
}

func applicantFor(req *entities.VerificationRequest) entities.Applicant {
	return entities.Applicant{
		CustomerID: req.CustomerID.String(),
		FirstName:  req.Metadata.FirstName,
		LastName:   req.Metadata.LastName,
		State:      req.Metadata.State,
	}
}
