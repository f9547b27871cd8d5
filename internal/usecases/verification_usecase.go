package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"go.uber.org/zap"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/domain/repositories"
	"verifyflow.backend/internal/infrastructure/storage"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/logger"
	"verifyflow.backend/pkg/utils"
)

// DefaultMaxUploadBytes caps document files at 10 MiB
const DefaultMaxUploadBytes = 10 << 20

var allowedMimeTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"application/pdf": {},
}

// CreateRequestInput carries the applicant and client context
type CreateRequestInput struct {
	CustomerID   uuid.UUID
	CustomerType entities.CustomerType
	FirstName    string
	LastName     string
	State        string
	IPAddress    string
	UserAgent    string
}

// UploadDocumentInput is one multipart document submission
type UploadDocumentInput struct {
	CustomerID     uuid.UUID
	RequestID      uuid.UUID
	DocumentType   entities.DocumentType
	DocumentNumber string
	FileName       string
	FileSize       int64
	ContentType    string
	File           io.Reader
}

// VerificationUsecase serves the customer facing verification API
type VerificationUsecase struct {
	uow            repositories.UnitOfWork
	requestRepo    repositories.VerificationRequestRepository
	documentRepo   repositories.VerificationDocumentRepository
	historyRepo    repositories.VerificationHistoryRepository
	storage        ObjectStorage
	cipher         DocumentCipher
	queue          JobQueue
	maxUploadBytes int64
	now            func() time.Time
}

// NewVerificationUsecase creates a new verification usecase
func NewVerificationUsecase(
	uow repositories.UnitOfWork,
	requestRepo repositories.VerificationRequestRepository,
	documentRepo repositories.VerificationDocumentRepository,
	historyRepo repositories.VerificationHistoryRepository,
	storage ObjectStorage,
	cipher DocumentCipher,
	queue JobQueue,
	maxUploadBytes int64,
) *VerificationUsecase {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &VerificationUsecase{
		uow:            uow,
		requestRepo:    requestRepo,
		documentRepo:   documentRepo,
		historyRepo:    historyRepo,
		storage:        storage,
		cipher:         cipher,
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest returns the customer's open request, creating one if none
// exists. The boolean reports whether a new request was created.
func (u *VerificationUsecase) CreateRequest(ctx context.Context, input *CreateRequestInput) (*entities.VerificationRequest, bool, error) {
	if input.CustomerID == uuid.Nil {
		return nil, false, domainerrors.ErrUnauthorized
	}
	if input.CustomerType == "" {
		input.CustomerType = entities.CustomerTypeIndividual
	}
	if !input.CustomerType.IsValid() {
		return nil, false, domainerrors.BadRequest("invalid customer type")
	}

	var (
		req     *entities.VerificationRequest
		created bool
	)
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		existing, err := u.requestRepo.GetActiveByCustomer(u.uow.WithLock(txCtx), input.CustomerID)
		if err == nil {
			req = existing
			return nil
		}
		if !errors.Is(err, domainerrors.ErrNotFound) {
			return err
		}

		req = &entities.VerificationRequest{
			ID:           utils.GenerateUUIDv7(),
			CustomerID:   input.CustomerID,
			CustomerType: input.CustomerType,
			Status:       entities.RequestStatusPending,
			SubmittedAt:  u.now(),
			Metadata:     requestMetadata(input),
		}
		if err := u.requestRepo.Create(txCtx, req); err != nil {
			return err
		}
		created = true
		return u.historyRepo.Append(txCtx, &entities.VerificationHistory{
			RequestID:   req.ID,
			Action:      entities.ActionRequestCreated,
			PerformedBy: input.CustomerID.String(),
			Details: details(map[string]any{
				"customer_type": string(req.CustomerType),
				"browser":       req.Metadata.Browser,
				"os":            req.Metadata.OS,
			}),
		})
	})
	// lost a creation race against a concurrent call for the same customer
	if errors.Is(err, domainerrors.ErrAlreadyExists) {
		existing, getErr := u.requestRepo.GetActiveByCustomer(ctx, input.CustomerID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return req, created, nil
}

// GetCurrent returns the customer's most recent request with its documents
func (u *VerificationUsecase) GetCurrent(ctx context.Context, customerID uuid.UUID) (*entities.VerificationRequest, error) {
	req, err := u.requestRepo.GetLatestByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return u.withDocuments(ctx, req)
}

// GetRequest returns a request owned by customerID
func (u *VerificationUsecase) GetRequest(ctx context.Context, customerID, requestID uuid.UUID) (*entities.VerificationRequest, error) {
	req, err := u.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != customerID {
		return nil, domainerrors.ErrForbidden
	}
	return u.withDocuments(ctx, req)
}

// UploadDocument stores the file, encrypts the number, records the document
// and enqueues its verification job.
func (u *VerificationUsecase) UploadDocument(ctx context.Context, input *UploadDocumentInput) (*entities.VerificationDocument, error) {
	number := strings.TrimSpace(input.DocumentNumber)
	if err := u.validateUpload(input, number); err != nil {
		return nil, err
	}

	req, err := u.requestRepo.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != input.CustomerID {
		return nil, domainerrors.ErrForbidden
	}
	if req.Status.IsTerminal() {
		return nil, domainerrors.ErrRequestNotOpen
	}
	if _, err := u.documentRepo.FindActiveByType(ctx, req.ID, input.DocumentType); err == nil {
		return nil, domainerrors.ErrDuplicateDocument
	} else if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	doc := &entities.VerificationDocument{
		ID:           utils.GenerateUUIDv7(),
		RequestID:    req.ID,
		DocumentType: input.DocumentType,
		FileName:     storage.SanitizeFileName(input.FileName),
		FileSize:     input.FileSize,
		MimeType:     input.ContentType,
		Status:       entities.DocumentStatusPending,
	}
	if number != "" {
		encrypted, err := u.cipher.Encrypt(number)
		if err != nil {
			return nil, fmt.Errorf("encrypt document number: %w", err)
		}
		doc.DocumentNumberEncrypted.SetValid(encrypted)
		doc.DocumentNumberHint.SetValid(crypto.MaskIdentifier(number))
	}

	doc.FileKey = storage.ObjectKey(req.ID, input.DocumentType, input.FileName, u.now())
	doc.FileURL, err = u.storage.Put(ctx, doc.FileKey, input.File, input.FileSize, input.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store document file: %w", err)
	}

	err = u.uow.Do(ctx, func(txCtx context.Context) error {
		locked, err := u.requestRepo.GetByID(u.uow.WithLock(txCtx), req.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			return domainerrors.ErrRequestNotOpen
		}
		if _, err := u.documentRepo.FindActiveByType(txCtx, req.ID, input.DocumentType); err == nil {
			return domainerrors.ErrDuplicateDocument
		} else if !errors.Is(err, domainerrors.ErrNotFound) {
			return err
		}
		if err := u.documentRepo.Create(txCtx, doc); err != nil {
			if errors.Is(err, domainerrors.ErrAlreadyExists) {
				return domainerrors.ErrDuplicateDocument
			}
			return err
		}
		return u.historyRepo.Append(txCtx, &entities.VerificationHistory{
			RequestID:   req.ID,
			DocumentID:  uuidPtr(doc.ID),
			Action:      entities.ActionDocumentUploaded,
			PerformedBy: input.CustomerID.String(),
			Details: details(map[string]any{
				"document_type": string(doc.DocumentType),
				"file_name":     doc.FileName,
				"file_size":     doc.FileSize,
				"hint":          doc.DocumentNumberHint.String,
			}),
		})
	})
	if err != nil {
		return nil, err
	}

	priority := entities.JobPriorityNormal
	if doc.DocumentType.RequiresManualReview() {
		priority = entities.JobPriorityLow
	}
	jobID, err := u.queue.Enqueue(ctx, doc.ID.String(), priority)
	if err != nil {
		// the document stays pending; an admin re-verify enqueues a fresh job
		logger.Error(ctx, "Failed to enqueue verification job", zap.String("document_id", doc.ID.String()), zap.Error(err))
		return doc, nil
	}
	logger.Info(ctx, "Document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("document_type", string(doc.DocumentType)),
		zap.String("job_id", jobID),
	)
	return doc, nil
}

func (u *VerificationUsecase) validateUpload(input *UploadDocumentInput, number string) error {
	if !input.DocumentType.IsValid() {
		return domainerrors.ErrUnsupportedDocumentType
	}
	if input.DocumentType.RequiresNumber() && number == "" {
		return domainerrors.BadRequest("document_number is required for "+string(input.DocumentType))
	}
	if input.File == nil || input.FileSize <= 0 {
		return domainerrors.BadRequest("file is required")
	}
	if input.FileSize > u.maxUploadBytes {
		return domainerrors.BadRequest(fmt.Sprintf("file exceeds %d bytes", u.maxUploadBytes))
	}
	if _, ok := allowedMimeTypes[input.ContentType]; !ok {
		return domainerrors.BadRequest("unsupported file type "+input.ContentType)
	}
	return nil
}

func (u *VerificationUsecase) withDocuments(ctx context.Context, req *entities.VerificationRequest) (*entities.VerificationRequest, error) {
	docs, err := u.documentRepo.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.Documents = docs
	return req, nil
}

func requestMetadata(input *CreateRequestInput) entities.RequestMetadata {
	meta := entities.RequestMetadata{
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		State:     strings.TrimSpace(input.State),
	}
	if input.UserAgent != "" {
		ua := useragent.New(input.UserAgent)
		meta.Browser, _ = ua.Browser()
		meta.OS = ua.OS()
		meta.Mobile = ua.Mobile()
	}
	return meta
}
