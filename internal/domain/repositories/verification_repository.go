package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"verifyflow.backend/internal/domain/entities"
)

// VerificationRequestRepository persists verification requests
type VerificationRequestRepository interface {
	Create(ctx context.Context, req *entities.VerificationRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.VerificationRequest, error)
	GetActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*entities.VerificationRequest, error)
	GetLatestByCustomer(ctx context.Context, customerID uuid.UUID) (*entities.VerificationRequest, error)
	List(ctx context.Context, filter entities.RequestFilter, limit, offset int) ([]*entities.VerificationRequest, int64, error)
	// TransitionStatus moves an open request to status. It returns
	// ErrInvalidTransition when the request is no longer in one of from.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []entities.RequestStatus, to entities.RequestStatus, completedAt *time.Time, rejectionReason string) error
}

// DocumentResultUpdate is the set of fields written when a check resolves
type DocumentResultUpdate struct {
	Status            entities.DocumentStatus
	Provider          string
	ProviderReference string
	Confidence        int
	VerificationData  []byte
	FailureReason     string
	VerifiedAt        *time.Time
}

// VerificationDocumentRepository persists documents attached to requests
type VerificationDocumentRepository interface {
	Create(ctx context.Context, doc *entities.VerificationDocument) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.VerificationDocument, error)
	GetByProviderReference(ctx context.Context, reference string) (*entities.VerificationDocument, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*entities.VerificationDocument, error)
	FindActiveByType(ctx context.Context, requestID uuid.UUID, docType entities.DocumentType) (*entities.VerificationDocument, error)
	// TransitionStatus applies a status change only when the row is still in
	// one of the allowed source states, returning ErrInvalidTransition otherwise.
	TransitionStatus(ctx context.Context, id uuid.UUID, to entities.DocumentStatus) error
	// ApplyResult writes a provider result; the row must be in_progress.
	ApplyResult(ctx context.Context, id uuid.UUID, update DocumentResultUpdate) error
	// AttachReference records provider and reference on a document that has none yet.
	AttachReference(ctx context.Context, id uuid.UUID, provider, reference string) error
	MarkSuperseded(ctx context.Context, id, replacementID uuid.UUID) error
}

// VerificationHistoryRepository is append-only
type VerificationHistoryRepository interface {
	Append(ctx context.Context, entry *entities.VerificationHistory) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*entities.VerificationHistory, error)
	CountByDocumentAndAction(ctx context.Context, documentID uuid.UUID, action entities.HistoryAction) (int64, error)
}

// ProviderCallLogRepository stores redacted provider exchanges
type ProviderCallLogRepository interface {
	Create(ctx context.Context, entry *entities.ProviderCallLog) error
	List(ctx context.Context, filter entities.CallLogFilter, limit, offset int) ([]*entities.ProviderCallLog, int64, error)
}
