package usecases

import (
	"context"
	"io"
	"time"

	"verifyflow.backend/internal/domain/entities"
)

// ProviderClient verifies one identifier against the provider
type ProviderClient interface {
	Name() string
	Verify(ctx context.Context, documentType entities.DocumentType, identifier string, applicant entities.Applicant) (*entities.VerificationResult, error)
}

// JobQueue schedules verification jobs
type JobQueue interface {
	Enqueue(ctx context.Context, documentID string, priority entities.JobPriority) (string, error)
	Stats(ctx context.Context) (*entities.QueueStats, error)
}

// Notifier delivers customer and admin alerts. Implementations must not
// block on delivery.
type Notifier interface {
	Notify(ctx context.Context, customerID string, kind entities.NotificationKind, payload map[string]any) error
}

// ObjectStorage keeps uploaded document files
type ObjectStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// DocumentCipher protects document numbers at rest
type DocumentCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
