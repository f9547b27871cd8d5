// Package provider talks to the identity-verification provider. Each
// document type has its own verifier; the Registry dispatches to them.
package provider

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/infrastructure/metrics"
	"verifyflow.backend/pkg/logger"
)

// CallRecorder receives one entry per outbound provider call. Bodies are
// already redacted; DocumentID is left for the caller to fill.
type CallRecorder func(ctx context.Context, call *entities.ProviderCallLog)

// Backend is a provider API able to run the individual lookups
type Backend interface {
	Name() string
	LookupNIN(ctx context.Context, nin string) (*entities.VerificationResult, error)
	LookupPassport(ctx context.Context, number, surname string) (*entities.VerificationResult, error)
	LookupDriversLicense(ctx context.Context, number string) (*entities.VerificationResult, error)
	LookupVotersCard(ctx context.Context, vin, lastName, state string) (*entities.VerificationResult, error)
}

// Verifier checks one document type
type Verifier interface {
	Verify(ctx context.Context, identifier string, applicant entities.Applicant) (*entities.VerificationResult, error)
}

// Registry maps document types to verifiers
type Registry struct {
	name      string
	verifiers map[entities.DocumentType]Verifier
}

// NewRegistry registers the standard verifier for every known document type
func NewRegistry(backend Backend) *Registry {
	r := &Registry{
		name:      backend.Name(),
		verifiers: make(map[entities.DocumentType]Verifier),
	}
	r.Register(entities.DocumentTypeNIN, &ninVerifier{backend: backend})
	r.Register(entities.DocumentTypePassport, &passportVerifier{backend: backend})
	r.Register(entities.DocumentTypeDriversLicense, &driversLicenseVerifier{backend: backend})
	r.Register(entities.DocumentTypeVotersCard, &votersCardVerifier{backend: backend})
	address := &addressProofVerifier{}
	r.Register(entities.DocumentTypeUtilityBill, address)
	r.Register(entities.DocumentTypeProofOfAddress, address)
	return r
}

// Register replaces the verifier for documentType
func (r *Registry) Register(documentType entities.DocumentType, v Verifier) {
	r.verifiers[documentType] = v
}

// Name is the provider name stored on documents
func (r *Registry) Name() string {
	return r.name
}

// Verify runs the verifier registered for documentType
func (r *Registry) Verify(ctx context.Context, documentType entities.DocumentType, identifier string, applicant entities.Applicant) (*entities.VerificationResult, error) {
	v, ok := r.verifiers[documentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedDocumentType, documentType)
	}

	start := time.Now()
	ctx, span := otel.Tracer("provider").Start(ctx, "provider.verify",
		trace.WithAttributes(
			attribute.String("provider.name", r.name),
			attribute.String("document.type", string(documentType)),
		),
	)
	defer span.End()

	result, err := v.Verify(ctx, identifier, applicant)
	outcome := "error"
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn(ctx, "Provider verification failed",
			zap.String("provider", r.name),
			zap.String("document_type", string(documentType)),
			zap.String("category", string(GetCategory(err))),
			zap.Error(err),
		)
	} else {
		if result.Provider == "" {
			result.Provider = r.name
		}
		outcome = string(result.Status)
		span.SetAttributes(
			attribute.String("verification.status", outcome),
			attribute.Int("verification.confidence", result.Confidence),
		)
		span.SetStatus(codes.Ok, "success")
	}
	metrics.ProviderCallDuration.WithLabelValues(r.name, string(documentType), outcome).Observe(time.Since(start).Seconds())
	return result, err
}
