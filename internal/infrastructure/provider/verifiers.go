package provider

import (
	"context"
	"strings"

	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/pkg/utils"
)

type ninVerifier struct {
	backend Backend
}

func (v *ninVerifier) Verify(ctx context.Context, identifier string, _ entities.Applicant) (*entities.VerificationResult, error) {
	return v.backend.LookupNIN(ctx, strings.TrimSpace(identifier))
}

type passportVerifier struct {
	backend Backend
}

func (v *passportVerifier) Verify(ctx context.Context, identifier string, applicant entities.Applicant) (*entities.VerificationResult, error) {
	return v.backend.LookupPassport(ctx, strings.ToUpper(strings.TrimSpace(identifier)), applicant.LastName)
}

type driversLicenseVerifier struct {
	backend Backend
}

func (v *driversLicenseVerifier) Verify(ctx context.Context, identifier string, _ entities.Applicant) (*entities.VerificationResult, error) {
	return v.backend.LookupDriversLicense(ctx, strings.ToUpper(strings.TrimSpace(identifier)))
}

type votersCardVerifier struct {
	backend Backend
}

func (v *votersCardVerifier) Verify(ctx context.Context, identifier string, applicant entities.Applicant) (*entities.VerificationResult, error) {
	return v.backend.LookupVotersCard(ctx, strings.ToUpper(strings.TrimSpace(identifier)), applicant.LastName, applicant.State)
}

// addressProofVerifier hands utility bills and proofs of address to a human.
// The result is always pending with a manual reference.
type addressProofVerifier struct{}

func (v *addressProofVerifier) Verify(_ context.Context, _ string, _ entities.Applicant) (*entities.VerificationResult, error) {
	return &entities.VerificationResult{
		Status:      entities.ProviderStatusPending,
		ReferenceID: utils.ManualReference(),
		Data:        map[string]any{"manual_review": true},
		Provider:    "manual",
	}, nil
}
