package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/pkg/utils"
)

type stubBackend struct {
	calls    []string
	lastArgs []string
	err      error
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) result(method string, args ...string) (*entities.VerificationResult, error) {
	b.calls = append(b.calls, method)
	b.lastArgs = args
	if b.err != nil {
		return nil, b.err
	}
	return &entities.VerificationResult{Status: entities.ProviderStatusVerified, Confidence: 90}, nil
}

func (b *stubBackend) LookupNIN(_ context.Context, nin string) (*entities.VerificationResult, error) {
	return b.result("nin", nin)
}

func (b *stubBackend) LookupPassport(_ context.Context, number, surname string) (*entities.VerificationResult, error) {
	return b.result("passport", number, surname)
}

func (b *stubBackend) LookupDriversLicense(_ context.Context, number string) (*entities.VerificationResult, error) {
	return b.result("dl", number)
}

func (b *stubBackend) LookupVotersCard(_ context.Context, vin, lastName, state string) (*entities.VerificationResult, error) {
	return b.result("vin", vin, lastName, state)
}

func TestRegistry_DispatchesByType(t *testing.T) {
	backend := &stubBackend{}
	reg := NewRegistry(backend)
	applicant := entities.Applicant{LastName: "Doe", State: "Lagos"}
	ctx := context.Background()

	_, err := reg.Verify(ctx, entities.DocumentTypeNIN, " 123 ", applicant)
	require.NoError(t, err)
	assert.Equal(t, []string{"123"}, backend.lastArgs)

	_, err = reg.Verify(ctx, entities.DocumentTypePassport, "a123", applicant)
	require.NoError(t, err)
	assert.Equal(t, []string{"A123", "Doe"}, backend.lastArgs)

	_, err = reg.Verify(ctx, entities.DocumentTypeDriversLicense, "dl1", applicant)
	require.NoError(t, err)

	res, err := reg.Verify(ctx, entities.DocumentTypeVotersCard, "v1", applicant)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1", "Doe", "Lagos"}, backend.lastArgs)
	assert.Equal(t, "stub", res.Provider)

	assert.Equal(t, []string{"nin", "passport", "dl", "vin"}, backend.calls)
}

func TestRegistry_AddressProofIsManual(t *testing.T) {
	backend := &stubBackend{}
	reg := NewRegistry(backend)

	for _, dt := range []entities.DocumentType{entities.DocumentTypeUtilityBill, entities.DocumentTypeProofOfAddress} {
		res, err := reg.Verify(context.Background(), dt, "", entities.Applicant{})
		require.NoError(t, err)
		assert.Equal(t, entities.ProviderStatusPending, res.Status)
		assert.True(t, utils.IsManualReference(res.ReferenceID))
		assert.Equal(t, true, res.Data["manual_review"])
		assert.Equal(t, entities.DocumentStatusInProgress, res.DocumentStatus())
	}
	assert.Empty(t, backend.calls)
}

func TestRegistry_UnsupportedType(t *testing.T) {
	reg := NewRegistry(&stubBackend{})
	_, err := reg.Verify(context.Background(), entities.DocumentType("library_card"), "x", entities.Applicant{})
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedDocumentType)
}

func TestRegistry_PropagatesBackendError(t *testing.T) {
	backend := &stubBackend{err: NewProviderError(ErrorTimeout, "stub", "slow", nil)}
	reg := NewRegistry(backend)
	_, err := reg.Verify(context.Background(), entities.DocumentTypeNIN, "1", entities.Applicant{})
	assert.True(t, IsRetryable(err))
}

func TestSandboxProvider(t *testing.T) {
	rec := &recordedCalls{}
	p := NewSandboxProvider(rec.record)
	ctx := context.Background()

	res, _ := p.LookupNIN(ctx, "12345670000")
	assert.Equal(t, entities.ProviderStatusFailed, res.Status)

	res, _ = p.LookupPassport(ctx, "A9999", "Doe")
	assert.Equal(t, entities.ProviderStatusPending, res.Status)
	assert.NotEmpty(t, res.ReferenceID)

	res, _ = p.LookupNIN(ctx, "12345679999")
	assert.Equal(t, entities.ProviderStatusVerified, res.Status)
	assert.Equal(t, 92, res.Confidence)

	require.Len(t, rec.calls, 3)
	assert.NotContains(t, string(rec.calls[2].RequestBody.JSON), "12345679999")
}

func TestProviderError(t *testing.T) {
	base := errors.New("dial tcp")
	err := NewProviderError(ErrorProviderOutage, "dojah", "request failed", base)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "provider_outage")
	assert.True(t, err.Temporary())

	assert.Equal(t, ErrorInternal, GetCategory(base))
	assert.False(t, IsRetryable(base))
	assert.False(t, NewProviderError(ErrorAuthentication, "dojah", "denied", nil).Retryable)
}
