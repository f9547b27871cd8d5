package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/volatiletech/null/v8"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/utils"
)

const sandboxConfidence = 92

// SandboxProvider returns deterministic results for development:
// identifiers ending in 0000 fail, passports ending in 9999 stay pending,
// everything else verifies.
type SandboxProvider struct {
	recorder CallRecorder
}

func NewSandboxProvider(recorder CallRecorder) *SandboxProvider {
	return &SandboxProvider{recorder: recorder}
}

func (p *SandboxProvider) Name() string { return "sandbox" }

func (p *SandboxProvider) LookupNIN(ctx context.Context, nin string) (*entities.VerificationResult, error) {
	return p.resolve(ctx, ninPath, nin, false), nil
}

func (p *SandboxProvider) LookupPassport(ctx context.Context, number, _ string) (*entities.VerificationResult, error) {
	return p.resolve(ctx, passportPath, number, true), nil
}

func (p *SandboxProvider) LookupDriversLicense(ctx context.Context, number string) (*entities.VerificationResult, error) {
	return p.resolve(ctx, driversLicensePath, number, false), nil
}

func (p *SandboxProvider) LookupVotersCard(ctx context.Context, vin, _, _ string) (*entities.VerificationResult, error) {
	return p.resolve(ctx, votersCardPath, vin, false), nil
}

func (p *SandboxProvider) resolve(ctx context.Context, endpoint, identifier string, async bool) *entities.VerificationResult {
	result := &entities.VerificationResult{
		ReferenceID: "sandbox-" + utils.GenerateUUIDv7().String(),
		Provider:    p.Name(),
	}
	switch {
	case strings.HasSuffix(identifier, "0000"):
		result.Status = entities.ProviderStatusFailed
		result.Error = "no_match"
	case async && strings.HasSuffix(identifier, "9999"):
		result.Status = entities.ProviderStatusPending
	default:
		result.Status = entities.ProviderStatusVerified
		result.Confidence = sandboxConfidence
		result.Data = map[string]any{"source": "sandbox", "match": true}
	}

	if p.recorder != nil {
		req, _ := json.Marshal(crypto.Redact(map[string]any{"number": identifier}))
		resp, _ := json.Marshal(crypto.Redact(result))
		p.recorder(ctx, &entities.ProviderCallLog{
			Provider:     p.Name(),
			Endpoint:     endpoint,
			Direction:    entities.CallDirectionOutbound,
			StatusCode:   200,
			RequestBody:  null.JSONFrom(req),
			ResponseBody: null.JSONFrom(resp),
			Success:      true,
		})
	}
	return result
}
