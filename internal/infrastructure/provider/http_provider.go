package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/pkg/crypto"
)

const (
	ninPath            = "/api/v1/kyc/nin"
	passportPath       = "/api/v1/kyc/passport"
	driversLicensePath = "/api/v1/kyc/dl"
	votersCardPath     = "/api/v1/kyc/vin"

	defaultConfidence = 100
	maxResponseBytes  = 1 << 20
)

// HTTPConfig configures the HTTP provider
type HTTPConfig struct {
	Name          string
	BaseURL       string
	AppID         string
	SecretKey     string
	Timeout       time.Duration
	MinConfidence int
}

// HTTPProvider is a Dojah style KYC lookup client
type HTTPProvider struct {
	cfg      HTTPConfig
	client   *http.Client
	recorder CallRecorder
	now      func() time.Time
}

// NewHTTPProvider builds a provider. A nil client falls back to a default
// one; the per-call timeout is applied through the request context.
func NewHTTPProvider(cfg HTTPConfig, client *http.Client, recorder CallRecorder) *HTTPProvider {
	if cfg.Name == "" {
		cfg.Name = "dojah"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPProvider{cfg: cfg, client: client, recorder: recorder, now: time.Now}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

func (p *HTTPProvider) LookupNIN(ctx context.Context, nin string) (*entities.VerificationResult, error) {
	return p.lookup(ctx, ninPath, url.Values{"nin": {nin}})
}

func (p *HTTPProvider) LookupPassport(ctx context.Context, number, surname string) (*entities.VerificationResult, error) {
	return p.lookup(ctx, passportPath, url.Values{"passport_number": {number}, "surname": {surname}})
}

func (p *HTTPProvider) LookupDriversLicense(ctx context.Context, number string) (*entities.VerificationResult, error) {
	return p.lookup(ctx, driversLicensePath, url.Values{"license_number": {number}})
}

func (p *HTTPProvider) LookupVotersCard(ctx context.Context, vin, lastName, state string) (*entities.VerificationResult, error) {
	return p.lookup(ctx, votersCardPath, url.Values{"vin": {vin}, "last_name": {lastName}, "state": {state}})
}

type lookupResponse struct {
	Entity          json.RawMessage `json:"entity"`
	ReferenceID     string          `json:"reference_id"`
	Status          string          `json:"status"`
	ConfidenceValue *float64        `json:"confidence_value"`
	Error           string          `json:"error"`
}

func (p *HTTPProvider) lookup(ctx context.Context, path string, query url.Values) (*entities.VerificationResult, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	call := &entities.ProviderCallLog{
		Provider:  p.cfg.Name,
		Endpoint:  path,
		Direction: entities.CallDirectionOutbound,
	}
	if reqBody, err := json.Marshal(crypto.Redact(flatten(query))); err == nil {
		call.RequestBody = null.JSONFrom(reqBody)
	}
	start := p.now()
	defer func() {
		call.DurationMs = p.now().Sub(start).Milliseconds()
		if p.recorder != nil {
			p.recorder(parent, call)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, p.fail(call, NewProviderError(ErrorInternal, p.cfg.Name, "build request", err))
	}
	req.Header.Set("AppId", p.cfg.AppID)
	req.Header.Set("Authorization", p.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.fail(call, p.transportError(ctx, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, p.fail(call, p.transportError(ctx, err))
	}
	call.StatusCode = resp.StatusCode
	call.ResponseBody = null.JSONFrom(crypto.RedactJSON(body))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		call.Success = true
		return &entities.VerificationResult{
			Status:   entities.ProviderStatusFailed,
			Error:    string(ErrorNotFound),
			Provider: p.cfg.Name,
		}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, p.fail(call, p.statusError(ErrorRateLimited, resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, p.fail(call, p.statusError(ErrorAuthentication, resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, p.fail(call, p.statusError(ErrorProviderOutage, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, p.fail(call, p.statusError(ErrorBadData, resp.StatusCode))
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, p.fail(call, NewProviderError(ErrorBadData, p.cfg.Name, "malformed response", err))
	}
	call.Success = true
	return p.toResult(&parsed), nil
}

func (p *HTTPProvider) toResult(resp *lookupResponse) *entities.VerificationResult {
	result := &entities.VerificationResult{
		ReferenceID: resp.ReferenceID,
		Provider:    p.cfg.Name,
		Confidence:  defaultConfidence,
	}
	if resp.ConfidenceValue != nil {
		result.Confidence = entities.ClampConfidence(*resp.ConfidenceValue)
	}
	hasEntity := false
	if entity := bytes.TrimSpace(resp.Entity); len(entity) > 0 && !bytes.Equal(entity, []byte("null")) {
		var data map[string]any
		if err := json.Unmarshal(entity, &data); err == nil && len(data) > 0 {
			result.Data = data
			hasEntity = true
		}
	}

	switch strings.ToLower(resp.Status) {
	case "verified", "success":
		result.Status = entities.ProviderStatusVerified
	case "failed", "not_found":
		result.Status = entities.ProviderStatusFailed
	case "pending", "processing":
		result.Status = entities.ProviderStatusPending
	default:
		if hasEntity {
			result.Status = entities.ProviderStatusVerified
		} else {
			result.Status = entities.ProviderStatusFailed
		}
	}

	if result.Status == entities.ProviderStatusFailed {
		result.Error = resp.Error
		if result.Error == "" {
			result.Error = "no_match"
		}
	}
	if result.Status == entities.ProviderStatusVerified && result.Confidence < p.cfg.MinConfidence {
		result.Status = entities.ProviderStatusFailed
		result.Error = "low_confidence"
	}
	return result
}

func (p *HTTPProvider) transportError(ctx context.Context, err error) *ProviderError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return NewProviderError(ErrorTimeout, p.cfg.Name, fmt.Sprintf("no response within %s", p.cfg.Timeout), err)
	}
	return NewProviderError(ErrorProviderOutage, p.cfg.Name, "request failed", err)
}

func (p *HTTPProvider) statusError(category ErrorCategory, status int) *ProviderError {
	pe := NewProviderError(category, p.cfg.Name, fmt.Sprintf("unexpected status %d", status), nil)
	pe.StatusCode = status
	return pe
}

func (p *HTTPProvider) fail(call *entities.ProviderCallLog, err *ProviderError) error {
	call.Success = false
	call.ErrorMessage.SetValid(err.Error())
	return err
}

func flatten(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}
