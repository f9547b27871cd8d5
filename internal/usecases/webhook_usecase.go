package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/domain/repositories"
	"verifyflow.backend/internal/infrastructure/metrics"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/logger"
)

// Provider webhook event types
const (
	EventVerificationCompleted = "verification.completed"
	EventVerificationFailed    = "verification.failed"

	webhookEndpoint = "/api/v1/webhooks/provider"
)

// WebhookEvent is the provider's async result delivery
type WebhookEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		ReferenceID  string         `json:"reference_id"`
		Status       string         `json:"status"`
		Confidence   *float64       `json:"confidence"`
		Entity       map[string]any `json:"entity"`
		ErrorMessage string         `json:"error_message"`
	} `json:"data"`
}

// WebhookResult is acknowledged back to the provider
type WebhookResult struct {
	Received         bool                    `json:"received"`
	AlreadyProcessed bool                    `json:"alreadyProcessed,omitempty"`
	Ignored          bool                    `json:"ignored,omitempty"`
	DocumentID       string                  `json:"documentId,omitempty"`
	Status           entities.DocumentStatus `json:"status,omitempty"`
}

// WebhookConfig configures signature checks and result mapping
type WebhookConfig struct {
	ProviderName string
	// Secret signs deliveries; empty accepts unsigned ones
	Secret        string
	MinConfidence int
}

// WebhookUsecase reconciles asynchronous provider results
type WebhookUsecase struct {
	*workflow
	callLogRepo repositories.ProviderCallLogRepository
	cfg         WebhookConfig
}

// NewWebhookUsecase creates a new webhook usecase
func NewWebhookUsecase(
	uow repositories.UnitOfWork,
	requestRepo repositories.VerificationRequestRepository,
	documentRepo repositories.VerificationDocumentRepository,
	historyRepo repositories.VerificationHistoryRepository,
	callLogRepo repositories.ProviderCallLogRepository,
	notifier Notifier,
	cfg WebhookConfig,
) *WebhookUsecase {
	return &WebhookUsecase{
		workflow:    newWorkflow(uow, requestRepo, documentRepo, historyRepo, notifier),
		callLogRepo: callLogRepo,
		cfg:         cfg,
	}
}

// SignatureRequired reports whether deliveries must be signed
func (u *WebhookUsecase) SignatureRequired() bool {
	return u.cfg.Secret != ""
}

// ProcessProviderWebhook verifies, parses and applies one delivery
func (u *WebhookUsecase) ProcessProviderWebhook(ctx context.Context, raw []byte, signature string) (*WebhookResult, error) {
	start := time.Now()
	call := &entities.ProviderCallLog{
		Provider:    u.cfg.ProviderName,
		Endpoint:    webhookEndpoint,
		Direction:   entities.CallDirectionInbound,
		StatusCode:  200,
		RequestBody: null.JSONFrom(crypto.RedactJSON(raw)),
		Success:     true,
	}
	defer func() {
		call.DurationMs = time.Since(start).Milliseconds()
		u.recordCall(ctx, call)
	}()

	if u.SignatureRequired() {
		if !crypto.VerifySignature([]byte(u.cfg.Secret), raw, signature) {
			call.StatusCode = 401
			call.Success = false
			call.ErrorMessage.SetValid(domainerrors.ErrInvalidSignature.Error())
			metrics.WebhookEvents.WithLabelValues("invalid_signature").Inc()
			logger.Warn(ctx, "Rejected webhook with invalid signature")
			return nil, domainerrors.ErrInvalidSignature
		}
	} else {
		logger.Warn(ctx, "Webhook secret not configured, accepting unsigned delivery")
	}

	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		call.StatusCode = 400
		call.Success = false
		call.ErrorMessage.SetValid("malformed payload")
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: malformed webhook payload", domainerrors.ErrInvalidInput)
	}

	if event.EventType != EventVerificationCompleted && event.EventType != EventVerificationFailed {
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		logger.Info(ctx, "Ignoring webhook event", zap.String("event_type", event.EventType))
		return &WebhookResult{Received: true, Ignored: true}, nil
	}

	doc, err := u.documentRepo.GetByProviderReference(ctx, event.Data.ReferenceID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		metrics.WebhookEvents.WithLabelValues("unmatched").Inc()
		logger.Warn(ctx, "Webhook reference does not match any document", zap.String("reference_id", event.Data.ReferenceID))
		return &WebhookResult{Received: true}, nil
	}
	if err != nil {
		return nil, err
	}
	call.DocumentID = uuidPtr(doc.ID)
	if doc.Provider.Valid {
		call.Provider = doc.Provider.String
	}
	ctx = logger.WithDocument(ctx, doc.ID.String())

	if doc.Status != entities.DocumentStatusInProgress {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		return &WebhookResult{Received: true, AlreadyProcessed: true, DocumentID: doc.ID.String(), Status: doc.Status}, nil
	}

	result, err := u.applyResult(ctx, doc.ID, u.toResult(&event, doc), applyOptions{
		webhook: true,
		webhookDetails: map[string]any{
			"event_type": event.EventType,
			"reference":  event.Data.ReferenceID,
			"status":     event.Data.Status,
		},
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		call.StatusCode = 500
		call.Success = false
		call.ErrorMessage.SetValid(err.Error())
		return nil, err
	}
	metrics.WebhookEvents.WithLabelValues("applied").Inc()
	return &WebhookResult{
		Received:         true,
		AlreadyProcessed: result.AlreadyProcessed,
		DocumentID:       result.DocumentID,
		Status:           result.Status,
	}, nil
}

func (u *WebhookUsecase) toResult(event *WebhookEvent, doc *entities.VerificationDocument) *entities.VerificationResult {
	result := &entities.VerificationResult{
		ReferenceID: event.Data.ReferenceID,
		Data:        event.Data.Entity,
		Error:       event.Data.ErrorMessage,
		Provider:    doc.Provider.String,
		Confidence:  100,
	}
	if event.Data.Confidence != nil {
		result.Confidence = entities.ClampConfidence(*event.Data.Confidence)
	}

	status := strings.ToLower(event.Data.Status)
	switch {
	case event.EventType == EventVerificationFailed, status == "failed", status == "not_found":
		result.Status = entities.ProviderStatusFailed
		result.Confidence = 0
	case status == "pending", status == "processing":
		result.Status = entities.ProviderStatusPending
	default:
		result.Status = entities.ProviderStatusVerified
		if result.Confidence < u.cfg.MinConfidence {
			result.Status = entities.ProviderStatusFailed
			result.Error = "low_confidence"
		}
	}
	return result
}

func (u *WebhookUsecase) recordCall(ctx context.Context, call *entities.ProviderCallLog) {
	if u.callLogRepo == nil {
		return
	}
	if err := u.callLogRepo.Create(context.WithoutCancel(ctx), call); err != nil {
		logger.Warn(ctx, "Failed to record webhook call", zap.Error(err))
	}
}

// CallLogRecorder persists outbound provider calls, attributing them to
// the document carried by the context.
type CallLogRecorder struct {
	repo repositories.ProviderCallLogRepository
}

func NewCallLogRecorder(repo repositories.ProviderCallLogRepository) *CallLogRecorder {
	return &CallLogRecorder{repo: repo}
}

// Record matches the provider package's CallRecorder signature
func (r *CallLogRecorder) Record(ctx context.Context, call *entities.ProviderCallLog) {
	if call.DocumentID == nil {
		if id, err := uuid.Parse(logger.DocumentID(ctx)); err == nil {
			call.DocumentID = &id
		}
	}
	if err := r.repo.Create(context.WithoutCancel(ctx), call); err != nil {
		logger.Warn(ctx, "Failed to record provider call", zap.String("endpoint", call.Endpoint), zap.Error(err))
	}
}
