package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/internal/infrastructure/repositories"
	"verifyflow.backend/internal/infrastructure/repositories/repotest"
	"verifyflow.backend/internal/infrastructure/storage"
	"verifyflow.backend/pkg/crypto"
)

const (
	testMasterKey     = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testWebhookSecret = "whsec_test"
)

// MockProviderClient is a testify mock of ProviderClient
type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) Name() string { return "mock" }

func (m *MockProviderClient) Verify(ctx context.Context, documentType entities.DocumentType, identifier string, applicant entities.Applicant) (*entities.VerificationResult, error) {
	args := m.Called(ctx, documentType, identifier, applicant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.VerificationResult), args.Error(1)
}

type enqueuedJob struct {
	DocumentID string
	Priority   entities.JobPriority
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []enqueuedJob
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, documentID string, priority entities.JobPriority) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, enqueuedJob{DocumentID: documentID, Priority: priority})
	return "job-" + documentID, nil
}

func (q *recordingQueue) Stats(context.Context) (*entities.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &entities.QueueStats{Ready: int64(len(q.jobs))}, nil
}

func (q *recordingQueue) Enqueued() []enqueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]enqueuedJob(nil), q.jobs...)
}

type sentNotification struct {
	CustomerID string
	Kind       entities.NotificationKind
	Payload    map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, customerID string, kind entities.NotificationKind, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{CustomerID: customerID, Kind: kind, Payload: payload})
	return nil
}

func (n *recordingNotifier) Count(kind entities.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) Total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type harness struct {
	requestRepo  *repositories.VerificationRequestRepositoryImpl
	documentRepo *repositories.VerificationDocumentRepositoryImpl
	historyRepo  *repositories.VerificationHistoryRepositoryImpl
	callLogRepo  *repositories.ProviderCallLogRepositoryImpl
	cipher       *crypto.Cipher
	provider     *MockProviderClient
	queue        *recordingQueue
	notifier     *recordingNotifier
	storage      *storage.MemoryStorage

	verification *VerificationUsecase
	processor    *VerificationProcessor
	webhook      *WebhookUsecase
	admin        *AdminUsecase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := repotest.NewDB(t)
	cipher, err := crypto.NewCipher(testMasterKey)
	require.NoError(t, err)

	h := &harness{
		requestRepo:  repositories.NewVerificationRequestRepository(db),
		documentRepo: repositories.NewVerificationDocumentRepository(db),
		historyRepo:  repositories.NewVerificationHistoryRepository(db),
		callLogRepo:  repositories.NewProviderCallLogRepository(db),
		cipher:       cipher,
		provider:     new(MockProviderClient),
		queue:        &recordingQueue{},
		notifier:     &recordingNotifier{},
		storage:      storage.NewMemoryStorage(),
	}
	uow := repositories.NewUnitOfWork(db)

	h.verification = NewVerificationUsecase(uow, h.requestRepo, h.documentRepo, h.historyRepo, h.storage, cipher, h.queue, 0)
	h.processor = NewVerificationProcessor(uow, h.requestRepo, h.documentRepo, h.historyRepo, h.provider, cipher, h.notifier)
	h.webhook = NewWebhookUsecase(uow, h.requestRepo, h.documentRepo, h.historyRepo, h.callLogRepo, h.notifier, WebhookConfig{
		ProviderName:  "dojah",
		Secret:        testWebhookSecret,
		MinConfidence: 80,
	})
	h.admin = NewAdminUsecase(uow, h.requestRepo, h.documentRepo, h.historyRepo, h.callLogRepo, h.storage, h.queue, h.notifier, 0)
	return h
}

func (h *harness) createRequest(t *testing.T, customerID uuid.UUID) *entities.VerificationRequest {
	t.Helper()
	req, created, err := h.verification.CreateRequest(context.Background(), &CreateRequestInput{
		CustomerID: customerID,
		FirstName:  "Ada",
		LastName:   "Obi",
		State:      "Lagos",
		IPAddress:  "10.1.1.1",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
	require.NoError(t, err)
	require.True(t, created)
	return req
}

func (h *harness) upload(t *testing.T, req *entities.VerificationRequest, docType entities.DocumentType, number string) *entities.VerificationDocument {
	t.Helper()
	doc, err := h.verification.UploadDocument(context.Background(), uploadInput(req, docType, number))
	require.NoError(t, err)
	return doc
}

func uploadInput(req *entities.VerificationRequest, docType entities.DocumentType, number string) *UploadDocumentInput {
	content := []byte("\x89PNG fake image bytes")
	return &UploadDocumentInput{
		CustomerID:     req.CustomerID,
		RequestID:      req.ID,
		DocumentType:   docType,
		DocumentNumber: number,
		FileName:       "scan " + string(docType) + ".png",
		FileSize:       int64(len(content)),
		ContentType:    "image/png",
		File:           bytes.NewReader(content),
	}
}

func (h *harness) countHistory(t *testing.T, documentID uuid.UUID, action entities.HistoryAction) int64 {
	t.Helper()
	n, err := h.historyRepo.CountByDocumentAndAction(context.Background(), documentID, action)
	require.NoError(t, err)
	return n
}

func (h *harness) requestHistory(t *testing.T, requestID uuid.UUID, action entities.HistoryAction) []*entities.VerificationHistory {
	t.Helper()
	rows, err := h.historyRepo.ListByRequest(context.Background(), requestID)
	require.NoError(t, err)
	var out []*entities.VerificationHistory
	for _, r := range rows {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

func (h *harness) reloadDocument(t *testing.T, id uuid.UUID) *entities.VerificationDocument {
	t.Helper()
	doc, err := h.documentRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func (h *harness) reloadRequest(t *testing.T, id uuid.UUID) *entities.VerificationRequest {
	t.Helper()
	req, err := h.requestRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return req
}

func verified(reference string, confidence int) *entities.VerificationResult {
	return &entities.VerificationResult{
		Status:      entities.ProviderStatusVerified,
		Confidence:  confidence,
		ReferenceID: reference,
		Provider:    "dojah",
		Data:        map[string]any{"first_name": "ADA", "nin": "12345678901"},
	}
}

func job(documentID uuid.UUID, attempt int) *entities.VerificationJob {
	return &entities.VerificationJob{
		ID:          "job-" + documentID.String(),
		DocumentID:  documentID.String(),
		Priority:    entities.JobPriorityNormal,
		Attempts:    attempt,
		MaxAttempts: 3,
	}
}

func signedWebhook(t *testing.T, eventType, reference, status string, confidence float64) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"event_type": eventType,
		"data": map[string]any{
			"reference_id": reference,
			"status":       status,
			"confidence":   confidence,
			"entity":       map[string]any{"nin": "12345678901"},
		},
	})
	require.NoError(t, err)
	return raw, crypto.SignPayload([]byte(testWebhookSecret), raw)
}
