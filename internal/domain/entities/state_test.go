package entities

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func docs(statuses ...DocumentStatus) []*VerificationDocument {
	out := make([]*VerificationDocument, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, &VerificationDocument{ID: uuid.New(), Status: s})
	}
	return out
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(DocumentStatusPending, DocumentStatusInProgress))
	assert.True(t, CanTransition(DocumentStatusInProgress, DocumentStatusInProgress))
	assert.True(t, CanTransition(DocumentStatusInProgress, DocumentStatusVerified))
	assert.True(t, CanTransition(DocumentStatusInProgress, DocumentStatusFailed))

	assert.False(t, CanTransition(DocumentStatusPending, DocumentStatusVerified), "skipping in_progress")
	assert.False(t, CanTransition(DocumentStatusPending, DocumentStatusFailed), "skipping in_progress")
	assert.False(t, CanTransition(DocumentStatusVerified, DocumentStatusInProgress), "backwards")
	assert.False(t, CanTransition(DocumentStatusFailed, DocumentStatusVerified), "terminal is immutable")
	assert.False(t, CanTransition(DocumentStatusInProgress, DocumentStatusPending), "backwards")
}

func TestAllowedFromStatuses(t *testing.T) {
	assert.Equal(t, []DocumentStatus{DocumentStatusPending, DocumentStatusInProgress}, AllowedFromStatuses(DocumentStatusInProgress))
	assert.Equal(t, []DocumentStatus{DocumentStatusInProgress}, AllowedFromStatuses(DocumentStatusVerified))
	assert.Empty(t, AllowedFromStatuses(DocumentStatusPending))
}

func TestAggregateRequestStatus(t *testing.T) {
	cases := []struct {
		name string
		docs []*VerificationDocument
		want RequestStatus
	}{
		{"empty", nil, RequestStatusPending},
		{"all pending", docs(DocumentStatusPending, DocumentStatusPending), RequestStatusPending},
		{"one started", docs(DocumentStatusPending, DocumentStatusInProgress), RequestStatusInProgress},
		{"one terminal one pending", docs(DocumentStatusVerified, DocumentStatusPending), RequestStatusInProgress},
		{"failed but still open", docs(DocumentStatusFailed, DocumentStatusInProgress), RequestStatusInProgress},
		{"all verified", docs(DocumentStatusVerified, DocumentStatusVerified), RequestStatusApproved},
		{"single verified", docs(DocumentStatusVerified), RequestStatusApproved},
		{"any failed", docs(DocumentStatusVerified, DocumentStatusFailed), RequestStatusRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AggregateRequestStatus(tc.docs))
		})
	}
}

func TestAggregateRequestStatus_IgnoresSuperseded(t *testing.T) {
	replacement := uuid.New()
	set := docs(DocumentStatusFailed, DocumentStatusVerified)
	set[0].SupersededBy = &replacement

	assert.Equal(t, RequestStatusApproved, AggregateRequestStatus(set))
}

func TestAggregateRequestStatus_Law(t *testing.T) {
	all := []DocumentStatus{DocumentStatusPending, DocumentStatusInProgress, DocumentStatusVerified, DocumentStatusFailed}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		set := make([]DocumentStatus, n)
		for j := range set {
			set[j] = all[rng.Intn(len(all))]
		}

		var open, verified, failed int
		for _, s := range set {
			switch s {
			case DocumentStatusPending, DocumentStatusInProgress:
				open++
			case DocumentStatusVerified:
				verified++
			case DocumentStatusFailed:
				failed++
			}
		}

		got := AggregateRequestStatus(docs(set...))
		assert.Equal(t, verified == n, got == RequestStatusApproved, set)
		assert.Equal(t, failed > 0 && open == 0, got == RequestStatusRejected, set)

		// order independence
		shuffled := append([]DocumentStatus(nil), set...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, got, AggregateRequestStatus(docs(shuffled...)))
	}
}

func TestDocumentTypeHelpers(t *testing.T) {
	assert.True(t, DocumentTypeNIN.IsValid())
	assert.False(t, DocumentType("bvn").IsValid())
	assert.True(t, DocumentTypeUtilityBill.RequiresManualReview())
	assert.True(t, DocumentTypeProofOfAddress.RequiresManualReview())
	assert.False(t, DocumentTypePassport.RequiresManualReview())
	assert.True(t, DocumentTypeVotersCard.RequiresNumber())
	assert.False(t, DocumentTypeUtilityBill.RequiresNumber())
	assert.False(t, DocumentType("bvn").RequiresNumber())
}

func TestJobPriority(t *testing.T) {
	assert.Equal(t, int64(0), JobPriorityHigh.Band())
	assert.Equal(t, int64(1), JobPriorityNormal.Band())
	assert.Equal(t, int64(2), JobPriorityLow.Band())
	assert.Equal(t, JobPriorityNormal, ParseJobPriority("urgent"))
	assert.Equal(t, JobPriorityHigh, ParseJobPriority("high"))

	job := &VerificationJob{Attempts: 3, MaxAttempts: 3}
	assert.True(t, job.IsFinalAttempt())
	job.Attempts = 2
	assert.False(t, job.IsFinalAttempt())
}

func TestVerificationResult_DocumentStatus(t *testing.T) {
	assert.Equal(t, DocumentStatusVerified, (&VerificationResult{Status: ProviderStatusVerified}).DocumentStatus())
	assert.Equal(t, DocumentStatusFailed, (&VerificationResult{Status: ProviderStatusFailed}).DocumentStatus())
	assert.Equal(t, DocumentStatusInProgress, (&VerificationResult{Status: ProviderStatusPending}).DocumentStatus())
}
