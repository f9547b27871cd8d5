package entities

import "math"

// ProviderStatus is the normalized outcome reported by a verification provider
type ProviderStatus string

const (
	ProviderStatusVerified ProviderStatus = "verified"
	ProviderStatusFailed   ProviderStatus = "failed"
	ProviderStatusPending  ProviderStatus = "pending"
)

// VerificationResult is what every provider variant returns for one check
type VerificationResult struct {
	Status      ProviderStatus `json:"status"`
	Confidence  int            `json:"confidence"`
	ReferenceID string         `json:"referenceId,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	Provider    string         `json:"provider"`
}

// ClampConfidence rounds a provider score and bounds it to 0..100
func ClampConfidence(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// DocumentStatus maps the provider outcome onto a document status.
// Pending keeps the document in progress until a webhook or admin resolves it.
func (r *VerificationResult) DocumentStatus() DocumentStatus {
	switch r.Status {
	case ProviderStatusVerified:
		return DocumentStatusVerified
	case ProviderStatusFailed:
		return DocumentStatusFailed
	default:
		return DocumentStatusInProgress
	}
}

// Applicant carries the non-secret context some checks need
type Applicant struct {
	CustomerID string
	FirstName  string
	LastName   string
	State      string
}

// ProcessResult is returned by the processor and the webhook path
type ProcessResult struct {
	DocumentID       string         `json:"documentId"`
	Status           DocumentStatus `json:"status"`
	RequestStatus    RequestStatus  `json:"requestStatus"`
	AlreadyProcessed bool           `json:"alreadyProcessed"`
	Confidence       int            `json:"confidence"`
	ReferenceID      string         `json:"referenceId,omitempty"`
	FailureReason    string         `json:"failureReason,omitempty"`
}
