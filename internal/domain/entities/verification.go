package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// CustomerType distinguishes personal and business applicants
type CustomerType string

const (
	CustomerTypeIndividual CustomerType = "individual"
	CustomerTypeBusiness   CustomerType = "business"
)

// IsValid reports whether t is a known customer type
func (t CustomerType) IsValid() bool {
	return t == CustomerTypeIndividual || t == CustomerTypeBusiness
}

// RequestStatus represents the status of a verification request
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusApproved   RequestStatus = "approved"
	RequestStatusRejected   RequestStatus = "rejected"
)

// IsTerminal reports whether s is approved or rejected
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// OpenRequestStatuses are the statuses in which documents may still be added
var OpenRequestStatuses = []RequestStatus{RequestStatusPending, RequestStatusInProgress}

// DocumentType is the closed set of supported identity artifacts
type DocumentType string

const (
	DocumentTypeNIN            DocumentType = "nin"
	DocumentTypePassport       DocumentType = "passport"
	DocumentTypeDriversLicense DocumentType = "drivers_license"
	DocumentTypeVotersCard     DocumentType = "voters_card"
	DocumentTypeUtilityBill    DocumentType = "utility_bill"
	DocumentTypeProofOfAddress DocumentType = "proof_of_address"
)

// DocumentTypes lists every supported document type
var DocumentTypes = []DocumentType{
	DocumentTypeNIN,
	DocumentTypePassport,
	DocumentTypeDriversLicense,
	DocumentTypeVotersCard,
	DocumentTypeUtilityBill,
	DocumentTypeProofOfAddress,
}

// IsValid reports whether t is a supported document type
func (t DocumentType) IsValid() bool {
	for _, known := range DocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RequiresManualReview reports whether documents of this type are resolved
// by an administrator instead of the provider.
func (t DocumentType) RequiresManualReview() bool {
	return t == DocumentTypeUtilityBill || t == DocumentTypeProofOfAddress
}

// RequiresNumber reports whether an identifier must accompany the upload
func (t DocumentType) RequiresNumber() bool {
	return t.IsValid() && !t.RequiresManualReview()
}

// DocumentStatus represents the status of a single document check
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusInProgress DocumentStatus = "in_progress"
	DocumentStatusVerified   DocumentStatus = "verified"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsTerminal reports whether s is verified or failed
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusVerified || s == DocumentStatusFailed
}

// RequestMetadata captures where a request was submitted from
type RequestMetadata struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Mobile    bool   `json:"mobile"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	State     string `json:"state,omitempty"`
}

// VerificationRequest is the applicant level verification case
type VerificationRequest struct {
	ID              uuid.UUID               `json:"id"`
	CustomerID      uuid.UUID               `json:"customerId"`
	CustomerType    CustomerType            `json:"customerType"`
	Status          RequestStatus           `json:"status"`
	SubmittedAt     time.Time               `json:"submittedAt"`
	CompletedAt     *time.Time              `json:"completedAt,omitempty"`
	RejectionReason null.String             `json:"rejectionReason,omitempty"`
	Metadata        RequestMetadata         `json:"metadata"`
	Documents       []*VerificationDocument `json:"documents,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// VerificationDocument is one identity artifact attached to a request
type VerificationDocument struct {
	ID                      uuid.UUID      `json:"id"`
	RequestID               uuid.UUID      `json:"requestId"`
	DocumentType            DocumentType   `json:"documentType"`
	DocumentNumberEncrypted null.String    `json:"-"`
	DocumentNumberHint      null.String    `json:"documentNumberHint,omitempty"`
	FileURL                 string         `json:"fileUrl,omitempty"`
	FileKey                 string         `json:"-"`
	FileName                string         `json:"fileName,omitempty"`
	FileSize                int64          `json:"fileSize"`
	MimeType                string         `json:"mimeType,omitempty"`
	Status                  DocumentStatus `json:"status"`
	Provider                null.String    `json:"provider,omitempty"`
	ProviderReference       null.String    `json:"providerReference,omitempty"`
	Confidence              int            `json:"confidence"`
	VerificationData        null.JSON      `json:"verificationData,omitempty"`
	FailureReason           null.String    `json:"failureReason,omitempty"`
	VerifiedAt              *time.Time     `json:"verifiedAt,omitempty"`
	SupersededBy            *uuid.UUID     `json:"supersededBy,omitempty"`
	CreatedAt               time.Time      `json:"createdAt"`
	UpdatedAt               time.Time      `json:"updatedAt"`
}

// IsActive reports whether the document takes part in request aggregation
func (d *VerificationDocument) IsActive() bool {
	return d.SupersededBy == nil
}

// HistoryAction is the closed vocabulary of audit log actions
type HistoryAction string

const (
	ActionRequestCreated      HistoryAction = "request_created"
	ActionDocumentUploaded    HistoryAction = "document_uploaded"
	ActionVerificationStarted HistoryAction = "verification_started"
	ActionDocumentVerified    HistoryAction = "document_verified"
	ActionDocumentFailed      HistoryAction = "document_failed"
	ActionWebhookReceived     HistoryAction = "webhook_received"
	ActionRequestApproved     HistoryAction = "request_approved"
	ActionRequestRejected     HistoryAction = "request_rejected"
	ActionVerificationError   HistoryAction = "verification_error"
	ActionAdminOverride       HistoryAction = "admin_override"
)

// PerformedBySystem marks history rows written by the worker or webhook path
const PerformedBySystem = "system"

// VerificationHistory is an append-only audit row
type VerificationHistory struct {
	ID          uuid.UUID     `json:"id"`
	RequestID   uuid.UUID     `json:"requestId"`
	DocumentID  *uuid.UUID    `json:"documentId,omitempty"`
	Action      HistoryAction `json:"action"`
	PerformedBy string        `json:"performedBy"`
	Details     null.JSON     `json:"details,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// CallDirection tells outbound provider calls from inbound webhooks
type CallDirection string

const (
	CallDirectionOutbound CallDirection = "outbound"
	CallDirectionInbound  CallDirection = "inbound"
)

// ProviderCallLog records one provider exchange with redacted bodies
type ProviderCallLog struct {
	ID           uuid.UUID     `json:"id"`
	DocumentID   *uuid.UUID    `json:"documentId,omitempty"`
	Provider     string        `json:"provider"`
	Endpoint     string        `json:"endpoint"`
	Direction    CallDirection `json:"direction"`
	StatusCode   int           `json:"statusCode"`
	DurationMs   int64         `json:"durationMs"`
	RequestBody  null.JSON     `json:"requestBody,omitempty"`
	ResponseBody null.JSON     `json:"responseBody,omitempty"`
	Success      bool          `json:"success"`
	ErrorMessage null.String   `json:"errorMessage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// RequestFilter narrows admin listings
type RequestFilter struct {
	Status     RequestStatus
	CustomerID *uuid.UUID
}

// CallLogFilter narrows provider call log listings
type CallLogFilter struct {
	DocumentID *uuid.UUID
	Provider   string
}
