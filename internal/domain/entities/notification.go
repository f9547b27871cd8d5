package entities

// NotificationKind enumerates the alerts sent to customers and admins
type NotificationKind string

const (
	NotificationRequestApproved   NotificationKind = "request_approved"
	NotificationRequestRejected   NotificationKind = "request_rejected"
	NotificationDocumentFailed    NotificationKind = "document_failed"
	NotificationAdminManualReview NotificationKind = "admin_manual_review"
)
