package entities

// documentTransitions lists the allowed next states per document state.
// in_progress -> in_progress covers a job replayed after a worker restart.
var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusPending:    {DocumentStatusInProgress},
	DocumentStatusInProgress: {DocumentStatusInProgress, DocumentStatusVerified, DocumentStatusFailed},
}

// CanTransition reports whether a document may move from one status to another
func CanTransition(from, to DocumentStatus) bool {
	for _, next := range documentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedFromStatuses returns every status from which to is reachable
func AllowedFromStatuses(to DocumentStatus) []DocumentStatus {
	var out []DocumentStatus
	for _, from := range []DocumentStatus{DocumentStatusPending, DocumentStatusInProgress} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// AggregateRequestStatus derives a request status from its documents.
// Superseded documents are ignored. The result does not depend on order.
func AggregateRequestStatus(docs []*VerificationDocument) RequestStatus {
	var active, open, started, verified int
	for _, d := range docs {
		if d == nil || !d.IsActive() {
			continue
		}
		active++
		switch d.Status {
		case DocumentStatusPending:
			open++
		case DocumentStatusInProgress:
			open++
			started++
		case DocumentStatusVerified:
			verified++
			started++
		case DocumentStatusFailed:
			started++
		}
	}

	switch {
	case active == 0:
		return RequestStatusPending
	case open > 0 && started == 0:
		return RequestStatusPending
	case open > 0:
		return RequestStatusInProgress
	case verified == active:
		return RequestStatusApproved
	default:
		return RequestStatusRejected
	}
}
