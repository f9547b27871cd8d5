package entities

import "time"

// JobPriority orders jobs in the ready set; lower bands run first
type JobPriority string

const (
	JobPriorityHigh   JobPriority = "high"
	JobPriorityNormal JobPriority = "normal"
	JobPriorityLow    JobPriority = "low"
)

// Band returns the numeric sort band for the priority
func (p JobPriority) Band() int64 {
	switch p {
	case JobPriorityHigh:
		return 0
	case JobPriorityLow:
		return 2
	default:
		return 1
	}
}

// ParseJobPriority maps user input onto a priority, defaulting to normal
func ParseJobPriority(s string) JobPriority {
	switch JobPriority(s) {
	case JobPriorityHigh, JobPriorityLow:
		return JobPriority(s)
	default:
		return JobPriorityNormal
	}
}

// VerificationJob carries only a document reference through the queue
type VerificationJob struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"documentId"`
	Priority    JobPriority `json:"priority"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"maxAttempts"`
	LastError   string      `json:"lastError,omitempty"`
	EnqueuedAt  time.Time   `json:"enqueuedAt"`
	FinishedAt  *time.Time  `json:"finishedAt,omitempty"`
}

// IsFinalAttempt reports whether a failure now exhausts the retry budget
func (j *VerificationJob) IsFinalAttempt() bool {
	return j.Attempts >= j.MaxAttempts
}

// QueueStats summarizes queue depth across states
type QueueStats struct {
	Ready     int64 `json:"ready"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
