package usecases

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"verifyflow.backend/pkg/crypto"
)

// ErrPermanentFailure marks processing errors that retrying cannot fix.
// The worker dead-letters jobs failing with it.
var ErrPermanentFailure = errors.New("permanent verification failure")

const (
	errorKindDecryption = "decryption"
	errorKindProvider   = "provider"
	errorKindInternal   = "internal"
	errorKindPanic      = "panic"
	errorKindValidation = "validation"

	providerManual = "manual"
)

// temporary is implemented by provider errors that are safe to retry
type temporary interface {
	Temporary() bool
}

// isRetryable treats errors without a retry hint (database, storage) as retryable
func isRetryable(err error) bool {
	if errors.Is(err, ErrPermanentFailure) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// details encodes redacted audit details
func details(v map[string]any) null.JSON {
	if len(v) == 0 {
		return null.JSON{}
	}
	raw, err := json.Marshal(crypto.Redact(v))
	if err != nil {
		return null.JSON{}
	}
	return null.JSONFrom(raw)
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
