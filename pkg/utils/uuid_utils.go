package utils

import (
	"strings"

	"github.com/google/uuid"
)

var newUUIDv7 = uuid.NewV7

// GenerateUUIDv7 generates a new time-ordered UUID, falling back to v4.
func GenerateUUIDv7() uuid.UUID {
	id, err := newUUIDv7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// ManualReference builds the provider reference used for documents that
// are routed to manual review instead of an external provider.
func ManualReference() string {
	return "manual-" + GenerateUUIDv7().String()
}

// IsManualReference reports whether ref was produced by ManualReference.
func IsManualReference(ref string) bool {
	return strings.HasPrefix(ref, "manual-")
}
