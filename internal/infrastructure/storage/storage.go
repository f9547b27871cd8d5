// Package storage keeps uploaded document files.
package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"verifyflow.backend/internal/domain/entities"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxFileNameLen = 100

// ObjectKey builds verification/{requestId}/{documentType}/{unixMillis}-{name}
func ObjectKey(requestID uuid.UUID, documentType entities.DocumentType, fileName string, at time.Time) string {
	return fmt.Sprintf("verification/%s/%s/%d-%s", requestID, documentType, at.UnixMilli(), SanitizeFileName(fileName))
}

// SanitizeFileName strips directories and anything outside [A-Za-z0-9._-]
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > maxFileNameLen {
		name = name[len(name)-maxFileNameLen:]
	}
	return name
}
