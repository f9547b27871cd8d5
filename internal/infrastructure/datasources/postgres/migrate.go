package postgres

import (
	"fmt"

	"gorm.io/gorm"
	"verifyflow.backend/internal/infrastructure/models"
)

// partialIndexes back the "one active request per customer" and "one active
// document per type" rules. Both Postgres and SQLite accept this syntax.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_verification_requests_active_customer
		ON verification_requests (customer_id) WHERE status IN ('pending', 'in_progress')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_verification_documents_active_type
		ON verification_documents (request_id, document_type) WHERE superseded_by IS NULL`,
}

// Migrate creates or updates the verification schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
