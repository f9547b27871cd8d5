package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/internal/infrastructure/models"
	"verifyflow.backend/pkg/utils"
)

// VerificationHistoryRepositoryImpl is an append-only audit log
type VerificationHistoryRepositoryImpl struct {
	db *gorm.DB
}

func NewVerificationHistoryRepository(db *gorm.DB) *VerificationHistoryRepositoryImpl {
	return &VerificationHistoryRepositoryImpl{db: db}
}

func (r *VerificationHistoryRepositoryImpl) Append(ctx context.Context, entry *entities.VerificationHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = utils.GenerateUUIDv7()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m := &models.VerificationHistory{
		ID:          entry.ID,
		RequestID:   entry.RequestID,
		DocumentID:  entry.DocumentID,
		Action:      string(entry.Action),
		PerformedBy: entry.PerformedBy,
		CreatedAt:   entry.CreatedAt,
	}
	if entry.Details.Valid {
		m.Details = datatypes.JSON(entry.Details.JSON)
	}
	return GetDB(ctx, r.db).Create(m).Error
}

func (r *VerificationHistoryRepositoryImpl) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*entities.VerificationHistory, error) {
	var ms []models.VerificationHistory
	if err := GetDB(ctx, r.db).Where("request_id = ?", requestID).Order("created_at ASC, id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.VerificationHistory, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		h := &entities.VerificationHistory{
			ID:          m.ID,
			RequestID:   m.RequestID,
			DocumentID:  m.DocumentID,
			Action:      entities.HistoryAction(m.Action),
			PerformedBy: m.PerformedBy,
			CreatedAt:   m.CreatedAt,
		}
		if len(m.Details) > 0 {
			h.Details = null.JSONFrom(m.Details)
		}
		out = append(out, h)
	}
	return out, nil
}

func (r *VerificationHistoryRepositoryImpl) CountByDocumentAndAction(ctx context.Context, documentID uuid.UUID, action entities.HistoryAction) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&models.VerificationHistory{}).
		Where("document_id = ? AND action = ?", documentID, string(action)).
		Count(&count).Error
	return count, err
}
