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

// ProviderCallLogRepositoryImpl stores redacted provider exchanges
type ProviderCallLogRepositoryImpl struct {
	db *gorm.DB
}

func NewProviderCallLogRepository(db *gorm.DB) *ProviderCallLogRepositoryImpl {
	return &ProviderCallLogRepositoryImpl{db: db}
}

func (r *ProviderCallLogRepositoryImpl) Create(ctx context.Context, entry *entities.ProviderCallLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = utils.GenerateUUIDv7()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m := &models.ProviderCallLog{
		ID:           entry.ID,
		DocumentID:   entry.DocumentID,
		Provider:     entry.Provider,
		Endpoint:     entry.Endpoint,
		Direction:    string(entry.Direction),
		StatusCode:   entry.StatusCode,
		DurationMs:   entry.DurationMs,
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage.Ptr(),
		CreatedAt:    entry.CreatedAt,
	}
	if entry.RequestBody.Valid {
		m.RequestBody = datatypes.JSON(entry.RequestBody.JSON)
	}
	if entry.ResponseBody.Valid {
		m.ResponseBody = datatypes.JSON(entry.ResponseBody.JSON)
	}
	return GetDB(ctx, r.db).Create(m).Error
}

func (r *ProviderCallLogRepositoryImpl) List(ctx context.Context, filter entities.CallLogFilter, limit, offset int) ([]*entities.ProviderCallLog, int64, error) {
	query := GetDB(ctx, r.db).Model(&models.ProviderCallLog{})
	if filter.DocumentID != nil {
		query = query.Where("document_id = ?", *filter.DocumentID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.ProviderCallLog
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*entities.ProviderCallLog, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		entry := &entities.ProviderCallLog{
			ID:           m.ID,
			DocumentID:   m.DocumentID,
			Provider:     m.Provider,
			Endpoint:     m.Endpoint,
			Direction:    entities.CallDirection(m.Direction),
			StatusCode:   m.StatusCode,
			DurationMs:   m.DurationMs,
			Success:      m.Success,
			ErrorMessage: null.StringFromPtr(m.ErrorMessage),
			CreatedAt:    m.CreatedAt,
		}
		if len(m.RequestBody) > 0 {
			entry.RequestBody = null.JSONFrom(m.RequestBody)
		}
		if len(m.ResponseBody) > 0 {
			entry.ResponseBody = null.JSONFrom(m.ResponseBody)
		}
		out = append(out, entry)
	}
	return out, total, nil
}
