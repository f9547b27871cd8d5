package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/infrastructure/models"
)

// VerificationRequestRepositoryImpl implements VerificationRequestRepository
type VerificationRequestRepositoryImpl struct {
	db *gorm.DB
}

func NewVerificationRequestRepository(db *gorm.DB) *VerificationRequestRepositoryImpl {
	return &VerificationRequestRepositoryImpl{db: db}
}

func (r *VerificationRequestRepositoryImpl) Create(ctx context.Context, req *entities.VerificationRequest) error {
	meta, err := json.Marshal(req.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = now
	}
	req.CreatedAt, req.UpdatedAt = now, now

	m := &models.VerificationRequest{
		ID:              req.ID,
		CustomerID:      req.CustomerID,
		CustomerType:    string(req.CustomerType),
		Status:          string(req.Status),
		SubmittedAt:     req.SubmittedAt,
		CompletedAt:     req.CompletedAt,
		RejectionReason: req.RejectionReason.Ptr(),
		Metadata:        meta,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return translateError(GetDB(ctx, r.db).Create(m).Error)
}

func (r *VerificationRequestRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.VerificationRequest, error) {
	var m models.VerificationRequest
	if err := lockedDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *VerificationRequestRepositoryImpl) GetActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*entities.VerificationRequest, error) {
	var m models.VerificationRequest
	err := lockedDB(ctx, r.db).
		Where("customer_id = ? AND status IN ?", customerID, requestStatusStrings(entities.OpenRequestStatuses)).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *VerificationRequestRepositoryImpl) GetLatestByCustomer(ctx context.Context, customerID uuid.UUID) (*entities.VerificationRequest, error) {
	var m models.VerificationRequest
	err := GetDB(ctx, r.db).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *VerificationRequestRepositoryImpl) List(ctx context.Context, filter entities.RequestFilter, limit, offset int) ([]*entities.VerificationRequest, int64, error) {
	query := GetDB(ctx, r.db).Model(&models.VerificationRequest{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.VerificationRequest
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	requests := make([]*entities.VerificationRequest, 0, len(ms))
	for i := range ms {
		requests = append(requests, r.toEntity(&ms[i]))
	}
	return requests, total, nil
}

func (r *VerificationRequestRepositoryImpl) TransitionStatus(ctx context.Context, id uuid.UUID, from []entities.RequestStatus, to entities.RequestStatus, completedAt *time.Time, rejectionReason string) error {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	if rejectionReason != "" {
		updates["rejection_reason"] = rejectionReason
	}

	res := GetDB(ctx, r.db).Model(&models.VerificationRequest{}).
		Where("id = ? AND status IN ?", id, requestStatusStrings(from)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrInvalidTransition
	}
	return nil
}

func (r *VerificationRequestRepositoryImpl) toEntity(m *models.VerificationRequest) *entities.VerificationRequest {
	var meta entities.RequestMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return &entities.VerificationRequest{
		ID:              m.ID,
		CustomerID:      m.CustomerID,
		CustomerType:    entities.CustomerType(m.CustomerType),
		Status:          entities.RequestStatus(m.Status),
		SubmittedAt:     m.SubmittedAt,
		CompletedAt:     m.CompletedAt,
		RejectionReason: null.StringFromPtr(m.RejectionReason),
		Metadata:        meta,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func requestStatusStrings(statuses []entities.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
