package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/domain/repositories"
	"verifyflow.backend/internal/infrastructure/models"
)

// VerificationDocumentRepositoryImpl implements VerificationDocumentRepository
type VerificationDocumentRepositoryImpl struct {
	db *gorm.DB
}

func NewVerificationDocumentRepository(db *gorm.DB) *VerificationDocumentRepositoryImpl {
	return &VerificationDocumentRepositoryImpl{db: db}
}

func (r *VerificationDocumentRepositoryImpl) Create(ctx context.Context, doc *entities.VerificationDocument) error {
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now

	m := &models.VerificationDocument{
		ID:                      doc.ID,
		RequestID:               doc.RequestID,
		DocumentType:            string(doc.DocumentType),
		DocumentNumberEncrypted: doc.DocumentNumberEncrypted.Ptr(),
		DocumentNumberHint:      doc.DocumentNumberHint.Ptr(),
		FileURL:                 doc.FileURL,
		FileKey:                 doc.FileKey,
		FileName:                doc.FileName,
		FileSize:                doc.FileSize,
		MimeType:                doc.MimeType,
		Status:                  string(doc.Status),
		Provider:                nonEmptyPtr(doc.Provider),
		ProviderReference:       nonEmptyPtr(doc.ProviderReference),
		Confidence:              doc.Confidence,
		FailureReason:           doc.FailureReason.Ptr(),
		VerifiedAt:              doc.VerifiedAt,
		SupersededBy:            doc.SupersededBy,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if doc.VerificationData.Valid {
		m.VerificationData = datatypes.JSON(doc.VerificationData.JSON)
	}
	return translateError(GetDB(ctx, r.db).Create(m).Error)
}

func (r *VerificationDocumentRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.VerificationDocument, error) {
	var m models.VerificationDocument
	if err := lockedDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *VerificationDocumentRepositoryImpl) GetByProviderReference(ctx context.Context, reference string) (*entities.VerificationDocument, error) {
	if reference == "" {
		return nil, domainerrors.ErrNotFound
	}
	var m models.VerificationDocument
	if err := lockedDB(ctx, r.db).Where("provider_reference = ?", reference).First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *VerificationDocumentRepositoryImpl) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*entities.VerificationDocument, error) {
	var ms []models.VerificationDocument
	if err := GetDB(ctx, r.db).Where("request_id = ?", requestID).Order("created_at ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	docs := make([]*entities.VerificationDocument, 0, len(ms))
	for i := range ms {
		docs = append(docs, r.toEntity(&ms[i]))
	}
	return docs, nil
}

func (r *VerificationDocumentRepositoryImpl) FindActiveByType(ctx context.Context, requestID uuid.UUID, docType entities.DocumentType) (*entities.VerificationDocument, error) {
	var m models.VerificationDocument
	err := GetDB(ctx, r.db).
		Where("request_id = ? AND document_type = ? AND superseded_by IS NULL", requestID, string(docType)).
		First(&m).Error
	if err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *VerificationDocumentRepositoryImpl) TransitionStatus(ctx context.Context, id uuid.UUID, to entities.DocumentStatus) error {
	from := entities.AllowedFromStatuses(to)
	if len(from) == 0 {
		return domainerrors.ErrInvalidTransition
	}
	return r.conditionalUpdate(ctx, id, from, map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	})
}

func (r *VerificationDocumentRepositoryImpl) ApplyResult(ctx context.Context, id uuid.UUID, update repositories.DocumentResultUpdate) error {
	if !update.Status.IsTerminal() && update.Status != entities.DocumentStatusInProgress {
		return domainerrors.ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status":     string(update.Status),
		"confidence": update.Confidence,
		"updated_at": time.Now().UTC(),
	}
	if update.Provider != "" {
		updates["provider"] = update.Provider
	}
	if update.ProviderReference != "" {
		updates["provider_reference"] = update.ProviderReference
	}
	if len(update.VerificationData) > 0 {
		updates["verification_data"] = datatypes.JSON(update.VerificationData)
	}
	if update.FailureReason != "" {
		updates["failure_reason"] = update.FailureReason
	}
	if update.VerifiedAt != nil {
		updates["verified_at"] = *update.VerifiedAt
	}
	return r.conditionalUpdate(ctx, id, []entities.DocumentStatus{entities.DocumentStatusInProgress}, updates)
}

func (r *VerificationDocumentRepositoryImpl) AttachReference(ctx context.Context, id uuid.UUID, provider, reference string) error {
	res := GetDB(ctx, r.db).Model(&models.VerificationDocument{}).
		Where("id = ? AND provider_reference IS NULL", id).
		Updates(map[string]interface{}{
			"provider":           provider,
			"provider_reference": reference,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrInvalidTransition
	}
	return nil
}

func (r *VerificationDocumentRepositoryImpl) MarkSuperseded(ctx context.Context, id, replacementID uuid.UUID) error {
	res := GetDB(ctx, r.db).Model(&models.VerificationDocument{}).
		Where("id = ? AND superseded_by IS NULL", id).
		Updates(map[string]interface{}{
			"superseded_by": replacementID,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrInvalidTransition
	}
	return nil
}

func (r *VerificationDocumentRepositoryImpl) conditionalUpdate(ctx context.Context, id uuid.UUID, from []entities.DocumentStatus, updates map[string]interface{}) error {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res := GetDB(ctx, r.db).Model(&models.VerificationDocument{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(updates)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrInvalidTransition
	}
	return nil
}

func (r *VerificationDocumentRepositoryImpl) toEntity(m *models.VerificationDocument) *entities.VerificationDocument {
	doc := &entities.VerificationDocument{
		ID:                      m.ID,
		RequestID:               m.RequestID,
		DocumentType:            entities.DocumentType(m.DocumentType),
		DocumentNumberEncrypted: null.StringFromPtr(m.DocumentNumberEncrypted),
		DocumentNumberHint:      null.StringFromPtr(m.DocumentNumberHint),
		FileURL:                 m.FileURL,
		FileKey:                 m.FileKey,
		FileName:                m.FileName,
		FileSize:                m.FileSize,
		MimeType:                m.MimeType,
		Status:                  entities.DocumentStatus(m.Status),
		Provider:                null.StringFromPtr(m.Provider),
		ProviderReference:       null.StringFromPtr(m.ProviderReference),
		Confidence:              m.Confidence,
		FailureReason:           null.StringFromPtr(m.FailureReason),
		VerifiedAt:              m.VerifiedAt,
		SupersededBy:            m.SupersededBy,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
	if len(m.VerificationData) > 0 {
		doc.VerificationData = null.JSONFrom(m.VerificationData)
	}
	return doc
}
