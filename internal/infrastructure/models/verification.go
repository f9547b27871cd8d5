package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type VerificationRequest struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID      uuid.UUID `gorm:"type:uuid;not null;index"`
	CustomerType    string    `gorm:"type:varchar(20);not null"`
	Status          string    `gorm:"type:varchar(20);not null;index"`
	SubmittedAt     time.Time `gorm:"not null"`
	CompletedAt     *time.Time
	RejectionReason *string `gorm:"type:text"`
	Metadata        datatypes.JSON
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (VerificationRequest) TableName() string {
	return "verification_requests"
}

type VerificationDocument struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID               uuid.UUID `gorm:"type:uuid;not null;index"`
	DocumentType            string    `gorm:"type:varchar(32);not null"`
	DocumentNumberEncrypted *string   `gorm:"type:text"`
	DocumentNumberHint      *string   `gorm:"type:varchar(16)"`
	FileURL                 string    `gorm:"type:text"`
	FileKey                 string    `gorm:"type:text"`
	FileName                string    `gorm:"type:varchar(255)"`
	FileSize                int64
	MimeType                string  `gorm:"type:varchar(100)"`
	Status                  string  `gorm:"type:varchar(20);not null;index"`
	Provider                *string `gorm:"type:varchar(50)"`
	ProviderReference       *string `gorm:"type:varchar(255);uniqueIndex"`
	Confidence              int
	VerificationData        datatypes.JSON
	FailureReason           *string `gorm:"type:text"`
	VerifiedAt              *time.Time
	SupersededBy            *uuid.UUID `gorm:"type:uuid"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (VerificationDocument) TableName() string {
	return "verification_documents"
}

type VerificationHistory struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RequestID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	DocumentID  *uuid.UUID `gorm:"type:uuid;index"`
	Action      string     `gorm:"type:varchar(40);not null"`
	PerformedBy string     `gorm:"type:varchar(64);not null"`
	Details     datatypes.JSON
	CreatedAt   time.Time `gorm:"index"`
}

func (VerificationHistory) TableName() string {
	return "verification_history"
}

type ProviderCallLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DocumentID   *uuid.UUID `gorm:"type:uuid;index"`
	Provider     string     `gorm:"type:varchar(50);not null;index"`
	Endpoint     string     `gorm:"type:varchar(255);not null"`
	Direction    string     `gorm:"type:varchar(10);not null"`
	StatusCode   int
	DurationMs   int64
	RequestBody  datatypes.JSON
	ResponseBody datatypes.JSON
	Success      bool
	ErrorMessage *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index"`
}

func (ProviderCallLog) TableName() string {
	return "provider_call_logs"
}

// All lists every persisted model in migration order
func All() []interface{} {
	return []interface{}{
		&VerificationRequest{},
		&VerificationDocument{},
		&VerificationHistory{},
		&ProviderCallLog{},
	}
}
