package repositories

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	domainerrors "verifyflow.backend/internal/domain/errors"
)

const pgUniqueViolation = "23505"

// translateError maps driver errors onto domain sentinels
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainerrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return domainerrors.ErrAlreadyExists
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domainerrors.ErrAlreadyExists
	}
	return err
}

// nonEmptyPtr treats an empty valid string as NULL so unique indexes ignore it
func nonEmptyPtr(s null.String) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return &s.String
}
