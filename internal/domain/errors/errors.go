package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound                = errors.New("resource not found")
	ErrAlreadyExists           = errors.New("resource already exists")
	ErrInvalidInput            = errors.New("invalid input")
	ErrBadRequest              = errors.New("bad request")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrForbidden               = errors.New("forbidden")
	ErrDuplicateDocument       = errors.New("document type already submitted for this request")
	ErrRequestNotOpen          = errors.New("verification request is not open")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrUnsupportedDocumentType = errors.New("unsupported document type")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
)

// Error codes rendered in API responses
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeDuplicateDocument   = "DUPLICATE_DOCUMENT_TYPE"
	CodeRequestNotOpen      = "REQUEST_NOT_OPEN"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeUnsupportedDocument = "UNSUPPORTED_DOCUMENT_TYPE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidSignature    = "INVALID_SIGNATURE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, ErrAlreadyExists)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

func InternalServerError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, nil)
}

// NewError creates a new error with a custom message wrapping an existing error
func NewError(message string, err error) error {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeBadRequest,
		Message: message,
		Err:     err,
	}
}

// FromError maps err onto an AppError. AppErrors pass through unchanged,
// known sentinels get their status and code, anything else is a 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, CodeNotFound, err.Error(), err)
	case errors.Is(err, ErrDuplicateDocument):
		return NewAppError(http.StatusConflict, CodeDuplicateDocument, err.Error(), err)
	case errors.Is(err, ErrAlreadyExists):
		return NewAppError(http.StatusConflict, CodeConflict, err.Error(), err)
	case errors.Is(err, ErrRequestNotOpen):
		return NewAppError(http.StatusConflict, CodeRequestNotOpen, err.Error(), err)
	case errors.Is(err, ErrInvalidTransition):
		return NewAppError(http.StatusConflict, CodeInvalidTransition, err.Error(), err)
	case errors.Is(err, ErrUnsupportedDocumentType):
		return NewAppError(http.StatusBadRequest, CodeUnsupportedDocument, err.Error(), err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return NewAppError(http.StatusBadRequest, CodeInvalidInput, err.Error(), err)
	case errors.Is(err, ErrInvalidSignature):
		return NewAppError(http.StatusUnauthorized, CodeInvalidSignature, err.Error(), err)
	case errors.Is(err, ErrUnauthorized):
		return NewAppError(http.StatusUnauthorized, CodeUnauthorized, err.Error(), err)
	case errors.Is(err, ErrForbidden):
		return NewAppError(http.StatusForbidden, CodeForbidden, err.Error(), err)
	default:
		return InternalError(err)
	}
}
