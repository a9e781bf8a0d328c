package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error kinds
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrStorage      = errors.New("storage failure")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidInput creates a validation error for a single field
func InvalidInput(field, message string) *AppError {
	return Validation(message, map[string]string{"field": field})
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Storage wraps an opaque persistence failure
func Storage(err error, message string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrStorage, err),
		Message:    message,
		Code:       "STORAGE_FAILURE",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context. Application errors keep their
// kind; anything else is treated as a storage failure.
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Err:        appErr.Err,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Code:       appErr.Code,
			HTTPStatus: appErr.HTTPStatus,
			Details:    appErr.Details,
		}
	}
	return Storage(err, message)
}

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsStorage(err error) bool    { return errors.Is(err, ErrStorage) }

// As is errors.As re-exported so callers importing this package under the
// name "errors" do not need the standard library package as well.
func As(err error, target any) bool {
	return errors.As(err, target)
}
