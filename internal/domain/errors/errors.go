package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeNoData           ErrorType = "no_data"
	ErrorTypeInsufficientData ErrorType = "insufficient_data"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeExternal         ErrorType = "external"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeUnavailable      ErrorType = "unavailable"
	ErrorTypeConflict         ErrorType = "conflict"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNoDataError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNoData,
		Code:       "NO_DATA",
		Message:    message,
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewInsufficientDataError(operation string, required, actual int) *AppError {
	return &AppError{
		Type:       ErrorTypeInsufficientData,
		Code:       "INSUFFICIENT_DATA",
		Message:    fmt.Sprintf("%s requires at least %d data points, got %d", operation, required, actual),
		Retryable:  false,
		StatusCode: 422,
		Details:    map[string]interface{}{"operation": operation, "required": required, "actual": actual},
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
	}
}

// NewBackendError marks a failure of an external backend (OLAP store or cache).
// These are the only errors the retry policy acts on.
func NewBackendError(backend, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "BACKEND_UNAVAILABLE",
		Message:    fmt.Sprintf("%s backend error: %s", backend, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"backend": backend},
	}
}

func NewCircuitOpenError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       "CIRCUIT_OPEN",
		Message:    fmt.Sprintf("circuit breaker open for operation %q", operation),
		Retryable:  true,
		StatusCode: 503,
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		Retryable:  true,
		StatusCode: 429,
	}
}

// Predefined common errors
var (
	ErrInvalidInput   = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrUnknownKind    = NewValidationError("UNKNOWN_ANALYSIS_KIND", "Unknown analysis kind")
	ErrEmptyResultSet = NewNoDataError("query returned no rows")
	ErrSchemaNotFound = NewNotFoundError("schema")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable reports whether the retry policy should act on an error.
// Only external backend failures qualify so validation and computation
// failures never burn retry attempts.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable && appErr.Type == ErrorTypeExternal
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
