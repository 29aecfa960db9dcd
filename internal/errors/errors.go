package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound       = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists  = new(ErrCodeAlreadyExists, "resource already exists")
	ErrAlreadyApplied = new(ErrCodeAlreadyApplied, "change already applied")
	ErrValidation     = new(ErrCodeValidation, "validation error")
	ErrForbidden      = new(ErrCodeForbidden, "forbidden")
	ErrHTTPClient     = new(ErrCodeHTTPClient, "http client error")
	ErrDatabase       = new(ErrCodeDatabase, "database error")
	ErrSystem         = new(ErrCodeSystemError, "system error")
	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrHTTPClient:     http.StatusInternalServerError,
		ErrDatabase:       http.StatusInternalServerError,
		ErrNotFound:       http.StatusNotFound,
		ErrAlreadyExists:  http.StatusConflict,
		ErrAlreadyApplied: http.StatusConflict,
		ErrValidation:     http.StatusBadRequest,
		ErrForbidden:      http.StatusForbidden,
		ErrSystem:         http.StatusInternalServerError,
	}
)

const (
	ErrCodeHTTPClient     = "http_client_error"
	ErrCodeSystemError    = "system_error"
	ErrCodeNotFound       = "not_found"
	ErrCodeAlreadyExists  = "already_exists"
	ErrCodeAlreadyApplied = "already_applied"
	ErrCodeValidation     = "validation_error"
	ErrCodeForbidden      = "forbidden"
	ErrCodeDatabase       = "database_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAlreadyApplied reports whether an idempotent write hit a previously
// recorded change. Never surfaced to callers; the webhook path treats it
// as success.
func IsAlreadyApplied(err error) bool {
	return errors.Is(err, ErrAlreadyApplied)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsForbidden checks if an error is a signature or permission failure
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsHTTPClient checks if an error is an http client error
func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
