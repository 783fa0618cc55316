// Package errors holds the sentinel errors shared across the threading
// engine and the codes the API reports them under.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrThreadNotFound  = errors.New("thread not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrDuplicateEntry  = errors.New("duplicate entry")
	ErrInvalidInput    = errors.New("invalid input")

	// ErrInvalidCriteria marks matching criteria that cannot be scoped to a
	// tenant or to a participant set
	ErrInvalidCriteria = errors.New("invalid matching criteria")

	// ErrConcurrentUpdate marks an optimistic thread update that kept
	// losing races
	ErrConcurrentUpdate = errors.New("concurrent thread update")

	ErrMissingOrganization = errors.New("organization is required")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
)

// Error codes for API responses
const (
	CodeNotFound            = "NOT_FOUND"
	CodeDuplicateEntry      = "DUPLICATE_ENTRY"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidCriteria     = "INVALID_CRITERIA"
	CodeConcurrentUpdate    = "CONCURRENT_UPDATE"
	CodeMissingOrganization = "MISSING_ORGANIZATION"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternalError       = "INTERNAL_ERROR"
)

// codes is checked in order; the first sentinel in an error's chain wins.
// ErrInvalidCriteria precedes ErrInvalidInput so criteria errors keep their
// own code.
var codes = []struct {
	sentinel error
	code     string
}{
	{ErrNotFound, CodeNotFound},
	{ErrThreadNotFound, CodeNotFound},
	{ErrMessageNotFound, CodeNotFound},
	{ErrDuplicateEntry, CodeDuplicateEntry},
	{ErrInvalidCriteria, CodeInvalidCriteria},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrConcurrentUpdate, CodeConcurrentUpdate},
	{ErrMissingOrganization, CodeMissingOrganization},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrForbidden, CodeForbidden},
}

// AppError attaches a client-facing message and code to a sentinel
type AppError struct {
	Err     error
	Message string
	Code    string
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{Err: err, Message: message, Code: code}
}

// InvalidCriteria reports the criteria field that failed and why
func InvalidCriteria(field, reason string) error {
	return NewAppError(ErrInvalidCriteria, fmt.Sprintf("invalid criteria: %s %s", field, reason), CodeInvalidCriteria)
}

// IsInvalidInput reports whether err was caused by the caller's input
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidCriteria)
}

// IsConcurrentUpdate reports whether err is a lost optimistic update
func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}

// GetErrorCode returns the API code for err. An explicit AppError code
// wins over the sentinel table; unknown errors are internal.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeInternalError
}
