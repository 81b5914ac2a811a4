package errors

import (
	"fmt"
)

// StoreError is the structured error type for swarmmem.
// It provides context for error handling, logging, and user presentation.
type StoreError struct {
	// Code is the unique error code (e.g., "ERR_403_MISSING_FIELD").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Storage, Embedding, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with StoreError.
func (e *StoreError) Is(target error) bool {
	if t, ok := target.(*StoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *StoreError) WithDetail(key, value string) *StoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new StoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *StoreError {
	return &StoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a StoreError from an existing error.
// The error's message becomes the StoreError message.
func Wrap(code string, err error) *StoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation creates a payload validation error. Never retried.
func Validation(message string) *StoreError {
	return New(ErrCodeInvalidInput, message, nil)
}

// MissingField creates a validation error for a missing required field.
func MissingField(kind, field string) *StoreError {
	return New(ErrCodeMissingField,
		fmt.Sprintf("kind %q requires field %q", kind, field), nil).
		WithDetail("kind", kind).
		WithDetail("field", field)
}

// Embedding creates a transient embedding backend error. Always retryable
// via backfill; must never surface to the ingestion caller.
func Embedding(message string, cause error) *StoreError {
	return New(ErrCodeEmbedUnavailable, message, cause)
}

// Storage creates a persistence error. Fails the calling operation whole.
func Storage(message string, cause error) *StoreError {
	return New(ErrCodeStoreTx, message, cause)
}

// Query creates a malformed-query error. Rejected synchronously.
func Query(message string) *StoreError {
	return New(ErrCodeInvalidQuery, message, nil)
}

// Internal creates an internal error.
func Internal(message string, cause error) *StoreError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a StoreError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StoreError); ok {
		return se.Retryable
	}
	return false
}

// IsCategory reports whether err is a StoreError of the given category.
func IsCategory(err error, cat Category) bool {
	if se, ok := err.(*StoreError); ok {
		return se.Category == cat
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsCategory(err, CategoryValidation) }

// IsEmbedding reports whether err is an embedding backend error.
func IsEmbedding(err error) bool { return IsCategory(err, CategoryEmbedding) }

// IsStorage reports whether err is a storage error.
func IsStorage(err error) bool { return IsCategory(err, CategoryStorage) }

// IsQuery reports whether err is a query error.
func IsQuery(err error) bool { return IsCategory(err, CategoryQuery) }

// GetCode extracts the error code from a StoreError.
// Returns empty string if not a StoreError.
func GetCode(err error) string {
	if se, ok := err.(*StoreError); ok {
		return se.Code
	}
	return ""
}
