// Package errors provides structured error handling for swarmmem.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (SQLite, disk)
//   - 3XX: Embedding backend errors (transport, quota, timeout)
//   - 4XX: Validation errors
//   - 5XX: Query errors
//   - 6XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates persistence errors.
	CategoryStorage Category = "STORAGE"
	// CategoryEmbedding indicates embedding backend errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryValidation indicates payload validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryQuery indicates malformed query errors.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreOpen     = "ERR_201_STORE_OPEN"
	ErrCodeStoreTx       = "ERR_202_STORE_TX"
	ErrCodeStoreCorrupt  = "ERR_203_STORE_CORRUPT"
	ErrCodeStoreLocked   = "ERR_204_STORE_LOCKED"
	ErrCodeDocNotFound   = "ERR_205_DOC_NOT_FOUND"

	// Embedding errors (300-399)
	ErrCodeEmbedTimeout     = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeEmbedQuota       = "ERR_303_EMBED_QUOTA"
	ErrCodeEmbedDimension   = "ERR_304_EMBED_DIMENSION"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeUnknownKind     = "ERR_402_UNKNOWN_KIND"
	ErrCodeMissingField    = "ERR_403_MISSING_FIELD"
	ErrCodeInvalidField    = "ERR_404_INVALID_FIELD"

	// Query errors (500-599)
	ErrCodeInvalidQuery   = "ERR_501_INVALID_QUERY"
	ErrCodeUnknownBackend = "ERR_502_UNKNOWN_BACKEND"
	ErrCodeInvalidFilter  = "ERR_503_INVALID_FILTER"

	// Internal errors (600-699)
	ErrCodeInternal = "ERR_601_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	case '5':
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt:
		return SeverityFatal
	}

	// Retryable embedding errors degrade, they never abort ingestion.
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Embedding transport failures are always recoverable via backfill.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable, ErrCodeEmbedQuota, ErrCodeStoreLocked:
		return true
	default:
		return false
	}
}
