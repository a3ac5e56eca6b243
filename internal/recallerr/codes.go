// Package recallerr provides structured error handling for Recall.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors
//   - 3XX: Provider errors (embedding / generation boundary)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package recallerr

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates persistence errors.
	CategoryStorage Category = "STORAGE"
	// CategoryProvider indicates embedding/generation provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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
	ErrCodeStoreWrite    = "ERR_202_STORE_WRITE"
	ErrCodeStoreRead     = "ERR_203_STORE_READ"
	ErrCodeStoreCorrupt  = "ERR_204_STORE_CORRUPT"
	ErrCodeStoreLocked   = "ERR_205_STORE_LOCKED"
	ErrCodeDimensionMism = "ERR_206_DIMENSION_MISMATCH"

	// Provider errors (300-399)
	ErrCodeRateLimited = "ERR_301_RATE_LIMITED"
	ErrCodeNetwork     = "ERR_302_NETWORK"
	ErrCodeAuth        = "ERR_303_AUTH"
	ErrCodeProvider    = "ERR_304_PROVIDER"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeSourceEmpty  = "ERR_403_SOURCE_ID_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodePartialIndex = "ERR_502_PARTIAL_INDEX"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_RATE_LIMITED")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeAuth:
		return SeverityFatal
	}

	// Retryable provider errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Auth failures are deliberately absent: they abort the whole batch and
// must never be retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeNetwork:
		return true
	default:
		return false
	}
}
