// Package errors provides structured error handling for repoindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors (index files, locks)
//   - 4XX: Validation and data errors (records, documents, queries)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk and index storage errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates caller or data errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current operation; the process may continue.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO and storage errors (200-299)
	ErrCodeFileNotFound       = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex       = "ERR_205_CORRUPT_INDEX"
	ErrCodeStorageUnavailable = "ERR_207_STORAGE_UNAVAILABLE"
	ErrCodeIndexClosed        = "ERR_208_INDEX_CLOSED"
	ErrCodeIndexLocked        = "ERR_209_INDEX_LOCKED"

	// Validation errors (400-499)
	ErrCodeInvalidInput          = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery          = "ERR_403_INVALID_QUERY"
	ErrCodeUnsupportedRecordKind = "ERR_411_UNSUPPORTED_RECORD_KIND"
	ErrCodeMalformedDocument     = "ERR_412_MALFORMED_DOCUMENT"
	ErrCodeInvalidDateFormat     = "ERR_413_INVALID_DATE_FORMAT"
	ErrCodeFieldMismatch         = "ERR_414_FIELD_MISMATCH"
	ErrCodeChecksumMismatch      = "ERR_415_CHECKSUM_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "209" from "ERR_209_INDEX_LOCKED")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStorageUnavailable:
		return SeverityFatal
	case ErrCodeIndexLocked:
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether a caller may retry after this error.
// The core never retries on its own.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStorageUnavailable, ErrCodeCorruptIndex, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
