package errors

import (
	"errors"
	"fmt"
)

// IndexError is the structured error type for repoindex.
// It carries enough context (code, collection, operation) for a caller to decide
// whether to retry, re-open, or give up.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_209_INDEX_LOCKED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation may succeed when attempted again.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, ErrIndexLocked) works for any
// IndexError carrying that code.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// WithOperation records the collection and operation the error came from.
func (e *IndexError) WithOperation(collection, operation string) *IndexError {
	if collection != "" {
		e.WithDetail(DetailCollection, collection)
	}
	if operation != "" {
		e.WithDetail(DetailOperation, operation)
	}
	return e
}

// Detail keys shared across packages.
const (
	DetailCollection = "collection"
	DetailOperation  = "operation"
	DetailField      = "field"
	DetailDocument   = "document"
	DetailRecord     = "record"
	DetailPosition   = "position"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrUnsupportedRecordKind = &IndexError{Code: ErrCodeUnsupportedRecordKind}
	ErrMalformedDocument     = &IndexError{Code: ErrCodeMalformedDocument}
	ErrInvalidDateFormat     = &IndexError{Code: ErrCodeInvalidDateFormat}
	ErrFieldMismatch         = &IndexError{Code: ErrCodeFieldMismatch}
	ErrStorageUnavailable    = &IndexError{Code: ErrCodeStorageUnavailable}
	ErrCorruptIndex          = &IndexError{Code: ErrCodeCorruptIndex}
	ErrIndexLocked           = &IndexError{Code: ErrCodeIndexLocked}
)

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *IndexError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *IndexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// StorageError creates a StorageUnavailable error for a collection operation.
func StorageError(collection, operation string, cause error) *IndexError {
	msg := fmt.Sprintf("storage unavailable for %s during %s", collection, operation)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return New(ErrCodeStorageUnavailable, msg, cause).WithOperation(collection, operation)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err (or anything it wraps) is a retryable IndexError.
func IsRetryable(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first IndexError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category from the first IndexError in the chain.
func GetCategory(err error) Category {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ""
}

// As exposes the standard library errors.As so callers importing this package
// under the name "errors" do not need a second import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes the standard library errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
