package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk gone")

	// When: wrapping with IndexError
	ie := New(ErrCodeStorageUnavailable, "cannot open index", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, ie)
	assert.Equal(t, originalErr, errors.Unwrap(ie))
	assert.True(t, errors.Is(ie, originalErr))
}

func TestIndexError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "lock error",
			code:     ErrCodeIndexLocked,
			message:  "metadata is locked",
			expected: "[ERR_209_INDEX_LOCKED] metadata is locked",
		},
		{
			name:     "malformed document",
			code:     ErrCodeMalformedDocument,
			message:  "missing id",
			expected: "[ERR_412_MALFORMED_DOCUMENT] missing id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestIndexError_Is_MatchesSentinelByCode(t *testing.T) {
	// Given: a lock error wrapped twice
	err := fmt.Errorf("index batch: %w", New(ErrCodeIndexLocked, "locked", nil))

	// Then: it matches the sentinel and nothing else
	assert.True(t, errors.Is(err, ErrIndexLocked))
	assert.False(t, errors.Is(err, ErrCorruptIndex))
}

func TestIndexError_WithOperation_AddsContext(t *testing.T) {
	err := New(ErrCodeCorruptIndex, "bad meta", nil).WithOperation("metadata", "open")

	assert.Equal(t, "metadata", err.Details[DetailCollection])
	assert.Equal(t, "open", err.Details[DetailOperation])
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeIndexLocked, CategoryIO},
		{ErrCodeCorruptIndex, CategoryIO},
		{ErrCodeFieldMismatch, CategoryValidation},
		{ErrCodeChecksumMismatch, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{"bad", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromCode(tt.code))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("x"), false},
		{"locked", New(ErrCodeIndexLocked, "locked", nil), true},
		{"storage", New(ErrCodeStorageUnavailable, "io", nil), true},
		{"corrupt", New(ErrCodeCorruptIndex, "bad", nil), true},
		{"malformed", New(ErrCodeMalformedDocument, "bad", nil), false},
		{"wrapped locked", fmt.Errorf("ctx: %w", New(ErrCodeIndexLocked, "locked", nil)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeCorruptIndex, "bad", nil)))
	assert.True(t, IsFatal(New(ErrCodeStorageUnavailable, "io", nil)))
	assert.False(t, IsFatal(New(ErrCodeIndexLocked, "locked", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestGetCode_WalksChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCodeFieldMismatch, "fields differ", nil))

	assert.Equal(t, ErrCodeFieldMismatch, GetCode(err))
	assert.Equal(t, CategoryValidation, GetCategory(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestStorageError_CarriesOperation(t *testing.T) {
	err := StorageError("artifact", "commit", errors.New("no space"))

	assert.Equal(t, ErrCodeStorageUnavailable, err.Code)
	assert.Contains(t, err.Message, "artifact")
	assert.Contains(t, err.Message, "no space")
	assert.Equal(t, "commit", err.Details[DetailOperation])
}
