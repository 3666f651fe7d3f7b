package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVDBError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	vdbErr := New(ErrCodeStoreIO, "failed to read slot", originalErr)

	require.NotNil(t, vdbErr)
	assert.Equal(t, originalErr, errors.Unwrap(vdbErr))
	assert.True(t, errors.Is(vdbErr, originalErr))
}

func TestVDBError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigInvalid,
			message:  "invalid yaml syntax",
			expected: "[ERR_101_CONFIG_INVALID] invalid yaml syntax",
		},
		{
			name:     "wal error",
			code:     ErrCodeWalIO,
			message:  "fsync failed",
			expected: "[ERR_201_WAL_IO] fsync failed",
		},
		{
			name:     "not found",
			code:     ErrCodeNotFound,
			message:  "collection 'docs' does not exist",
			expected: "[ERR_401_NOT_FOUND] collection 'docs' does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestVDBError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeNotFound, "vector A not found", nil)
	err2 := New(ErrCodeNotFound, "vector B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestVDBError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeNotFound, "not found", nil)
	err2 := New(ErrCodeAlreadyExists, "already exists", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestVDBError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "dimension mismatch", nil)

	err = err.WithDetail("collection", "docs")
	err = err.WithDetail("expected", "768")
	err = err.WithDetail("actual", "512")

	assert.Equal(t, "docs", err.Details["collection"])
	assert.Equal(t, "768", err.Details["expected"])
	assert.Equal(t, "512", err.Details["actual"])
}

func TestVDBError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeCollectionBusy, "collection quiesced after WAL failure", nil)

	err = err.WithSuggestion("Reopen the collection to retry")

	assert.Equal(t, "Reopen the collection to retry", err.Suggestion)
}

func TestVDBError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeWalIO, CategoryIO},
		{ErrCodeStoreIO, CategoryIO},
		{ErrCodeCorruptRecord, CategoryIO},
		{ErrCodeNotFound, CategoryValidation},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeInvalidArgument, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeInvariantViolation, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestVDBError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeInvariantViolation, SeverityFatal},
		{ErrCodeCorruptionFatal, SeverityFatal},
		{ErrCodeCollectionBusy, SeverityWarning},
		{ErrCodeNotFound, SeverityError},
		{ErrCodeWalIO, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestVDBError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeCollectionBusy, true},
		{ErrCodeNotFound, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeInvariantViolation, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesVDBErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	vdbErr := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, vdbErr)
	assert.Equal(t, ErrCodeInternal, vdbErr.Code)
	assert.Equal(t, "something went wrong", vdbErr.Message)
	assert.Equal(t, originalErr, vdbErr.Cause)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid yaml syntax", nil)

	assert.Equal(t, CategoryConfig, err.Category)
	assert.Contains(t, err.Code, "CONFIG")
}

func TestWalIOError_CreatesIOCategoryError(t *testing.T) {
	err := WalIOError("fsync failed", nil)

	assert.Equal(t, CategoryIO, err.Category)
}

func TestStoreIOError_CreatesIOCategoryError(t *testing.T) {
	err := StoreIOError("mmap grow failed", nil)

	assert.Equal(t, CategoryIO, err.Category)
}

func TestCollectionUnavailableError_IsRetryable(t *testing.T) {
	err := CollectionUnavailableError("collection quiesced", nil)

	assert.True(t, err.Retryable)
}

func TestNotFoundError_CreatesValidationCategoryError(t *testing.T) {
	err := NotFoundError("vector not found", nil)

	assert.Equal(t, CategoryValidation, err.Category)
}

func TestDimensionMismatchError_CreatesValidationCategoryError(t *testing.T) {
	err := DimensionMismatchError("expected dim 768, got 512", nil)

	assert.Equal(t, CategoryValidation, err.Category)
}

func TestValidationError_CreatesValidationCategoryError(t *testing.T) {
	err := ValidationError("k must be positive", nil)

	assert.Equal(t, CategoryValidation, err.Category)
}

func TestInvariantViolationError_IsFatal(t *testing.T) {
	err := InvariantViolationError("free slot reachable from graph", nil)

	assert.Equal(t, SeverityFatal, err.Severity)
	assert.True(t, IsFatal(err))
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable VDBError",
			err:      New(ErrCodeCollectionBusy, "quiesced", nil),
			expected: true,
		},
		{
			name:     "non-retryable VDBError",
			err:      New(ErrCodeNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeCollectionBusy, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "invariant violation",
			err:      New(ErrCodeInvariantViolation, "bad invariant", nil),
			expected: true,
		},
		{
			name:     "fatal corruption",
			err:      New(ErrCodeCorruptionFatal, "bad header", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}

func TestGetCode_ExtractsCode(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", nil)
	assert.Equal(t, ErrCodeNotFound, GetCode(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestGetCategory_ExtractsCategory(t *testing.T) {
	err := New(ErrCodeWalIO, "io failure", nil)
	assert.Equal(t, CategoryIO, GetCategory(err))
	assert.Equal(t, Category(""), GetCategory(errors.New("plain")))
}
