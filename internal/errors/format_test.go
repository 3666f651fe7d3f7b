package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(ErrCodeNotFound, "collection 'docs' not found", nil)

	result := FormatForUser(err, false)

	assert.Contains(t, result, "collection 'docs' not found")
	assert.Contains(t, result, "[ERR_401_NOT_FOUND]")
}

func TestFormatForUser_WithSuggestion(t *testing.T) {
	err := New(ErrCodeCollectionBusy, "collection is quiesced", nil).
		WithSuggestion("Reopen the collection after inspecting the logs")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "Reopen the collection")
}

func TestFormatForUser_NoStackTraceInNormalMode(t *testing.T) {
	err := New(ErrCodeInternal, "unexpected error", nil)

	result := FormatForUser(err, false)

	assert.NotContains(t, result, "Stack trace:")
	assert.NotContains(t, result, "goroutine")
}

func TestFormatForUser_StandardError(t *testing.T) {
	err := errors.New("something went wrong")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	result := FormatForUser(nil, false)

	assert.Empty(t, result)
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(ErrCodeNotFound, "vector not found", nil).
		WithDetail("collection", "docs").
		WithSuggestion("Check the vector id")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeNotFound, result["code"])
	assert.Equal(t, "vector not found", result["message"])
	assert.Equal(t, string(CategoryValidation), result["category"])
	assert.Equal(t, string(SeverityError), result["severity"])
	assert.Equal(t, "Check the vector id", result["suggestion"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "docs", details["collection"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeInternal, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)

	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause)

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForCLI_FatalError(t *testing.T) {
	err := New(ErrCodeCorruptionFatal, "store header is corrupted", nil).
		WithSuggestion("Restore the collection from the last checkpoint")

	result := FormatForCLI(err)

	assert.Contains(t, result, "store header is corrupted")
	assert.Contains(t, result, "ERR_204_CORRUPTION_FATAL")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	err := New(ErrCodeNotFound, "collection not found", nil)

	result := FormatForCLI(err)

	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "Should be concise")
}

func TestFormatForLog_BasicError(t *testing.T) {
	err := New(ErrCodeWalIO, "fsync failed", nil).WithDetail("collection", "docs")

	result := FormatForLog(err)

	assert.Equal(t, ErrCodeWalIO, result["error_code"])
	assert.Equal(t, "docs", result["detail_collection"])
}

func TestFormatForLog_StandardError(t *testing.T) {
	result := FormatForLog(errors.New("plain"))

	assert.Equal(t, "plain", result["error"])
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}
