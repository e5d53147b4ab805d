package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeExtractFailed, CategoryExtraction},
		{ErrCodeEmbedTimeout, CategoryEmbedding},
		{ErrCodeStoreWrite, CategoryStore},
		{ErrCodeSearchUnavailable, CategoryRetrieval},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_DerivesRetryable(t *testing.T) {
	assert.True(t, New(ErrCodeEmbedFailed, "x", nil).Retryable)
	assert.True(t, New(ErrCodeStoreWrite, "x", nil).Retryable)
	assert.False(t, New(ErrCodeExtractFailed, "x", nil).Retryable)
	assert.False(t, New(ErrCodeCheckpointCorrupt, "x", nil).Retryable)
}

func TestSeverity_CheckpointCorruptIsWarning(t *testing.T) {
	// Corrupt checkpoints recover with a fresh start, so never fatal.
	err := New(ErrCodeCheckpointCorrupt, "bad json", nil)
	assert.Equal(t, SeverityWarning, err.Severity)
	assert.False(t, IsFatal(err))
}

func TestSearchError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeExtractTimeout, "extraction timed out", nil)
	assert.Equal(t, "[ERR_202_EXTRACT_TIMEOUT] extraction timed out", err.Error())
}

func TestSearchError_UnwrapChain(t *testing.T) {
	root := errors.New("disk exploded")
	wrapped := Wrap(ErrCodeStoreWrite, fmt.Errorf("writing batch: %w", root))

	assert.True(t, errors.Is(wrapped, root))

	var se *SearchError
	require.True(t, errors.As(wrapped, &se))
	assert.Equal(t, ErrCodeStoreWrite, se.Code)
}

func TestSearchError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeSearchUnavailable, "both subsystems down", nil)
	b := New(ErrCodeSearchUnavailable, "different message", nil)
	c := New(ErrCodeEmbedFailed, "other code", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeExtractFailed, "cannot read", nil).
		WithDetail("path", "/tmp/a.txt").
		WithDetail("size", "42").
		WithSuggestion("check file permissions")

	assert.Equal(t, "/tmp/a.txt", err.Details["path"])
	assert.Equal(t, "42", err.Details["size"])
	assert.Equal(t, "check file permissions", err.Suggestion)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeStoreWrite, nil))
}

func TestHelpers_OnPlainErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
}
