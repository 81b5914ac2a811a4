package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
	}{
		{"config code", ErrCodeConfigInvalid, CategoryConfig},
		{"storage code", ErrCodeStoreTx, CategoryStorage},
		{"embedding code", ErrCodeEmbedTimeout, CategoryEmbedding},
		{"validation code", ErrCodeMissingField, CategoryValidation},
		{"query code", ErrCodeUnknownBackend, CategoryQuery},
		{"internal code", ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_RetryableFlags(t *testing.T) {
	// Embedding transport errors must be retryable; validation never is.
	assert.True(t, New(ErrCodeEmbedTimeout, "t", nil).Retryable)
	assert.True(t, New(ErrCodeEmbedUnavailable, "u", nil).Retryable)
	assert.True(t, New(ErrCodeStoreLocked, "l", nil).Retryable)
	assert.False(t, New(ErrCodeMissingField, "m", nil).Retryable)
	assert.False(t, New(ErrCodeStoreTx, "tx", nil).Retryable)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeStoreTx, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeStoreTx, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeDocNotFound, "doc x", nil)
	b := New(ErrCodeDocNotFound, "doc y", nil)
	c := New(ErrCodeStoreTx, "tx", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestMissingField_Details(t *testing.T) {
	err := MissingField("action", "outcome")

	assert.Equal(t, ErrCodeMissingField, err.Code)
	assert.Equal(t, "action", err.Details["kind"])
	assert.Equal(t, "outcome", err.Details["field"])
	assert.True(t, IsValidation(err))
}

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, IsEmbedding(Embedding("down", nil)))
	assert.True(t, IsStorage(Storage("tx failed", nil)))
	assert.True(t, IsQuery(Query("bad filter")))
	assert.True(t, IsValidation(Validation("bad payload")))
	assert.False(t, IsStorage(Query("bad filter")))
	assert.False(t, IsValidation(stderrors.New("plain")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidQuery, GetCode(Query("q")))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
