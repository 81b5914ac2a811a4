package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	smerrors "github.com/Dadudekc/swarmmem/internal/errors"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_StoreErrorCategories(t *testing.T) {
	tests := []struct {
		name string
		err  *smerrors.StoreError
		code int
	}{
		{"validation", smerrors.New(smerrors.ErrCodeMissingField, "tool is required", nil), ErrCodeInvalidParams},
		{"query", smerrors.New(smerrors.ErrCodeUnknownBackend, "no such backend", nil), ErrCodeInvalidParams},
		{"embedding", smerrors.New(smerrors.ErrCodeEmbedUnavailable, "backend down", nil), ErrCodeBackendUnavailable},
		{"doc not found", smerrors.New(smerrors.ErrCodeDocNotFound, "document missing", nil), ErrCodeNotFound},
		{"storage", smerrors.New(smerrors.ErrCodeStoreTx, "tx failed", nil), ErrCodeStoreUnavailable},
		{"internal", smerrors.New(smerrors.ErrCodeInternal, "boom", nil), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			require.NotNil(t, mapped)
			assert.Equal(t, tt.code, mapped.Code)
			assert.Equal(t, tt.err.Message, mapped.Message)
		})
	}
}

func TestMapError_WrappedStoreError(t *testing.T) {
	inner := smerrors.New(smerrors.ErrCodeDocNotFound, "document missing", nil)
	mapped := MapError(errors.Join(errors.New("get document"), inner))

	require.NotNil(t, mapped)
	assert.Equal(t, ErrCodeNotFound, mapped.Code)
}

func TestMapError_ContextErrors(t *testing.T) {
	deadline := MapError(context.DeadlineExceeded)
	require.NotNil(t, deadline)
	assert.Equal(t, ErrCodeTimeout, deadline.Code)
	assert.Contains(t, deadline.Message, "timed out")

	canceled := MapError(context.Canceled)
	require.NotNil(t, canceled)
	assert.Equal(t, ErrCodeTimeout, canceled.Code)
	assert.Contains(t, canceled.Message, "canceled")
}

func TestMapError_UnknownError(t *testing.T) {
	mapped := MapError(errors.New("surprise"))
	require.NotNil(t, mapped)
	assert.Equal(t, ErrCodeInternalError, mapped.Code)
}

func TestNewInvalidParamsError(t *testing.T) {
	err := NewInvalidParamsError("query parameter is required")
	assert.Equal(t, ErrCodeInvalidParams, err.Code)
	assert.Contains(t, err.Error(), "query parameter is required")
}

func TestNewMethodNotFoundError(t *testing.T) {
	err := NewMethodNotFoundError("memory_bogus")
	assert.Equal(t, ErrCodeMethodNotFound, err.Code)
	assert.Contains(t, err.Message, "memory_bogus")
}
