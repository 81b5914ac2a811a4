// Package mcp implements the Model Context Protocol server for swarmmem,
// exposing the memory store's record and query operations to AI clients.
package mcp

import (
	"context"
	"errors"
	"fmt"

	smerrors "github.com/Dadudekc/swarmmem/internal/errors"
)

// Custom MCP error codes for swarmmem.
const (
	// ErrCodeStoreUnavailable indicates the document store cannot serve.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeBackendUnavailable indicates the embedding backend is down.
	ErrCodeBackendUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates the requested document does not exist.
	ErrCodeNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var se *smerrors.StoreError
	if errors.As(err, &se) {
		return mapStoreError(se)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapStoreError converts a StoreError to an MCPError by category.
func mapStoreError(se *smerrors.StoreError) *MCPError {
	switch se.Category {
	case smerrors.CategoryValidation, smerrors.CategoryQuery:
		return &MCPError{Code: ErrCodeInvalidParams, Message: se.Message}
	case smerrors.CategoryEmbedding:
		return &MCPError{Code: ErrCodeBackendUnavailable, Message: se.Message}
	case smerrors.CategoryStorage:
		if se.Code == smerrors.ErrCodeDocNotFound {
			return &MCPError{Code: ErrCodeNotFound, Message: se.Message}
		}
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: se.Message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: se.Message}
	}
}
