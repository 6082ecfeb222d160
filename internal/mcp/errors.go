package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/search"
)

// ErrUnauthorized is returned when a request carries no usable credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Error codes reported to MCP clients.
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeInvalidCursor = "INVALID_CURSOR"
	CodeNotFound      = "NOT_FOUND"
	CodePoolTimeout   = "POOL_TIMEOUT"
	CodeCanceled      = "CANCELED"
	CodeUnauthorized  = "UNAUTHORIZED"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
}

// MapError maps store and service errors to MCP error codes. It returns nil
// for errors with no client-facing code.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrUnauthorized):
		return &APIError{Code: CodeUnauthorized, Message: err.Error(), RecoveryHint: "Send a valid bearer API key"}
	case repository.IsCanceled(err):
		return &APIError{Code: CodeCanceled, Message: "request canceled before completion", RecoveryHint: "Retry with a longer deadline"}
	case errors.Is(err, repository.ErrPoolTimeout):
		return &APIError{Code: CodePoolTimeout, Message: "database busy", RecoveryHint: "Retry shortly"}
	case errors.Is(err, search.ErrInvalidCursor):
		return &APIError{Code: CodeInvalidCursor, Message: err.Error(), RecoveryHint: "Restart pagination without a cursor"}
	case errors.Is(err, repository.ErrNotFound):
		return &APIError{Code: CodeNotFound, Message: err.Error(), RecoveryHint: "Check the id or agent name"}
	case errors.Is(err, repository.ErrInvalidInput):
		return &APIError{Code: CodeInvalidInput, Message: err.Error()}
	default:
		return nil
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
