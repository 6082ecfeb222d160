package search

import (
	"errors"
	"fmt"

	"github.com/rpggio/mailscope/internal/repository"
)

var (
	// ErrInvalidQuery indicates a malformed search request.
	ErrInvalidQuery = fmt.Errorf("invalid search query: %w", repository.ErrInvalidInput)
	// ErrInvalidCursor indicates a pagination token that cannot be decoded or
	// does not belong to the query's ordering.
	ErrInvalidCursor = fmt.Errorf("invalid cursor: %w", repository.ErrInvalidInput)
	// ErrMatchSyntax is returned by stores when the full-text engine rejects a
	// MATCH expression.
	ErrMatchSyntax = errors.New("full-text match syntax error")
)
