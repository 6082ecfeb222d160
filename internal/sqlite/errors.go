package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpggio/mailscope/internal/repository"
)

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isMatchSyntax(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "malformed MATCH") || strings.Contains(msg, "no such column")
}

// storeErr classifies err: caller cancellation first, then constraint
// failures, then a wrapped driver error.
func storeErr(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if repository.IsCanceled(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return repository.Canceled(ctxErr)
	}
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", op, repository.ErrForeignKeyViolation)
	}
	return fmt.Errorf("%s: %w", op, err)
}
