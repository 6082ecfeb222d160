package repository

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint rejects a write
	ErrConflict = errors.New("conflict: entity already exists")

	// ErrForeignKeyViolation is returned when a foreign key constraint fails
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrPoolTimeout is returned when no connection could be acquired in time
	ErrPoolTimeout = errors.New("connection pool timeout")

	// ErrCanceled is returned when the caller's context ended the operation
	ErrCanceled = errors.New("operation canceled")
)

// canceledError keeps both ErrCanceled and the context cause in the chain.
type canceledError struct {
	cause error
}

func (e *canceledError) Error() string { return fmt.Sprintf("%s: %v", ErrCanceled, e.cause) }

func (e *canceledError) Unwrap() []error { return []error{ErrCanceled, e.cause} }

// Canceled wraps a context error so callers can match ErrCanceled as well as
// context.Canceled or context.DeadlineExceeded.
func Canceled(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	return &canceledError{cause: cause}
}

// CheckContext returns a Canceled error when ctx is done.
func CheckContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Canceled(err)
	}
	return nil
}

// IsCanceled reports whether err is a cancellation outcome.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
