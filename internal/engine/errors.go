package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks out-of-range or missing input. Nothing is written.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an operation on an unknown item, or one owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrInvariant marks stored state the model cannot accept, such as a
	// non-positive decay rate. Callers should not retry.
	ErrInvariant = errors.New("invariant violation")
)

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func notFound(id int64) error {
	return fmt.Errorf("item %d: %w", id, ErrNotFound)
}
