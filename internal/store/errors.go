package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInUse is returned (wrapped) when a write collides with a unique name or
// a delete would orphan referencing rows.
var ErrInUse = errors.New("in use")

// ConflictError reports an optimistic concurrency failure: the caller's
// expected version is stale. Callers may reload and retry; the store never
// retries on its own.
type ConflictError struct {
	Entity   string
	ID       uuid.UUID
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("optimistic lock conflict on %s %s: expected version %d, current version %d",
		e.Entity, e.ID, e.Expected, e.Actual)
}

// IsConflict reports whether err is a ConflictError.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
