package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a write violates a foreign key or check constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrReadOnly is returned when a write is attempted inside a read transaction.
	ErrReadOnly = errors.New("persistence: read-only transaction")
)
