package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/team-hours/internal/persistence"
)

var (
	// ErrUnauthorized is returned when no principal is attached to the call.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrForbidden is returned when the authorization gate denies an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested team or member does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("application: conflict")
	// ErrInternal wraps storage and transport failures that callers cannot correct.
	ErrInternal = errors.New("application: internal error")
)

// ConflictError reports a user correctable collision such as a duplicate
// member name or archiving a member who is signed in.
type ConflictError struct {
	Message string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil || e.Message == "" {
		return "conflict"
	}
	return e.Message
}

// Is lets errors.Is(err, ErrConflict) match any ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// mapStoreError translates persistence failures into the application taxonomy.
// Errors already expressed in that taxonomy pass through unchanged.
func mapStoreError(err error, conflictMessage string) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInternal), errors.As(err, &vErr):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		if conflictMessage == "" {
			conflictMessage = "resource already exists"
		}
		return &ConflictError{Message: conflictMessage}
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
