package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/team-hours/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"name": "invalid", "team": "full"}}
	if got := withFields.Error(); got != "validation failed: name, team" {
		t.Fatalf("expected sorted field list, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestConflictError_Is(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", &ConflictError{Message: "member is archived"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ConflictError to match ErrConflict")
	}
	if got := (&ConflictError{}).Error(); got != "conflict" {
		t.Fatalf("expected default message, got %q", got)
	}
}

func TestMapStoreError(t *testing.T) {
	t.Parallel()

	storeFailure := errors.New("disk I/O error")
	tests := []struct {
		name  string
		in    error
		match error
		msg   string
	}{
		{name: "not found", in: fmt.Errorf("lookup: %w", persistence.ErrNotFound), match: ErrNotFound},
		{name: "duplicate", in: persistence.ErrDuplicate, match: ErrConflict, msg: "taken"},
		{name: "application error passes through", in: ErrForbidden, match: ErrForbidden},
		{name: "unknown failure is internal", in: storeFailure, match: ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapStoreError(tt.in, "taken")
			if !errors.Is(got, tt.match) {
				t.Fatalf("expected %v, got %v", tt.match, got)
			}
			if tt.msg != "" && got.Error() != tt.msg {
				t.Fatalf("expected message %q, got %q", tt.msg, got.Error())
			}
		})
	}

	if !errors.Is(mapStoreError(storeFailure, ""), storeFailure) {
		t.Fatalf("expected internal error to keep the cause")
	}

	vErr := newValidationError("team", "full")
	var got *ValidationError
	if !errors.As(mapStoreError(vErr, ""), &got) || got != vErr {
		t.Fatalf("expected validation error to pass through")
	}
}
