package application

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: ErrUnauthorized, want: "unauthorized"},
		{err: fmt.Errorf("gate: %w", ErrForbidden), want: "forbidden"},
		{err: ErrNotFound, want: "not_found"},
		{err: &ConflictError{Message: "taken"}, want: "conflict"},
		{err: fmt.Errorf("%w: boom", ErrInternal), want: "internal"},
		{err: newValidationError("name", "required"), want: "validation"},
		{err: errors.New("other"), want: "unexpected"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
