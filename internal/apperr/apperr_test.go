package apperr

import (
	"context"
	"errors"
	"testing"
)

func TestKindsUnwrap(t *testing.T) {
	notAvailable := Conflict("RIDE_NOT_AVAILABLE", "ride not available")

	wrapped := errors.Join(errors.New("context"), notAvailable)
	if !errors.Is(wrapped, ErrConflict) {
		t.Fatal("expected conflict kind through wrapping")
	}
	if !errors.Is(wrapped, notAvailable) {
		t.Fatal("expected sentinel identity through wrapping")
	}
	if errors.Is(wrapped, ErrValidation) {
		t.Fatal("conflict must not match validation")
	}
	if got := CodeOf(wrapped); got != "RIDE_NOT_AVAILABLE" {
		t.Fatalf("CodeOf = %q", got)
	}
}

func TestStoreKeepsCause(t *testing.T) {
	err := Store("ride.get", context.DeadlineExceeded)
	if !errors.Is(err, ErrStore) {
		t.Fatal("expected store kind")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected cause to be preserved")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("store faults must not look like conflicts")
	}
	if Store("noop", nil) != nil {
		t.Fatal("nil cause must stay nil")
	}
	if CodeOf(err) != "" {
		t.Fatal("store faults carry no client code")
	}
}
