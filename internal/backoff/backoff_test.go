package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errFinal = errors.New("final")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(t.Context(), fastPolicy(5), isTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(t.Context(), fastPolicy(5), isTransient, func(context.Context) error {
		calls++
		return errFinal
	})
	if !errors.Is(err, errFinal) {
		t.Fatalf("Do() error = %v, want %v", err, errFinal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_BoundedAttempts(t *testing.T) {
	calls := 0
	err := Do(t.Context(), fastPolicy(3), isTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("Do() error = %v, want %v", err, errTransient)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := Policy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 2}

	calls := 0
	err := Do(ctx, p, isTransient, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should include context.Canceled: %v", err)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("error should include last failure: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(t.Context(), fastPolicy(3), isTransient, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("DoValue() error = %v", err)
	}
	if v != "ok" {
		t.Errorf("DoValue() = %q, want %q", v, "ok")
	}
}

func TestPolicy_Normalized(t *testing.T) {
	p := Policy{}.normalized()
	if p.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", p.MaxAttempts)
	}
	if p.Multiplier != 1 {
		t.Errorf("Multiplier = %v, want 1", p.Multiplier)
	}
}
