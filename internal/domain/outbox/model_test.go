package outbox_test

import (
	"errors"
	"testing"
	"time"

	"runclub/internal/domain/outbox"
)

// TestEntry_Lifecycle tests attempts, failures and the terminal state.
func TestEntry_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := outbox.New("o-1", outbox.ActionTypeEmail, `{"to":"a@b.c"}`, now)
	e.MaxAttempts = 2
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("timeout"))
	if e.Status != outbox.StatusRetrying || e.IsTerminal() {
		t.Errorf("after first failure: status=%s terminal=%v", e.Status, e.IsTerminal())
	}

	e.MarkAttempt(now.Add(time.Minute))
	e.MarkFailed(errors.New("timeout"))
	if e.Status != outbox.StatusFailed || !e.IsTerminal() || e.CanRetry() {
		t.Errorf("after last failure: status=%s", e.Status)
	}
}

// TestEntry_Backoff tests exponential retry spacing.
func TestEntry_Backoff(t *testing.T) {
	base, maxDelay := 30*time.Second, time.Hour
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	e := outbox.New("o-1", outbox.ActionTypeEmail, "{}", now)
	if !e.IsDue(now, base, maxDelay) {
		t.Error("fresh entry should be due")
	}

	e.MarkAttempt(now)
	if got := e.NextRetryDelay(base, maxDelay); got != time.Minute {
		t.Errorf("delay after one attempt = %v, want 1m", got)
	}
	if e.IsDue(now.Add(59*time.Second), base, maxDelay) {
		t.Error("should not be due before backoff elapses")
	}
	if !e.IsDue(now.Add(time.Minute), base, maxDelay) {
		t.Error("should be due once backoff elapses")
	}

	e.Attempts = 20
	if got := e.NextRetryDelay(base, maxDelay); got != maxDelay {
		t.Errorf("delay = %v, want cap %v", got, maxDelay)
	}
}
