package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow("honeypot") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	// 2 failures = still closed
	b.RecordFailure("honeypot")
	b.RecordFailure("honeypot")
	if !b.Allow("honeypot") {
		t.Fatal("should still allow before threshold")
	}

	// 3rd failure = open
	b.RecordFailure("honeypot")
	if b.Allow("honeypot") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("honeypot") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("honeypot"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("honeypot")
	b.RecordFailure("honeypot")
	if b.Allow("honeypot") {
		t.Fatal("should be open")
	}

	// Wait for open duration.
	time.Sleep(60 * time.Millisecond)

	// Should transition to half-open and allow one probe.
	if !b.Allow("honeypot") {
		t.Fatal("should allow probe in half-open")
	}
	if b.State("honeypot") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("honeypot"))
	}

	// Second request while half-open should be rejected.
	if b.Allow("honeypot") {
		t.Fatal("should reject second request in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("honeypot")
	b.RecordFailure("honeypot")
	time.Sleep(60 * time.Millisecond)
	b.Allow("honeypot") // Transitions to half-open

	b.RecordSuccess("honeypot")
	if b.State("honeypot") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("honeypot"))
	}
	if !b.Allow("honeypot") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("honeypot")
	b.RecordFailure("honeypot")
	time.Sleep(60 * time.Millisecond)
	b.Allow("honeypot") // Transitions to half-open

	b.RecordFailure("honeypot")
	if b.State("honeypot") != StateOpen {
		t.Fatalf("expected StateOpen after half-open failure, got %v", b.State("honeypot"))
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("honeypot")
	b.RecordFailure("honeypot")
	b.RecordSuccess("honeypot")

	// Should not trip with only 1 more failure (counter was reset).
	b.RecordFailure("honeypot")
	if !b.Allow("honeypot") {
		t.Fatal("should still be closed after reset")
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordFailure("honeypot")
	b.RecordFailure("honeypot")

	// honeypot is open, rpc:56 should be unaffected.
	if b.Allow("honeypot") {
		t.Fatal("honeypot should be open")
	}
	if !b.Allow("rpc:56") {
		t.Fatal("rpc:56 should be closed")
	}
}

func TestBreaker_UnknownKeyIsClosed(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown key, got %v", b.State("unknown"))
	}
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	var mu sync.Mutex
	var transitions []struct{ from, to State }
	b.OnTransition(func(key string, from, to State) {
		mu.Lock()
		transitions = append(transitions, struct{ from, to State }{from, to})
		mu.Unlock()
	})

	b.RecordFailure("honeypot")
	b.RecordFailure("honeypot") // Should trigger closed→open.

	// Give goroutine time to run.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != StateClosed || transitions[0].to != StateOpen {
		t.Fatalf("expected closed→open, got %v→%v", transitions[0].from, transitions[0].to)
	}
	mu.Unlock()
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestBreaker_ExecuteRecordsOutcome(t *testing.T) {
	b := New(2, time.Minute)
	boom := errors.New("connection refused")

	if err := b.Execute("rpc:1", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if err := b.Execute("rpc:1", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	called := false
	err := b.Execute("rpc:1", func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while the circuit is open")
	}

	if err := b.Execute("rpc:8453", func() error { return nil }); err != nil {
		t.Fatalf("other keys should be unaffected, got %v", err)
	}
}

func TestBreaker_ExecuteCtxIgnoresCallerCancellation(t *testing.T) {
	b := New(2, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		err := b.ExecuteCtx(ctx, "honeypot", func() error { return ctx.Err() })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if got := b.State("honeypot"); got != StateClosed {
		t.Fatalf("cancelled calls must not trip the circuit, state = %s", got)
	}

	boom := errors.New("upstream down")
	_ = b.ExecuteCtx(context.Background(), "honeypot", func() error { return boom })
	_ = b.ExecuteCtx(context.Background(), "honeypot", func() error { return boom })
	if got := b.State("honeypot"); got != StateOpen {
		t.Fatalf("live failures should still trip, state = %s", got)
	}
}

func TestBreaker_ExecuteCtxAbandonedHalfOpenReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure("rpc:1")
	time.Sleep(15 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.ExecuteCtx(ctx, "rpc:1", func() error { return ctx.Err() })
	if got := b.State("rpc:1"); got != StateOpen {
		t.Fatalf("abandoned half-open call should leave the circuit open, state = %s", got)
	}

	// The cooldown already elapsed, so the next caller is let through at once.
	if err := b.ExecuteCtx(context.Background(), "rpc:1", func() error { return nil }); err != nil {
		t.Fatalf("expected trial call to run, got %v", err)
	}
	if got := b.State("rpc:1"); got != StateClosed {
		t.Fatalf("successful trial call should close, state = %s", got)
	}
}

func TestBreaker_Snapshot(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure("rpc:56")
	b.RecordFailure("honeypot")
	b.RecordSuccess("honeypot")

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(snap))
	}
	if snap[0].Key != "honeypot" || snap[1].Key != "rpc:56" {
		t.Fatalf("expected sorted keys, got %+v", snap)
	}
	if snap[1].State != "open" || snap[1].Failures != 1 {
		t.Fatalf("unexpected rpc:56 state: %+v", snap[1])
	}
	if snap[0].State != "open" {
		// One failure at threshold 1 opened it; a success while open leaves it open.
		t.Fatalf("unexpected honeypot state: %+v", snap[0])
	}
}
