package retry

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	s := New(20*time.Millisecond, 5)

	var fired atomic.Int32
	if !s.Schedule(func() { fired.Add(1) }) {
		t.Fatal("first attempt refused")
	}

	if !s.Reconnecting() {
		t.Error("reconnecting flag should be set while retry is pending")
	}
	if !s.Pending() {
		t.Error("expected an armed retry timer")
	}
	if s.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", s.Attempts())
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("retry fired %d times, want 1", fired.Load())
	}
	if s.Pending() {
		t.Error("timer should be disarmed after firing")
	}
}

func TestAttemptCapIsTerminal(t *testing.T) {
	s := New(5*time.Millisecond, 5)

	for i := 0; i < 5; i++ {
		if !s.Schedule(func() {}) {
			t.Fatalf("attempt %d refused before cap", i+1)
		}
		time.Sleep(15 * time.Millisecond)
	}

	// The 6th attempt must be refused and the flag must flip false.
	if s.Schedule(func() { t.Error("6th attempt must never be armed") }) {
		t.Fatal("schedule succeeded past the cap")
	}
	if s.Reconnecting() {
		t.Error("reconnecting flag must be false after exhaustion")
	}
	if !s.Exhausted() {
		t.Error("scheduler should report exhausted")
	}
	// Exhaustion does not self-heal.
	if s.Schedule(func() {}) {
		t.Error("scheduler recovered without a successful open")
	}
}

func TestCancelDisarmsPendingRetry(t *testing.T) {
	s := New(25*time.Millisecond, 5)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) })
	s.Cancel()

	if s.Pending() {
		t.Error("timer still pending after cancel")
	}
	if s.Reconnecting() {
		t.Error("reconnecting flag still set after cancel")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("canceled retry fired %d times", fired.Load())
	}

	// Cancel preserves the counter; only Reset clears it.
	if s.Attempts() != 1 {
		t.Errorf("attempts = %d after cancel, want 1", s.Attempts())
	}
}

func TestResetRestoresAttempts(t *testing.T) {
	s := New(5*time.Millisecond, 2)

	s.Schedule(func() {})
	time.Sleep(15 * time.Millisecond)
	s.Schedule(func() {})
	time.Sleep(15 * time.Millisecond)

	if s.Schedule(func() {}) {
		t.Fatal("expected exhaustion at cap 2")
	}

	s.Reset()
	if s.Attempts() != 0 || s.Reconnecting() || s.Exhausted() {
		t.Fatalf("reset incomplete: attempts=%d reconnecting=%v", s.Attempts(), s.Reconnecting())
	}
	if !s.Schedule(func() {}) {
		t.Error("schedule refused after reset")
	}
	s.Cancel()
}

func TestScheduleReplacesPendingTimer(t *testing.T) {
	s := New(20*time.Millisecond, 5)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) })
	s.Schedule(func() { fired.Add(1) })

	time.Sleep(80 * time.Millisecond)
	// Two attempts consumed, but only one armed timer at a time and the
	// first was replaced before firing.
	if fired.Load() != 1 {
		t.Errorf("fired %d times, want 1", fired.Load())
	}
	if s.Attempts() != 2 {
		t.Errorf("attempts = %d, want 2", s.Attempts())
	}
}

func TestDefaults(t *testing.T) {
	s := New(0, 0)
	if s.Delay() != DefaultDelay {
		t.Errorf("delay = %v, want %v", s.Delay(), DefaultDelay)
	}
	if s.MaxAttempts() != DefaultMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", s.MaxAttempts(), DefaultMaxAttempts)
	}
}
