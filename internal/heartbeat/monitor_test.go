package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorFiresAfterTimeout(t *testing.T) {
	var fired atomic.Int32
	m := New(30*time.Millisecond, func() { fired.Add(1) })

	m.Reset()
	time.Sleep(80 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly one expiry, got %d", got)
	}
	if m.Active() {
		t.Error("monitor should be disarmed after expiry")
	}
}

func TestResetExtendsDeadline(t *testing.T) {
	var fired atomic.Int32
	m := New(60*time.Millisecond, func() { fired.Add(1) })

	m.Reset()
	// Keep resetting inside the window; the timeout must never trip.
	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		m.Reset()
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("monitor fired %d times despite resets", got)
	}

	// Stop feeding it and the single timeout fires.
	time.Sleep(120 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly one expiry after silence, got %d", got)
	}
}

func TestStopPreventsExpiry(t *testing.T) {
	var fired atomic.Int32
	m := New(30*time.Millisecond, func() { fired.Add(1) })

	m.Reset()
	m.Stop()

	if m.Active() {
		t.Error("monitor still active after Stop")
	}
	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("stopped monitor fired %d times", got)
	}
}

func TestSingleArmedTimer(t *testing.T) {
	var fired atomic.Int32
	m := New(40*time.Millisecond, func() { fired.Add(1) })

	// Repeated resets replace the timer; they never stack.
	for i := 0; i < 10; i++ {
		m.Reset()
	}
	if !m.Active() {
		t.Fatal("monitor should be armed")
	}

	time.Sleep(120 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly one expiry from ten resets, got %d", got)
	}
}

func TestZeroTimeoutFallsBackToDefault(t *testing.T) {
	m := New(0, nil)
	if m.Timeout() != DefaultTimeout {
		t.Errorf("got timeout %v, want %v", m.Timeout(), DefaultTimeout)
	}
}
