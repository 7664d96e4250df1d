// Package retry implements the bounded, fixed-delay reconnection policy
// applied after an abnormal close.
package retry

import (
	"sync"
	"time"
)

const (
	// DefaultDelay is the fixed wait between reconnection attempts. No
	// jitter, no backoff.
	DefaultDelay = 3 * time.Second

	// DefaultMaxAttempts caps consecutive attempts since the last
	// successful open. Exhaustion is terminal until Reset.
	DefaultMaxAttempts = 5
)

// Scheduler decides if and when to retry after an abnormal close. It owns
// one cancellable delay timer and the retry counter. The counter resets
// only on a successful open; the scheduler never resets it on its own.
type Scheduler struct {
	mu           sync.Mutex
	delay        time.Duration
	maxAttempts  int
	attempts     int
	timer        *time.Timer
	reconnecting bool
}

// New creates a Scheduler with the given fixed delay and attempt cap.
// Non-positive arguments fall back to the defaults.
func New(delay time.Duration, maxAttempts int) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Scheduler{
		delay:       delay,
		maxAttempts: maxAttempts,
	}
}

// Schedule arms one retry timer that invokes fn after the fixed delay.
// It returns false, flipping the reconnecting flag off, once the attempt
// cap is exhausted; no further attempt is armed. A pending timer is
// replaced, never stacked.
func (s *Scheduler) Schedule(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempts >= s.maxAttempts {
		s.reconnecting = false
		return false
	}

	s.attempts++
	s.reconnecting = true

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.timer == nil {
			// Canceled after firing but before running.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
	return true
}

// Cancel disarms any pending retry and clears the reconnecting flag. The
// attempt counter is left untouched; only a successful open resets it.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.reconnecting = false
}

// Reset records a successful open: counter back to zero, reconnecting
// flag off, pending timer disarmed.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.attempts = 0
	s.reconnecting = false
}

// Reconnecting reports whether a retry is pending or in flight.
func (s *Scheduler) Reconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

// Attempts returns the number of attempts consumed since the last
// successful open.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Exhausted reports whether the attempt cap has been reached.
func (s *Scheduler) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts >= s.maxAttempts
}

// Pending reports whether a retry timer is currently armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Delay returns the fixed delay between attempts.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// MaxAttempts returns the attempt cap.
func (s *Scheduler) MaxAttempts() int {
	return s.maxAttempts
}
