// Package heartbeat detects connections that look open but have gone
// silent, via a single resettable timeout.
package heartbeat

import (
	"sync"
	"time"
)

// DefaultTimeout is the silence window after which a connection is
// considered dead. The gateway emits a heartbeat frame every 30s, so one
// missed beat plus margin trips the monitor.
const DefaultTimeout = 60 * time.Second

// Monitor owns one cancellable timeout. Reset must be called on every
// successfully parsed inbound frame regardless of type; any frame is a
// liveness signal. Expiry invokes the callback, which is expected to
// force-close the owning socket.
type Monitor struct {
	mu       sync.Mutex
	timeout  time.Duration
	timer    *time.Timer
	onExpire func()
}

// New creates a stopped Monitor. The first Reset arms it.
func New(timeout time.Duration, onExpire func()) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		timeout:  timeout,
		onExpire: onExpire,
	}
}

// Reset cancels any existing timeout and starts a new one. There is at
// most one armed timer at any point.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, m.expire)
}

// Stop cancels the pending timeout. It must be called whenever the socket
// leaves the connected state so an orphaned timer cannot fire against a
// dead connection.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Active reports whether a timeout is currently armed.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Timeout returns the configured silence window.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

func (m *Monitor) expire() {
	m.mu.Lock()
	if m.timer == nil {
		// Stopped after the timer fired but before we got the lock.
		m.mu.Unlock()
		return
	}
	m.timer = nil
	callback := m.onExpire
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}
