// Package buffer provides the bounded replay buffer for received events.
package buffer

import (
	"sync"

	"github.com/sentinelshield/realtime/internal/envelope"
)

// DefaultCapacity bounds the replay buffer. It matches the per-user queue
// limit the gateway applies on its side; consumers that need more history
// use the REST listing endpoints instead.
const DefaultCapacity = 1000

// EventBuffer is a thread-safe, insertion-order-preserving buffer of
// received envelopes. When full, the oldest events are discarded to make
// room, so the buffer always holds the newest suffix of the stream.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []envelope.Envelope
	capacity int
}

// NewEventBuffer creates an EventBuffer holding at most capacity events.
// Non-positive capacities fall back to DefaultCapacity.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventBuffer{
		events:   make([]envelope.Envelope, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an event, evicting the oldest entries if the buffer is full.
func (b *EventBuffer) Append(env envelope.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.capacity {
		discard := len(b.events) - b.capacity + 1
		remaining := copy(b.events, b.events[discard:])
		b.events = b.events[:remaining]
	}
	b.events = append(b.events, env)
}

// Snapshot returns a copy of the buffered events in receipt order.
func (b *EventBuffer) Snapshot() []envelope.Envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]envelope.Envelope, len(b.events))
	copy(out, b.events)
	return out
}

// FilterByType returns the buffered events of the given type, in receipt
// order.
func (b *EventBuffer) FilterByType(t envelope.Type) []envelope.Envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []envelope.Envelope
	for _, env := range b.events {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// CountByType returns the number of buffered events of the given type.
func (b *EventBuffer) CountByType(t envelope.Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, env := range b.events {
		if env.Type == t {
			n++
		}
	}
	return n
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Cap returns the buffer capacity.
func (b *EventBuffer) Cap() int {
	return b.capacity
}

// Clear removes all buffered events.
func (b *EventBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = b.events[:0]
}
