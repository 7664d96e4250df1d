package client

import "github.com/sentinelshield/realtime/internal/envelope"

// Snapshot is an immutable view of the Manager's state for consumers.
// No raw errors are surfaced; every failure mode degrades into these
// flags.
type Snapshot struct {
	State        State
	Connected    bool
	Reconnecting bool
	Attempts     int
	Latest       *envelope.Envelope
	Queued       int
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		State:        m.state,
		Connected:    m.state == StateConnected,
		Reconnecting: m.state == StateReconnecting,
		Queued:       len(m.outbound),
	}
	if m.latest != nil {
		latest := *m.latest
		snap.Latest = &latest
	}
	m.mu.Unlock()

	snap.Attempts = m.scheduler.Attempts()
	return snap
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the socket is live.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Reconnecting reports whether a retry is pending or in flight.
func (m *Manager) Reconnecting() bool {
	return m.scheduler.Reconnecting()
}

// Latest returns the most recently received envelope of any consumable
// type.
func (m *Manager) Latest() (envelope.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return envelope.Envelope{}, false
	}
	return *m.latest, true
}

// LatestOfType returns the most recent envelope when its type equals t.
func (m *Manager) LatestOfType(t envelope.Type) (envelope.Envelope, bool) {
	env, ok := m.Latest()
	if !ok || env.Type != t {
		return envelope.Envelope{}, false
	}
	return env, true
}

// Events returns all buffered events in receipt order.
func (m *Manager) Events() []envelope.Envelope {
	return m.events.Snapshot()
}

// MessagesOfType returns the buffered events of type t in receipt order.
func (m *Manager) MessagesOfType(t envelope.Type) []envelope.Envelope {
	return m.events.FilterByType(t)
}

// CountOfType returns the number of buffered events of type t.
func (m *Manager) CountOfType(t envelope.Type) int {
	return m.events.CountByType(t)
}

// QueuedOutbound returns the number of messages waiting in the outbound
// queue.
func (m *Manager) QueuedOutbound() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbound)
}
