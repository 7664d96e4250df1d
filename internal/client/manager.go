// Package client implements the resilient realtime event client for the
// SentinelShield dashboard: it maintains a long-lived WebSocket to the
// event gateway, detects silent failures, reconnects with bounded
// retries, buffers events for consumers, and enforces server-issued
// session revocation.
package client

import (
	"encoding/json"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentinelshield/realtime/internal/buffer"
	"github.com/sentinelshield/realtime/internal/envelope"
	"github.com/sentinelshield/realtime/internal/heartbeat"
	"github.com/sentinelshield/realtime/internal/identity"
	"github.com/sentinelshield/realtime/internal/retry"
)

// State is the connection lifecycle state owned by the Manager.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

const (
	// wsPath is the gateway WebSocket mount point; tenant and user
	// segments are appended per connection.
	wsPath = "/api/v1/ws"

	// DefaultOutboundQueueLimit bounds the queue of messages submitted
	// while disconnected. Overflow drops the new message.
	DefaultOutboundQueueLimit = 1000

	// closeWriteWait is how long a close frame write may take.
	closeWriteWait = time.Second
)

// Config holds the tunables of a Manager. Zero values fall back to the
// production defaults.
type Config struct {
	// Host is the gateway host[:port].
	Host string

	// Secure selects wss over ws, mirroring the transport security of
	// the hosting page.
	Secure bool

	HeartbeatTimeout     time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	BufferCapacity       int
	OutboundQueueLimit   int

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Logger defaults to zap.NewNop.
	Logger *zap.Logger
}

// Manager owns the socket, its lifecycle, and all derived state. One
// Manager is created per active session and persists across UI
// re-renders; it is torn down only by Disconnect or a session
// revocation.
//
// All state lives behind one mutex and is mutated only by the named
// transition methods below. Timer and read-loop callbacks re-check the
// connection generation on entry, so a late event for a socket the
// Manager no longer considers current is ignored.
type Manager struct {
	host       string
	secure     bool
	dialer     *websocket.Dialer
	log        *zap.Logger
	ids        identity.Provider
	navigate   func()
	queueLimit int

	monitor   *heartbeat.Monitor
	scheduler *retry.Scheduler
	events    *buffer.EventBuffer

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	gen      uint64
	latest   *envelope.Envelope
	outbound []envelope.Envelope
	revoked  bool
}

// New creates a Manager. ids supplies the identity context and the
// credential store's logout operation; navigate redirects to the login
// surface after a revocation. Both are injected so the core logic is
// testable without real collaborators.
func New(cfg Config, ids identity.Provider, navigate func()) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OutboundQueueLimit <= 0 {
		cfg.OutboundQueueLimit = DefaultOutboundQueueLimit
	}

	m := &Manager{
		host:       cfg.Host,
		secure:     cfg.Secure,
		dialer:     cfg.Dialer,
		log:        cfg.Logger,
		ids:        ids,
		navigate:   navigate,
		queueLimit: cfg.OutboundQueueLimit,
		scheduler:  retry.New(cfg.ReconnectDelay, cfg.MaxReconnectAttempts),
		events:     buffer.NewEventBuffer(cfg.BufferCapacity),
		state:      StateIdle,
	}
	m.monitor = heartbeat.New(cfg.HeartbeatTimeout, m.heartbeatExpired)
	return m
}

// Connect opens a connection using the current identity context. It is a
// no-op when the identity is incomplete or a live connection already
// exists. Connect returns immediately; completion is observed through
// the state surface, never through an error.
func (m *Manager) Connect() {
	ident := m.ids.Identity()

	m.mu.Lock()
	if !ident.Valid() {
		m.mu.Unlock()
		m.log.Debug("connect skipped: identity context incomplete")
		return
	}
	if m.state == StateConnected && m.conn != nil {
		m.mu.Unlock()
		return
	}
	m.revoked = false
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen, ident)
}

// Send transmits env immediately when connected; otherwise the message
// is appended to the outbound queue. It never fails the caller.
//
// The queue is not flushed automatically on reconnect: queued sends are
// best-effort and may be stale by the time the connection returns, so
// callers re-send current state instead. QueuedOutbound exposes the
// backlog.
func (m *Manager) Send(env envelope.Envelope) {
	m.mu.Lock()
	if m.state == StateConnected && m.conn != nil {
		data, err := json.Marshal(env)
		if err != nil {
			m.mu.Unlock()
			m.log.Error("dropping unserializable outbound message", zap.Error(err))
			return
		}
		err = m.conn.WriteMessage(websocket.TextMessage, data)
		m.mu.Unlock()
		if err != nil {
			// The read loop observes the failure too and drives recovery.
			m.log.Warn("outbound write failed", zap.Error(err))
		}
		return
	}

	if len(m.outbound) >= m.queueLimit {
		m.mu.Unlock()
		m.log.Warn("outbound queue full, dropping message",
			zap.String("type", string(env.Type)),
			zap.Int("limit", m.queueLimit))
		return
	}
	m.outbound = append(m.outbound, env)
	m.mu.Unlock()
}

// Disconnect permanently stops the client: it cancels any pending
// reconnection, stops the heartbeat monitor, closes the socket with a
// normal-closure code, and settles in the terminal Closed state. This is
// the only caller-side path that stops reconnection for good.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.scheduler.Cancel()
	m.monitor.Stop()
	m.gen++
	conn := m.conn
	m.conn = nil
	m.outbound = nil
	m.state = StateClosed
	m.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		conn.Close()
	}
	m.log.Info("client disconnected")
}

// dial performs one asynchronous connection attempt for generation gen.
func (m *Manager) dial(gen uint64, ident identity.Context) {
	u := url.URL{
		Scheme: "ws",
		Host:   m.host,
		Path:   path.Join(wsPath, ident.TenantID, ident.UserID),
	}
	if m.secure {
		u.Scheme = "wss"
	}
	u.RawQuery = url.Values{"token": {ident.Token}}.Encode()

	conn, _, err := m.dialer.Dial(u.String(), nil)
	if err != nil {
		// Construction failures never propagate; they degrade into the
		// ordinary abnormal-close recovery path.
		m.log.Warn("dial failed", zap.String("host", m.host), zap.Error(err))
		m.connectionLost(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// Superseded while dialing (Disconnect or a newer Connect).
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateConnected
	m.scheduler.Reset()
	m.monitor.Reset()

	hello := envelope.NewConnectionEstablished(ident.TenantID, ident.UserID, time.Now())
	data, _ := json.Marshal(hello)
	werr := conn.WriteMessage(websocket.TextMessage, data)
	m.mu.Unlock()

	if werr != nil {
		m.log.Warn("failed to announce connection", zap.Error(werr))
	} else {
		m.log.Info("connected", zap.String("tenant", ident.TenantID), zap.String("user", ident.UserID))
	}

	go m.readLoop(conn, gen)
}

// readLoop pumps inbound frames for one connection generation.
func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, err)
			return
		}

		env, perr := envelope.Parse(raw)
		if perr != nil {
			// Malformed frames are not fatal: log, discard, stay open.
			// The heartbeat timer is deliberately not reset.
			m.log.Warn("discarding malformed frame", zap.Error(perr))
			continue
		}
		m.handleFrame(gen, env)
	}
}

// handleFrame classifies one validated inbound envelope. Every parsed
// frame is a liveness signal, so the heartbeat monitor resets before
// dispatch.
func (m *Manager) handleFrame(gen uint64, env envelope.Envelope) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.monitor.Reset()

	switch env.Type {
	case envelope.TypeThreatDetected, envelope.TypeAuditLog:
		e := env
		m.latest = &e
		m.events.Append(env)
		m.mu.Unlock()

	case envelope.TypeSessionRevoked:
		e := env
		m.latest = &e
		m.mu.Unlock()
		m.revokeSession(gen, env)

	case envelope.TypeHeartbeat:
		m.mu.Unlock()

	default:
		m.mu.Unlock()
		m.log.Warn("ignoring unknown message type", zap.String("type", string(env.Type)))
	}
}

// revokeSession enforces a server-issued revocation: terminal teardown,
// credential store logout, navigation to the login surface. It wins any
// race with a concurrently scheduled reconnection and runs its side
// effects at most once.
func (m *Manager) revokeSession(gen uint64, env envelope.Envelope) {
	notice := envelope.DecodeRevocation(env)

	m.mu.Lock()
	if gen != m.gen || m.revoked {
		m.mu.Unlock()
		return
	}
	m.revoked = true
	m.scheduler.Cancel()
	m.monitor.Stop()
	m.gen++
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	m.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session revoked")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		conn.Close()
	}

	m.log.Warn("session revoked by server", zap.String("reason", notice.Reason))
	m.ids.Logout()
	if m.navigate != nil {
		m.navigate()
	}
}

// connectionLost handles the close of the current connection, however it
// happened. With a valid identity and attempts remaining it arms one
// retry; otherwise the state is terminal.
func (m *Manager) connectionLost(gen uint64, cause error) {
	ident := m.ids.Identity()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.monitor.Stop()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}

	if ident.Valid() && m.scheduler.Schedule(m.retryNow) {
		m.state = StateReconnecting
		attempt := m.scheduler.Attempts()
		m.mu.Unlock()
		m.log.Info("connection lost, retry scheduled",
			zap.Error(cause),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", m.scheduler.MaxAttempts()))
		return
	}

	m.state = StateClosed
	m.mu.Unlock()
	m.log.Warn("connection closed, not retrying", zap.Error(cause))
}

// retryNow runs when the reconnect delay elapses. Identity validity is
// re-checked at fire time: a cleared token aborts the attempt silently
// instead of opening a doomed connection.
func (m *Manager) retryNow() {
	ident := m.ids.Identity()

	m.mu.Lock()
	if m.state != StateReconnecting {
		// Disconnect or revocation raced the timer.
		m.mu.Unlock()
		return
	}
	if !ident.Valid() {
		m.scheduler.Cancel()
		m.state = StateClosed
		m.mu.Unlock()
		m.log.Info("reconnect aborted: identity context cleared")
		return
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen, ident)
}

// heartbeatExpired force-closes a connection that has gone silent. The
// abrupt close surfaces to the peer as an abnormal closure and feeds the
// ordinary recovery path through the read loop.
func (m *Manager) heartbeatExpired() {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	timeout := m.monitor.Timeout()
	m.mu.Unlock()

	m.log.Warn("heartbeat timeout, force closing connection",
		zap.Duration("silence", timeout))
	conn.Close()
}
