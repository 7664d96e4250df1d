package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentinelshield/realtime/internal/envelope"
	"github.com/sentinelshield/realtime/internal/identity"
)

// fakeIdentity is an in-memory identity provider that counts logouts.
type fakeIdentity struct {
	mu      sync.Mutex
	ctx     identity.Context
	logouts int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{ctx: identity.Context{TenantID: "t1", UserID: "u1", Token: "abc"}}
}

func (f *fakeIdentity) Identity() identity.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx
}

func (f *fakeIdentity) Logout() {
	f.mu.Lock()
	f.logouts++
	f.ctx = identity.Context{}
	f.mu.Unlock()
}

func (f *fakeIdentity) clear() {
	f.mu.Lock()
	f.ctx = identity.Context{}
	f.mu.Unlock()
}

func (f *fakeIdentity) logoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// acceptingServer upgrades every request and hands the server side of
// each connection to the test through a channel.
func acceptingServer(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func wsHost(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		Host:                 wsHost(srv),
		HeartbeatTimeout:     5 * time.Second,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 5,
		BufferCapacity:       16,
	}
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", d, what)
}

func acceptConn(t *testing.T, conns chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept a connection")
		return nil
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

func TestConnectBuffersThreatAndAuditEvents(t *testing.T) {
	srv, conns := acceptingServer(t)
	ids := newFakeIdentity()
	m := New(testConfig(srv), ids, nil)
	defer m.Disconnect()

	m.Connect()
	conn := acceptConn(t, conns)
	defer conn.Close()

	waitFor(t, time.Second, "connected", m.Connected)

	sendFrame(t, conn, `{"type":"threat_detected","data":{"severity":"high"}}`)
	sendFrame(t, conn, `{"type":"audit_log","data":{"action":"login"}}`)
	sendFrame(t, conn, `{"type":"heartbeat"}`)

	waitFor(t, time.Second, "both events buffered", func() bool {
		return m.CountOfType(envelope.TypeThreatDetected) == 1 &&
			m.CountOfType(envelope.TypeAuditLog) == 1
	})

	if got := len(m.Events()); got != 2 {
		t.Errorf("buffered %d events, want 2", got)
	}
	latest, ok := m.Latest()
	if !ok || latest.Type != envelope.TypeAuditLog {
		t.Errorf("Latest = (%v, %v), want latest audit_log", latest.Type, ok)
	}
	if _, ok := m.LatestOfType(envelope.TypeThreatDetected); ok {
		t.Error("LatestOfType(threat_detected) matched, want miss after newer audit_log")
	}
	if got := m.CountOfType(envelope.TypeHeartbeat); got != 0 {
		t.Errorf("heartbeat frames buffered %d times, want 0", got)
	}
}

func TestMalformedFrameIsDiscardedWithoutClosing(t *testing.T) {
	srv, conns := acceptingServer(t)
	m := New(testConfig(srv), newFakeIdentity(), nil)
	defer m.Disconnect()

	m.Connect()
	conn := acceptConn(t, conns)
	defer conn.Close()
	waitFor(t, time.Second, "connected", m.Connected)

	sendFrame(t, conn, `this is not json`)
	sendFrame(t, conn, `{"no":"type field"}`)
	sendFrame(t, conn, `{"type":"threat_detected"}`)

	waitFor(t, time.Second, "valid frame delivered after garbage", func() bool {
		return m.CountOfType(envelope.TypeThreatDetected) == 1
	})
	if !m.Connected() {
		t.Error("connection dropped after malformed frames, want it kept open")
	}
}

func TestMalformedFramesDoNotResetHeartbeat(t *testing.T) {
	srv, conns := acceptingServer(t)
	cfg := testConfig(srv)
	cfg.HeartbeatTimeout = 150 * time.Millisecond
	m := New(cfg, newFakeIdentity(), nil)
	defer m.Disconnect()

	m.Connect()
	conn := acceptConn(t, conns)
	defer conn.Close()
	waitFor(t, time.Second, "connected", m.Connected)

	// Steady garbage is traffic but not liveness: the monitor must still
	// expire and force the socket closed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`))) junk`)); err != nil {
				return
			}
			time.Sleep(40 * time.Millisecond)
		}
	}()

	select {
	case <-closed:
		// Client force-closed the silent-but-noisy connection.
	case <-time.After(2 * time.Second):
		t.Fatal("connection survived on malformed frames alone")
	}
}

func TestHeartbeatFramesKeepConnectionAlive(t *testing.T) {
	srv, conns := acceptingServer(t)
	cfg := testConfig(srv)
	cfg.HeartbeatTimeout = 150 * time.Millisecond
	m := New(cfg, newFakeIdentity(), nil)
	defer m.Disconnect()

	m.Connect()
	conn := acceptConn(t, conns)
	defer conn.Close()
	waitFor(t, time.Second, "connected", m.Connected)

	// Frames every 50ms against a 150ms timeout: the monitor must keep
	// resetting and the connection must survive well past the timeout.
	stop := time.After(500 * time.Millisecond)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case <-tick.C:
			sendFrame(t, conn, `{"type":"heartbeat"}`)
		case <-stop:
			break loop
		}
	}

	if !m.Connected() {
		t.Error("connection dropped despite steady heartbeats")
	}
}

func TestHeartbeatTimeoutForcesReconnect(t *testing.T) {
	srv, conns := acceptingServer(t)
	cfg := testConfig(srv)
	cfg.HeartbeatTimeout = 80 * time.Millisecond
	m := New(cfg, newFakeIdentity(), nil)
	defer m.Disconnect()

	m.Connect()
	first := acceptConn(t, conns)
	defer first.Close()
	waitFor(t, time.Second, "connected", m.Connected)

	// The server stays silent, so the monitor force-closes the socket
	// and the manager dials again after the reconnect delay.
	second := acceptConn(t, conns)
	defer second.Close()
	waitFor(t, time.Second, "reconnected after silent peer", m.Connected)
}

func TestRetryExhaustionIsTerminal(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := New(testConfig(srv), newFakeIdentity(), nil)
	m.Connect()

	waitFor(t, 2*time.Second, "terminal closed state", func() bool {
		return m.State() == StateClosed
	})
	if m.Reconnecting() {
		t.Error("Reconnecting = true after exhaustion, want false")
	}
	if !m.scheduler.Exhausted() {
		t.Error("scheduler not exhausted after final failure")
	}
	// One initial dial plus five retries, then nothing.
	if got := dials.Load(); got != 6 {
		t.Errorf("dial attempts = %d, want 6", got)
	}
	time.Sleep(100 * time.Millisecond)
	if got := dials.Load(); got != 6 {
		t.Errorf("dials continued after exhaustion: %d", got)
	}
}

func TestAttemptCounterResetsOnSuccessfulOpen(t *testing.T) {
	var reqs atomic.Int32
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fail the first three handshakes, then accept.
		if reqs.Add(1) <= 3 {
			http.Error(w, "not yet", http.StatusServiceUnavailable)
			return
		}
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	defer srv.Close()

	m := New(testConfig(srv), newFakeIdentity(), nil)
	defer m.Disconnect()

	m.Connect()
	conn := acceptConn(t, conns)
	defer conn.Close()
	waitFor(t, 2*time.Second, "connected after retries", m.Connected)

	snap := m.Snapshot()
	if snap.Attempts != 0 {
		t.Errorf("Attempts = %d after successful open, want 0", snap.Attempts)
	}
	if snap.Reconnecting {
		t.Error("Reconnecting = true while connected")
	}
}

func TestSessionRevocationWinsOverReconnect(t *testing.T) {
	srv, conns := acceptingServer(t)
	ids := newFakeIdentity()
	var navigations atomic.Int32
	m := New(testConfig(srv), ids, func() { navigations.Add(1) })

	m.Connect()
	conn := acceptConn(t, conns)
	waitFor(t, time.Second, "connected", m.Connected)

	sendFrame(t, conn, `{"type":"session_revoked","data":{"reason":"admin action"},"timestamp":"2026-08-30T12:00:00Z"}`)
	// Abnormal close right behind the revocation: the revocation must
	// still win and no reconnect may be scheduled.
	conn.Close()

	waitFor(t, time.Second, "terminal closed state", func() bool {
		return m.State() == StateClosed
	})
	waitFor(t, time.Second, "logout ran", func() bool {
		return ids.logoutCount() == 1
	})
	waitFor(t, time.Second, "navigation ran", func() bool {
		return navigations.Load() == 1
	})

	if m.scheduler.Pending() {
		t.Error("retry still pending after revocation")
	}
	if m.monitor.Active() {
		t.Error("heartbeat monitor still armed after revocation")
	}

	// The latest message surfaces the revocation envelope.
	latest, ok := m.LatestOfType(envelope.TypeSessionRevoked)
	if !ok {
		t.Fatal("revocation envelope not surfaced as latest")
	}
	notice := envelope.DecodeRevocation(latest)
	if notice.Reason != "admin action" {
		t.Errorf("revocation reason = %q, want %q", notice.Reason, "admin action")
	}

	// Settled state: extra time must not produce a second logout.
	time.Sleep(100 * time.Millisecond)
	if got := ids.logoutCount(); got != 1 {
		t.Errorf("logout ran %d times, want exactly once", got)
	}
	if got := navigations.Load(); got != 1 {
		t.Errorf("navigate ran %d times, want exactly once", got)
	}
}

func TestSendTransmitsWhenConnected(t *testing.T) {
	srv, conns := acceptingServer(t)
	m := New(testConfig(srv), newFakeIdentity(), nil)
	defer m.Disconnect()

	m.Connect()
	conn := acceptConn(t, conns)
	defer conn.Close()
	waitFor(t, time.Second, "connected", m.Connected)

	env, err := envelope.NewEvent(envelope.TypeAuditLog, map[string]string{"action": "ack"}, time.Now())
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	m.Send(env)

	// The first client frame announces the connection; the audit event
	// follows it.
	deadline := time.Now().Add(time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("audit event never arrived at the server")
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("server read failed: %v", err)
		}
		got, perr := envelope.Parse(raw)
		if perr != nil {
			t.Fatalf("server received unparsable frame: %v", perr)
		}
		if got.Type == envelope.TypeAuditLog {
			break
		}
	}
	if got := m.QueuedOutbound(); got != 0 {
		t.Errorf("QueuedOutbound = %d after connected send, want 0", got)
	}
}

func TestSendQueuesWhileDisconnected(t *testing.T) {
	srv, _ := acceptingServer(t)
	cfg := testConfig(srv)
	cfg.OutboundQueueLimit = 2
	m := New(cfg, newFakeIdentity(), nil)

	for i := 0; i < 3; i++ {
		env, err := envelope.NewEvent(envelope.TypeAuditLog, map[string]int{"n": i}, time.Now())
		if err != nil {
			t.Fatalf("NewEvent failed: %v", err)
		}
		m.Send(env)
	}

	// Never an error, and overflow drops the newest submission.
	if got := m.QueuedOutbound(); got != 2 {
		t.Errorf("QueuedOutbound = %d, want 2 (limit)", got)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %v after disconnected sends, want idle", m.State())
	}
}

func TestConnectSkippedWithoutIdentity(t *testing.T) {
	srv, _ := acceptingServer(t)
	ids := newFakeIdentity()
	ids.clear()
	m := New(testConfig(srv), ids, nil)

	m.Connect()
	time.Sleep(50 * time.Millisecond)
	if m.State() != StateIdle {
		t.Errorf("state = %v, want idle when identity is incomplete", m.State())
	}
}

func TestRetryAbortsWhenIdentityClearedBeforeFire(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ids := newFakeIdentity()
	cfg := testConfig(srv)
	cfg.ReconnectDelay = 60 * time.Millisecond
	m := New(cfg, ids, nil)

	m.Connect()
	waitFor(t, time.Second, "reconnecting", m.Reconnecting)

	// Token revoked locally before the timer fires: the attempt must be
	// abandoned silently.
	ids.clear()
	waitFor(t, time.Second, "terminal closed state", func() bool {
		return m.State() == StateClosed
	})
	if got := dials.Load(); got != 1 {
		t.Errorf("dial attempts = %d, want only the initial one", got)
	}
	if m.Reconnecting() {
		t.Error("Reconnecting = true after identity-cleared abort")
	}
}

func TestDisconnectCancelsPendingWork(t *testing.T) {
	srv, conns := acceptingServer(t)
	m := New(testConfig(srv), newFakeIdentity(), nil)

	m.Connect()
	conn := acceptConn(t, conns)
	waitFor(t, time.Second, "connected", m.Connected)

	// Abnormal server close arms a retry; Disconnect must disarm it.
	conn.Close()
	waitFor(t, time.Second, "reconnecting", m.Reconnecting)

	m.Disconnect()
	if m.State() != StateClosed {
		t.Errorf("state = %v after Disconnect, want closed", m.State())
	}
	if m.scheduler.Pending() {
		t.Error("retry timer still armed after Disconnect")
	}
	if m.monitor.Active() {
		t.Error("heartbeat monitor still armed after Disconnect")
	}

	// No redial after the delay would have elapsed.
	select {
	case <-conns:
		t.Error("manager dialed again after Disconnect")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconnectSequenceAfterAbnormalCloses(t *testing.T) {
	srv, conns := acceptingServer(t)
	m := New(testConfig(srv), newFakeIdentity(), nil)
	defer m.Disconnect()

	m.Connect()

	// Drop the first three established connections without a close
	// frame. Each drop consumes one retry; the fourth connection holds.
	for i := 0; i < 3; i++ {
		c := acceptConn(t, conns)
		waitFor(t, time.Second, "connected", m.Connected)
		c.Close()
		waitFor(t, time.Second, "reconnecting", m.Reconnecting)
	}

	final := acceptConn(t, conns)
	defer final.Close()
	waitFor(t, time.Second, "connected for good", m.Connected)

	snap := m.Snapshot()
	if snap.Attempts != 0 {
		t.Errorf("Attempts = %d after successful reopen, want 0", snap.Attempts)
	}
	if snap.State != StateConnected {
		t.Errorf("state = %v, want connected", snap.State)
	}
}
