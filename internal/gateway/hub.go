// Package gateway implements the server side of the realtime threat
// stream: an authenticated WebSocket endpoint with per-tenant broadcast,
// periodic heartbeat frames, and session revocation.
package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentinelshield/realtime/internal/envelope"
)

// Client represents one WebSocket connection scoped to a tenant and
// user. A single user may hold several connections (tabs, devices), each
// tracked separately.
type Client struct {
	ID       string
	TenantID string
	UserID   string

	conn      *websocket.Conn
	send      chan []byte
	mu        sync.Mutex
	closed    bool
	closeCode int
}

// NewClient creates a client for an upgraded connection.
func NewClient(tenantID, userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, 256),
		closeCode: websocket.CloseNormalClosure,
	}
}

// Send queues data for delivery. A client whose buffer is full is closed;
// a slow dashboard must not stall the broadcast path.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// Close closes the client's send channel, which makes the write pump
// emit a close frame and exit.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// CloseWithCode closes the client, sending the given close code on the
// wire. Used for policy-violation closes after a revocation.
func (c *Client) CloseWithCode(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closeCode = code
	}
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed reports whether the client has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel consumed by the write pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// CloseCode returns the close code the write pump should emit.
func (c *Client) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Hub tracks the connected clients of all tenants and routes envelopes
// to them with tenant isolation.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	log     *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		log:     log,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.log.Info("websocket connected",
		zap.String("conn", client.ID),
		zap.String("tenant", client.TenantID),
		zap.String("user", client.UserID))
}

// Unregister removes a client and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
	h.log.Info("websocket disconnected",
		zap.String("conn", client.ID),
		zap.String("tenant", client.TenantID),
		zap.String("user", client.UserID))
}

// BroadcastTenant delivers env to every connection of a tenant.
func (h *Hub) BroadcastTenant(tenantID string, env envelope.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.TenantID == tenantID {
			client.Send(data)
		}
	}
	return nil
}

// SendUser delivers env to every connection of one user within a tenant.
func (h *Hub) SendUser(tenantID, userID string, env envelope.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.TenantID == tenantID && client.UserID == userID {
			client.Send(data)
		}
	}
	return nil
}

// RevokeUser sends a session_revoked envelope to every connection of the
// user, then closes each with a policy-violation code. The notice goes
// out first so the client can surface the reason before the socket dies.
func (h *Hub) RevokeUser(tenantID, userID, reason string) (int, error) {
	env, err := envelope.NewEvent(envelope.TypeSessionRevoked, envelope.RevocationNotice{
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, time.Now())
	if err != nil {
		return 0, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	var targets []*Client
	for client := range h.clients {
		if client.TenantID == tenantID && client.UserID == userID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.Send(data)
		client.CloseWithCode(websocket.ClosePolicyViolation)
	}

	h.log.Warn("session revoked",
		zap.String("tenant", tenantID),
		zap.String("user", userID),
		zap.String("reason", reason),
		zap.Int("connections", len(targets)))
	return len(targets), nil
}

// CountTenant returns the number of connections for a tenant.
func (h *Hub) CountTenant(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client.TenantID == tenantID {
			n++
		}
	}
	return n
}

// Close closes every client connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
