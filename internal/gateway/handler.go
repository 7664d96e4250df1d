package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentinelshield/realtime/internal/envelope"
	"github.com/sentinelshield/realtime/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// DefaultHeartbeatInterval is how often the gateway emits a JSON
	// heartbeat frame on every connection.
	DefaultHeartbeatInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Handler authenticates and upgrades WebSocket connections and runs
// their read/write pumps.
type Handler struct {
	hub               *Hub
	auth              *TokenAuthority
	heartbeatInterval time.Duration
	log               *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, auth *TokenAuthority, heartbeatInterval time.Duration, log *zap.Logger) *Handler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub:               hub,
		auth:              auth,
		heartbeatInterval: heartbeatInterval,
		log:               log,
	}
}

// Authenticate verifies the token and that its claims match the
// addressed tenant and user.
func (h *Handler) Authenticate(tenantID, userID, token string) error {
	if token == "" {
		return model.ErrUnauthorized
	}
	claims, err := h.auth.Verify(token)
	if err != nil {
		return model.ErrUnauthorized
	}
	if claims.TenantID != tenantID || claims.UserID != userID {
		return model.ErrForbidden
	}
	return nil
}

// HandleConnection upgrades an authenticated request and starts the
// pumps. Authentication must have happened before the upgrade so the
// failure can still travel as an HTTP status.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, tenantID, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(tenantID, userID, conn)
	h.hub.Register(client)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump consumes inbound frames. The gateway expects little from
// clients beyond the connection_established announcement; everything
// else is logged and dropped.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", zap.String("conn", client.ID), zap.Error(err))
			}
			return
		}

		env, err := envelope.Parse(raw)
		if err != nil {
			h.log.Warn("discarding malformed client frame", zap.String("conn", client.ID), zap.Error(err))
			continue
		}
		// Any inbound frame counts as liveness for the read deadline.
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))

		switch env.Type {
		case envelope.TypeConnectionEstablished:
			h.log.Info("connection announced",
				zap.String("conn", client.ID),
				zap.String("tenant", env.TenantID),
				zap.String("user", env.UserID))
		case envelope.TypeHeartbeat:
			// Client-side heartbeats are acceptable but unnecessary.
		default:
			h.log.Debug("ignoring client frame", zap.String("conn", client.ID), zap.String("type", string(env.Type)))
		}
	}
}

// writePump delivers queued envelopes and emits protocol pings plus the
// periodic JSON heartbeat frame.
func (h *Handler) writePump(client *Client) {
	pingTicker := time.NewTicker(pingPeriod)
	beatTicker := time.NewTicker(h.heartbeatInterval)
	defer func() {
		pingTicker.Stop()
		beatTicker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case data, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				msg := websocket.FormatCloseMessage(client.CloseCode(), "")
				client.Conn().WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if err := client.Conn().WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// Drain the backlog, one frame per message so client-side
			// JSON parsing sees whole envelopes.
			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-beatTicker.C:
			beat, _ := envelope.NewEvent(envelope.TypeHeartbeat, nil, time.Now())
			data, err := json.Marshal(beat)
			if err != nil {
				continue
			}
			client.Send(data)

		case <-pingTicker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
