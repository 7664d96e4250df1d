package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelshield/realtime/internal/gateway"
	"github.com/sentinelshield/realtime/internal/model"
)

// WebSocketHandler handles realtime stream connections.
type WebSocketHandler struct {
	stream *gateway.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(stream *gateway.Handler) *WebSocketHandler {
	return &WebSocketHandler{stream: stream}
}

// Connect handles GET /api/v1/ws/:tenantId/:userId - authenticates the
// token query parameter and upgrades to a WebSocket. Authentication runs
// before the upgrade so failures still travel as HTTP statuses.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	tenantID := c.Param("tenantId")
	userID := c.Param("userId")
	if tenantID == "" || userID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant and user IDs are required")
		return
	}

	if err := h.stream.Authenticate(tenantID, userID, c.Query("token")); err != nil {
		if errors.Is(err, model.ErrForbidden) {
			sendError(c, http.StatusForbidden, "FORBIDDEN", "Token does not match the requested identity")
			return
		}
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing token")
		return
	}

	if err := h.stream.HandleConnection(c.Writer, c.Request, tenantID, userID); err != nil {
		// Upgrade failures are reported by the upgrader itself.
		return
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/:tenantId/:userId", h.Connect)
}
