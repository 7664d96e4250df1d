package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sentinelshield/realtime/internal/gateway"
)

// AdminHandler handles administrative session control endpoints.
type AdminHandler struct {
	hub *gateway.Hub
	log *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(hub *gateway.Hub, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{hub: hub, log: log}
}

// RevokeSessionRequest represents the request body for revoking a
// user's realtime sessions.
type RevokeSessionRequest struct {
	Reason string `json:"reason"`
}

// RevokeSessionResponse reports how many connections were revoked.
type RevokeSessionResponse struct {
	UserID      string `json:"userId"`
	Reason      string `json:"reason"`
	Connections int    `json:"connections"`
}

// RevokeSession handles POST /api/v1/admin/revoke-session/:userId -
// notifies and closes every realtime connection of the user within the
// caller's tenant.
func (h *AdminHandler) RevokeSession(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	userID := c.Param("userId")
	if userID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "User ID is required")
		return
	}

	var req RevokeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "Session terminated by administrator"
	}

	n, err := h.hub.RevokeUser(claims.TenantID, userID, req.Reason)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke session: "+err.Error())
		return
	}

	h.log.Info("admin revoked user sessions",
		zap.String("tenant", claims.TenantID),
		zap.String("user", userID),
		zap.Int("connections", n))
	c.JSON(http.StatusOK, RevokeSessionResponse{
		UserID:      userID,
		Reason:      req.Reason,
		Connections: n,
	})
}

// RegisterRoutes registers the admin handler routes on a Gin router group.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	admin := rg.Group("/admin")
	{
		admin.POST("/revoke-session/:userId", h.RevokeSession)
	}
}
