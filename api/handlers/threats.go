package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinelshield/realtime/internal/envelope"
	"github.com/sentinelshield/realtime/internal/gateway"
	"github.com/sentinelshield/realtime/internal/model"
	"github.com/sentinelshield/realtime/internal/repository"
)

// ThreatHandler handles HTTP requests for threat event ingest and query.
type ThreatHandler struct {
	repo *repository.ThreatEventRepository
	hub  *gateway.Hub
	log  *zap.Logger
}

// NewThreatHandler creates a new ThreatHandler.
func NewThreatHandler(repo *repository.ThreatEventRepository, hub *gateway.Hub, log *zap.Logger) *ThreatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreatHandler{
		repo: repo,
		hub:  hub,
		log:  log,
	}
}

// Ingest handles POST /api/v1/threats - persists a threat event and
// broadcasts it to the caller's tenant.
func (h *ThreatHandler) Ingest(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	var req model.IngestThreatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	event := &model.ThreatEvent{
		ID:            uuid.New().String(),
		TenantID:      claims.TenantID,
		Timestamp:     time.Now().UTC(),
		SourceIP:      req.SourceIP,
		DestinationIP: req.DestinationIP,
		Severity:      req.Severity,
		RiskScore:     req.RiskScore,
		Action:        req.Action,
		Resource:      req.Resource,
		UserAgent:     req.UserAgent,
		IsBlocked:     req.IsBlocked,
		AIFlagged:     req.AIFlagged,
	}

	if err := h.repo.Create(c.Request.Context(), event); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store event: "+err.Error())
		return
	}

	env, err := envelope.NewEvent(envelope.TypeThreatDetected, event, time.Now())
	if err != nil {
		h.log.Error("failed to build threat envelope", zap.Error(err))
	} else if err := h.hub.BroadcastTenant(claims.TenantID, env); err != nil {
		h.log.Error("failed to broadcast threat event", zap.Error(err))
	}

	c.JSON(http.StatusCreated, event)
}

// List handles GET /api/v1/threats - lists recent threat events for the
// caller's tenant, newest first.
func (h *ThreatHandler) List(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := h.repo.ListByTenant(c.Request.Context(), claims.TenantID, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list events: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

// Get handles GET /api/v1/threats/:id - fetches one threat event.
func (h *ThreatHandler) Get(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	event, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			sendError(c, http.StatusNotFound, "EVENT_NOT_FOUND", "Event "+c.Param("id")+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get event: "+err.Error())
		return
	}
	if event.TenantID != claims.TenantID {
		sendError(c, http.StatusForbidden, "FORBIDDEN", "Access to event denied")
		return
	}
	c.JSON(http.StatusOK, event)
}

// RegisterRoutes registers the threat handler routes on a Gin router group.
func (h *ThreatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	threats := rg.Group("/threats")
	{
		threats.POST("", h.Ingest)
		threats.GET("", h.List)
		threats.GET("/:id", h.Get)
	}
}
