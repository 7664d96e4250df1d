package model

import "time"

// Severity classifies a threat event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the recognized severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ThreatEvent is a security finding streamed to dashboard clients and
// persisted by the gateway.
type ThreatEvent struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"organization_id"`
	Timestamp     time.Time `json:"timestamp"`
	SourceIP      string    `json:"source_ip"`
	DestinationIP string    `json:"destination_ip"`
	Severity      Severity  `json:"severity"`
	RiskScore     float64   `json:"risk_score"`
	Action        string    `json:"action"`
	Resource      string    `json:"resource"`
	UserAgent     string    `json:"user_agent"`
	IsBlocked     bool      `json:"is_blocked"`
	AIFlagged     bool      `json:"ai_flagged"`
}

// AuditEvent records an administrative or security-relevant action.
type AuditEvent struct {
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	UserID       string         `json:"user_id,omitempty"`
	TenantID     string         `json:"organization_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Details      map[string]any `json:"details,omitempty"`
}

// IngestThreatRequest is the body of POST /api/v1/threats. The gateway
// assigns the ID and timestamp when absent.
type IngestThreatRequest struct {
	SourceIP      string   `json:"source_ip" binding:"required"`
	DestinationIP string   `json:"destination_ip"`
	Severity      Severity `json:"severity" binding:"required"`
	RiskScore     float64  `json:"risk_score"`
	Action        string   `json:"action"`
	Resource      string   `json:"resource"`
	UserAgent     string   `json:"user_agent"`
	IsBlocked     bool     `json:"is_blocked"`
	AIFlagged     bool     `json:"ai_flagged"`
}

// Validate validates the ingest request.
func (r *IngestThreatRequest) Validate() error {
	if r.SourceIP == "" {
		return ErrSourceIPRequired
	}
	if !r.Severity.Valid() {
		return ErrInvalidSeverity
	}
	return nil
}
