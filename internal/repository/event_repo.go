// Package repository provides data access for persisted threat events.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentinelshield/realtime/internal/model"
)

// ThreatEventRepository provides data access for threat events.
type ThreatEventRepository struct {
	db *sql.DB
}

// NewThreatEventRepository creates a new ThreatEventRepository.
func NewThreatEventRepository(db *sql.DB) *ThreatEventRepository {
	return &ThreatEventRepository{db: db}
}

// Create inserts a new threat event.
func (r *ThreatEventRepository) Create(ctx context.Context, event *model.ThreatEvent) error {
	query := `
		INSERT INTO threat_events (id, tenant_id, timestamp, source_ip, destination_ip, severity, risk_score, action, resource, user_agent, is_blocked, ai_flagged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.TenantID,
		event.Timestamp,
		event.SourceIP,
		event.DestinationIP,
		event.Severity,
		event.RiskScore,
		event.Action,
		event.Resource,
		event.UserAgent,
		event.IsBlocked,
		event.AIFlagged,
	)
	if err != nil {
		return fmt.Errorf("failed to create threat event: %w", err)
	}

	return nil
}

// GetByID retrieves a threat event by its ID.
func (r *ThreatEventRepository) GetByID(ctx context.Context, id string) (*model.ThreatEvent, error) {
	query := `
		SELECT id, tenant_id, timestamp, source_ip, destination_ip, severity, risk_score, action, resource, user_agent, is_blocked, ai_flagged
		FROM threat_events
		WHERE id = ?
	`

	event := &model.ThreatEvent{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.TenantID,
		&event.Timestamp,
		&event.SourceIP,
		&event.DestinationIP,
		&event.Severity,
		&event.RiskScore,
		&event.Action,
		&event.Resource,
		&event.UserAgent,
		&event.IsBlocked,
		&event.AIFlagged,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threat event: %w", err)
	}

	return event, nil
}

// ListByTenant returns a tenant's threat events, newest first, up to limit.
func (r *ThreatEventRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.ThreatEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, timestamp, source_ip, destination_ip, severity, risk_score, action, resource, user_agent, is_blocked, ai_flagged
		FROM threat_events
		WHERE tenant_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threat events: %w", err)
	}
	defer rows.Close()

	var events []*model.ThreatEvent
	for rows.Next() {
		event := &model.ThreatEvent{}
		if err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&event.Timestamp,
			&event.SourceIP,
			&event.DestinationIP,
			&event.Severity,
			&event.RiskScore,
			&event.Action,
			&event.Resource,
			&event.UserAgent,
			&event.IsBlocked,
			&event.AIFlagged,
		); err != nil {
			return nil, fmt.Errorf("failed to scan threat event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threat events: %w", err)
	}

	return events, nil
}

// CountByTenant returns the number of stored events for a tenant.
func (r *ThreatEventRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threat_events WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count threat events: %w", err)
	}
	return count, nil
}
