// Package envelope defines the JSON message envelope exchanged with the
// event gateway and the validation applied to untrusted inbound frames.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type identifies the kind of message carried by an envelope.
type Type string

const (
	// Server -> Client message types
	TypeThreatDetected Type = "threat_detected"
	TypeSessionRevoked Type = "session_revoked"
	TypeAuditLog       Type = "audit_log"
	TypeHeartbeat      Type = "heartbeat"

	// Client -> Server message types
	TypeConnectionEstablished Type = "connection_established"
)

// Known reports whether t is a message type this client understands.
func (t Type) Known() bool {
	switch t {
	case TypeThreatDetected, TypeSessionRevoked, TypeAuditLog, TypeHeartbeat, TypeConnectionEstablished:
		return true
	}
	return false
}

// Buffered reports whether envelopes of this type are retained in the
// replay buffer. Heartbeat and revocation frames never enter it.
func (t Type) Buffered() bool {
	return t == TypeThreatDetected || t == TypeAuditLog
}

// Envelope is the wire shape of every message. TenantID and UserID are
// only populated on the connection_established frame the client sends
// right after a successful open.
type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	TenantID  string          `json:"tenantId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
}

// ErrMissingType is returned when a frame parses as JSON but carries no
// usable type discriminator.
var ErrMissingType = errors.New("envelope has no type")

// Parse validates an untrusted inbound frame. It fails when the frame is
// not a JSON object or its type field is absent or empty; unknown but
// well-formed types parse successfully.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// NewConnectionEstablished builds the first outbound frame after a
// successful open, correlating the socket to an identity.
func NewConnectionEstablished(tenantID, userID string, now time.Time) Envelope {
	return Envelope{
		Type:      TypeConnectionEstablished,
		TenantID:  tenantID,
		UserID:    userID,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// NewEvent wraps an already-serializable payload into an envelope of the
// given type with a current timestamp.
func NewEvent(t Type, payload any, now time.Time) (Envelope, error) {
	env := Envelope{
		Type:      t,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Data = data
	}
	return env, nil
}

// RevocationNotice is the payload of a session_revoked envelope.
type RevocationNotice struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DecodeRevocation extracts the revocation payload from a session_revoked
// envelope. A missing or malformed payload yields an empty notice rather
// than an error; the revocation itself is authoritative either way.
func DecodeRevocation(env Envelope) RevocationNotice {
	var notice RevocationNotice
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &notice)
	}
	if notice.Timestamp == "" {
		notice.Timestamp = env.Timestamp
	}
	return notice
}
