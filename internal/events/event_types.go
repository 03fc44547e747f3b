package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/pharmacy-auth/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventVerificationCodeIssued EventType = "verification_code_issued"
	EventSessionStarted         EventType = "session_started"
	EventSessionEnded           EventType = "session_ended"
	EventOperatorAction         EventType = "operator_action"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, accountID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// VerificationCodeIssuedPayload carries a code to the delivery collaborator.
// Code is secret and must not be logged.
type VerificationCodeIssuedPayload struct {
	Email     string    `json:"email"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionPayload describes a session start or end.
type SessionPayload struct {
	TokenID string      `json:"token_id"`
	Role    domain.Role `json:"role"`
	Via     string      `json:"via,omitempty"`
}

// OperatorActionPayload audits an admin-key call.
type OperatorActionPayload struct {
	Action string `json:"action"`
	IP     string `json:"ip,omitempty"`
}
