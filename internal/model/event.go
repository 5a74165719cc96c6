package model

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRequestCreated   EventType = "request.created"
	EventRequestUpdated   EventType = "request.updated"
	EventRequestDeleted   EventType = "request.deleted"
	EventRequestDecided   EventType = "request.decided"
	EventReceiptSubmitted EventType = "request.receipt_submitted"
	EventAdvisoryUpdated  EventType = "request.advisory_updated"
)

// RequestEvent is pushed to subscribers after a change has been committed.
type RequestEvent struct {
	Type       EventType   `json:"event"`
	RequestID  uuid.UUID   `json:"request_id"`
	OwnerID    string      `json:"-"`
	Data       interface{} `json:"data,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
