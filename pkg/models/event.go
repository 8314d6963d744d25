package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeMessageCreated       = "message.created"
	EventTypeMessageStatusUpdated = "message.status.updated"
)

// Event is the contract shared by every service on the broker. The same
// logical body is carried on both transports; correlation_id, idempotency_id
// and event_type are additionally attached as message headers so routing
// never requires deserializing the body.
type Event struct {
	EventID       string                 `json:"event_id"`
	CorrelationID string                 `json:"correlation_id"`
	IdempotencyID string                 `json:"idempotency_id"`
	EventType     string                 `json:"event_type"`
	SourceService string                 `json:"source_service"`
	Timestamp     string                 `json:"timestamp"`
	Payload       map[string]interface{} `json:"payload"`
}

func NewEvent(eventType, correlationID, idempotencyID, sourceService string, payload map[string]interface{}) *Event {
	return &Event{
		EventID:       uuid.New().String(),
		CorrelationID: correlationID,
		IdempotencyID: idempotencyID,
		EventType:     eventType,
		SourceService: sourceService,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Payload:       payload,
	}
}

func (e *Event) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if e.CorrelationID == "" {
		return ErrMissingCorrelationID
	}
	if e.IdempotencyID == "" {
		return ErrMissingIdempotencyID
	}
	if e.EventType == "" {
		return ErrMissingEventType
	}
	if e.SourceService == "" {
		return ErrMissingSourceService
	}
	if e.Timestamp == "" {
		return ErrMissingTimestamp
	}
	return nil
}
