package messages

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"

	// StatusNotFound is a query-time sentinel, never stored.
	StatusNotFound Status = "not_found"
)

// IsTerminal reports whether a message in this status will see no further
// transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is stored verbatim and treated as opaque everywhere past the
// request boundary.
type Payload struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

type Message struct {
	IdempotencyID string    `json:"idempotency_id" db:"idempotency_id"`
	CorrelationID string    `json:"correlation_id" db:"correlation_id"`
	Status        Status    `json:"status" db:"status"`
	Payload       Payload   `json:"payload" db:"payload"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type HistoryEntry struct {
	ID            int64     `json:"id" db:"id"`
	IdempotencyID string    `json:"idempotency_id" db:"idempotency_id"`
	CorrelationID string    `json:"correlation_id" db:"correlation_id"`
	Status        Status    `json:"status" db:"status"`
	ServiceName   string    `json:"service_name" db:"service_name"`
	EventID       string    `json:"event_id" db:"event_id"`
	ErrorMessage  string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type CreateMessageRequest struct {
	Content  string                 `json:"content" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

type CreateMessageResponse struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id"`
	IdempotencyID string `json:"idempotency_id"`
	Status        Status `json:"status"`
}

type HistoryView struct {
	Status    Status    `json:"status"`
	Service   string    `json:"service"`
	EventID   string    `json:"event_id"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusView is the read-only projection returned by the status endpoint.
// For an unknown id only ID and Status (not_found) are populated.
type StatusView struct {
	ID            string        `json:"id"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Status        Status        `json:"status"`
	CreatedAt     *time.Time    `json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`
	History       []HistoryView `json:"history,omitempty"`
}
