package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// EventRow is one stored event. JSON columns hold the client maps as
// sent.
type EventRow struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	ProjectID      string         `db:"project_id" json:"project_id"`
	Type           string         `db:"type" json:"type"`
	OccurredAt     time.Time      `db:"occurred_at" json:"occurred_at"`
	QueuedAt       *time.Time     `db:"queued_at" json:"queued_at,omitempty"`
	SentAt         *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	ReceivedAt     time.Time      `db:"received_at" json:"received_at"`
	SessionID      string         `db:"session_id" json:"session_id"`
	DeviceID       string         `db:"device_id" json:"device_id"`
	Payload        types.JSONText `db:"payload" json:"payload"`
	UserProperties types.JSONText `db:"user_properties" json:"user_properties"`
	ClientMetadata types.JSONText `db:"client_metadata" json:"client_metadata"`
	IPAddress      string         `db:"ip_address" json:"ip_address"`
	RequestID      uuid.UUID      `db:"request_id" json:"request_id"`
}

// IngestResponse is returned by POST /events.
type IngestResponse struct {
	RequestID string            `json:"request_id"`
	Accepted  int               `json:"accepted"`
	Rejected  int               `json:"rejected"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// MetricsSnapshot is returned by GET /metrics.
type MetricsSnapshot struct {
	BatchesReceived int64   `json:"batches_received"`
	EventsReceived  int64   `json:"events_received"`
	EventsStored    int64   `json:"events_stored"`
	EventsRejected  int64   `json:"events_rejected"`
	StoreFailures   int64   `json:"store_failures"`
	RejectionRate   float64 `json:"rejection_rate"`
}
