// Package event holds the records exchanged between the tracker, the
// delivery queue and the collector.
package event

import "time"

// ClientMetadata describes the emitting client at the time of tracking.
type ClientMetadata struct {
	UserAgent             string  `json:"user_agent"`
	Language              string  `json:"language"`
	Platform              string  `json:"platform"`
	ScreenResolution      string  `json:"screen_resolution"`
	Viewport              string  `json:"viewport"`
	Timezone              string  `json:"timezone"`
	FingerprintConfidence float64 `json:"fingerprint_confidence"`
}

// Event is a tracked event as queued and sent on the wire. Timestamps
// are epoch milliseconds.
type Event struct {
	ProjectID      string         `json:"project_id"`
	Type           string         `json:"type"`
	Timestamp      int64          `json:"timestamp"`
	SessionID      string         `json:"session_id"`
	DeviceID       string         `json:"device_id"`
	Payload        map[string]any `json:"payload"`
	UserProperties map[string]any `json:"user_properties"`
	ClientMetadata ClientMetadata `json:"client_metadata"`
	QueuedAt       int64          `json:"queued_at"`
}

// Batch is the body of one delivery request.
type Batch struct {
	Batch     []Event `json:"batch"`
	BatchSize int     `json:"batch_size"`
	SentAt    int64   `json:"sent_at"`
}

func NewBatch(events []Event, sentAt time.Time) Batch {
	return Batch{
		Batch:     events,
		BatchSize: len(events),
		SentAt:    Millis(sentAt),
	}
}

func Millis(t time.Time) int64 { return t.UnixMilli() }
