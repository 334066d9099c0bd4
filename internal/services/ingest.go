package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/iamgideonidoko/beacon/internal/config"
	"github.com/iamgideonidoko/beacon/internal/models"
	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/event"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/validator"
)

// Counter names maintained by the ingest service.
const (
	MetricBatchesReceived = "batches_received"
	MetricEventsReceived  = "events_received"
	MetricEventsStored    = "events_stored"
	MetricEventsRejected  = "events_rejected"
	MetricStoreFailures   = "store_failures"
)

// AllMetrics lists every counter the service maintains.
var AllMetrics = []string{
	MetricBatchesReceived,
	MetricEventsReceived,
	MetricEventsStored,
	MetricEventsRejected,
	MetricStoreFailures,
}

type EventStore interface {
	InsertEvents(ctx context.Context, rows []models.EventRow) error
}

type Counters interface {
	IncrementMetric(ctx context.Context, metric string, delta int64) error
	GetMetrics(ctx context.Context, metrics ...string) (map[string]int64, error)
}

type IngestService struct {
	store    EventStore
	counters Counters
	config   *config.IngestConfig
	clock    clock.Clock
}

func NewIngestService(store EventStore, counters Counters, cfg *config.IngestConfig, clk clock.Clock) *IngestService {
	if clk == nil {
		clk = clock.Real()
	}
	return &IngestService{
		store:    store,
		counters: counters,
		config:   cfg,
		clock:    clk,
	}
}

// Ingest stores the valid events of a batch. Invalid events are
// rejected individually; the rest are written in one transaction.
func (s *IngestService) Ingest(ctx context.Context, batch event.Batch, ipAddress string, requestID uuid.UUID) (*models.IngestResponse, error) {
	now := s.clock.Now().UTC()
	log := logger.WithField("request_id", requestID.String())

	resp := &models.IngestResponse{RequestID: requestID.String()}
	rows := make([]models.EventRow, 0, len(batch.Batch))

	for i, ev := range batch.Batch {
		if err := validator.ValidateEvent(ev, now, s.config.MaxClockSkew); err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[fmt.Sprintf("batch[%d]", i)] = err.Error()
			resp.Rejected++
			continue
		}
		row, err := toRow(ev, batch.SentAt, now, ipAddress, requestID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	s.count(ctx, MetricBatchesReceived, 1)
	s.count(ctx, MetricEventsReceived, int64(len(batch.Batch)))
	s.count(ctx, MetricEventsRejected, int64(resp.Rejected))

	if err := s.store.InsertEvents(ctx, rows); err != nil {
		s.count(ctx, MetricStoreFailures, 1)
		return nil, fmt.Errorf("failed to store events: %w", err)
	}
	resp.Accepted = len(rows)
	s.count(ctx, MetricEventsStored, int64(len(rows)))

	if resp.Rejected > 0 {
		log.Warn("Rejected events in batch", map[string]any{
			"rejected": resp.Rejected,
			"accepted": resp.Accepted,
		})
	}
	return resp, nil
}

// Metrics reads the ingest counters.
func (s *IngestService) Metrics(ctx context.Context) (*models.MetricsSnapshot, error) {
	values, err := s.counters.GetMetrics(ctx, AllMetrics...)
	if err != nil {
		return nil, err
	}
	snapshot := &models.MetricsSnapshot{
		BatchesReceived: values[MetricBatchesReceived],
		EventsReceived:  values[MetricEventsReceived],
		EventsStored:    values[MetricEventsStored],
		EventsRejected:  values[MetricEventsRejected],
		StoreFailures:   values[MetricStoreFailures],
	}
	snapshot.RejectionRate = calculateRate(snapshot.EventsRejected, snapshot.EventsReceived)
	return snapshot, nil
}

func (s *IngestService) count(ctx context.Context, metric string, delta int64) {
	if delta == 0 || s.counters == nil {
		return
	}
	if err := s.counters.IncrementMetric(ctx, metric, delta); err != nil {
		logger.Warn("Failed to update metric", map[string]any{"metric": metric, "error": err.Error()})
	}
}

func toRow(ev event.Event, sentAt int64, receivedAt time.Time, ipAddress string, requestID uuid.UUID) (models.EventRow, error) {
	payload, err := jsonText(ev.Payload)
	if err != nil {
		return models.EventRow{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	userProperties, err := jsonText(ev.UserProperties)
	if err != nil {
		return models.EventRow{}, fmt.Errorf("failed to marshal user properties: %w", err)
	}
	metadata, err := json.Marshal(ev.ClientMetadata)
	if err != nil {
		return models.EventRow{}, fmt.Errorf("failed to marshal client metadata: %w", err)
	}

	return models.EventRow{
		ID:             uuid.New(),
		ProjectID:      ev.ProjectID,
		Type:           ev.Type,
		OccurredAt:     time.UnixMilli(ev.Timestamp).UTC(),
		QueuedAt:       optionalMillis(ev.QueuedAt),
		SentAt:         optionalMillis(sentAt),
		ReceivedAt:     receivedAt,
		SessionID:      ev.SessionID,
		DeviceID:       ev.DeviceID,
		Payload:        payload,
		UserProperties: userProperties,
		ClientMetadata: types.JSONText(metadata),
		IPAddress:      ipAddress,
		RequestID:      requestID,
	}, nil
}

func jsonText(m map[string]any) (types.JSONText, error) {
	if m == nil {
		return types.JSONText("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return types.JSONText(data), nil
}

func optionalMillis(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func calculateRate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0.0
	}
	return (float64(numerator) / float64(denominator)) * 100
}
