package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/iamgideonidoko/beacon/internal/middleware"
	"github.com/iamgideonidoko/beacon/internal/models"
	"github.com/iamgideonidoko/beacon/pkg/event"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/validator"
)

const healthTimeout = 2 * time.Second

// Ingester stores batches and reports ingest counters.
type Ingester interface {
	Ingest(ctx context.Context, batch event.Batch, ipAddress string, requestID uuid.UUID) (*models.IngestResponse, error)
	Metrics(ctx context.Context) (*models.MetricsSnapshot, error)
}

// Pinger is a dependency checked by GET /health.
type Pinger func(ctx context.Context) error

type Options struct {
	MaxBatchSize int
	// MaxBodyBytes bounds the decompressed request body.
	MaxBodyBytes int
	AnonymizeIP  bool
	// Dependencies maps a name to its health check.
	Dependencies map[string]Pinger
}

type Handler struct {
	ingest  Ingester
	schemas *validator.Schemas
	opts    Options
}

func NewHandler(ingest Ingester, schemas *validator.Schemas, opts Options) *Handler {
	return &Handler{
		ingest:  ingest,
		schemas: schemas,
		opts:    opts,
	}
}

// Register mounts the collector routes on app.
func (h *Handler) Register(app fiber.Router, ingestMiddleware ...fiber.Handler) {
	app.Get("/health", h.Health)
	app.Get("/metrics", h.Metrics)
	app.Post("/events", append(ingestMiddleware, h.Events)...)
}

// Events handles POST /events. The body is a batch envelope or a single
// event, optionally gzip encoded.
func (h *Handler) Events(c *fiber.Ctx) error {
	requestID := middleware.GetRequestID(c)
	log := logger.WithField("request_id", requestID.String())

	body, err := h.readBody(c)
	if err != nil {
		log.Warn("Failed to read request body", map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "Invalid request body",
			"request_id": requestID.String(),
		})
	}

	batch, err := h.schemas.ParseEnvelope(body, h.opts.MaxBatchSize)
	if err != nil {
		status := fiber.StatusBadRequest
		if errors.Is(err, validator.ErrBatchTooLarge) {
			status = fiber.StatusRequestEntityTooLarge
		}
		log.Warn("Request validation failed", map[string]any{"error": err.Error()})
		return c.Status(status).JSON(fiber.Map{
			"error":      err.Error(),
			"request_id": requestID.String(),
		})
	}

	ip := c.IP()
	if h.opts.AnonymizeIP {
		ip = middleware.AnonymizeIP(ip)
	}

	result, err := h.ingest.Ingest(c.Context(), batch, ip, requestID)
	if err != nil {
		log.Error("Ingest failed", map[string]any{
			"error":  err.Error(),
			"events": len(batch.Batch),
		})
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":      "Failed to store events",
			"request_id": requestID.String(),
		})
	}

	log.Debug("Batch ingested", map[string]any{
		"accepted": result.Accepted,
		"rejected": result.Rejected,
	})

	status := fiber.StatusAccepted
	if result.Accepted == 0 && result.Rejected > 0 {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(result)
}

func (h *Handler) readBody(c *fiber.Ctx) ([]byte, error) {
	raw := c.Request().Body()
	encoding := strings.ToLower(strings.TrimSpace(c.Get(fiber.HeaderContentEncoding)))
	switch encoding {
	case "", "identity":
		return raw, nil
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		var src io.Reader = reader
		if h.opts.MaxBodyBytes > 0 {
			src = io.LimitReader(reader, int64(h.opts.MaxBodyBytes)+1)
		}
		body, err := io.ReadAll(src)
		if err != nil {
			return nil, err
		}
		if h.opts.MaxBodyBytes > 0 && len(body) > h.opts.MaxBodyBytes {
			return nil, fmt.Errorf("decompressed body exceeds %d bytes", h.opts.MaxBodyBytes)
		}
		return body, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), healthTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.opts.Dependencies))
	healthy := true
	for name, ping := range h.opts.Dependencies {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", fiber.StatusOK
	if !healthy {
		status, code = "unhealthy", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"service": "beacon-collector",
		"checks":  checks,
	})
}

// Metrics handles GET /metrics.
func (h *Handler) Metrics(c *fiber.Ctx) error {
	snapshot, err := h.ingest.Metrics(c.Context())
	if err != nil {
		logger.Warn("Failed to read metrics", map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Metrics unavailable",
		})
	}
	return c.Status(fiber.StatusOK).JSON(snapshot)
}
