// Package tracker turns application calls into queued events. It
// resolves the session, attaches the device fingerprint and client
// metadata, applies the client-side filters and hands the event to
// the delivery queue.
package tracker

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/event"
	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/storage"
)

const (
	EventIdentify           = "identify"
	EventSessionStarted     = "session_started"
	EventFingerprintChanged = "fingerprint_changed"

	DefaultUserIDKey           = "user_id"
	DefaultSessionTimeout      = 30 * time.Minute
	DefaultSimilarityThreshold = 0.75
)

// Sender accepts events for delivery. *queue.Queue implements it.
type Sender interface {
	Send(ev event.Event)
}

// FingerprintSource computes the device fingerprint.
// *fingerprint.Fingerprinter implements it.
type FingerprintSource interface {
	GetFingerprint(ctx context.Context) fingerprint.DeviceFingerprint
}

type Config struct {
	ProjectID      string
	SessionTimeout time.Duration
	EventFilters   EventFilters
	// MaxEventsPerPage caps the events one tracker emits. Zero means
	// no cap.
	MaxEventsPerPage    int
	AllowedDomains      []string
	BlockedDomains      []string
	UserIDKey           string
	Debug               bool
	SimilarityThreshold float64
	Weights             fingerprint.Weights
}

type Tracker struct {
	cfg         Config
	sender      Sender
	fingerprint FingerprintSource
	env         fingerprint.Environment
	sessions    storage.Storage
	clock       clock.Clock
	log         *logger.Logger
	similarity  *fingerprint.Calculator

	sessionMu sync.Mutex

	fpMu   sync.Mutex
	device *fingerprint.DeviceFingerprint
	host   fingerprint.HostInfo

	countMu sync.Mutex
	emitted int
}

type Option func(*Tracker)

func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// New wires a tracker. env supplies client metadata and may be nil.
func New(cfg Config, sender Sender, fp FingerprintSource, env fingerprint.Environment, sessions storage.Storage, options ...Option) *Tracker {
	if cfg.UserIDKey == "" {
		cfg.UserIDKey = DefaultUserIDKey
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Weights == (fingerprint.Weights{}) {
		cfg.Weights = fingerprint.DefaultWeights
	}

	t := &Tracker{
		cfg:         cfg,
		sender:      sender,
		fingerprint: fp,
		env:         env,
		sessions:    sessions,
		clock:       clock.Real(),
		log:         logger.Default(),
		similarity:  fingerprint.NewCalculator(cfg.Weights),
	}
	for _, o := range options {
		o(t)
	}
	t.log = t.log.WithField("component", "tracker")
	return t
}

// Track stamps and enqueues one event. Events rejected by the filters
// or the per-tracker cap are dropped silently.
func (t *Tracker) Track(ctx context.Context, eventType string, userProperties, payload map[string]any) {
	if !t.cfg.EventFilters.allows(eventType) {
		t.log.Debug("Event filtered by type", map[string]any{"type": eventType})
		return
	}
	if !t.domainAllowed(payload) {
		t.log.Debug("Event filtered by domain", map[string]any{"type": eventType})
		return
	}
	if !t.reserve() {
		t.log.Debug("Event cap reached", map[string]any{"type": eventType, "max": t.cfg.MaxEventsPerPage})
		return
	}

	sessionID, _ := t.sessionID(ctx)
	t.emit(ctx, eventType, sessionID, userProperties, payload)
}

func (t *Tracker) emit(ctx context.Context, eventType, sessionID string, userProperties, payload map[string]any) {
	device, host := t.identity(ctx)

	ev := event.Event{
		ProjectID:      t.cfg.ProjectID,
		Type:           eventType,
		Timestamp:      event.Millis(t.clock.Now()),
		SessionID:      sessionID,
		DeviceID:       device.DeviceID,
		Payload:        cloneMap(payload),
		UserProperties: cloneMap(userProperties),
		ClientMetadata: event.ClientMetadata{
			UserAgent:             host.UserAgent,
			Language:              host.Language,
			Platform:              host.Platform,
			ScreenResolution:      host.Screen.String(),
			Viewport:              host.Viewport.String(),
			Timezone:              host.Timezone,
			FingerprintConfidence: device.Confidence,
		},
	}

	if t.cfg.Debug {
		t.log.Debug("Tracking event", map[string]any{
			"type":       ev.Type,
			"session_id": ev.SessionID,
			"device_id":  ev.DeviceID,
		})
	}
	t.sender.Send(ev)
}

// Identify tracks an "identify" event carrying the user id under the
// configured key, with traits as the payload.
func (t *Tracker) Identify(ctx context.Context, userID string, traits map[string]any) {
	t.Track(ctx, EventIdentify, map[string]any{t.cfg.UserIDKey: userID}, traits)
}

// Start resolves the session and, when a new one began, emits
// session_started describing the host.
func (t *Tracker) Start(ctx context.Context) {
	sessionID, started := t.sessionID(ctx)
	if !started {
		return
	}
	_, host := t.identity(ctx)
	t.Track(ctx, EventSessionStarted, nil, map[string]any{
		"sessionId":        sessionID,
		"timestamp":        event.Millis(t.clock.Now()),
		"userAgent":        host.UserAgent,
		"screenResolution": host.Screen.String(),
		"viewport":         host.Viewport.String(),
		"timezone":         host.Timezone,
	})
}

// DeviceFingerprint returns the cached fingerprint, computing it on
// first use.
func (t *Tracker) DeviceFingerprint(ctx context.Context) fingerprint.DeviceFingerprint {
	device, _ := t.identity(ctx)
	return device
}

// RefreshFingerprint recomputes the fingerprint and replaces the cached
// one. When the new fingerprint is less similar to the old one than the
// configured threshold, a fingerprint_changed event is emitted.
func (t *Tracker) RefreshFingerprint(ctx context.Context) fingerprint.DeviceFingerprint {
	t.fpMu.Lock()
	previous := t.device
	next := t.fingerprint.GetFingerprint(ctx)
	t.device = &next
	if t.env != nil {
		t.host = t.env.Describe(ctx)
	}
	t.fpMu.Unlock()

	if previous == nil || previous.DeviceID == next.DeviceID {
		return next
	}

	score := t.similarity.Similarity(*previous, next)
	t.log.Info("Device fingerprint changed", map[string]any{
		"previous":   previous.DeviceID,
		"current":    next.DeviceID,
		"similarity": score,
	})
	if score < t.cfg.SimilarityThreshold {
		t.Track(ctx, EventFingerprintChanged, nil, map[string]any{
			"previous_device_id": previous.DeviceID,
			"similarity":         score,
		})
	}
	return next
}

// identity returns the cached fingerprint and host description,
// computing both on first use. Concurrent callers wait for one
// computation.
func (t *Tracker) identity(ctx context.Context) (fingerprint.DeviceFingerprint, fingerprint.HostInfo) {
	t.fpMu.Lock()
	defer t.fpMu.Unlock()

	if t.device == nil {
		fp := t.fingerprint.GetFingerprint(ctx)
		t.device = &fp
		if t.env != nil {
			t.host = t.env.Describe(ctx)
		}
		if t.cfg.Debug {
			t.log.Debug("Device fingerprint computed", map[string]any{
				"device_id":  fp.DeviceID,
				"confidence": fp.Confidence,
			})
		}
	}
	return *t.device, t.host
}

func (t *Tracker) reserve() bool {
	t.countMu.Lock()
	defer t.countMu.Unlock()
	if t.cfg.MaxEventsPerPage > 0 && t.emitted >= t.cfg.MaxEventsPerPage {
		return false
	}
	t.emitted++
	return true
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
