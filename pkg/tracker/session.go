package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iamgideonidoko/beacon/pkg/storage"
)

// SessionKey is the storage key holding the current session.
const SessionKey = "beacon_session_id"

type session struct {
	ID           string `json:"id"`
	LastActivity int64  `json:"last_activity"`
}

// sessionID returns the current session id, starting a new session
// when none is stored or the stored one has been idle longer than the
// session timeout. The second result reports whether a session started.
func (t *Tracker) sessionID(ctx context.Context) (string, bool) {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()

	now := t.clock.Now()
	current, err := t.loadSession(ctx)
	started := false
	if err != nil || current.ID == "" || t.expired(current, now) {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			t.log.Warn("Failed to read session, starting a new one", map[string]any{"error": err.Error()})
		}
		current = session{ID: uuid.NewString()}
		started = true
	}
	current.LastActivity = now.UnixMilli()

	data, err := json.Marshal(current)
	if err == nil {
		err = t.sessions.SetItem(ctx, SessionKey, string(data))
	}
	if err != nil {
		t.log.Warn("Failed to persist session", map[string]any{"error": err.Error()})
	}
	return current.ID, started
}

func (t *Tracker) loadSession(ctx context.Context) (session, error) {
	raw, err := t.sessions.GetItem(ctx, SessionKey)
	if err != nil {
		return session{}, err
	}
	var s session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return session{}, err
	}
	return s, nil
}

func (t *Tracker) expired(s session, now time.Time) bool {
	if t.cfg.SessionTimeout <= 0 {
		return false
	}
	return now.Sub(time.UnixMilli(s.LastActivity)) > t.cfg.SessionTimeout
}
