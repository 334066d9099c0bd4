package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/beacon/pkg/event"
	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
)

type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var batch event.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.events = append(c.events, batch.Batch...)
	c.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BEACON_STORAGE_DRIVER", "memory")
	t.Setenv("BEACON_PROJECT_ID", "cli-test")
	var stdout, stderr bytes.Buffer
	base := []string{"--config", "", "--env-file", ""}
	err := run(context.Background(), append(base, args...), &stdout, &stderr, &fingerprint.Probes{})
	return stdout.String(), err
}

func TestTrackDeliversEvent(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	_, err := runCLI(t, "--endpoint", srv.URL, "--project", "proj", "track", "signup", "--payload", `{"plan":"pro"}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"session_started", "signup"}, c.types())
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "proj", c.events[1].ProjectID)
	assert.Equal(t, "pro", c.events[1].Payload["plan"])
}

func TestIdentifyDeliversEvent(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	_, err := runCLI(t, "--endpoint", srv.URL, "identify", "user-42", "--traits", `{"plan":"pro"}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"session_started", "identify"}, c.types())
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "user-42", c.events[1].UserProperties["user_id"])
}

func TestFingerprintCommand(t *testing.T) {
	out, err := runCLI(t, "fingerprint")
	require.NoError(t, err)

	var fp fingerprint.DeviceFingerprint
	require.NoError(t, json.Unmarshal([]byte(out), &fp))
	assert.Len(t, fp.DeviceID, 64)
}

func TestRetryCommandWithEmptyStore(t *testing.T) {
	out, err := runCLI(t, "retry")
	require.NoError(t, err)
	assert.JSONEq(t, `{"resubmitted":0}`, out)
}

func TestMissingProjectIDIsRejected(t *testing.T) {
	t.Setenv("BEACON_STORAGE_DRIVER", "memory")
	t.Setenv("BEACON_PROJECT_ID", "")
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"--config", "", "--env-file", "", "fingerprint"}, &stdout, &stderr, &fingerprint.Probes{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id is required")

	_, err = runCLI(t, "--project", "from-flag", "fingerprint")
	assert.NoError(t, err)
}

func TestUsageErrors(t *testing.T) {
	_, err := runCLI(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "unknown")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "track")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "track", "x", "--payload", "[1]")
	assert.Error(t, err)
}
