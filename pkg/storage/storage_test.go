package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/beacon/pkg/clock"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetItem(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetItem(ctx, "k", "v1"))
	got, err := s.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	require.NoError(t, s.SetItem(ctx, "k", "v2"))
	got, err = s.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	require.NoError(t, s.RemoveItem(ctx, "k"))
	_, err = s.GetItem(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RemoveItem(ctx, "never-set"))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemory(0, nil))
}

func TestMemoryStorageExpiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewMemory(30*time.Minute, clk)
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, "session", "abc"))
	clk.Advance(29 * time.Minute)
	got, err := s.GetItem(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	clk.Advance(time.Minute)
	_, err = s.GetItem(ctx, "session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStorage(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "beacon.db"), 0)
	require.NoError(t, err)
	defer s.Close()

	exerciseStorage(t, s)
}

func TestSQLiteStoragePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "beacon.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.SetItem(ctx, "beacon_failed_events", `[{"type":"click"}]`))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetItem(ctx, "beacon_failed_events")
	require.NoError(t, err)
	assert.Equal(t, `[{"type":"click"}]`, got)
}

// TestRedisStorage runs against the server in BEACON_TEST_REDIS_ADDR.
func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("BEACON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BEACON_TEST_REDIS_ADDR not set")
	}
	s, err := DialRedis(context.Background(), addr, "", 0, "beacon-test:", time.Minute)
	require.NoError(t, err)
	defer s.Close()

	exerciseStorage(t, s)
}
