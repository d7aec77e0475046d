package interval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/printbridge/internal/state"
	"github.com/mattjoyce/printbridge/internal/storage"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestGetFallsBackToDefault(t *testing.T) {
	s := NewStore(nil)
	assert.Equal(t, 10*time.Second, s.Get(Refresh))
	assert.Equal(t, 10000*time.Millisecond, s.Get("Unknown"))
}

func TestSetValidSeconds(t *testing.T) {
	var buf bytes.Buffer
	s := NewStore(testLogger(&buf))

	require.NoError(t, s.Set(Refresh, "5"))
	assert.Equal(t, 5000*time.Millisecond, s.Get(Refresh))
	assert.Contains(t, buf.String(), "Interval updated to: 5s")

	require.NoError(t, s.Set(Status, "0.25"))
	assert.Equal(t, 250*time.Millisecond, s.Get(Status))

	require.NoError(t, s.Set(Refresh, "0"))
	assert.Equal(t, time.Duration(0), s.Get(Refresh))
}

func TestSetRejectsBadInputAndKeepsValue(t *testing.T) {
	for _, arg := range []string{"abc", "", "-1", "NaN", "Inf", "1e300"} {
		t.Run(arg, func(t *testing.T) {
			s := NewStore(nil, WithInitial(Refresh, 7*time.Second))
			err := s.Set(Refresh, arg)
			assert.True(t, errors.Is(err, ErrInvalidInterval), "err = %v", err)
			assert.Equal(t, 7*time.Second, s.Get(Refresh))
		})
	}
}

func TestSnapshotSorted(t *testing.T) {
	s := NewStore(nil, WithInitial(Status, time.Second), WithInitial(Refresh, 2*time.Second))
	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, Refresh, snap[0].Name)
	assert.Equal(t, Status, snap[1].Name)
}

func TestPersistenceSurvivesRestart(t *testing.T) {
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := state.NewStore(db)

	first := NewStore(nil, WithPersistence(st))
	require.NoError(t, first.Set(Refresh, "30"))
	require.Error(t, first.Set(Status, "oops"))

	second := NewStore(nil, WithPersistence(st), WithInitial(Refresh, time.Second))
	require.NoError(t, second.Load(context.Background()))
	assert.Equal(t, 30*time.Second, second.Get(Refresh))
	assert.Equal(t, Default, second.Get(Status))
}

type failingPersister struct{}

func (failingPersister) Get(context.Context, string) (json.RawMessage, error) {
	return nil, errors.New("db down")
}

func (failingPersister) ShallowMerge(context.Context, string, json.RawMessage) (json.RawMessage, error) {
	return nil, errors.New("db down")
}

func TestPersistFailureStillUpdatesValue(t *testing.T) {
	var buf bytes.Buffer
	s := NewStore(testLogger(&buf), WithPersistence(failingPersister{}))

	require.NoError(t, s.Set(Refresh, "12"))
	assert.Equal(t, 12*time.Second, s.Get(Refresh))
	assert.Contains(t, buf.String(), "interval not persisted")
	assert.Error(t, s.Load(context.Background()))
}

func TestLoadWithoutPersistenceIsNoop(t *testing.T) {
	s := NewStore(nil)
	assert.NoError(t, s.Load(context.Background()))
}
