package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 1; i <= 5; i++ {
		h.Publish(TypeLog, map[string]int{"n": i})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, int64(3), snap[0].ID)
	assert.Equal(t, int64(5), snap[2].ID)

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
}

func TestHubRecentFiltersByType(t *testing.T) {
	h := NewHub(10)
	h.Publish(TypeLog, "a")
	h.Publish(TypeJob, "j1")
	h.Publish(TypeLog, "b")
	h.Publish(TypeLog, "c")

	recent := h.Recent(TypeLog, 2)
	require.Len(t, recent, 2)

	var first, second string
	require.NoError(t, json.Unmarshal(recent[0].Data, &first))
	require.NoError(t, json.Unmarshal(recent[1].Data, &second))
	assert.Equal(t, "b", first)
	assert.Equal(t, "c", second)

	assert.Len(t, h.Recent("", 10), 4)
	assert.Empty(t, h.Recent(TypeLog, 0))
}

func TestHubSubscribeReceivesAndCancels(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()

	h.Publish(TypePrinterStatus, map[string]bool{"online": true})

	select {
	case ev := <-ch:
		assert.Equal(t, TypePrinterStatus, ev.Type)
		assert.JSONEq(t, `{"online":true}`, string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")

	// Publishing after cancel must not panic.
	h.Publish(TypeLog, nil)
}
