package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/journal"
	"github.com/mattjoyce/printbridge/internal/printer"
)

type fakeJobs struct {
	entries []journal.Entry
	err     error
	limit   int
}

func (f *fakeJobs) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

func testBoard() *Board {
	b := NewBoard()
	b.Set(Snapshot{
		Running: true,
		Printer: PrinterSnapshot{
			ID:      "p1",
			Name:    "Kitchen",
			Address: "10.0.0.20:9100",
			Link:    "connected",
			Status:  printer.Status{Online: printer.True, PaperOut: printer.False},
		},
		Counters:  map[string]int{"Server": 2},
		Intervals: map[string]string{"RefreshInterval": "10s"},
	})
	return b
}

func TestHealthz(t *testing.T) {
	srv := New(Config{}, testBoard(), nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Running)
	assert.Equal(t, "connected", body.PrinterLink)

	stopped := New(Config{}, NewBoard(), nil, nil, nil)
	rec = httptest.NewRecorder()
	stopped.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "stopped", body.Status)
}

func TestStatus(t *testing.T) {
	srv := New(Config{}, testBoard(), nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))

	p := raw["printer"].(map[string]any)
	status := p["status"].(map[string]any)
	assert.Equal(t, true, status["isPrinterOnline"])
	assert.Equal(t, false, status["isPaperOut"])
	assert.Nil(t, status["isCoverOpen"])
	assert.Equal(t, float64(2), raw["failure_counters"].(map[string]any)["Server"])
	assert.NotContains(t, raw, "last_poll")
}

func TestBoardGetReturnsCopy(t *testing.T) {
	b := testBoard()
	snap := b.Get()
	snap.Counters["Server"] = 99
	assert.Equal(t, 2, b.Get().Counters["Server"])
}

func TestJobs(t *testing.T) {
	jobs := &fakeJobs{entries: []journal.Entry{{ID: "e1", JobID: "job-1", Outcome: journal.Printed, Bytes: 3}}}
	h := New(Config{}, testBoard(), nil, jobs, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, jobs.limit)

	var body JobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, "job-1", body.Jobs[0].JobID)

	for _, bad := range []string{"0", "-1", "abc", "5000"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}

	jobs.err = errors.New("disk gone")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 50, jobs.limit)

	rec = httptest.NewRecorder()
	New(Config{}, testBoard(), nil, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenAPI(t *testing.T) {
	rec := httptest.NewRecorder()
	New(Config{APIKey: "k"}, testBoard(), nil, nil, nil).Handler().ServeHTTP(rec, func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
		r.Header.Set("Authorization", "Bearer k")
		return r
	}())
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	for _, p := range []string{"/healthz", "/status", "/jobs", "/events"} {
		assert.Contains(t, paths, p)
	}
	assert.Contains(t, doc, "components")
}

func TestEventsReplayAndStream(t *testing.T) {
	hub := events.NewHub(10)
	hub.Publish(events.TypeLog, map[string]string{"msg": "first"})
	second := hub.Publish(events.TypeLog, map[string]string{"msg": "second"})

	ts := httptest.NewServer(New(Config{}, testBoard(), hub, nil, nil).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() map[string]string {
		fields := map[string]string{}
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return fields
			}
			k, v, _ := strings.Cut(line, ": ")
			fields[k] = v
		}
	}

	ev := readEvent()
	assert.Equal(t, "2", ev["id"])
	assert.Equal(t, events.TypeLog, ev["event"])
	assert.JSONEq(t, string(second.Data), ev["data"])

	hub.Publish(events.TypeJob, map[string]string{"job_id": "job-9"})
	ev = readEvent()
	assert.Equal(t, "3", ev["id"])
	assert.Equal(t, events.TypeJob, ev["event"])
	assert.Contains(t, ev["data"], "job-9")
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("x"))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

func TestStartStopsOnCancel(t *testing.T) {
	srv := New(Config{Listen: "127.0.0.1:0"}, testBoard(), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
