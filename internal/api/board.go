package api

import (
	"maps"
	"sync"
	"time"

	"github.com/mattjoyce/printbridge/internal/printer"
)

// PrinterSnapshot describes the single printer the bridge serves.
type PrinterSnapshot struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Address string         `json:"address"`
	Link    string         `json:"link"`
	Status  printer.Status `json:"status"`
}

// PollSummary is the outcome of the most recent check-in cycle.
type PollSummary struct {
	At         time.Time `json:"at"`
	StatusCode int       `json:"status_code"`
	Retrieved  int       `json:"retrieved"`
	Printed    int       `json:"printed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	AckFailed  int       `json:"ack_failed"`
	Error      string    `json:"error,omitempty"`
}

// Snapshot is what GET /status returns.
type Snapshot struct {
	Running   bool              `json:"running"`
	Printer   PrinterSnapshot   `json:"printer"`
	Counters  map[string]int    `json:"failure_counters"`
	Intervals map[string]string `json:"intervals"`
	LastPoll  *PollSummary      `json:"last_poll,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Board holds the latest snapshot. The control loop writes it; HTTP handlers read it.
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewBoard() *Board {
	return &Board{}
}

// Set replaces the snapshot.
func (b *Board) Set(s Snapshot) {
	s = s.clone()
	b.mu.Lock()
	b.snap = s
	b.mu.Unlock()
}

// Get returns a copy of the snapshot.
func (b *Board) Get() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.clone()
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Counters = maps.Clone(s.Counters)
	out.Intervals = maps.Clone(s.Intervals)
	if s.LastPoll != nil {
		lp := *s.LastPoll
		out.LastPoll = &lp
	}
	return out
}
