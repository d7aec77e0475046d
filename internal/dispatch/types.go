package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mattjoyce/printbridge/internal/journal"
	"github.com/mattjoyce/printbridge/internal/printer"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/printbridge/internal/dispatch Server,Printer,Journal

var (
	// ErrServerUnreachable wraps transport failures talking to the order server.
	ErrServerUnreachable = errors.New("order server unreachable")
	// ErrProtocol is returned when the server answers with a body that is not a job map.
	ErrProtocol = errors.New("unexpected check-in response")
	// ErrBadPayload is returned for job instructions that are not a valid hex string.
	ErrBadPayload = errors.New("job payload is not valid hex")
)

// Endpoint names used by Counters.
const (
	EndpointServer  = "Server"
	EndpointPrinter = "Printer"
)

// Identity is the read-only connection identity reported on every request.
type Identity struct {
	ClientID    string
	PrinterID   string
	PrinterName string
	SiteURL     string
}

// CheckInRequest is the PUT API/Print/CheckIn body.
type CheckInRequest struct {
	ClientID  string         `json:"clientId"`
	PrinterID string         `json:"printerId"`
	Status    printer.Status `json:"status"`
}

// CompleteJobRequest is the PUT API/Print/CompleteJob body.
type CompleteJobRequest struct {
	JobID     string `json:"jobId"`
	ClientID  string `json:"clientId"`
	PrinterID string `json:"printerId"`
}

// PendingJob is one entry of the check-in response, still hex encoded.
type PendingJob struct {
	ID  string
	Hex string
	// Malformed holds the raw value when the server sent something other
	// than a string for this job, null included.
	Malformed json.RawMessage
}

// Job is a decoded print job.
type Job struct {
	ID           string
	Instructions []byte
}

// CheckInResponse is what came back from a check-in that reached the server.
// Jobs is only populated for 200 OK, in the order the server listed them.
type CheckInResponse struct {
	StatusCode int
	Reason     string
	Jobs       []PendingJob
}

// Server is the order-management server.
type Server interface {
	CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResponse, error)
	CompleteJob(ctx context.Context, req CompleteJobRequest) error
}

// Printer accepts raw instruction bytes. *printer.Link satisfies it.
type Printer interface {
	Write(ctx context.Context, data []byte) error
}

// Journal records job outcomes. *journal.Journal satisfies it.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Counters tracks failures per endpoint. Values only grow.
type Counters struct {
	mu sync.Mutex
	m  map[string]int
}

func NewCounters() *Counters {
	return &Counters{m: map[string]int{EndpointServer: 0, EndpointPrinter: 0}}
}

// Inc adds one failure to endpoint and returns the new count.
func (c *Counters) Inc(endpoint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[endpoint]++
	return c.m[endpoint]
}

func (c *Counters) Get(endpoint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[endpoint]
}

// Snapshot copies the current counts.
func (c *Counters) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// Result summarises one PollAndProcess call.
type Result struct {
	// StatusCode is the check-in HTTP status, zero when the server was not reached.
	StatusCode int
	Retrieved  int
	Printed    int
	Skipped    int // bad payloads
	Failed     int // printer write failures
	AckFailed  int // printed but CompleteJob failed
	Err        error
}
