package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/journal"
	"github.com/mattjoyce/printbridge/internal/printer"
)

// Dispatcher runs check-in cycles. It is driven by the control loop and is not
// safe for concurrent PollAndProcess calls.
type Dispatcher struct {
	server   Server
	printer  Printer
	journal  Journal
	hub      *events.Hub
	id       Identity
	counters *Counters
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// WithEvents publishes job outcomes and cycle summaries to hub.
func WithEvents(hub *events.Hub) Option {
	return func(d *Dispatcher) { d.hub = hub }
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithCounters shares an existing counter set.
func WithCounters(c *Counters) Option {
	return func(d *Dispatcher) { d.counters = c }
}

// New creates a Dispatcher.
func New(server Server, p Printer, id Identity, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		server:   server,
		printer:  p,
		id:       id,
		counters: NewCounters(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Counters exposes the failure counters.
func (d *Dispatcher) Counters() *Counters { return d.counters }

// PollAndProcess checks in with status and prints whatever the server hands back.
func (d *Dispatcher) PollAndProcess(ctx context.Context, status printer.Status) Result {
	resp, err := d.server.CheckIn(ctx, CheckInRequest{
		ClientID:  d.id.ClientID,
		PrinterID: d.id.PrinterID,
		Status:    status,
	})
	if err != nil {
		attempt := d.counters.Inc(EndpointServer)
		msg := "Unable to reach order server"
		if errors.Is(err, ErrProtocol) {
			msg = "Unexpected check-in response from order server"
		}
		d.logger.Error(fmt.Sprintf("Attempt %d - %s: %v", attempt, msg, err),
			"endpoint", EndpointServer, "attempt", attempt)
		res := Result{Err: err}
		if resp != nil {
			res.StatusCode = resp.StatusCode
		}
		d.publishCycle(res)
		return res
	}

	res := Result{StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		d.logger.Error("Failed to retrieve print queue from server.",
			"status_code", resp.StatusCode, "reason", resp.Reason)
		res.Err = fmt.Errorf("check-in answered %d %s", resp.StatusCode, resp.Reason)
		d.publishCycle(res)
		return res
	case resp.StatusCode != http.StatusOK:
		d.logger.Debug("No jobs this cycle", "status_code", resp.StatusCode)
		d.publishCycle(res)
		return res
	}

	res.Retrieved = len(resp.Jobs)
	d.logger.Info(fmt.Sprintf("Retrieved %d print jobs from %s.", len(resp.Jobs), d.id.SiteURL))

	for _, pj := range resp.Jobs {
		switch d.process(ctx, pj) {
		case journal.Printed:
			res.Printed++
		case journal.AckFailed:
			res.Printed++
			res.AckFailed++
		case journal.DecodeFailed:
			res.Skipped++
		case journal.WriteFailed:
			res.Failed++
		}
	}
	d.publishCycle(res)
	return res
}

// process handles one job and never aborts the batch.
func (d *Dispatcher) process(ctx context.Context, pj PendingJob) journal.Outcome {
	logger := d.logger.With("job_id", pj.ID)
	logger.Info(fmt.Sprintf("Processing job: %s on printer %s", pj.ID, d.id.PrinterName))

	data, err := decodePending(pj)
	if err != nil {
		logger.Error("Skipping job with malformed payload", "error", err)
		return d.finish(ctx, logger, pj.ID, journal.DecodeFailed, 0, err)
	}
	job := Job{ID: pj.ID, Instructions: data}

	if err := d.printer.Write(ctx, job.Instructions); err != nil {
		attempt := d.counters.Inc(EndpointPrinter)
		logger.Error(fmt.Sprintf("Attempt %d - Unable to print job %s: %v", attempt, job.ID, err),
			"endpoint", EndpointPrinter, "attempt", attempt)
		return d.finish(ctx, logger, job.ID, journal.WriteFailed, len(data), err)
	}

	err = d.server.CompleteJob(ctx, CompleteJobRequest{
		JobID:     job.ID,
		ClientID:  d.id.ClientID,
		PrinterID: d.id.PrinterID,
	})
	if err != nil {
		logger.Error("Unable to report job completion", "error", err)
		return d.finish(ctx, logger, job.ID, journal.AckFailed, len(data), err)
	}
	return d.finish(ctx, logger, job.ID, journal.Printed, len(data), nil)
}

func decodePending(pj PendingJob) ([]byte, error) {
	if pj.Malformed != nil {
		return nil, fmt.Errorf("%w: got %s", ErrBadPayload, pj.Malformed)
	}
	return DecodeInstructions(pj.Hex)
}

func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, jobID string, outcome journal.Outcome, n int, cause error) journal.Outcome {
	entry := journal.Entry{
		JobID:     jobID,
		PrinterID: d.id.PrinterID,
		Outcome:   outcome,
		Bytes:     n,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if d.journal != nil {
		if err := d.journal.Record(ctx, entry); err != nil {
			logger.Warn("journal write failed", "error", err)
		}
	}
	if d.hub != nil {
		d.hub.Publish(events.TypeJob, entry)
	}
	return outcome
}

func (d *Dispatcher) publishCycle(res Result) {
	if d.hub == nil {
		return
	}
	payload := map[string]any{
		"status_code": res.StatusCode,
		"retrieved":   res.Retrieved,
		"printed":     res.Printed,
		"skipped":     res.Skipped,
		"failed":      res.Failed,
		"ack_failed":  res.AckFailed,
	}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	d.hub.Publish(events.TypePoll, payload)
}
