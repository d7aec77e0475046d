package dispatch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/printbridge/internal/dispatch"
	"github.com/mattjoyce/printbridge/internal/dispatch/mocks"
	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/journal"
	"github.com/mattjoyce/printbridge/internal/printer"
)

// TestLogBuffer captures log output for assertions.
type TestLogBuffer struct {
	bytes.Buffer
}

// NewTestSlogger creates a new *slog.Logger that writes to a TestLogBuffer.
func NewTestSlogger() (*slog.Logger, *TestLogBuffer) {
	var buf TestLogBuffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

var testIdentity = dispatch.Identity{
	ClientID:    "client-1",
	PrinterID:   "printer-1",
	PrinterName: "Kitchen",
	SiteURL:     "https://orders.example.com/",
}

type fixture struct {
	server  *mocks.MockServer
	printer *mocks.MockPrinter
	journal *mocks.MockJournal
	logs    *TestLogBuffer
	d       *dispatch.Dispatcher
}

func newFixture(t *testing.T, opts ...dispatch.Option) *fixture {
	ctrl := gomock.NewController(t)
	logger, buf := NewTestSlogger()
	f := &fixture{
		server:  mocks.NewMockServer(ctrl),
		printer: mocks.NewMockPrinter(ctrl),
		journal: mocks.NewMockJournal(ctrl),
		logs:    buf,
	}
	opts = append([]dispatch.Option{dispatch.WithLogger(logger), dispatch.WithJournal(f.journal)}, opts...)
	f.d = dispatch.New(f.server, f.printer, testIdentity, opts...)
	return f
}

func okResponse(jobs ...dispatch.PendingJob) *dispatch.CheckInResponse {
	return &dispatch.CheckInResponse{StatusCode: 200, Reason: "OK", Jobs: jobs}
}

func outcome(o journal.Outcome) gomock.Matcher {
	return entryMatcher{o}
}

type entryMatcher struct{ want journal.Outcome }

func (m entryMatcher) Matches(x interface{}) bool {
	e, ok := x.(journal.Entry)
	return ok && e.Outcome == m.want && e.PrinterID == testIdentity.PrinterID
}

func (m entryMatcher) String() string { return "journal entry with outcome " + string(m.want) }

func TestPollAndProcessPrintsAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	status := printer.Status{Online: printer.True, PaperLow: printer.False}

	gomock.InOrder(
		f.server.EXPECT().CheckIn(ctx, dispatch.CheckInRequest{
			ClientID:  "client-1",
			PrinterID: "printer-1",
			Status:    status,
		}).Return(okResponse(dispatch.PendingJob{ID: "job-1", Hex: "1B401A"}), nil),
		f.printer.EXPECT().Write(ctx, []byte{0x1B, 0x40, 0x1A}).Return(nil),
		f.server.EXPECT().CompleteJob(ctx, dispatch.CompleteJobRequest{
			JobID:     "job-1",
			ClientID:  "client-1",
			PrinterID: "printer-1",
		}).Return(nil).Times(1),
		f.journal.EXPECT().Record(ctx, outcome(journal.Printed)).Return(nil),
	)

	res := f.d.PollAndProcess(ctx, status)

	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Retrieved)
	assert.Equal(t, 1, res.Printed)
	assert.Contains(t, f.logs.String(), "Retrieved 1 print jobs from https://orders.example.com/.")
	assert.Contains(t, f.logs.String(), "Processing job: job-1 on printer Kitchen")
}

func TestPollAndProcessNetworkFault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).
		Return(nil, dispatch.ErrServerUnreachable).Times(1)
	// No Write, CompleteJob or Record expectations: any call fails the test.

	res := f.d.PollAndProcess(ctx, printer.Status{})

	assert.True(t, errors.Is(res.Err, dispatch.ErrServerUnreachable))
	assert.Zero(t, res.Retrieved)
	assert.Equal(t, 1, f.d.Counters().Get(dispatch.EndpointServer))
	assert.Equal(t, 0, f.d.Counters().Get(dispatch.EndpointPrinter))
	assert.Contains(t, f.logs.String(), "Attempt 1 - Unable to reach order server")

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).Return(nil, dispatch.ErrServerUnreachable)
	f.d.PollAndProcess(ctx, printer.Status{})
	assert.Equal(t, 2, f.d.Counters().Get(dispatch.EndpointServer))
}

func TestPollAndProcessProtocolErrorCountsAsServerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).
		Return(&dispatch.CheckInResponse{StatusCode: 200, Reason: "OK"}, dispatch.ErrProtocol)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.True(t, errors.Is(res.Err, dispatch.ErrProtocol))
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 1, f.d.Counters().Get(dispatch.EndpointServer))
	assert.Contains(t, f.logs.String(), "Attempt 1 - Unexpected check-in response from order server")
	assert.NotContains(t, f.logs.String(), "Unable to reach order server")
}

func TestPollAndProcessKeepsServerOrderAndSkipsBadHex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).Return(okResponse(
		dispatch.PendingJob{ID: "z-first", Hex: "41"},
		dispatch.PendingJob{ID: "a-broken", Hex: "NOTHEX"},
		dispatch.PendingJob{ID: "m-last", Hex: "42"},
	), nil)

	gomock.InOrder(
		f.printer.EXPECT().Write(ctx, []byte("A")).Return(nil),
		f.server.EXPECT().CompleteJob(ctx, gomock.Any()).Return(nil),
		f.journal.EXPECT().Record(ctx, outcome(journal.Printed)).Return(nil),
		f.journal.EXPECT().Record(ctx, outcome(journal.DecodeFailed)).Return(nil),
		f.printer.EXPECT().Write(ctx, []byte("B")).Return(nil),
		f.server.EXPECT().CompleteJob(ctx, dispatch.CompleteJobRequest{JobID: "m-last", ClientID: "client-1", PrinterID: "printer-1"}).Return(nil),
		f.journal.EXPECT().Record(ctx, outcome(journal.Printed)).Return(nil),
	)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.Equal(t, 3, res.Retrieved)
	assert.Equal(t, 2, res.Printed)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, f.logs.String(), "Skipping job with malformed payload")
}

func TestPollAndProcessSkipsNonStringPayloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).Return(okResponse(
		dispatch.PendingJob{ID: "job-1", Malformed: json.RawMessage("123")},
		dispatch.PendingJob{ID: "job-2", Hex: "1B40"},
		dispatch.PendingJob{ID: "job-3", Malformed: json.RawMessage("null")},
		dispatch.PendingJob{ID: "job-4", Hex: ""},
	), nil)

	gomock.InOrder(
		f.journal.EXPECT().Record(ctx, outcome(journal.DecodeFailed)).Return(nil),
		f.printer.EXPECT().Write(ctx, []byte{0x1B, 0x40}).Return(nil),
		f.server.EXPECT().CompleteJob(ctx, dispatch.CompleteJobRequest{JobID: "job-2", ClientID: "client-1", PrinterID: "printer-1"}).Return(nil),
		f.journal.EXPECT().Record(ctx, outcome(journal.Printed)).Return(nil),
		f.journal.EXPECT().Record(ctx, outcome(journal.DecodeFailed)).Return(nil),
		f.printer.EXPECT().Write(ctx, []byte{}).Return(nil),
		f.server.EXPECT().CompleteJob(ctx, dispatch.CompleteJobRequest{JobID: "job-4", ClientID: "client-1", PrinterID: "printer-1"}).Return(nil),
		f.journal.EXPECT().Record(ctx, outcome(journal.Printed)).Return(nil),
	)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.NoError(t, res.Err)
	assert.Equal(t, 4, res.Retrieved)
	assert.Equal(t, 2, res.Printed)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, f.d.Counters().Get(dispatch.EndpointServer))
	assert.NotContains(t, f.logs.String(), "Unable to reach order server")
	assert.Contains(t, f.logs.String(), "Skipping job with malformed payload")
}

func TestPollAndProcessWriteFailureSkipsAck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).Return(okResponse(dispatch.PendingJob{ID: "job-1", Hex: "00"}), nil)
	f.printer.EXPECT().Write(ctx, []byte{0x00}).Return(printer.ErrPrinterWrite)
	f.journal.EXPECT().Record(ctx, outcome(journal.WriteFailed)).Return(nil)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Printed)
	assert.Equal(t, 1, f.d.Counters().Get(dispatch.EndpointPrinter))
}

func TestPollAndProcessAckFailureIsLoggedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).Return(okResponse(dispatch.PendingJob{ID: "job-1", Hex: "1b40"}), nil)
	f.printer.EXPECT().Write(ctx, []byte{0x1B, 0x40}).Return(nil)
	f.server.EXPECT().CompleteJob(ctx, gomock.Any()).Return(errors.New("connection reset")).Times(1)
	f.journal.EXPECT().Record(ctx, outcome(journal.AckFailed)).Return(nil)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Printed)
	assert.Equal(t, 1, res.AckFailed)
	assert.Equal(t, 0, f.d.Counters().Get(dispatch.EndpointServer))
	assert.Contains(t, f.logs.String(), "Unable to report job completion")
}

func TestPollAndProcessNonSuccessStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).
		Return(&dispatch.CheckInResponse{StatusCode: 503, Reason: "Service Unavailable"}, nil)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.Error(t, res.Err)
	assert.Equal(t, 503, res.StatusCode)
	assert.Contains(t, f.logs.String(), "Failed to retrieve print queue from server.")
	assert.Contains(t, f.logs.String(), `"status_code":503`)
	assert.Contains(t, f.logs.String(), "Service Unavailable")
	assert.Equal(t, 0, f.d.Counters().Get(dispatch.EndpointServer))
}

func TestPollAndProcessOtherSuccessMeansNoJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).
		Return(&dispatch.CheckInResponse{StatusCode: 204, Reason: "No Content",
			Jobs: []dispatch.PendingJob{{ID: "ignored", Hex: "00"}}}, nil)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.NoError(t, res.Err)
	assert.Zero(t, res.Retrieved)
}

func TestPollAndProcessEmptyBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).Return(okResponse(), nil)

	res := f.d.PollAndProcess(ctx, printer.Status{})
	assert.NoError(t, res.Err)
	assert.Contains(t, f.logs.String(), "Retrieved 0 print jobs")
}

func TestPollAndProcessPublishesEvents(t *testing.T) {
	hub := events.NewHub(10)
	f := newFixture(t, dispatch.WithEvents(hub))
	ctx := context.Background()

	f.server.EXPECT().CheckIn(ctx, gomock.Any()).Return(okResponse(dispatch.PendingJob{ID: "job-1", Hex: "41"}), nil)
	f.printer.EXPECT().Write(ctx, gomock.Any()).Return(nil)
	f.server.EXPECT().CompleteJob(ctx, gomock.Any()).Return(nil)
	f.journal.EXPECT().Record(ctx, gomock.Any()).Return(errors.New("disk full"))

	f.d.PollAndProcess(ctx, printer.Status{})

	require.Len(t, hub.Recent(events.TypeJob, 10), 1)
	polls := hub.Recent(events.TypePoll, 10)
	require.Len(t, polls, 1)
	assert.Contains(t, string(polls[0].Data), `"printed":1`)
	assert.Contains(t, f.logs.String(), "journal write failed")
}
