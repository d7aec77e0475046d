package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/printbridge/internal/printer/printertest"
)

func drain(l *Link) []Notification {
	var out []Notification
	for {
		select {
		case n := <-l.Notifications():
			out = append(out, n)
		default:
			return out
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name  string
		class byte
		b     byte
		prev  Status
		want  Status
	}{
		{
			name:  "class 1 all flags from 0x0E",
			class: ClassPrinter,
			b:     0x0E,
			want:  Status{Online: True, CoverOpen: True, PaperOut: True},
		},
		{
			name:  "class 1 only online",
			class: ClassPrinter,
			b:     0x12,
			prev:  Status{PaperLow: True},
			want:  Status{Online: True, CoverOpen: False, PaperOut: False, PaperLow: True},
		},
		{
			name:  "class 2 paper low keeps printer fields",
			class: ClassPaper,
			b:     0x02,
			prev:  Status{Online: True, CoverOpen: False},
			want:  Status{Online: True, CoverOpen: False, PaperLow: True, PaperOut: False},
		},
		{
			name:  "unknown class leaves status",
			class: 0x04,
			b:     0xFF,
			prev:  Status{Online: False},
			want:  Status{Online: False},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeStatus(tt.class, tt.b, tt.prev))
		})
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(Status{Online: True, PaperOut: False})
	require.NoError(t, err)
	assert.JSONEq(t, `{"isPrinterOnline":true,"isCoverOpen":null,"isPaperOut":false,"isPaperLow":null}`, string(b))

	var back Status
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Status{Online: True, PaperOut: False}, back)
}

func TestTri(t *testing.T) {
	v, known := Unknown.Bool()
	assert.False(t, v)
	assert.False(t, known)
	v, known = False.Bool()
	assert.False(t, v)
	assert.True(t, known)
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, True, TriOf(true))
}

func TestProbeQueriesBothClasses(t *testing.T) {
	fp := printertest.NewServer(t)
	fp.SetReply(ClassPrinter, 0x12) // online only
	fp.SetReply(ClassPaper, 0x02)   // paper low

	l := NewLink(fp.Addr(), time.Second, WithLogger(quietLogger()))
	t.Cleanup(func() { _ = l.Close() })

	st, err := l.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{Online: True, CoverOpen: False, PaperOut: False, PaperLow: True}, st)
	assert.Equal(t, Connected, l.State())

	notes := drain(l)
	require.Len(t, notes, 2)
	assert.Equal(t, NotifyConnected, notes[0].Kind)
	assert.Equal(t, NotifyStatusChanged, notes[1].Kind)
	assert.Equal(t, st, notes[1].Status)

	// Same answer again: no change notification.
	_, err = l.Probe(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drain(l))
}

func TestProbeNoResponseKeepsStatusAndDisconnects(t *testing.T) {
	fp := printertest.NewServer(t)
	fp.SetReply(ClassPrinter, 0x16) // online + cover open
	fp.SetReply(ClassPaper, 0x00)

	l := NewLink(fp.Addr(), 200*time.Millisecond, WithLogger(quietLogger()))
	t.Cleanup(func() { _ = l.Close() })

	known, err := l.Probe(context.Background())
	require.NoError(t, err)
	drain(l)

	fp.SetSilent(true)
	st, err := l.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoStatusResponse), "err = %v", err)

	assert.Equal(t, known.CoverOpen, st.CoverOpen)
	assert.Equal(t, known.PaperLow, st.PaperLow)
	assert.Equal(t, False, st.Online)
	assert.Equal(t, Disconnected, l.State())

	notes := drain(l)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyDisconnected, notes[0].Kind)
}

func TestConnectUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	l := NewLink(addr, time.Second, WithLogger(quietLogger()))
	err = l.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrinterUnreachable), "err = %v", err)
	assert.Equal(t, Disconnected, l.State())
	assert.Empty(t, drain(l), "a link that never connected raises no disconnect")
}

type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestConnectTimeout(t *testing.T) {
	l := NewLink("192.0.2.1:9100", 50*time.Millisecond, WithDialer(blockingDialer{}), WithLogger(quietLogger()))
	err := l.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrinterTimeout), "err = %v", err)
}

func TestWriteSendsBytesVerbatim(t *testing.T) {
	fp := printertest.NewServer(t)
	l := NewLink(fp.Addr(), time.Second, WithLogger(quietLogger()))
	t.Cleanup(func() { _ = l.Close() })

	payload := []byte{0x1B, 0x40, 'h', 'i', 0x1A}
	require.NoError(t, l.Write(context.Background(), payload))

	assert.Eventually(t, func() bool {
		return bytes.Equal(fp.Received(), payload)
	}, time.Second, 10*time.Millisecond)
}

func TestWriteUnreachable(t *testing.T) {
	l := NewLink("192.0.2.1:9100", 50*time.Millisecond, WithDialer(blockingDialer{}), WithLogger(quietLogger()))
	err := l.Write(context.Background(), []byte("x"))
	assert.True(t, errors.Is(err, ErrPrinterWrite), "err = %v", err)
}

func TestNotificationsNeverBlock(t *testing.T) {
	l := NewLink("127.0.0.1:1", time.Second, WithNotificationBuffer(2), WithLogger(quietLogger()))
	for i := 0; i < 5; i++ {
		l.notify(Notification{Kind: NotifyStatusChanged, Status: Status{PaperLow: TriOf(i%2 == 0)}})
	}
	notes := drain(l)
	require.Len(t, notes, 2)
	assert.Equal(t, True, notes[1].Status.PaperLow, "newest notification is kept")
}

func TestDiagnosticTicketFraming(t *testing.T) {
	ticket := DiagnosticTicket("Kitchen", "10.0.0.20:9100", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.True(t, bytes.HasPrefix(ticket, []byte{0x1B, 0x40}))
	assert.True(t, bytes.HasSuffix(ticket, []byte{0x1B, 0x64, 0x03, 0x1D, 0x56, 0x41, 0x00}))
	assert.Contains(t, string(ticket), "printer: Kitchen")
}
