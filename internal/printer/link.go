package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

var (
	ErrPrinterTimeout     = errors.New("printer connection timed out")
	ErrPrinterUnreachable = errors.New("printer unreachable")
	ErrNoStatusResponse   = errors.New("no status response from printer")
	ErrPrinterWrite       = errors.New("printer write failed")
)

// DefaultTimeout bounds connect and status reads.
const DefaultTimeout = 3 * time.Second

// State is the link's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// NotificationKind tells the control loop what happened on the link.
type NotificationKind int

const (
	NotifyConnected NotificationKind = iota + 1
	NotifyDisconnected
	NotifyStatusChanged
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyConnected:
		return "connected"
	case NotifyDisconnected:
		return "disconnected"
	case NotifyStatusChanged:
		return "status_changed"
	default:
		return "unknown"
	}
}

// Notification is delivered on Link.Notifications.
type Notification struct {
	Kind   NotificationKind
	Status Status // set for NotifyStatusChanged
	Err    error  // cause of NotifyDisconnected, if any
	At     time.Time
}

// Dialer opens the printer socket. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// LinkOption configures a Link.
type LinkOption func(*Link)

func WithDialer(d Dialer) LinkOption {
	return func(l *Link) { l.dialer = d }
}

func WithLogger(logger *slog.Logger) LinkOption {
	return func(l *Link) { l.logger = logger }
}

// WithNotificationBuffer sets how many notifications are kept before the oldest is dropped.
func WithNotificationBuffer(n int) LinkOption {
	return func(l *Link) {
		if n > 0 {
			l.notes = make(chan Notification, n)
		}
	}
}

// Link owns the single raw TCP socket to the printer.
type Link struct {
	addr    string
	timeout time.Duration
	dialer  Dialer
	logger  *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	state  State
	status Status
	notes  chan Notification
}

// NewLink prepares a link to addr (host:port). Nothing is dialled until first use.
func NewLink(addr string, timeout time.Duration, opts ...LinkOption) *Link {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l := &Link{
		addr:    addr,
		timeout: timeout,
		dialer:  &net.Dialer{},
		logger:  slog.Default(),
		notes:   make(chan Notification, 32),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Link) Addr() string { return l.addr }

// Notifications is drained by the control loop. Producers never block on it.
func (l *Link) Notifications() <-chan Notification {
	return l.notes
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Status returns the last known printer status.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Connect dials the printer if the link is not already connected.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectLocked(ctx)
}

func (l *Link) connectLocked(ctx context.Context) error {
	if l.state == Connected && l.conn != nil {
		return nil
	}
	l.state = Connecting

	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conn, err := l.dialer.DialContext(dctx, "tcp", l.addr)
	if err != nil {
		l.state = Disconnected
		if isTimeout(err) {
			return fmt.Errorf("%w: %s after %s", ErrPrinterTimeout, l.addr, l.timeout)
		}
		return fmt.Errorf("%w: %s: %w", ErrPrinterUnreachable, l.addr, err)
	}

	l.conn = conn
	l.state = Connected
	l.status.Online = True
	l.logger.Info("Printer connected", "addr", l.addr)
	l.notify(Notification{Kind: NotifyConnected, Status: l.status})
	return nil
}

// QueryStatus sends DLE EOT class and reads the single response byte.
// A failed exchange leaves the cached status untouched and drops the socket.
func (l *Link) QueryStatus(ctx context.Context, class byte) (byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queryLocked(ctx, class)
}

func (l *Link) queryLocked(ctx context.Context, class byte) (byte, error) {
	if err := l.connectLocked(ctx); err != nil {
		return 0, err
	}

	if err := l.conn.SetDeadline(l.deadline(ctx)); err != nil {
		l.dropLocked(err)
		return 0, fmt.Errorf("%w: %w", ErrNoStatusResponse, err)
	}
	if _, err := l.conn.Write(StatusRequest(class)); err != nil {
		l.dropLocked(err)
		return 0, fmt.Errorf("%w: class %d: %w", ErrNoStatusResponse, class, err)
	}

	var buf [1]byte
	if _, err := io.ReadFull(l.conn, buf[:]); err != nil {
		l.dropLocked(err)
		return 0, fmt.Errorf("%w: class %d: %w", ErrNoStatusResponse, class, err)
	}
	_ = l.conn.SetDeadline(time.Time{})
	return buf[0], nil
}

// Probe queries both status classes and publishes NotifyStatusChanged when
// the merged result differs from what was known. If either query fails
// nothing from this probe is applied.
func (l *Link) Probe(ctx context.Context) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.status
	for _, class := range []byte{ClassPrinter, ClassPaper} {
		b, err := l.queryLocked(ctx, class)
		if err != nil {
			l.logger.Warn("Printer status query failed", "class", class, "error", err)
			return l.status, err
		}
		next = DecodeStatus(class, b, next)
	}
	l.commitLocked(next)
	return l.status, nil
}

func (l *Link) commitLocked(next Status) {
	if next == l.status {
		return
	}
	l.status = next
	l.logger.Debug("Printer status changed", "status", next)
	l.notify(Notification{Kind: NotifyStatusChanged, Status: next})
}

// Write sends data to the printer verbatim. No response is read.
func (l *Link) Write(ctx context.Context, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.connectLocked(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPrinterWrite, err)
	}
	if err := l.conn.SetWriteDeadline(l.deadline(ctx)); err != nil {
		l.dropLocked(err)
		return fmt.Errorf("%w: %w", ErrPrinterWrite, err)
	}
	if _, err := l.conn.Write(data); err != nil {
		l.dropLocked(err)
		return fmt.Errorf("%w: %w", ErrPrinterWrite, err)
	}
	_ = l.conn.SetWriteDeadline(time.Time{})
	return nil
}

// Close releases the socket. The link can be reused; the next call redials.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		l.state = Disconnected
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.state = Disconnected
	return err
}

// dropLocked closes the socket after a fault and reports the printer offline.
func (l *Link) dropLocked(cause error) {
	wasConnected := l.state == Connected
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.state = Disconnected
	if !wasConnected {
		return
	}
	l.status.Online = False
	l.logger.Warn("Printer disconnected", "addr", l.addr, "error", cause)
	l.notify(Notification{Kind: NotifyDisconnected, Status: l.status, Err: cause})
}

// notify never blocks: when the buffer is full the oldest notification is discarded.
func (l *Link) notify(n Notification) {
	n.At = time.Now()
	for {
		select {
		case l.notes <- n:
			return
		default:
		}
		select {
		case <-l.notes:
		default:
		}
	}
}

func (l *Link) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(l.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
