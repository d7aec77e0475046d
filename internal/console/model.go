// Package console is the bridge's control loop: a bubbletea program whose
// Update method is the only goroutine that touches bridge state. Keystrokes
// drive the command registry; a fixed-resolution tick drives printer probes
// and server polls.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/printbridge/internal/api"
	"github.com/mattjoyce/printbridge/internal/command"
	"github.com/mattjoyce/printbridge/internal/dispatch"
	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/interval"
	"github.com/mattjoyce/printbridge/internal/printer"
	"github.com/mattjoyce/printbridge/internal/tui"
)

// DefaultResolution is how often timers are checked.
const DefaultResolution = 100 * time.Millisecond

// Prober is the printer side of the loop. *printer.Link satisfies it.
type Prober interface {
	Addr() string
	State() printer.State
	Probe(ctx context.Context) (printer.Status, error)
	Notifications() <-chan printer.Notification
}

// Poller runs one check-in cycle. *dispatch.Dispatcher satisfies it.
type Poller interface {
	PollAndProcess(ctx context.Context, status printer.Status) dispatch.Result
}

// Config is the static part of the console.
type Config struct {
	PrinterID   string
	PrinterName string
	SiteURL     string
	Resolution  time.Duration
	// Headless quits as soon as the bridge stops instead of waiting for a key.
	Headless bool
	// LogLines bounds the history pane. Zero means 200.
	LogLines int
}

// Deps are the collaborators the loop drives. Board and History may be nil.
type Deps struct {
	Link       Prober
	Dispatcher Poller
	Intervals  *interval.Store
	Counters   *dispatch.Counters
	History    *events.Hub
	Board      *api.Board
	Logger     *slog.Logger
}

// StopMsg asks the loop to stop, as if `stop` had been typed. Signal handlers send it.
type StopMsg struct{}

type tickMsg time.Time

// Model is the bubbletea model.
type Model struct {
	ctx      context.Context
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	registry *command.Registry
	keys     keyMap
	theme    tui.Theme

	running bool
	input   []rune

	status     printer.Status
	lastProbe  time.Time
	lastPoll   time.Time
	lastResult *dispatch.Result

	width    int
	height   int
	viewport viewport.Model
	ready    bool
}

// New builds the loop and registers the console commands.
func New(ctx context.Context, cfg Config, deps Deps) (*Model, error) {
	if deps.Link == nil || deps.Dispatcher == nil || deps.Intervals == nil {
		return nil, errors.New("console: link, dispatcher and intervals are required")
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = DefaultResolution
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = 200
	}
	if deps.Counters == nil {
		deps.Counters = dispatch.NewCounters()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Model{
		ctx:      ctx,
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		registry: command.NewRegistry(logger),
		keys:     defaultKeyMap(),
		theme:    tui.NewDefaultTheme(),
		running:  true,
	}

	cmds := []command.Command{
		command.NewStopCommand(m.shutdown),
		command.NewSetIntervalCommand("set-refresh", interval.Refresh, "requests to the server", deps.Intervals, logger),
		command.NewSetIntervalCommand("set-status-refresh", interval.Status, "printer status checks", deps.Intervals, logger),
		command.NewHelpCommand(m.registry, logger),
		command.NewStatusCommand(m.describe, logger),
	}
	for _, c := range cmds {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register console commands: %w", err)
		}
	}

	m.publishBoard(time.Now())
	return m, nil
}

// Running reports whether the bridge is still polling.
func (m *Model) Running() bool { return m.running }

// Status returns the cached printer status.
func (m *Model) Status() printer.Status { return m.status }

// Registry exposes the command registry.
func (m *Model) Registry() *command.Registry { return m.registry }

func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Resolution, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tickMsg:
		if !m.running {
			return m, nil
		}
		m.step(time.Time(msg))
		m.refreshLog()
		return m, m.tick()

	case StopMsg:
		m.shutdown()
		return m, m.afterCommand()

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if !m.running {
		return tea.Quit
	}

	switch {
	case key.Matches(msg, m.keys.Stop):
		m.shutdown()
	case key.Matches(msg, m.keys.Submit):
		line := string(m.input)
		m.input = m.input[:0]
		if !m.registry.Dispatch(line) {
			m.logger.Error("Invalid command: " + line)
		}
	case key.Matches(msg, m.keys.Erase):
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		if m.ready {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return cmd
		}
	case msg.Type == tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	case msg.Type == tea.KeySpace:
		m.input = append(m.input, ' ')
	}

	m.refreshLog()
	return m.afterCommand()
}

// afterCommand ends a headless program once the bridge has stopped.
func (m *Model) afterCommand() tea.Cmd {
	if !m.running && m.cfg.Headless {
		return tea.Quit
	}
	return nil
}

// shutdown is the stop command.
func (m *Model) shutdown() {
	if !m.running {
		return
	}
	m.running = false
	m.logger.Info("System is shutting down.")
	m.publishBoard(time.Now())
}

// step runs one timer check.
func (m *Model) step(now time.Time) {
	m.drainNotifications()

	if due(m.lastProbe, now, m.deps.Intervals.Get(interval.Status)) {
		if st, err := m.deps.Link.Probe(m.ctx); err == nil {
			m.status = st
		}
		m.lastProbe = now
		m.drainNotifications()
	}

	if due(m.lastPoll, now, m.deps.Intervals.Get(interval.Refresh)) {
		res := m.deps.Dispatcher.PollAndProcess(m.ctx, m.status)
		m.lastPoll = now
		m.lastResult = &res
	}

	m.publishBoard(now)
}

// due reports whether strictly more than every has passed since last.
// A zero last means the action never ran.
func due(last, now time.Time, every time.Duration) bool {
	return last.IsZero() || now.Sub(last) > every
}

func (m *Model) drainNotifications() {
	ch := m.deps.Link.Notifications()
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			m.apply(n)
		default:
			return
		}
	}
}

func (m *Model) apply(n printer.Notification) {
	switch n.Kind {
	case printer.NotifyConnected:
		m.status.Online = printer.True
		m.publish(events.TypePrinterLink, map[string]any{"state": "connected", "addr": m.deps.Link.Addr()})
	case printer.NotifyDisconnected:
		m.status.Online = printer.False
		data := map[string]any{"state": "disconnected", "addr": m.deps.Link.Addr()}
		if n.Err != nil {
			data["error"] = n.Err.Error()
		}
		m.publish(events.TypePrinterLink, data)
	case printer.NotifyStatusChanged:
		m.status = n.Status
		m.publish(events.TypePrinterStatus, n.Status)
	}
}

func (m *Model) publish(eventType string, data any) {
	if m.deps.History != nil {
		m.deps.History.Publish(eventType, data)
	}
}

func (m *Model) describe() (string, []any) {
	return "Bridge status", []any{
		"printer", m.cfg.PrinterName,
		"link", m.deps.Link.State().String(),
		"status", m.status.String(),
		"server_failures", m.deps.Counters.Get(dispatch.EndpointServer),
		"printer_failures", m.deps.Counters.Get(dispatch.EndpointPrinter),
		"refresh_interval", m.deps.Intervals.Get(interval.Refresh),
		"status_interval", m.deps.Intervals.Get(interval.Status),
	}
}

func (m *Model) publishBoard(now time.Time) {
	if m.deps.Board == nil {
		return
	}

	intervals := make(map[string]string)
	for _, n := range m.deps.Intervals.Snapshot() {
		intervals[n.Name] = n.Interval.String()
	}
	snap := api.Snapshot{
		Running: m.running,
		Printer: api.PrinterSnapshot{
			ID:      m.cfg.PrinterID,
			Name:    m.cfg.PrinterName,
			Address: m.deps.Link.Addr(),
			Link:    m.deps.Link.State().String(),
			Status:  m.status,
		},
		Counters:  m.deps.Counters.Snapshot(),
		Intervals: intervals,
		UpdatedAt: now.UTC(),
	}
	if r := m.lastResult; r != nil {
		summary := &api.PollSummary{
			At:         m.lastPoll.UTC(),
			StatusCode: r.StatusCode,
			Retrieved:  r.Retrieved,
			Printed:    r.Printed,
			Skipped:    r.Skipped,
			Failed:     r.Failed,
			AckFailed:  r.AckFailed,
		}
		if r.Err != nil {
			summary.Error = r.Err.Error()
		}
		snap.LastPoll = summary
	}
	m.deps.Board.Set(snap)
}
