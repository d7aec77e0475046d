// Package watch implements `printbridge system watch`, a read-only view of a
// running bridge fed by its status API.
package watch

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/printbridge/internal/api"
	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/tui"
)

const (
	maxEvents     = 100
	statusRefresh = 2 * time.Second
	reconnectWait = 3 * time.Second
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	snapshot    api.Snapshot
	connected   bool
	eventLog    []events.Event // newest first
	lastEventID int64

	ticker   Ticker
	activity Activity
	theme    tui.Theme

	hubEvents chan events.Event

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     tui.NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchStatus(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.activity.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.ID > 0 && e.ID <= m.lastEventID {
			return m, receiveNextEvent(m.hubEvents)
		}
		if e.ID > 0 {
			m.lastEventID = e.ID
		}

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEvents {
			m.eventLog = m.eventLog[:maxEvents]
		}
		m.activity.OnEvent(e.At)
		m.connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case statusMsg:
		m.snapshot = api.Snapshot(msg)
		m.connected = true
		m.lastError = ""
		m.ticker.Tick()

		return m, tea.Tick(statusRefresh, func(time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(reconnectWait, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastEventID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(reconnectWait, func(time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to printbridge..."
	}

	header := renderHeader(m.snapshot, m.connected, m.ticker, m.activity, m.theme, m.width, time.Now())
	limit := m.height - lipgloss.Height(header) - 8
	if limit < 5 {
		limit = 5
	}
	eventStream := renderEventStream(m.eventLog, m.theme, m.width, limit)

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit")

	parts := []string{header, eventStream}
	if m.lastError != "" {
		parts = append(parts, m.theme.Failed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
