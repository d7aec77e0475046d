package console

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/printbridge/internal/dispatch"
	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/log"
)

// OfflineMessage is shown once the bridge has stopped.
const OfflineMessage = "Printer bridge offline. Press any key to close..."

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	logHeight := h - lipgloss.Height(m.header()) - 2
	if logHeight < 3 {
		logHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(w, logHeight)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = logHeight
	}
	m.refreshLog()
}

// refreshLog reloads the history pane and follows the tail.
func (m *Model) refreshLog() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.logLines(), "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(strings.Join(m.logLines(), "\n"))
	}
	b.WriteString("\n")
	if m.running {
		b.WriteString(m.theme.Prompt.Render(">") + " " + string(m.input))
	} else {
		b.WriteString(m.theme.Failed.Render(OfflineMessage))
	}
	return b.String()
}

func (m *Model) header() string {
	lines := []string{
		m.theme.Title.Render("printbridge") + "  " + m.theme.Dim.Render(m.cfg.SiteURL),
		fmt.Sprintf("%s %s (%s) %s",
			m.theme.Label.Render("printer"),
			m.cfg.PrinterName,
			m.deps.Link.Addr(),
			m.theme.LinkState(m.deps.Link.State())),
		m.theme.PrinterFlags(m.status),
		fmt.Sprintf("%s server=%d printer=%d",
			m.theme.Label.Render("failures"),
			m.deps.Counters.Get(dispatch.EndpointServer),
			m.deps.Counters.Get(dispatch.EndpointPrinter)),
	}

	box := m.theme.Border
	if m.width > 2 {
		box = box.Width(m.width - 2)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func (m *Model) logLines() []string {
	if m.deps.History == nil {
		return nil
	}
	evs := m.deps.History.Recent(events.TypeLog, m.cfg.LogLines)
	lines := make([]string, 0, len(evs))
	for _, ev := range evs {
		var e log.Entry
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			continue
		}
		lines = append(lines, m.formatEntry(e))
	}
	return lines
}

func (m *Model) formatEntry(e log.Entry) string {
	level := e.Level
	switch level {
	case "ERROR":
		level = m.theme.Failed.Render(level)
	case "WARN":
		level = m.theme.Warn.Render(level)
	default:
		level = m.theme.Dim.Render(level)
	}

	var b strings.Builder
	b.WriteString(m.theme.Dim.Render(e.Time.Local().Format("15:04:05")))
	b.WriteString(" ")
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", m.theme.Dim.Render(k), e.Attrs[k])
	}
	return b.String()
}
