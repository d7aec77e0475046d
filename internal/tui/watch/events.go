package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/journal"
	"github.com/mattjoyce/printbridge/internal/log"
	"github.com/mattjoyce/printbridge/internal/printer"
	"github.com/mattjoyce/printbridge/internal/tui"
)

func renderEventStream(eventLog []events.Event, theme tui.Theme, width, limit int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= limit {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme tui.Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))
	typeStyle, desc := describeEvent(e, theme)
	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-15s", e.Type)), desc)
}

// describeEvent picks a colour and a one-line summary for each event type.
func describeEvent(e events.Event, theme tui.Theme) (lipgloss.Style, string) {
	switch e.Type {
	case events.TypeLog:
		var entry log.Entry
		if json.Unmarshal(e.Data, &entry) == nil {
			style := theme.Dim
			switch entry.Level {
			case "ERROR":
				style = theme.Failed
			case "WARN":
				style = theme.Warn
			}
			return style, entry.Message
		}

	case events.TypeJob:
		var entry journal.Entry
		if json.Unmarshal(e.Data, &entry) == nil {
			style := theme.Failed
			if entry.Outcome == journal.Printed {
				style = theme.OK
			} else if entry.Outcome == journal.AckFailed {
				style = theme.Warn
			}
			desc := fmt.Sprintf("[%s] %s %dB", shortID(entry.JobID), entry.Outcome, entry.Bytes)
			if entry.Error != "" {
				desc += " " + entry.Error
			}
			return style, desc
		}

	case events.TypePoll:
		var p struct {
			StatusCode int    `json:"status_code"`
			Retrieved  int    `json:"retrieved"`
			Printed    int    `json:"printed"`
			Error      string `json:"error"`
		}
		if json.Unmarshal(e.Data, &p) == nil {
			if p.Error != "" {
				return theme.Failed, p.Error
			}
			return theme.Dim, fmt.Sprintf("%d: %d retrieved, %d printed", p.StatusCode, p.Retrieved, p.Printed)
		}

	case events.TypePrinterLink:
		var l struct {
			State string `json:"state"`
			Error string `json:"error"`
		}
		if json.Unmarshal(e.Data, &l) == nil {
			if l.State == "connected" {
				return theme.OK, l.State
			}
			return theme.Failed, strings.TrimSpace(l.State + " " + l.Error)
		}

	case events.TypePrinterStatus:
		var s printer.Status
		if json.Unmarshal(e.Data, &s) == nil {
			return theme.Highlight, s.String()
		}
	}

	raw := string(e.Data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return theme.Dim, raw
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
