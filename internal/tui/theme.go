// Package tui holds styling shared by the bridge console and `system watch`.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/printbridge/internal/printer"
)

// Theme centralizes all styling for the terminal views.
type Theme struct {
	Border    lipgloss.Style
	Title     lipgloss.Style
	Label     lipgloss.Style
	Highlight lipgloss.Style
	Prompt    lipgloss.Style
	Dim       lipgloss.Style

	OK      lipgloss.Style
	Warn    lipgloss.Style
	Failed  lipgloss.Style
	Unknown lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")
	green := lipgloss.Color("#00FF00")

	return Theme{
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(purple),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		OK:      lipgloss.NewStyle().Foreground(green),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Unknown: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		TickerActive:   lipgloss.NewStyle().Foreground(green),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// Flag renders one printer status bit. good is the value that needs no attention.
func (t Theme) Flag(label string, v printer.Tri, good bool) string {
	val, known := v.Bool()
	switch {
	case !known:
		return t.Unknown.Render(label + " ?")
	case val == good:
		return t.OK.Render(label + " " + v.String())
	default:
		return t.Failed.Render(label + " " + v.String())
	}
}

// LinkState colours a printer link state.
func (t Theme) LinkState(s printer.State) string {
	if s == printer.Connected {
		return t.OK.Render(s.String())
	}
	return t.Failed.Render(s.String())
}

// PrinterFlags renders the four status bits on one line.
func (t Theme) PrinterFlags(s printer.Status) string {
	return strings.Join([]string{
		t.Flag("online", s.Online, true),
		t.Flag("cover open", s.CoverOpen, false),
		t.Flag("paper out", s.PaperOut, false),
		t.Flag("paper low", s.PaperLow, false),
	}, "  ")
}
