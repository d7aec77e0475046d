package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/printbridge/internal/api"
	"github.com/mattjoyce/printbridge/internal/tui"
)

func renderHeader(snap api.Snapshot, connected bool, ticker Ticker, activity Activity, theme tui.Theme, width int, now time.Time) string {
	innerWidth := width - 4

	stateText := theme.OK.Render("RUNNING")
	switch {
	case !connected:
		stateText = theme.Warn.Render("CONNECTING")
	case !snap.Running:
		stateText = theme.Failed.Render("STOPPED")
	}

	clock := theme.Dim.Render(now.Format("15:04:05"))
	titleText := fmt.Sprintf(" PRINTBRIDGE WATCH %s  %s", theme.Highlight.Render(ticker.Current()), stateText)
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	linkStyle := theme.Failed
	if snap.Printer.Link == "connected" {
		linkStyle = theme.OK
	}
	printerLine := fmt.Sprintf(" %s (%s) %s   %s",
		snap.Printer.Name, snap.Printer.Address,
		linkStyle.Render(orDash(snap.Printer.Link)),
		theme.PrinterFlags(snap.Printer.Status))

	failLine := fmt.Sprintf(" Failures: server %d  printer %d",
		snap.Counters["Server"], snap.Counters["Printer"])
	if lp := snap.LastPoll; lp != nil {
		failLine += fmt.Sprintf("   Last poll %s ago: %d retrieved, %d printed",
			formatDuration(now.Sub(lp.At)), lp.Retrieved, lp.Printed)
		if lp.Error != "" {
			failLine += " " + theme.Failed.Render(lp.Error)
		}
	}

	lastEventStr := "never"
	if !activity.LastEvent().IsZero() {
		lastEventStr = formatDuration(now.Sub(activity.LastEvent())) + " ago"
	}
	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, activity.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		printerLine,
		failLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
