package watch

import (
	"strings"
	"time"

	"github.com/mattjoyce/printbridge/internal/tui"
)

// Ticker alternates frames on every status refresh. A frozen ticker means
// the watch itself has stalled, not the bridge.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"◐", "◓", "◑", "◒"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Activity lights up when events arrive and fades over the following seconds.
type Activity struct {
	level     int
	lastEvent time.Time
}

const activityMax = 5

func (a *Activity) OnEvent(at time.Time) {
	a.level = activityMax
	a.lastEvent = at
}

// Decay drops one light for every two seconds of silence.
func (a *Activity) Decay(now time.Time) {
	if a.level == 0 {
		return
	}
	lit := activityMax - int(now.Sub(a.lastEvent)/(2*time.Second))
	if lit < 0 {
		lit = 0
	}
	if lit < a.level {
		a.level = lit
	}
}

func (a Activity) Render(theme tui.Theme) string {
	var result strings.Builder
	for i := range activityMax {
		if i < a.level {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}
