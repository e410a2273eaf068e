package watch

import (
	"strings"
	"time"
)

// Ticker rotates through frames once a second to show the UI is alive.
type Ticker struct {
	frames   []string
	index    int
	lastTick time.Time
}

func NewTicker() Ticker {
	return Ticker{
		frames:   []string{"⟲", "⟳"},
		lastTick: time.Now(),
	}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
	t.lastTick = time.Now()
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Activity shows event activity with a decaying dot pattern. Lights up on
// events, fades over time.
type Activity struct {
	dots      int
	lastEvent time.Time
}

func NewActivity() Activity {
	return Activity{}
}

func (a *Activity) OnEvent() {
	a.dots = 5
	a.lastEvent = time.Now()
}

// Decay fades the dots based on time since the last event.
func (a *Activity) Decay() {
	if a.dots == 0 {
		return
	}
	elapsed := time.Since(a.lastEvent)
	switch {
	case elapsed > 10*time.Second:
		a.dots = 0
	case elapsed > 8*time.Second:
		a.dots = 1
	case elapsed > 6*time.Second:
		a.dots = 2
	case elapsed > 4*time.Second:
		a.dots = 3
	case elapsed > 2*time.Second:
		a.dots = 4
	}
}

func (a Activity) Render(theme Theme) string {
	var result strings.Builder
	for i := range 5 {
		if i < a.dots {
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
