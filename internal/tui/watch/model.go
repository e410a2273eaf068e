package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pagekit/recognize-gw/internal/events"
)

// HealthState tracks gateway health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	QueueDepth    int
	Workers       int
	Connected     bool
	LastCheck     time.Time
}

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health   HealthState
	jobs     map[string]*JobState
	jobTable table.Model
	eventLog []events.Event

	ticker   Ticker
	activity Activity
	theme    Theme

	hubEvents chan events.Event

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		jobs:      make(map[string]*JobState),
		jobTable:  newJobTable(),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		activity:  NewActivity(),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
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
		default:
			var cmd tea.Cmd
			m.jobTable, cmd = m.jobTable.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Event log is newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > 50 {
			m.eventLog = m.eventLog[:50]
		}

		m.activity.OnEvent()
		updateJobState(m.jobs, e)
		m.jobTable.SetRows(jobRows(m.jobs))

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.QueueDepth = msg.QueueDepth
		m.health.Workers = msg.Workers
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to recognize-gw..."
	}

	header := m.renderHeader()
	jobsPane := m.theme.Border.Width(m.width - 4).Render(
		m.theme.Title.Render("Jobs") + "\n" + m.jobTable.View(),
	)
	eventPane := m.renderEventStream()

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll Jobs")

	parts := []string{header, jobsPane, eventPane}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	innerWidth := m.width - 4

	statusText := m.theme.StatusOK.Render("HEALTHY")
	statusIcon := "✅"
	if !m.health.Connected {
		statusText = m.theme.StatusFailed.Render("CONNECTING")
		statusIcon = "🔌"
	} else if m.health.Status != "ok" && m.health.Status != "" {
		statusText = m.theme.StatusFailed.Render("DEGRADED")
		statusIcon = "⚠️"
	}

	uptime := formatDuration(time.Duration(m.health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !m.activity.LastEvent().IsZero() {
		lastEventStr = fmt.Sprintf("%s ago", time.Since(m.activity.LastEvent()).Round(time.Second))
	}

	tickerStr := m.theme.Highlight.Render(m.ticker.Current())
	clock := m.theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" RECOGNIZE WATCH %s", tickerStr)

	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  Queue: %d  Workers: %d",
		statusIcon, statusText, uptime, m.health.QueueDepth, m.health.Workers)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, m.activity.Render(m.theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return m.theme.Border.Width(innerWidth).Render(content)
}

func (m Model) renderEventStream() string {
	lines := make([]string, 0, 8)
	for i, e := range m.eventLog {
		if i >= 8 {
			break
		}
		style := m.theme.Dim
		switch e.Type {
		case events.TypeJobCompleted:
			style = m.theme.StatusSucceeded
		case events.TypeJobFailed:
			style = m.theme.StatusFailed
		}
		lines = append(lines, fmt.Sprintf(" %s %s %s",
			m.theme.Dim.Render(e.At.Format("15:04:05")),
			style.Render(e.Type),
			truncate(string(e.Data), m.width-30)))
	}
	if len(lines) == 0 {
		lines = append(lines, m.theme.Dim.Render(" no events yet"))
	}

	return m.theme.Border.Width(m.width - 4).Render(
		m.theme.Title.Render("Events") + "\n" + strings.Join(lines, "\n"),
	)
}

func truncate(s string, max int) string {
	if max < 10 {
		max = 10
	}
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
