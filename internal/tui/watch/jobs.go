package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/pagekit/recognize-gw/internal/events"
)

// JobState is the observed lifecycle of one job, reconstructed from the
// event stream.
type JobState struct {
	ID         string
	Status     string
	Images     int
	Reason     string
	EnqueuedAt time.Time
	DoneAt     time.Time
	DurationMs int64
}

type jobEventData struct {
	JobID      string `json:"job_id"`
	Images     int    `json:"images"`
	Reason     string `json:"reason"`
	Kind       string `json:"kind"`
	DurationMs int64  `json:"duration_ms"`
}

// updateJobState folds one event into the job map.
func updateJobState(jobs map[string]*JobState, e events.Event) {
	var data jobEventData
	if err := json.Unmarshal(e.Data, &data); err != nil || data.JobID == "" {
		return
	}

	st, ok := jobs[data.JobID]
	if !ok {
		st = &JobState{ID: data.JobID, Status: "queued", EnqueuedAt: e.At}
		jobs[data.JobID] = st
	}

	switch e.Type {
	case events.TypeJobEnqueued:
		st.Status = "queued"
		st.Images = data.Images
	case events.TypeJobCompleted:
		st.Status = "succeeded"
		st.DoneAt = e.At
		st.DurationMs = data.DurationMs
	case events.TypeJobFailed:
		st.Status = "failed"
		st.DoneAt = e.At
		st.DurationMs = data.DurationMs
		st.Reason = data.Reason
		if data.Kind != "" {
			st.Reason = data.Kind + ": " + data.Reason
		}
	}
}

// newJobTable builds the bubbles table used for the jobs pane.
func newJobTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Job", Width: 36},
			{Title: "Status", Width: 10},
			{Title: "Imgs", Width: 4},
			{Title: "Duration", Width: 10},
			{Title: "Reason", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	return t
}

// jobRows renders the job map into table rows, newest first.
func jobRows(jobs map[string]*JobState) []table.Row {
	states := make([]*JobState, 0, len(jobs))
	for _, st := range jobs {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].EnqueuedAt.After(states[j].EnqueuedAt)
	})

	rows := make([]table.Row, 0, len(states))
	for _, st := range states {
		icon := "…"
		switch st.Status {
		case "succeeded":
			icon = "✓"
		case "failed":
			icon = "✗"
		}
		duration := ""
		if st.DurationMs > 0 {
			duration = fmt.Sprintf("%dms", st.DurationMs)
		}
		rows = append(rows, table.Row{
			icon,
			st.ID,
			st.Status,
			fmt.Sprintf("%d", st.Images),
			duration,
			st.Reason,
		})
	}
	return rows
}
