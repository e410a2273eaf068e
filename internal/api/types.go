package api

import "time"

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	Workers       int    `json:"workers"`
}

// JobRecordResponse is returned by GET /jobs/{jobID}.
type JobRecordResponse struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Args        []string  `json:"args,omitempty"`
	Output      string    `json:"output,omitempty"`
	Digest      string    `json:"digest,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}
