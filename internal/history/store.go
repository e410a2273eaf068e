// Package history records the outcome of every completed job in SQLite.
// It is an audit log only: jobs are never re-executed from it and nothing
// here survives as pending work across a restart.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const maxOutputBytes = 64 * 1024

// Status is the terminal state of a recorded job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("job not found")

// Record is one completed job outcome.
type Record struct {
	ID          string
	Status      Status
	FailureKind string
	Reason      string
	Args        []string
	Output      string
	Digest      string
	SubmittedAt time.Time
	CompletedAt time.Time
	DurationMs  int64
}

// Store persists job records.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the SQLite database at path and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, `
CREATE TABLE IF NOT EXISTS job_history (
  id           TEXT PRIMARY KEY,
  status       TEXT NOT NULL,
  failure_kind TEXT,
  reason       TEXT,
  args         JSON,
  output       TEXT,
  digest       TEXT,
  submitted_at TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  duration_ms  INTEGER NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap job_history: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one completed job outcome. Output is truncated to keep rows
// bounded.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	if rec.Status != StatusSucceeded && rec.Status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", rec.Status)
	}

	output := rec.Output
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes]
	}

	var argsJSON any
	if len(rec.Args) > 0 {
		b, err := json.Marshal(rec.Args)
		if err != nil {
			return fmt.Errorf("marshal args: %w", err)
		}
		argsJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO job_history(
  id, status, failure_kind, reason, args, output, digest, submitted_at, completed_at, duration_ms
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, rec.ID, rec.Status, nullable(rec.FailureKind), nullable(rec.Reason), argsJSON, nullable(output),
		nullable(rec.Digest),
		rec.SubmittedAt.UTC().Format(time.RFC3339Nano),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMs)
	if err != nil {
		return fmt.Errorf("insert job_history: %w", err)
	}
	return nil
}

// Get returns the record for jobID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, status, failure_kind, reason, args, output, digest, submitted_at, completed_at, duration_ms
FROM job_history
WHERE id = ?;
`, jobID)

	var (
		rec          Record
		statusS      string
		failureKind  sql.NullString
		reason       sql.NullString
		argsJSON     sql.NullString
		output       sql.NullString
		digest       sql.NullString
		submittedAtS string
		completedAtS string
	)
	err := row.Scan(&rec.ID, &statusS, &failureKind, &reason, &argsJSON, &output, &digest,
		&submittedAtS, &completedAtS, &rec.DurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job_history row: %w", err)
	}

	rec.Status = Status(statusS)
	rec.FailureKind = failureKind.String
	rec.Reason = reason.String
	rec.Output = output.String
	rec.Digest = digest.String
	if argsJSON.Valid {
		if err := json.Unmarshal([]byte(argsJSON.String), &rec.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, submittedAtS); err == nil {
		rec.SubmittedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, completedAtS); err == nil {
		rec.CompletedAt = t
	}
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
