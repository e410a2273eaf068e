// Package workspace manages the ephemeral per-job directories that hold
// materialized inputs and the recognizer's output file.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagekit/recognize-gw/internal/job"
)

// Prefix is the fixed name prefix of every workspace directory. MkdirTemp
// appends a process-unique random suffix, so concurrent jobs never collide.
const Prefix = "recognize-"

// OutputFilename is the file the recognizer is asked to write inside the
// workspace.
const OutputFilename = "output.xml"

// Workspace describes one materialized job directory. Exactly one worker
// owns it from Create to Destroy.
type Workspace struct {
	JobID        string
	Dir          string
	DocumentPath string
	ImagePaths   []string
	OutputPath   string
}

// SweepReport summarizes a sweep run.
type SweepReport struct {
	DeletedDirs int
}

// Manager governs workspace lifecycle.
type Manager interface {
	// Create allocates a fresh directory and writes every job input into it.
	Create(ctx context.Context, jb *job.Job) (Workspace, error)

	// Destroy removes the workspace directory. Best-effort: callers log
	// failures, they never abort a job over them.
	Destroy(ws Workspace) error

	// Sweep removes workspace directories older than olderThan.
	Sweep(ctx context.Context, olderThan time.Duration) (SweepReport, error)
}

// fsManager is the local-disk Manager implementation.
type fsManager struct {
	baseDir string
	now     func() time.Time
}

var _ Manager = (*fsManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at baseDir.
func NewFSManager(baseDir string) (*fsManager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}

	return &fsManager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
	}, nil
}

// Create allocates the directory and writes the job's document and images
// under their sanitized base filenames.
func (m *fsManager) Create(ctx context.Context, jb *job.Job) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace base directory: %w", err)
	}

	dir, err := os.MkdirTemp(m.baseDir, Prefix)
	if err != nil {
		return Workspace{}, fmt.Errorf("create workspace for job %q: %w", jb.ID, err)
	}

	ws := Workspace{
		JobID:      jb.ID,
		Dir:        dir,
		OutputPath: filepath.Join(dir, OutputFilename),
	}

	write := func(in job.Input) (string, error) {
		name, err := sanitizeName(in.Name)
		if err != nil {
			return "", err
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, in.Data, 0o644); err != nil {
			return "", fmt.Errorf("write input %q: %w", name, err)
		}
		return path, nil
	}

	if jb.Document != nil {
		path, err := write(*jb.Document)
		if err != nil {
			_ = os.RemoveAll(dir)
			return Workspace{}, err
		}
		ws.DocumentPath = path
	}
	for _, img := range jb.Images {
		path, err := write(img)
		if err != nil {
			_ = os.RemoveAll(dir)
			return Workspace{}, err
		}
		ws.ImagePaths = append(ws.ImagePaths, path)
	}

	return ws, nil
}

// Destroy removes the workspace directory tree.
func (m *fsManager) Destroy(ws Workspace) error {
	if ws.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("remove workspace %q: %w", ws.Dir, err)
	}
	return nil
}

// Sweep removes workspace directories whose modification time is older than
// olderThan. Covers debug-retained directories and any leaked by a crash.
func (m *fsManager) Sweep(ctx context.Context, olderThan time.Duration) (SweepReport, error) {
	if err := ctx.Err(); err != nil {
		return SweepReport{}, err
	}
	if olderThan <= 0 {
		return SweepReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return SweepReport{}, nil
	}
	if err != nil {
		return SweepReport{}, fmt.Errorf("read workspace base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := SweepReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), Prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(m.baseDir, entry.Name())); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

// sanitizeName reduces a client-supplied filename to its base component and
// rejects anything that could escape the workspace.
func sanitizeName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("input filename %q is invalid", name)
	}
	if base == OutputFilename {
		return "", fmt.Errorf("input filename %q collides with the output file", name)
	}
	return base, nil
}
