package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pagekit/recognize-gw/internal/events"
	"github.com/pagekit/recognize-gw/internal/history"
	"github.com/pagekit/recognize-gw/internal/job"
	"github.com/pagekit/recognize-gw/internal/log"
	"github.com/pagekit/recognize-gw/internal/pagexml"
	"github.com/pagekit/recognize-gw/internal/queue"
	"github.com/pagekit/recognize-gw/internal/recognizer"
	"github.com/pagekit/recognize-gw/internal/workspace"
)

// Recorder persists completed job outcomes. Optional.
type Recorder interface {
	Record(ctx context.Context, rec history.Record) error
}

// Publisher broadcasts job lifecycle events. Optional.
type Publisher interface {
	Publish(eventType string, data any)
}

// Config holds pool settings fixed at boot.
type Config struct {
	// Workers is the number of long-lived worker goroutines.
	Workers int

	// Debug retains workspaces after job completion for inspection.
	Debug bool

	// JobTimeout bounds one recognizer invocation. Zero disables the bound.
	JobTimeout time.Duration
}

// Pool runs a fixed set of workers over a shared queue. No dynamic resizing.
type Pool struct {
	queue      *queue.Queue
	workspaces workspace.Manager
	runner     recognizer.Runner
	recorder   Recorder
	hub        Publisher
	cfg        Config
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// New creates a pool. recorder and hub may be nil.
func New(q *queue.Queue, ws workspace.Manager, r recognizer.Runner, recorder Recorder, hub Publisher, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Pool{
		queue:      q,
		workspaces: ws,
		runner:     r,
		recorder:   recorder,
		hub:        hub,
		cfg:        cfg,
		logger:     log.WithComponent("dispatch"),
	}
}

// Start launches the workers. They stop dequeuing when ctx is cancelled;
// in-flight jobs run to completion so no workspace is torn down mid-write.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool starting", "workers", p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until every worker has finished its current iteration and
// exited. Call after cancelling the Start context.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()

	logger := log.WithWorker(n)
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	for {
		jb, err := p.queue.Dequeue(ctx)
		if err != nil {
			// Shutdown signal. The only Dequeue error is ctx cancellation.
			return
		}
		p.runJob(ctx, jb, logger)
	}
}

// runJob executes one job and deposits exactly one result, whatever happens.
func (p *Pool) runJob(ctx context.Context, jb *job.Job, logger *slog.Logger) {
	jobLogger := logger.With("job_id", jb.ID, "digest", jb.Digest)
	jobLogger.Info("executing job", "images", len(jb.Images), "has_document", jb.Document != nil)

	started := time.Now()

	var res job.Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				jobLogger.Error("worker iteration panicked", "panic", r)
				res = job.Failed(job.InternalFailure(fmt.Sprintf("internal error: %v", r)))
			}
		}()
		res = p.execute(ctx, jb, jobLogger)
	}()

	jb.Deposit(res)

	duration := time.Since(started)
	if res.OK() {
		jobLogger.Info("job completed", "duration_ms", duration.Milliseconds())
	} else {
		jobLogger.Warn("job failed",
			"kind", res.Failure.Kind,
			"reason", res.Failure.Reason,
			"duration_ms", duration.Milliseconds(),
		)
	}

	p.publish(jb, res, duration)
	p.record(jb, res, started)
}

// execute drives one workspace/invoke/collect cycle. Every failure path
// returns a Failure result; cleanup always runs unless debug retention is on.
func (p *Pool) execute(ctx context.Context, jb *job.Job, logger *slog.Logger) job.Result {
	ws, err := p.workspaces.Create(ctx, jb)
	if err != nil {
		return job.Failed(job.WorkspaceFailure(err))
	}

	defer func() {
		if p.cfg.Debug {
			logger.Info("debug mode: retaining workspace", "dir", ws.Dir)
			return
		}
		if err := p.workspaces.Destroy(ws); err != nil {
			// Best-effort. A stuck directory is the sweeper's problem.
			logger.Warn("failed to remove workspace", "dir", ws.Dir, "error", err)
		}
	}()

	args := buildArgs(jb, ws)

	// The run context deliberately survives pool shutdown so an in-flight
	// child is not killed mid-write during a graceful drain.
	runCtx := context.WithoutCancel(ctx)
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, p.cfg.JobTimeout)
		defer cancel()
	}

	exitCode, output, err := p.runner.Run(runCtx, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return job.Failed(&job.Failure{
				Kind:   job.FailureExec,
				Reason: fmt.Sprintf("recognizer timed out after %v", p.cfg.JobTimeout),
				Args:   args,
				Output: strings.TrimSpace(string(output)),
			})
		}
		return job.Failed(job.InternalFailure(fmt.Sprintf("recognizer spawn failed: %v", err)))
	}

	if exitCode != 0 {
		return job.Failed(job.ExecFailure(args, strings.TrimSpace(string(output)), exitCode))
	}

	data, err := os.ReadFile(ws.OutputPath)
	if err != nil {
		return job.Failed(job.OutputFailure(fmt.Errorf("read output file: %w", err)))
	}
	doc, err := pagexml.Parse(data)
	if err != nil {
		return job.Failed(job.OutputFailure(err))
	}
	return job.Succeeded(doc)
}

// buildArgs assembles the recognizer command line: positional inputs (the
// markup document when present, otherwise every image), then the caller's
// options, then the explicit output path.
func buildArgs(jb *job.Job, ws workspace.Workspace) []string {
	args := make([]string, 0, len(ws.ImagePaths)+len(jb.Options)+3)
	if ws.DocumentPath != "" {
		args = append(args, ws.DocumentPath)
	} else {
		args = append(args, ws.ImagePaths...)
	}
	args = append(args, jb.Options...)
	args = append(args, "-o", ws.OutputPath)
	return args
}

func (p *Pool) publish(jb *job.Job, res job.Result, duration time.Duration) {
	if p.hub == nil {
		return
	}
	data := map[string]any{
		"job_id":      jb.ID,
		"digest":      jb.Digest,
		"duration_ms": duration.Milliseconds(),
	}
	if res.OK() {
		p.hub.Publish(events.TypeJobCompleted, data)
		return
	}
	data["kind"] = string(res.Failure.Kind)
	data["reason"] = res.Failure.Reason
	p.hub.Publish(events.TypeJobFailed, data)
}

func (p *Pool) record(jb *job.Job, res job.Result, started time.Time) {
	if p.recorder == nil {
		return
	}

	rec := history.Record{
		ID:          jb.ID,
		Status:      history.StatusSucceeded,
		Digest:      jb.Digest,
		SubmittedAt: jb.SubmittedAt,
		CompletedAt: time.Now().UTC(),
		DurationMs:  time.Since(started).Milliseconds(),
	}
	if !res.OK() {
		rec.Status = history.StatusFailed
		rec.FailureKind = string(res.Failure.Kind)
		rec.Reason = res.Failure.Reason
		rec.Args = res.Failure.Args
		rec.Output = res.Failure.Output
	}

	// Recording must not hold up the worker or fail the job.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.recorder.Record(ctx, rec); err != nil {
		p.logger.Error("failed to record job outcome", "job_id", jb.ID, "error", err)
	}
}
