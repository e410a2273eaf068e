// Package job defines the envelope that carries one recognition request
// through the work queue, and the result handed back to the submitter.
package job

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/pagekit/recognize-gw/internal/pagexml"
)

// Input is a named byte blob supplied by the client: either the optional
// PAGE XML document or one of the page images.
type Input struct {
	Name string
	Data []byte
}

// Job is the immutable envelope for one recognition job. It is built by the
// HTTP handler, enqueued, and from then on touched only by the worker that
// dequeues it.
type Job struct {
	ID          string
	Document    *Input
	Images      []Input
	Options     []string
	Digest      string
	SubmittedAt time.Time

	result chan Result
}

// New builds a job envelope. At least one input (document or image) must be
// present. Options must already be normalized via ExpandOptions.
func New(doc *Input, images []Input, options []string) (*Job, error) {
	if doc == nil && len(images) == 0 {
		return nil, fmt.Errorf("job has no inputs")
	}

	return &Job{
		ID:          uuid.NewString(),
		Document:    doc,
		Images:      images,
		Options:     options,
		Digest:      digest(doc, images),
		SubmittedAt: time.Now().UTC(),
		result:      make(chan Result, 1),
	}, nil
}

// Deposit hands the job's outcome to the waiting submitter. The channel is
// buffered with capacity one and the assigned worker is the only producer, so
// the send never blocks even when the submitter has gone away.
func (j *Job) Deposit(res Result) {
	j.result <- res
}

// Wait blocks until the job's result is deposited or ctx expires.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-j.result:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// ExpandOptions resolves the two accepted option encodings into a plain
// argument list: either repeated form fields, or a single legacy JSON-array
// string such as '["--psm","3"]'.
func ExpandOptions(values []string) ([]string, error) {
	if len(values) == 1 {
		trimmed := strings.TrimSpace(values[0])
		if strings.HasPrefix(trimmed, "[") {
			var opts []string
			if err := json.Unmarshal([]byte(trimmed), &opts); err != nil {
				return nil, fmt.Errorf("decode options %q: %w", values[0], err)
			}
			return opts, nil
		}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}

// digest fingerprints all job inputs for log and history correlation.
func digest(doc *Input, images []Input) string {
	h := blake3.New()
	write := func(in Input) {
		_, _ = h.Write([]byte(in.Name))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(in.Data)
		_, _ = h.Write([]byte{0})
	}
	if doc != nil {
		write(*doc)
	}
	for _, img := range images {
		write(img)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Result is the outcome of one job: exactly one of Doc or Failure is set.
type Result struct {
	Doc     *pagexml.Document
	Failure *Failure
}

// OK reports whether the job succeeded.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Succeeded wraps a parsed output document.
func Succeeded(doc *pagexml.Document) Result {
	return Result{Doc: doc}
}

// Failed wraps a failure.
func Failed(f *Failure) Result {
	return Result{Failure: f}
}

// FailureKind classifies job failures for history records and logs.
type FailureKind string

const (
	FailureWorkspace FailureKind = "workspace"
	FailureExec      FailureKind = "exec"
	FailureOutput    FailureKind = "output"
	FailureInternal  FailureKind = "internal"
)

// Failure describes why a job did not produce a document. For exec failures
// Args and Output carry the exact command line and the tool's combined
// stdout/stderr.
type Failure struct {
	Kind     FailureKind
	Reason   string
	Args     []string
	Output   string
	ExitCode int
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Message()
}

// Message renders the human-readable reason returned to the client. Exec
// failures include the full argument list, captured output, and exit code.
func (f *Failure) Message() string {
	if f.Kind == FailureExec {
		return fmt.Sprintf("execution failed: command=%q output=%s return_code=%d",
			f.Args, f.Output, f.ExitCode)
	}
	if f.Output != "" {
		return fmt.Sprintf("%s: output=%s", f.Reason, f.Output)
	}
	return f.Reason
}

// ExecFailure builds a failure for a non-zero recognizer exit.
func ExecFailure(args []string, output string, exitCode int) *Failure {
	return &Failure{
		Kind:     FailureExec,
		Reason:   "execution failed",
		Args:     args,
		Output:   output,
		ExitCode: exitCode,
	}
}

// WorkspaceFailure builds a failure for workspace I/O errors.
func WorkspaceFailure(err error) *Failure {
	return &Failure{Kind: FailureWorkspace, Reason: fmt.Sprintf("workspace error: %v", err)}
}

// OutputFailure builds a failure for a missing or unparseable output file.
func OutputFailure(err error) *Failure {
	return &Failure{Kind: FailureOutput, Reason: fmt.Sprintf("output error: %v", err)}
}

// InternalFailure builds a failure for unexpected worker errors.
func InternalFailure(reason string) *Failure {
	return &Failure{Kind: FailureInternal, Reason: reason}
}
