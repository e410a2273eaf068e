// Package recognizer invokes the external recognition tool as a child
// process and captures its exit code and combined output.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pagekit/recognize-gw/internal/log"
)

const (
	// maxOutputBytes caps the combined stdout/stderr captured per invocation.
	maxOutputBytes = 64 * 1024

	// defaultGrace is the time a cancelled child gets between SIGTERM and
	// SIGKILL.
	defaultGrace = 5 * time.Second
)

// Runner executes the recognizer with an argument list. A non-zero exit code
// is returned as data, not as an error; err is non-nil only when the process
// could not be spawned, reaped, or was cancelled.
type Runner interface {
	Run(ctx context.Context, args []string) (exitCode int, output []byte, err error)
}

// CLI runs a recognizer binary found at a fixed path.
type CLI struct {
	command string
	grace   time.Duration
	logger  *slog.Logger
}

var _ Runner = (*CLI)(nil)

// NewCLI creates a runner for the given command. grace <= 0 uses the default
// termination grace period.
func NewCLI(command string, grace time.Duration) *CLI {
	if grace <= 0 {
		grace = defaultGrace
	}
	return &CLI{
		command: command,
		grace:   grace,
		logger:  log.WithComponent("recognizer"),
	}
}

// Run spawns the tool with no shell interpretation and empty stdin, waits for
// it, and returns its exit code and combined stdout/stderr. The child is
// always reaped: on ctx cancellation it receives SIGTERM, then SIGKILL after
// the grace period, and Run still waits for it before returning.
func (c *CLI) Run(ctx context.Context, args []string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Stdin = nil
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = c.grace

	c.logger.Debug("spawning recognizer", "command", c.command, "args", args)

	out, err := cmd.CombinedOutput()
	out = truncateOutput(out)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, out, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Debug("recognizer exited non-zero", "exit_code", exitErr.ExitCode())
			return exitErr.ExitCode(), out, nil
		}
		return -1, out, fmt.Errorf("run %s: %w", c.command, err)
	}
	return 0, out, nil
}

// Version runs the tool with --version and returns its text output. A
// non-zero exit is an error carrying the captured output.
func (c *CLI) Version(ctx context.Context) (string, error) {
	return c.relay(ctx, "--version")
}

// Help runs the tool with --help and returns its text output.
func (c *CLI) Help(ctx context.Context) (string, error) {
	return c.relay(ctx, "--help")
}

func (c *CLI) relay(ctx context.Context, flag string) (string, error) {
	code, out, err := c.Run(ctx, []string{flag})
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("%s %s exited with code %d: %s",
			c.command, flag, code, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func truncateOutput(b []byte) []byte {
	if len(b) > maxOutputBytes {
		return b[:maxOutputBytes]
	}
	return b
}
