// Package agent wraps the external code-generating agent behind one
// bounded blocking call: per-call timeout, bounded retries, exponential
// backoff. Both the implementation phase and the verification phases go
// through the same Runner.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/agentloop/agentloop/internal/logger"
)

// DefaultBin is the agent CLI invoked by CLIRunner.
const DefaultBin = "claude"

// InvokeOpts bounds a single agent call.
type InvokeOpts struct {
	Timeout    time.Duration // per attempt; re-applied on each retry
	MaxRetries int           // total attempts
}

// Runner invokes the external agent and returns its response text.
type Runner interface {
	Invoke(prompt string, opts InvokeOpts) (string, error)
}

// CallError reports an agent call that failed after all retries.
type CallError struct {
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent call failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("agent call failed after %d attempts", e.Attempts)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// CLIRunner shells out to the agent CLI in headless print mode. Every
// invocation runs in dir so the agent edits the same tree the gates judge.
type CLIRunner struct {
	bin string
	dir string
	log *logger.Logger

	// Test seams.
	execute func(ctx context.Context, prompt string) (stdout, stderr string, exitCode int, err error)
	sleep   func(time.Duration)
}

// NewCLIRunner creates a CLIRunner invoking the default agent binary in dir.
func NewCLIRunner(dir string, log *logger.Logger) *CLIRunner {
	r := &CLIRunner{bin: DefaultBin, dir: dir, log: log, sleep: time.Sleep}
	r.execute = r.run
	return r
}

// Check verifies the agent binary is installed.
func (r *CLIRunner) Check() error {
	if _, err := exec.LookPath(r.bin); err != nil {
		return fmt.Errorf("%q CLI not found in PATH: %w", r.bin, err)
	}
	return nil
}

// Invoke runs the agent with the prompt, retrying with backoff. The same
// timeout is re-applied on each attempt. Exhausted retries surface as a
// *CallError; a missing binary fails immediately.
func (r *CLIRunner) Invoke(prompt string, opts InvokeOpts) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		stdout, stderr, exitCode, err := r.execute(ctx, prompt)
		timedOut := ctx.Err() == context.DeadlineExceeded
		cancel()

		switch {
		case err == nil && exitCode == 0:
			return stdout, nil
		case errors.Is(err, exec.ErrNotFound):
			return "", &CallError{Attempts: attempt, Err: err}
		case timedOut:
			lastErr = fmt.Errorf("timed out after %s", timeout)
			r.log.Warn("agent call timed out", "timeout", timeout.String(), "attempt", attempt)
		case err != nil:
			lastErr = err
			r.log.Warn("agent call failed", "error", err.Error(), "attempt", attempt)
		default:
			lastErr = fmt.Errorf("exit code %d", exitCode)
			r.log.Warn("agent exited non-zero", "exit_code", exitCode, "attempt", attempt)
			if stderr != "" {
				r.log.Warn("agent stderr", "stderr", truncate(stderr, 500))
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			r.log.Info("retrying agent call", "backoff", backoff.String())
			r.sleep(backoff)
		}
	}
	return "", &CallError{Attempts: maxRetries, Err: lastErr}
}

// command builds one agent invocation rooted at the project directory.
func (r *CLIRunner) command(ctx context.Context, prompt string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.bin, "--print", "-p", prompt)
	cmd.Dir = r.dir
	return cmd
}

// run executes one agent attempt.
func (r *CLIRunner) run(ctx context.Context, prompt string) (string, string, int, error) {
	cmd := r.command(ctx, prompt)

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
