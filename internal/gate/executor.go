package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentloop/agentloop/internal/logger"
)

// outputLimit caps how much output a Result retains. The failure report
// for the feedback artifact keeps the full text.
const outputLimit = 500

// Executor runs gate sets in the project directory.
type Executor struct {
	cmd CommandRunner
	dir string
	log *logger.Logger
}

// NewExecutor creates an Executor running commands in dir.
func NewExecutor(cmd CommandRunner, dir string, log *logger.Logger) *Executor {
	return &Executor{cmd: cmd, dir: dir, log: log}
}

// Run executes the gates and reduces their outcomes. In sequential mode
// execution stops at the first blocking failure and later gates produce no
// Result. In parallel mode every gate runs to completion with its own
// timeout and the result count equals the gate count.
func (e *Executor) Run(gates []Gate, parallel bool, timeout time.Duration) Report {
	if len(gates) == 0 {
		e.log.Info("no quality gates configured — skipping")
		return Report{Passed: true}
	}
	if parallel {
		return e.runParallel(gates, timeout)
	}
	return e.runSequential(gates, timeout)
}

func (e *Executor) runSequential(gates []Gate, timeout time.Duration) Report {
	report := Report{Passed: true}
	for _, g := range gates {
		e.log.Info("running gate", "gate", g.Name)
		res, full := e.runOne(g, timeout)
		report.Results = append(report.Results, res)
		e.logResult(res)

		if res.Status.Blocking() {
			report.Passed = false
			// Callable gates have no command line to show.
			if g.Command != "" {
				report.Failure = fmt.Sprintf("%s (%s) FAILED:\n%s", g.Name, g.Command, full)
			} else {
				report.Failure = fmt.Sprintf("%s FAILED:\n%s", g.Name, full)
			}
			break
		}
	}
	return report
}

func (e *Executor) runParallel(gates []Gate, timeout time.Duration) Report {
	e.log.Info("running gates in parallel", "count", len(gates))

	results := make([]Result, len(gates))
	fullOutputs := make([]string, len(gates))

	var wg sync.WaitGroup
	for i, g := range gates {
		wg.Add(1)
		go func(i int, g Gate) {
			defer wg.Done()
			results[i], fullOutputs[i] = e.runOne(g, timeout)
		}(i, g)
	}
	wg.Wait()

	report := Report{Passed: true, Results: results}
	var failures []string
	for i, res := range results {
		e.logResult(res)
		if res.Status.Blocking() {
			report.Passed = false
			failures = append(failures, fmt.Sprintf("%s FAILED:\n%s", res.Name, fullOutputs[i]))
		}
	}
	report.Failure = strings.Join(failures, "\n\n")
	return report
}

// runOne executes a single gate and returns its Result plus the untruncated
// output for failure reporting.
func (e *Executor) runOne(g Gate, timeout time.Duration) (Result, string) {
	start := time.Now()

	var status Status
	var output string
	switch g.Kind {
	case KindCallable:
		status, output = e.runCallable(g)
	default:
		status, output = e.runCommand(g, timeout)
	}

	return Result{
		Name:     g.Name,
		Status:   status,
		Output:   truncate(output, outputLimit),
		Duration: time.Since(start),
	}, output
}

// runCommand executes a shell or plugin gate. Commands matching the
// injection deny-list are never executed.
func (e *Executor) runCommand(g Gate, timeout time.Duration) (Status, string) {
	if g.Command == "" {
		return StatusSkipped, "no command configured"
	}
	if !safeCommand(g.Command) {
		return StatusBlocked, fmt.Sprintf("BLOCKED: command contains unsafe patterns: %s", g.Command)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.cmd.Run(ctx, e.dir, g.Command)
	if ctx.Err() == context.DeadlineExceeded {
		return StatusFail, fmt.Sprintf("Command timed out after %s: %s", timeout, g.Command)
	}
	if err != nil {
		return StatusFail, fmt.Sprintf("Command failed: %v", err)
	}
	output := stdout + stderr
	if exitCode == 0 {
		return StatusPass, output
	}
	return StatusFail, output
}

// runCallable invokes an in-process gate. A panic is a gate failure, not a
// fatal error.
func (e *Executor) runCallable(g Gate) (status Status, output string) {
	if g.Fn == nil {
		return StatusSkipped, "no callable configured"
	}
	defer func() {
		if r := recover(); r != nil {
			status = StatusFail
			output = fmt.Sprintf("Gate %q panicked: %v", g.Name, r)
		}
	}()
	passed, msg := g.Fn()
	if passed {
		return StatusPass, msg
	}
	return StatusFail, msg
}

func (e *Executor) logResult(res Result) {
	switch res.Status {
	case StatusPass:
		e.log.Info("gate passed", "gate", res.Name, "duration", res.Duration.Round(time.Millisecond).String())
	case StatusSkipped:
		e.log.Info("gate skipped", "gate", res.Name)
	default:
		e.log.Info("gate failed", "gate", res.Name, "status", string(res.Status))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
