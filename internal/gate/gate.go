// Package gate models and executes quality gates: shell commands, plugin
// scripts, and in-process callables, in sequential fast-fail or parallel
// collect-all mode.
package gate

import "time"

// Kind discriminates the closed set of gate execution strategies.
type Kind int

const (
	KindShell Kind = iota
	KindPlugin
	KindCallable
)

// Func is an in-process callable gate returning pass/fail and a message.
type Func func() (bool, string)

// Gate is one named unit of verification. Identity is the name, unique
// within a run. Immutable once registered.
type Gate struct {
	Name    string
	Kind    Kind
	Command string // shell and plugin gates; empty means skip
	Fn      Func   // callable gates only
}

// Shell builds a shell-command gate.
func Shell(name, command string) Gate {
	return Gate{Name: name, Kind: KindShell, Command: command}
}

// Plugin builds a plugin-script gate.
func Plugin(name, command string) Gate {
	return Gate{Name: name, Kind: KindPlugin, Command: command}
}

// Callable builds an in-process gate.
func Callable(name string, fn Func) Gate {
	return Gate{Name: name, Kind: KindCallable, Fn: fn}
}

// Status is the outcome tag of one gate execution.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
	StatusBlocked Status = "blocked"
)

// Blocking reports whether the status counts against the overall gate pass.
func (s Status) Blocking() bool {
	return s == StatusFail || s == StatusBlocked
}

// Result is the outcome of exactly one gate execution. Never mutated.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Report aggregates one gate-set execution.
type Report struct {
	Passed  bool
	Results []Result
	// Failure is the combined failure text for the feedback artifact:
	// the single failing gate's output in sequential mode, every failing
	// gate's output in parallel mode.
	Failure string
}
