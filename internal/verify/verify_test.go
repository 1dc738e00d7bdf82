package verify

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentloop/agentloop/internal/agent"
	"github.com/agentloop/agentloop/internal/logger"
)

// scriptedRunner replays canned responses per call.
type scriptedRunner struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedRunner) Invoke(prompt string, opts agent.InvokeOpts) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var out string
	if i < len(s.responses) {
		out = s.responses[i]
	}
	return out, err
}

func testOpts(t *testing.T) Opts {
	t.Helper()
	return Opts{
		RequirementsFile: "requirements.md",
		OutputDir:        t.TempDir(),
		ChangedFiles:     []string{"src/a.go", "src/b.go"},
		InstructionFiles: []string{"CLAUDE.md"},
		DesignDocs:       []string{"docs/design.md"},
		Timeout:          time.Second,
		MaxRetries:       1,
	}
}

func TestRunPass(t *testing.T) {
	runner := &scriptedRunner{responses: []string{
		"## Analysis\nfile does X",
		"## Verdict\nAll good.\n" + PassMarker + "\n",
	}}
	c := NewCoordinator(runner, logger.Nop())
	opts := testOpts(t)

	passed, err := c.Run(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !passed {
		t.Error("expected pass")
	}

	// Both artifacts are persisted.
	review, err := os.ReadFile(filepath.Join(opts.OutputDir, BlindReviewFile))
	if err != nil {
		t.Fatalf("read blind review: %v", err)
	}
	if !strings.Contains(string(review), "file does X") {
		t.Errorf("unexpected blind review: %s", review)
	}
	report, err := os.ReadFile(filepath.Join(opts.OutputDir, DiscrepancyFile))
	if err != nil {
		t.Fatalf("read discrepancy report: %v", err)
	}
	if !strings.Contains(string(report), PassMarker) {
		t.Errorf("unexpected report: %s", report)
	}
}

func TestRunMarkerAnywhereCounts(t *testing.T) {
	// The verdict check is containment, not line-anchored.
	runner := &scriptedRunner{responses: []string{
		"review",
		"prose before " + PassMarker + " prose after",
	}}
	c := NewCoordinator(runner, logger.Nop())

	passed, err := c.Run(testOpts(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !passed {
		t.Error("embedded marker should still count as a pass")
	}
}

func TestRunFailWithoutMarker(t *testing.T) {
	runner := &scriptedRunner{responses: []string{
		"review",
		"## Requirements Missed\n- FR-2 not implemented",
	}}
	c := NewCoordinator(runner, logger.Nop())

	passed, err := c.Run(testOpts(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if passed {
		t.Error("report without marker must fail")
	}
}

func TestRunFailsClosedOnAgentError(t *testing.T) {
	runner := &scriptedRunner{
		responses: []string{""},
		errs:      []error{errors.New("agent unavailable")},
	}
	c := NewCoordinator(runner, logger.Nop())
	opts := testOpts(t)

	passed, err := c.Run(opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if passed {
		t.Error("agent failure must never pass verification")
	}
	if len(runner.prompts) != 1 {
		t.Errorf("second phase should not run after first fails, got %d calls", len(runner.prompts))
	}
	if _, statErr := os.Stat(filepath.Join(opts.OutputDir, DiscrepancyFile)); statErr == nil {
		t.Error("no discrepancy report should exist after a failed blind review")
	}
}

func TestBlindReviewPromptIsolation(t *testing.T) {
	runner := &scriptedRunner{responses: []string{"review", PassMarker}}
	c := NewCoordinator(runner, logger.Nop())
	opts := testOpts(t)

	if _, err := c.Run(opts); err != nil {
		t.Fatal(err)
	}

	blind := runner.prompts[0]
	if !strings.Contains(blind, "Do NOT read any requirements document (requirements.md)") {
		t.Errorf("blind prompt must forbid the requirements doc:\n%s", blind)
	}
	for _, f := range opts.ChangedFiles {
		if !strings.Contains(blind, f) {
			t.Errorf("blind prompt missing changed file %s", f)
		}
	}
	if !strings.Contains(blind, "Project rules/conventions: CLAUDE.md") {
		t.Errorf("blind prompt missing instruction files:\n%s", blind)
	}
	if !strings.Contains(blind, "Design documents: docs/design.md") {
		t.Errorf("blind prompt missing design docs:\n%s", blind)
	}

	report := runner.prompts[1]
	if !strings.Contains(report, "Do NOT read any code files directly") {
		t.Errorf("report prompt must forbid code access:\n%s", report)
	}
	if !strings.Contains(report, PassMarker) {
		t.Errorf("report prompt must name the completion marker:\n%s", report)
	}
	if !strings.Contains(report, filepath.Join(opts.OutputDir, BlindReviewFile)) {
		t.Errorf("report prompt must point at the blind review:\n%s", report)
	}
}
