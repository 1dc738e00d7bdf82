// Package verify coordinates the triangular verification protocol: a blind
// code review by one agent call, then a requirements-vs-review discrepancy
// report by a second. The coordinator never inspects code itself.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentloop/agentloop/internal/agent"
	"github.com/agentloop/agentloop/internal/fsutil"
	"github.com/agentloop/agentloop/internal/logger"
)

// PassMarker is the reserved completion token. Verification passes if and
// only if the discrepancy artifact contains it verbatim. The containment
// check is deliberate: the original protocol accepts the token anywhere in
// the output, not just on its own line.
const PassMarker = "TRIANGULAR_PASS"

// Artifact filenames written under the output directory.
const (
	BlindReviewFile = "blind-review.md"
	DiscrepancyFile = "discrepancy-report.md"
)

// Opts configures one verification run.
type Opts struct {
	RequirementsFile string
	OutputDir        string
	ChangedFiles     []string
	InstructionFiles []string
	DesignDocs       []string
	Timeout          time.Duration
	MaxRetries       int
}

// Coordinator drives the two verification phases through the agent runner.
type Coordinator struct {
	runner agent.Runner
	log    *logger.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(runner agent.Runner, log *logger.Logger) *Coordinator {
	return &Coordinator{runner: runner, log: log}
}

// Run executes both phases and returns the verdict. It fails closed: any
// agent-call error yields passed=false with the error for logging.
func (c *Coordinator) Run(opts Opts) (bool, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return false, fmt.Errorf("create output dir: %w", err)
	}

	c.log.Info("started triangular verification",
		"requirements", opts.RequirementsFile,
		"changed_files", len(opts.ChangedFiles))

	// Phase B: blind review. The reviewer sees code references but never
	// the requirements document.
	c.log.PhaseStart("blind_review", 0)
	reviewOut, err := c.runner.Invoke(c.blindReviewPrompt(opts), agent.InvokeOpts{
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
	})
	if err != nil {
		c.log.PhaseEnd("blind_review", "fail", 0)
		return false, fmt.Errorf("blind review: %w", err)
	}
	blindPath := filepath.Join(opts.OutputDir, BlindReviewFile)
	if err := fsutil.WriteAtomic(blindPath, []byte(reviewOut)); err != nil {
		return false, fmt.Errorf("save blind review: %w", err)
	}
	c.log.PhaseEnd("blind_review", "completed", 0)

	// Phase C: discrepancy report. The comparator sees requirements and
	// the blind review but never the code.
	c.log.PhaseStart("discrepancy_report", 0)
	reportOut, err := c.runner.Invoke(c.discrepancyPrompt(opts, blindPath), agent.InvokeOpts{
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
	})
	if err != nil {
		c.log.PhaseEnd("discrepancy_report", "fail", 0)
		return false, fmt.Errorf("discrepancy report: %w", err)
	}
	reportPath := filepath.Join(opts.OutputDir, DiscrepancyFile)
	if err := fsutil.WriteAtomic(reportPath, []byte(reportOut)); err != nil {
		return false, fmt.Errorf("save discrepancy report: %w", err)
	}
	c.log.PhaseEnd("discrepancy_report", "completed", 0)

	passed := strings.Contains(reportOut, PassMarker)
	if passed {
		c.log.Info("verification result", "result", "pass")
	} else {
		c.log.Info("verification result", "result", "fail", "report", reportPath)
	}
	return passed, nil
}

func (c *Coordinator) blindReviewPrompt(opts Opts) string {
	var b strings.Builder

	var contextLines []string
	if len(opts.InstructionFiles) > 0 {
		contextLines = append(contextLines,
			"Project rules/conventions: "+strings.Join(opts.InstructionFiles, " "))
	}
	if len(opts.DesignDocs) > 0 {
		contextLines = append(contextLines,
			"Design documents: "+strings.Join(opts.DesignDocs, " "))
	}
	if len(contextLines) > 0 {
		fmt.Fprintf(&b, "Read the following files for project context:\n%s\n\n",
			strings.Join(contextLines, "\n"))
	}

	fmt.Fprintf(&b, "Do NOT read any requirements document (%s).\n\n", opts.RequirementsFile)
	fmt.Fprintf(&b, "The following files were recently changed or created:\n%s\n\n",
		strings.Join(opts.ChangedFiles, "\n"))
	b.WriteString(`For each file:
1. Describe what this code does (behavior and intent, not just structure)
2. List any convention/rule violations found in the project rules
3. List potential issues, edge cases, or bugs

Output your analysis as structured markdown.`)
	return b.String()
}

func (c *Coordinator) discrepancyPrompt(opts Opts, blindPath string) string {
	return fmt.Sprintf(`You are the comparator in a triangular verification process.

Read these two documents carefully:
1. %s (original requirements — the source of truth)
2. %s (blind code analysis by another agent)

Do NOT read any code files directly.

Compare them and produce a discrepancy report with these sections:

## Requirements Met
List each requirement confirmed by the blind review, with evidence.

## Requirements Missed
Requirements present in the requirements doc but NOT reflected in the blind review.

## Extra Behavior
Behavior described in the blind review but NOT in the requirements.

## Potential Bugs
Where the blind review contradicts or conflicts with requirements.

## Verdict
If ALL requirements are met and no critical issues found, output exactly on its own line:
%s

Otherwise, list each issue that must be fixed.`, opts.RequirementsFile, blindPath, PassMarker)
}
