// Package pipeline runs the implement, gate, verify loop until the change
// converges or the iteration budget runs out.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentloop/agentloop/internal/agent"
	"github.com/agentloop/agentloop/internal/config"
	"github.com/agentloop/agentloop/internal/db"
	"github.com/agentloop/agentloop/internal/detect"
	"github.com/agentloop/agentloop/internal/fsutil"
	"github.com/agentloop/agentloop/internal/gate"
	"github.com/agentloop/agentloop/internal/logger"
	"github.com/agentloop/agentloop/internal/metrics"
	"github.com/agentloop/agentloop/internal/verify"
)

// Artifact names kept inside the output directory.
const (
	FeedbackFile = "feedback.txt"
	LoopLogFile  = "loop-execution.log"
)

const noFeedback = "No specific feedback available"

// executor runs a batch of gates.
type executor interface {
	Run(gates []gate.Gate, parallel bool, timeout time.Duration) gate.Report
}

// verifier runs triangular verification.
type verifier interface {
	Run(opts verify.Opts) (bool, error)
}

// Pipeline owns one orchestration run over a project root.
type Pipeline struct {
	root     string
	settings *config.Settings
	det      *detect.Detector
	runner   agent.Runner
	exec     executor
	verifier verifier
	log      *logger.Logger

	custom []gate.Gate
	notify func(runID string, converged bool, iterations int, duration time.Duration)
}

// New wires a Pipeline with the default executor and verifier. Callers may
// replace any collaborator before Run.
func New(root string, settings *config.Settings, log *logger.Logger) *Pipeline {
	runner := agent.NewCLIRunner(root, log)
	return &Pipeline{
		root:     root,
		settings: settings,
		det:      detect.New(root, settings.BaseBranch),
		runner:   runner,
		exec:     gate.NewExecutor(&gate.ExecRunner{}, root, log),
		verifier: verify.NewCoordinator(runner, log),
		log:      log,
	}
}

// AddGate registers an extra gate that runs after the standard three and
// any plugin gates.
func (p *Pipeline) AddGate(g gate.Gate) {
	p.custom = append(p.custom, g)
}

// Run drives the loop. It returns whether the run converged. The context is
// consulted only at phase boundaries so an in-flight agent call or gate
// batch is never killed halfway.
func (p *Pipeline) Run(ctx context.Context) (bool, error) {
	outputDir := p.outputDir()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return false, fmt.Errorf("create output dir: %w", err)
	}

	rec := metrics.NewRecorder()
	events := p.openEvents(outputDir)
	if events != nil {
		defer events.Close()
	}

	converged := false
	defer func() {
		rec.Finalize(converged)
		if err := rec.Save(outputDir); err != nil {
			p.log.Warn("failed to save metrics", "error", err)
		}
		p.log.Info("pipeline finished",
			"converged", converged,
			"iterations", rec.Iterations(),
			"duration", rec.Duration().Round(time.Millisecond).String())
		p.sendWebhook(rec)
	}()

	p.log.Info("pipeline started",
		"run_id", rec.RunID(),
		"project_type", p.det.ProjectType(),
		"max_iterations", p.settings.MaxIterations)
	p.logEvent(events, rec.RunID(), "run_started", 0, p.det.ProjectType())

	gates := p.buildGates()

	for i := 1; i <= p.settings.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			p.logEvent(events, rec.RunID(), "run_cancelled", i, "")
			return false, err
		}

		final := i == p.settings.MaxIterations
		iterStart := time.Now()
		p.log.Info("iteration started", "iteration", i)
		p.logEvent(events, rec.RunID(), "iteration_started", i, "")

		phase1Done := p.implement(i, outputDir)

		if err := ctx.Err(); err != nil {
			p.logEvent(events, rec.RunID(), "run_cancelled", i, "")
			return false, err
		}

		report := p.exec.Run(gates, p.settings.ParallelGates, p.settings.Timeout)
		p.logGateRuns(events, rec.RunID(), i, report.Results)
		if !report.Passed {
			p.writeFeedback(outputDir, report.Failure)
			rec.Record(metrics.Iteration{
				Iteration:    i,
				Duration:     time.Since(iterStart),
				Phase1Done:   phase1Done,
				Gates:        report.Results,
				Verification: gate.StatusSkipped,
				Outcome:      iterationOutcome(metrics.OutcomeGateFail, final),
			})
			p.logEvent(events, rec.RunID(), "gates_failed", i, report.Failure)
			continue
		}

		if err := ctx.Err(); err != nil {
			p.logEvent(events, rec.RunID(), "run_cancelled", i, "")
			return false, err
		}

		passed, err := p.verifier.Run(verify.Opts{
			RequirementsFile: p.settings.RequirementsFile,
			OutputDir:        outputDir,
			ChangedFiles:     p.det.ChangedFiles(),
			InstructionFiles: p.det.InstructionFiles(),
			DesignDocs:       p.det.DesignDocs(),
			Timeout:          p.settings.Timeout,
			MaxRetries:       p.settings.MaxRetries,
		})
		if err != nil {
			// Fail closed: a broken verification phase counts as a fail.
			p.log.Error("verification error", "error", err)
			passed = false
		}

		verifyStatus := gate.StatusFail
		if passed {
			verifyStatus = gate.StatusPass
		}

		if passed {
			converged = true
			rec.Record(metrics.Iteration{
				Iteration:    i,
				Duration:     time.Since(iterStart),
				Phase1Done:   phase1Done,
				Gates:        report.Results,
				Verification: verifyStatus,
				Outcome:      metrics.OutcomeConverged,
			})
			p.clearFeedback(outputDir)
			p.logEvent(events, rec.RunID(), "converged", i, "")
			p.log.Info("=== LOOP_COMPLETE ===", "iteration", i)
			break
		}

		p.writeFeedback(outputDir, p.verificationFeedback(outputDir))
		rec.Record(metrics.Iteration{
			Iteration:    i,
			Duration:     time.Since(iterStart),
			Phase1Done:   phase1Done,
			Gates:        report.Results,
			Verification: verifyStatus,
			Outcome:      iterationOutcome(metrics.OutcomeVerifyFail, final),
		})
		p.logEvent(events, rec.RunID(), "verification_failed", i, "")
	}

	if !converged {
		p.log.Warn("=== MAX ITERATIONS REACHED ===",
			"iterations", p.settings.MaxIterations)
		p.logEvent(events, rec.RunID(), "max_iterations_reached", p.settings.MaxIterations, "")
	}
	return converged, nil
}

// implement runs the agent implementation phase. A failed agent call is
// logged and reported as incomplete; the loop still proceeds to the gates
// so the existing tree gets judged on its merits.
func (p *Pipeline) implement(iteration int, outputDir string) bool {
	p.log.PhaseStart("implement", iteration)
	prompt := p.implementPrompt(iteration, outputDir)
	out, err := p.runner.Invoke(prompt, agent.InvokeOpts{
		Timeout:    p.settings.Timeout,
		MaxRetries: p.settings.MaxRetries,
	})
	if err != nil {
		p.log.Error("implementation call failed", "iteration", iteration, "error", err)
		p.log.PhaseEnd("implement", "fail", iteration)
		return false
	}
	p.appendLoopLog(outputDir, iteration, out)
	p.log.PhaseEnd("implement", "completed", iteration)
	return true
}

func (p *Pipeline) implementPrompt(iteration int, outputDir string) string {
	if iteration == 1 {
		return fmt.Sprintf(`Read %s for the full requirements and implement them completely.

Follow the existing project conventions. Write tests alongside the implementation.`,
			p.settings.PromptFile)
	}

	feedback := noFeedback
	if data, err := os.ReadFile(filepath.Join(outputDir, FeedbackFile)); err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			feedback = s
		}
	}
	return fmt.Sprintf(`Read %s for the full requirements.

Previous iteration (%d) failed with this feedback:
---
%s
---

Fix the issues described above. Do NOT start from scratch.
Read the existing code first, then make targeted fixes only.
After fixing, verify your changes match the requirements.`,
		p.settings.PromptFile, iteration-1, feedback)
}

// buildGates assembles the standard lint/test/security gates, plugin gates,
// then any custom callable gates. The standard three are always present,
// even with no command, so their skip shows up in the metrics.
func (p *Pipeline) buildGates() []gate.Gate {
	gates := []gate.Gate{
		gate.Shell("lint", p.det.LintCmd()),
		gate.Shell("test", p.det.TestCmd()),
		gate.Shell("security", p.det.SecurityCmd()),
	}
	if p.settings.PluginDir != "" {
		gates = append(gates, gate.LoadPlugins(p.settings.PluginDir)...)
	}
	gates = append(gates, p.custom...)
	return gates
}

// verificationFeedback derives the next iteration's feedback from the
// discrepancy report written by the verifier.
func (p *Pipeline) verificationFeedback(outputDir string) string {
	data, err := os.ReadFile(filepath.Join(outputDir, verify.DiscrepancyFile))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return noFeedback
	}
	return string(data)
}

func (p *Pipeline) writeFeedback(outputDir, feedback string) {
	path := filepath.Join(outputDir, FeedbackFile)
	if err := fsutil.WriteAtomic(path, []byte(feedback)); err != nil {
		p.log.Warn("failed to write feedback", "error", err)
	}
}

// clearFeedback removes stale feedback once the run converges.
func (p *Pipeline) clearFeedback(outputDir string) {
	path := filepath.Join(outputDir, FeedbackFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.log.Warn("failed to remove feedback", "error", err)
	}
}

// appendLoopLog keeps a running transcript of agent output per iteration.
func (p *Pipeline) appendLoopLog(outputDir string, iteration int, out string) {
	path := filepath.Join(outputDir, LoopLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		p.log.Warn("failed to open loop log", "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "=== iteration %d (%s) ===\n%s\n", iteration,
		time.Now().UTC().Format(time.RFC3339), out)
}

func (p *Pipeline) outputDir() string {
	if filepath.IsAbs(p.settings.OutputDir) {
		return p.settings.OutputDir
	}
	return filepath.Join(p.root, p.settings.OutputDir)
}

// openEvents opens the run event store. Event recording is best effort; a
// broken store never blocks a run.
func (p *Pipeline) openEvents(outputDir string) *db.DB {
	store, err := db.Open(db.DefaultPath(outputDir))
	if err != nil {
		p.log.Warn("event store unavailable", "error", err)
		return nil
	}
	if err := store.Migrate(); err != nil {
		p.log.Warn("event store migration failed", "error", err)
		store.Close()
		return nil
	}
	return store
}

func (p *Pipeline) logEvent(store *db.DB, runID, event string, iteration int, detail string) {
	if store == nil {
		return
	}
	if err := store.LogRunEvent(runID, event, iteration, detail); err != nil {
		p.log.Warn("failed to record event", "event", event, "error", err)
	}
}

func (p *Pipeline) logGateRuns(store *db.DB, runID string, iteration int, results []gate.Result) {
	if store == nil {
		return
	}
	for _, res := range results {
		err := store.LogGateRun(runID, iteration, res.Name, string(res.Status),
			int(res.Duration.Milliseconds()), res.Output)
		if err != nil {
			p.log.Warn("failed to record gate run", "gate", res.Name, "error", err)
		}
	}
}

// iterationOutcome maps a failure on the final iteration to the exhaustion
// outcome; earlier iterations keep the phase-specific value.
func iterationOutcome(outcome string, final bool) string {
	if final {
		return metrics.OutcomeMaxIterations
	}
	return outcome
}
