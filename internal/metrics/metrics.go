// Package metrics records per-iteration pipeline outcomes and writes the
// final metrics.json artifact with a stable wire format.
package metrics

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/agentloop/agentloop/internal/fsutil"
	"github.com/agentloop/agentloop/internal/gate"
)

// FileName is the artifact written once at the end of a run.
const FileName = "metrics.json"

// Iteration outcome values. These are part of the wire format.
const (
	OutcomeConverged     = "converged"
	OutcomeGateFail      = "gate_fail"
	OutcomeVerifyFail    = "verify_fail"
	OutcomeMaxIterations = "max_iterations_reached"
)

// Iteration captures one loop iteration.
type Iteration struct {
	Iteration    int
	Duration     time.Duration
	Phase1Done   bool
	Gates        []gate.Result
	Verification gate.Status
	Outcome      string
}

// Recorder accumulates iterations for a single run. Not safe for concurrent
// use; the pipeline records from one goroutine.
type Recorder struct {
	runID      string
	startedAt  time.Time
	iterations []Iteration
	converged  bool
	finalized  bool
	endedAt    time.Time
}

// NewRecorder starts a run record. The run ID is a fresh UUID.
func NewRecorder() *Recorder {
	return &Recorder{
		runID:     uuid.NewString(),
		startedAt: time.Now(),
	}
}

// RunID returns the identifier assigned to this run.
func (r *Recorder) RunID() string { return r.runID }

// Record appends one iteration.
func (r *Recorder) Record(it Iteration) {
	r.iterations = append(r.iterations, it)
}

// Finalize marks the run complete. Subsequent calls are no-ops so the end
// timestamp is captured exactly once.
func (r *Recorder) Finalize(converged bool) {
	if r.finalized {
		return
	}
	r.finalized = true
	r.converged = converged
	r.endedAt = time.Now()
}

// Converged reports the finalized verdict.
func (r *Recorder) Converged() bool { return r.converged }

// Iterations returns the recorded count.
func (r *Recorder) Iterations() int { return len(r.iterations) }

// Duration returns total run duration; zero until finalized.
func (r *Recorder) Duration() time.Duration {
	if !r.finalized {
		return 0
	}
	return r.endedAt.Sub(r.startedAt)
}

// gateDTO is the wire form of a non-standard gate result.
type gateDTO struct {
	Name     string  `json:"name"`
	Result   string  `json:"result"`
	Output   string  `json:"output"`
	Duration float64 `json:"duration_s"`
}

// iterationDTO is the wire form of one iteration. The three standard gates
// are reported as flat fields; everything else lands in plugin_results.
type iterationDTO struct {
	Iteration          int       `json:"iteration"`
	Duration           float64   `json:"duration_s"`
	Phase1Done         bool      `json:"phase1_done"`
	LintResult         string    `json:"lint_result"`
	TestResult         string    `json:"test_result"`
	SecurityResult     string    `json:"security_result"`
	PluginResults      []gateDTO `json:"plugin_results"`
	VerificationResult string    `json:"verification_result"`
	Outcome            string    `json:"outcome"`
}

type runDTO struct {
	RunID           string         `json:"run_id"`
	StartedAt       string         `json:"started_at"`
	EndedAt         string         `json:"ended_at"`
	TotalDuration   float64        `json:"total_duration_s"`
	TotalIterations int            `json:"total_iterations"`
	Converged       bool           `json:"converged"`
	Iterations      []iterationDTO `json:"iterations"`
}

// Save writes metrics.json into dir. Call after Finalize.
func (r *Recorder) Save(dir string) error {
	out := runDTO{
		RunID:           r.runID,
		StartedAt:       r.startedAt.UTC().Format(time.RFC3339),
		EndedAt:         r.endedAt.UTC().Format(time.RFC3339),
		TotalDuration:   r.endedAt.Sub(r.startedAt).Seconds(),
		TotalIterations: len(r.iterations),
		Converged:       r.converged,
		Iterations:      make([]iterationDTO, 0, len(r.iterations)),
	}
	for _, it := range r.iterations {
		out.Iterations = append(out.Iterations, toDTO(it))
	}
	return fsutil.WriteJSON(filepath.Join(dir, FileName), out)
}

func toDTO(it Iteration) iterationDTO {
	dto := iterationDTO{
		Iteration:          it.Iteration,
		Duration:           it.Duration.Seconds(),
		Phase1Done:         it.Phase1Done,
		LintResult:         string(gate.StatusSkipped),
		TestResult:         string(gate.StatusSkipped),
		SecurityResult:     string(gate.StatusSkipped),
		PluginResults:      []gateDTO{},
		VerificationResult: string(it.Verification),
		Outcome:            it.Outcome,
	}
	for _, res := range it.Gates {
		switch res.Name {
		case "lint":
			dto.LintResult = string(res.Status)
		case "test":
			dto.TestResult = string(res.Status)
		case "security":
			dto.SecurityResult = string(res.Status)
		default:
			dto.PluginResults = append(dto.PluginResults, gateDTO{
				Name:     res.Name,
				Result:   string(res.Status),
				Output:   res.Output,
				Duration: res.Duration.Seconds(),
			})
		}
	}
	return dto
}
