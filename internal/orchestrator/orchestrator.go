// Package orchestrator implements InstanceOrchestrator: drives up to
// max_attempts AttemptControllers for one Task, stopping early on a clean
// or compile-valid candidate, and picking the best-scoring candidate
// otherwise. Grounded on execute_code_cli's outer attempt loop.
package orchestrator

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/re-cinq/patchwash/internal/bench"
)

// Attempter runs one attempt for a Task, returning a Candidate. Satisfied
// by *attempt.Controller; kept as an interface here so Orchestrator can be
// driven by a fake in tests without standing up a real workspace.
type Attempter interface {
	Run(ctx context.Context, task bench.Task, attemptIndex int, priorAbortReason, priorGateReason string) (bench.Candidate, error)
}

// Orchestrator runs every attempt for one Task and produces its final
// Prediction.
type Orchestrator struct {
	Attempt Attempter
	Config  bench.RunConfig
	Log     *log.Logger
}

// Run drives the per-instance attempt loop, stopping as soon as a
// candidate is clean_resolution (F2P all pass, P2P smoke all pass) or —
// absent test evaluation — gate-valid with a non-empty patch, matching
// the two early-stop conditions in the original.
func (o *Orchestrator) Run(ctx context.Context, task bench.Task) bench.Prediction {
	var candidates []bench.Candidate
	var summaries []bench.AttemptSummary

	priorAbort, priorGate := "", ""

	for i := 1; i <= o.Config.MaxAttempts; i++ {
		candidate, err := o.Attempt.Run(ctx, task, i, priorAbort, priorGate)
		if err != nil {
			if o.Log != nil {
				o.Log.Warn("attempt failed", "instance_id", task.InstanceID, "attempt", i, "err", err)
			}
			summaries = append(summaries, bench.AttemptSummary{AttemptIndex: i})
			continue
		}

		candidates = append(candidates, candidate)
		summaries = append(summaries, candidate.Summary())
		priorAbort = candidate.LoopAbortReason
		priorGate = candidate.Gate.Reason

		if candidate.Tests.CleanResolution {
			break
		}
		if candidate.Gate.Valid && len(candidate.Patch) > 0 && !candidate.Tests.Ran {
			break
		}
	}

	if len(candidates) == 0 {
		return bench.DegeneratePrediction(task.InstanceID, summaries)
	}

	best := bench.Best(candidates)
	c := candidates[best]

	severity := c.Gate.Severity
	return bench.Prediction{
		InstanceID:        task.InstanceID,
		Prediction:        c.Patch,
		AttemptsUsed:      len(summaries),
		LoopAbortReason:   c.LoopAbortReason,
		F2PPassRate:       c.Tests.F2PPassRate,
		P2PSmokeFailures:  c.Tests.P2PSmokeFailed,
		CleanResolution:   c.Tests.CleanResolution,
		PatchGateValid:    c.Gate.Valid,
		PatchGateReason:   c.Gate.Reason,
		PatchGateSeverity: severity,
		AttemptSummaries:  summaries,
	}
}
