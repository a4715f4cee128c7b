// Package agentdriver wires one backend.Backend to a loopguard.Detector,
// driving the turn loop: call the backend, feed its diff/command results
// to the detector, inject warnings into the next observation, retry
// transient backend errors with a fixed backoff, and translate a strict
// loop-abort into a *bench.LoopAbortError. Grounded on
// _run_agent_with_controls.
package agentdriver

import (
	"context"
	"errors"
	"time"

	"github.com/re-cinq/patchwash/internal/backend"
	"github.com/re-cinq/patchwash/internal/bench"
	"github.com/re-cinq/patchwash/internal/loopguard"
)

// Driver runs one backend through a step-limited conversation.
type Driver struct {
	Backend     backend.Backend
	Detector    *loopguard.Detector
	StepLimit   int
	RetryLimit  int
	RetryDelay  time.Duration
	sleep       func(time.Duration)
}

// New builds a Driver for the given backend and RunConfig thresholds.
func New(b backend.Backend, cfg bench.RunConfig) *Driver {
	return &Driver{
		Backend:    b,
		Detector:   loopguard.New(cfg),
		StepLimit:  cfg.StepLimit,
		RetryLimit: cfg.AgentRetryLimit,
		RetryDelay: cfg.AgentRetryBackoff,
		sleep:      time.Sleep,
	}
}

// StepResult carries one turn's outcome back to AttemptController: the
// assistant message, plus Warnings and Done fields that Run leaves unset.
type StepResult struct {
	Message  backend.Message
	Warnings []string
	Done     bool
}

// Run drives the conversation forward one assistant turn, retrying
// transient backend failures up to RetryLimit times with a fixed delay
// between attempts, matching the original's ConnectionError/OSError →
// sleep(30) → retry loop.
func (d *Driver) Run(ctx context.Context, transcript []backend.Message) (StepResult, error) {
	var lastErr error
	for attempt := 0; attempt <= d.RetryLimit; attempt++ {
		msg, err := d.Backend.Step(ctx, transcript)
		if err == nil {
			return StepResult{Message: msg}, nil
		}

		var retryable backend.RetryableError
		if errors.As(err, &retryable) && retryable.Retryable() && attempt < d.RetryLimit {
			lastErr = &bench.AgentTransientError{Err: err}
			if d.sleep != nil {
				d.sleep(d.RetryDelay)
			}
			continue
		}
		return StepResult{}, &bench.AgentFatalError{Err: err}
	}
	return StepResult{}, lastErr
}

// ObserveTurn feeds one turn's executed command and resulting diff to the
// loop detector, returning warnings to inject into the next observation
// and, if the policy and streaks warrant it, a LoopAbortError.
func (d *Driver) ObserveTurn(command string, exitCode int, stdout, stderr, diff string) ([]string, error) {
	cmdDecision := d.Detector.ObserveCommand(command, exitCode, stdout, stderr)
	diffDecision := d.Detector.ObserveDiff(diff)

	warnings := append(cmdDecision.Warnings, diffDecision.Warnings...)

	if cmdDecision.Abort != nil {
		return warnings, &bench.LoopAbortError{Reason: cmdDecision.Abort.Reason}
	}
	if diffDecision.Abort != nil {
		return warnings, &bench.LoopAbortError{Reason: diffDecision.Abort.Reason}
	}
	return warnings, nil
}
