package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/re-cinq/patchwash/internal/bench"
)

type fakeAttempter struct {
	candidates []bench.Candidate
	errs       []error
	calls      int
}

func (f *fakeAttempter) Run(ctx context.Context, task bench.Task, attemptIndex int, priorAbortReason, priorGateReason string) (bench.Candidate, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return bench.Candidate{}, f.errs[i]
	}
	return f.candidates[i], nil
}

func TestRun_StopsEarlyOnCleanResolution(t *testing.T) {
	fake := &fakeAttempter{candidates: []bench.Candidate{
		{Patch: "diff1", Tests: bench.TestMetrics{CleanResolution: true, F2PPassRate: 1}},
		{Patch: "diff2"},
	}}
	cfg := bench.DefaultRunConfig()
	cfg.MaxAttempts = 3
	o := &Orchestrator{Attempt: fake, Config: cfg}

	pred := o.Run(context.Background(), bench.Task{InstanceID: "inst-1"})
	assert.Equal(t, 1, pred.AttemptsUsed)
	assert.True(t, pred.CleanResolution)
	assert.Equal(t, "diff1", pred.Prediction)
}

func TestRun_PicksBestAcrossAllAttempts(t *testing.T) {
	fake := &fakeAttempter{candidates: []bench.Candidate{
		{Patch: "diff1", Tests: bench.TestMetrics{F2PPassRate: 0.3}},
		{Patch: "diff2", Tests: bench.TestMetrics{F2PPassRate: 0.9}},
		{Patch: "diff3", Tests: bench.TestMetrics{F2PPassRate: 0.5}},
	}}
	cfg := bench.DefaultRunConfig()
	cfg.MaxAttempts = 3
	o := &Orchestrator{Attempt: fake, Config: cfg}

	pred := o.Run(context.Background(), bench.Task{InstanceID: "inst-1"})
	assert.Equal(t, 3, pred.AttemptsUsed)
	assert.Equal(t, "diff2", pred.Prediction)
}

func TestRun_DegeneratePredictionWhenAllFail(t *testing.T) {
	fake := &fakeAttempter{errs: []error{assertErr(), assertErr(), assertErr()}, candidates: make([]bench.Candidate, 3)}
	cfg := bench.DefaultRunConfig()
	cfg.MaxAttempts = 3
	o := &Orchestrator{Attempt: fake, Config: cfg}

	pred := o.Run(context.Background(), bench.Task{InstanceID: "inst-1"})
	assert.Equal(t, "no_attempt_completed", pred.PatchGateReason)
	assert.Empty(t, pred.Prediction)
}

func assertErr() error { return context.DeadlineExceeded }
