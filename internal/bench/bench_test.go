package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBest_PrefersNonEmptyPatch(t *testing.T) {
	cands := []Candidate{
		{Patch: ""},
		{Patch: "diff --git a/x b/x\n"},
	}
	idx := Best(cands)
	assert.Equal(t, 1, idx)
}

func TestBest_PrefersHigherF2PRate(t *testing.T) {
	cands := []Candidate{
		{Patch: "a", Tests: TestMetrics{F2PPassRate: 0.5}},
		{Patch: "b", Tests: TestMetrics{F2PPassRate: 1.0}},
	}
	idx := Best(cands)
	assert.Equal(t, 1, idx)
}

func TestBest_PenalizesLoopAbort(t *testing.T) {
	cands := []Candidate{
		{Patch: "a", Tests: TestMetrics{F2PPassRate: 1.0}, LoopAbortReason: "no_diff_streak_exceeded"},
		{Patch: "b", Tests: TestMetrics{F2PPassRate: 1.0}},
	}
	idx := Best(cands)
	assert.Equal(t, 1, idx)
}

func TestBest_EmptySlice(t *testing.T) {
	assert.Equal(t, -1, Best(nil))
}

func TestDegeneratePrediction(t *testing.T) {
	p := DegeneratePrediction("inst-1", nil)
	assert.Equal(t, "no_attempt_completed", p.PatchGateReason)
	assert.False(t, p.PatchGateValid)
	assert.Empty(t, p.Prediction)
}
