// Package bench holds the data model shared across patchwash's packages:
// the benchmark Task, the RunConfig thresholds that drive every gate and
// loop heuristic, and the Candidate/Prediction shapes produced by an
// attempt.
package bench

import "time"

// Task is one SWE-bench instance: a repository pinned at base_commit with
// an issue description and the test lists used to score a fix.
type Task struct {
	InstanceID   string   `json:"instance_id"`
	Repo         string   `json:"repo"`
	BaseCommit   string   `json:"base_commit"`
	ProblemStmt  string   `json:"problem_statement"`
	FailToPass   []string `json:"FAIL_TO_PASS"`
	PassToPass   []string `json:"PASS_TO_PASS"`
	GoldPatch    string   `json:"patch,omitempty"`
	TestPatch    string   `json:"test_patch,omitempty"`
	EnvironSetup string   `json:"environment_setup_commit,omitempty"`
}

// LoopPolicy governs how AgentDriver reacts to loop-detector warnings.
type LoopPolicy string

const (
	LoopPolicyOff    LoopPolicy = "off"
	LoopPolicyWarn   LoopPolicy = "warn"
	LoopPolicyStrict LoopPolicy = "strict"
)

// RunConfig collects every threshold and toggle that shapes a run, mirroring
// the qwen-mini attempt loop's constructor defaults.
type RunConfig struct {
	StepLimit             int        `yaml:"step_limit"`
	MaxAttempts           int        `yaml:"max_attempts"`
	MaxFixIterations      int        `yaml:"max_fix_iterations"`
	LoopPolicy            LoopPolicy `yaml:"loop_policy"`
	SearchStreakLimit     int        `yaml:"search_streak_limit"`
	NoDiffStreakLimit     int        `yaml:"no_diff_streak_limit"`
	RepeatedFailLimit     int        `yaml:"repeated_fail_limit"`
	SedFailLimit          int        `yaml:"sed_fail_limit"`
	P2PSmokeCount         int        `yaml:"p2p_smoke_count"`
	PytestTimeout         time.Duration `yaml:"pytest_timeout"`
	PatchCompileGate      bool       `yaml:"patch_compile_gate"`
	MaxCompileFixIters    int        `yaml:"max_compile_fix_iterations"`
	MaxChangedLines       int        `yaml:"max_changed_lines"`
	MaxFilesChanged       int        `yaml:"max_files_changed"`
	CostLimit             float64    `yaml:"cost_limit"`
	TDDMode               bool       `yaml:"tdd_mode"`
	GraphRAGEnabled       bool       `yaml:"graphrag_enabled"`
	GraphRAGServerURL     string     `yaml:"graphrag_server_url"`
	AgentRetryLimit       int        `yaml:"agent_retry_limit"`
	AgentRetryBackoff     time.Duration `yaml:"agent_retry_backoff"`
	WorkspaceRoot         string     `yaml:"workspace_root"`
	LogDir                string     `yaml:"log_dir"`
	PredictionsDir        string     `yaml:"predictions_dir"`
}

// DefaultRunConfig returns the thresholds used when a RunConfig is not
// overridden by file or flag, matching the original tool's constructor
// defaults exactly.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		StepLimit:          30,
		MaxAttempts:        3,
		MaxFixIterations:   0,
		LoopPolicy:         LoopPolicyStrict,
		SearchStreakLimit:  8,
		NoDiffStreakLimit:  8,
		RepeatedFailLimit:  3,
		SedFailLimit:       2,
		P2PSmokeCount:      10,
		PytestTimeout:      180 * time.Second,
		PatchCompileGate:   true,
		MaxCompileFixIters: 2,
		MaxChangedLines:    200,
		MaxFilesChanged:    3,
		CostLimit:          0,
		AgentRetryLimit:    2,
		AgentRetryBackoff:  30 * time.Second,
		WorkspaceRoot:      "",
		LogDir:             "logs",
		PredictionsDir:     "predictions",
	}
}

// QualityDecision is the QualityGate's verdict on one candidate diff.
type QualityDecision struct {
	Valid          bool                 `json:"valid"`
	Reason         string               `json:"reason,omitempty"`
	Severity       string               `json:"severity,omitempty"` // "fail" | "warn"
	ChangedFiles   int                  `json:"changed_files"`
	AddedLines     int                  `json:"added_lines"`
	RemovedLines   int                  `json:"removed_lines"`
	CompileEntries []CompileGateEntry   `json:"compile_entries,omitempty"`
}

// CompileGateEntry records one file's compile-gate comparison between the
// candidate patch and the baseline commit.
type CompileGateEntry struct {
	File          string `json:"file"`
	CurrentError  string `json:"current_error,omitempty"`
	BaselineError string `json:"baseline_error,omitempty"`
	Classification string `json:"classification"` // "ok" | "regression" | "preexisting" | "baseline_missing"
}

// TestMetrics is the TestGate's verdict: how many FAIL_TO_PASS tests now
// pass, and whether the PASS_TO_PASS smoke subset still passes.
type TestMetrics struct {
	F2PTotal        int     `json:"f2p_total"`
	F2PPassed       int     `json:"f2p_passed"`
	F2PPassRate     float64 `json:"f2p_pass_rate"`
	P2PSmokeTotal   int     `json:"p2p_smoke_total"`
	P2PSmokeFailed  int     `json:"p2p_smoke_failures"`
	Ran             bool    `json:"ran"`
	CleanResolution bool    `json:"clean_resolution"`
}

// AttemptSummary is the serializable subset of a Candidate persisted on a
// Prediction, matching the original's attempt_summaries entries.
type AttemptSummary struct {
	AttemptIndex   int     `json:"attempt_index"`
	PatchChars     int     `json:"patch_chars"`
	LoopAbortReason string `json:"loop_abort_reason,omitempty"`
	GateValid      bool    `json:"patch_gate_valid"`
	GateReason     string  `json:"patch_gate_reason,omitempty"`
	F2PPassRate    float64 `json:"f2p_pass_rate"`
	P2PSmokeFails  int     `json:"p2p_smoke_failures"`
	CleanResolution bool   `json:"clean_resolution"`
}

// Candidate is one attempt's final output: the patch text plus every
// decision that went into scoring it.
type Candidate struct {
	AttemptIndex    int
	Patch           string
	DiffSignature   uint64
	LoopAbortReason string
	Gate            QualityDecision
	Tests           TestMetrics
}

// Summary converts a Candidate into its persisted AttemptSummary form.
func (c Candidate) Summary() AttemptSummary {
	return AttemptSummary{
		AttemptIndex:    c.AttemptIndex,
		PatchChars:      len(c.Patch),
		LoopAbortReason: c.LoopAbortReason,
		GateValid:       c.Gate.Valid,
		GateReason:      c.Gate.Reason,
		F2PPassRate:     c.Tests.F2PPassRate,
		P2PSmokeFails:   c.Tests.P2PSmokeFailed,
		CleanResolution: c.Tests.CleanResolution,
	}
}

// score returns the lexicographic tuple used to rank candidates:
// non-empty patch first, then F2P pass rate, then fewest P2P smoke
// failures, then no loop abort, then the smallest patch.
func (c Candidate) score() [5]float64 {
	nonEmpty := 0.0
	if len(c.Patch) > 0 {
		nonEmpty = 1
	}
	loopPenalty := 0.0
	if c.LoopAbortReason != "" {
		loopPenalty = 1
	}
	return [5]float64{
		nonEmpty,
		c.Tests.F2PPassRate,
		-float64(c.Tests.P2PSmokeFailed),
		-loopPenalty,
		-float64(len(c.Patch)),
	}
}

// Best returns the index of the highest-scoring candidate, matching
// _score_candidate's exact lexicographic ordering. Returns -1 for an empty
// slice.
func Best(candidates []Candidate) int {
	best := -1
	var bestScore [5]float64
	for i, c := range candidates {
		s := c.score()
		if best == -1 || greater(s, bestScore) {
			best = i
			bestScore = s
		}
	}
	return best
}

func greater(a, b [5]float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// Prediction is the final, persisted record for one Task.
type Prediction struct {
	InstanceID       string           `json:"instance_id"`
	Prediction       string           `json:"prediction"`
	AttemptsUsed     int              `json:"attempts_used"`
	LoopAbortReason  string           `json:"loop_abort_reason,omitempty"`
	F2PPassRate      float64          `json:"f2p_pass_rate"`
	P2PSmokeFailures int              `json:"p2p_smoke_failures"`
	CleanResolution  bool             `json:"clean_resolution"`
	PatchGateValid   bool             `json:"patch_gate_valid"`
	PatchGateReason  string           `json:"patch_gate_reason,omitempty"`
	PatchGateSeverity string          `json:"patch_gate_severity,omitempty"`
	AttemptSummaries []AttemptSummary `json:"attempt_summaries"`
}

// DegeneratePrediction builds the degenerate "no_attempt_completed" prediction
// used when every attempt in a run errored before producing a candidate.
func DegeneratePrediction(instanceID string, summaries []AttemptSummary) Prediction {
	return Prediction{
		InstanceID:       instanceID,
		Prediction:       "",
		AttemptsUsed:     len(summaries),
		PatchGateValid:   false,
		PatchGateReason:  "no_attempt_completed",
		PatchGateSeverity: "fail",
		AttemptSummaries: summaries,
	}
}
