// Package config loads and validates patchwash's RunConfig: the YAML file
// of thresholds consumed by every gate and loop heuristic, defaulted and
// validated the way the teacher loads its own YAML config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/re-cinq/patchwash/internal/bench"
)

// Load reads a RunConfig from path, filling in defaults for any zero-value
// field and validating the result. A missing file at path is not an error —
// the config file is optional and DefaultRunConfig alone is valid — but any
// other read failure (permissions, a directory in its place) is.
func Load(path string) (bench.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return parse(nil)
		}
		return bench.RunConfig{}, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (bench.RunConfig, error) {
	cfg := bench.DefaultRunConfig()

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return bench.RunConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}
	raw.applyTo(&cfg)

	if errs := Validate(cfg); len(errs) > 0 {
		return bench.RunConfig{}, &bench.ConfigError{Err: firstErr(errs)}
	}
	return cfg, nil
}

// rawConfig mirrors RunConfig but with every field optional (a pointer or
// zero-value sentinel), so parse only overrides fields the file actually
// sets, leaving DefaultRunConfig's values intact otherwise.
type rawConfig struct {
	StepLimit          *int     `yaml:"step_limit"`
	MaxAttempts        *int     `yaml:"max_attempts"`
	MaxFixIterations   *int     `yaml:"max_fix_iterations"`
	LoopPolicy         string   `yaml:"loop_policy"`
	SearchStreakLimit  *int     `yaml:"search_streak_limit"`
	NoDiffStreakLimit  *int     `yaml:"no_diff_streak_limit"`
	RepeatedFailLimit  *int     `yaml:"repeated_fail_limit"`
	SedFailLimit       *int     `yaml:"sed_fail_limit"`
	P2PSmokeCount      *int     `yaml:"p2p_smoke_count"`
	PytestTimeout      string   `yaml:"pytest_timeout"`
	PatchCompileGate   *bool    `yaml:"patch_compile_gate"`
	MaxCompileFixIters *int     `yaml:"max_compile_fix_iterations"`
	MaxChangedLines    *int     `yaml:"max_changed_lines"`
	MaxFilesChanged    *int     `yaml:"max_files_changed"`
	CostLimit          *float64 `yaml:"cost_limit"`
	TDDMode            bool     `yaml:"tdd_mode"`
	GraphRAGEnabled    bool     `yaml:"graphrag_enabled"`
	GraphRAGServerURL  string   `yaml:"graphrag_server_url"`
	AgentRetryLimit    *int     `yaml:"agent_retry_limit"`
	AgentRetryBackoff  string   `yaml:"agent_retry_backoff"`
	WorkspaceRoot      string   `yaml:"workspace_root"`
	LogDir             string   `yaml:"log_dir"`
	PredictionsDir     string   `yaml:"predictions_dir"`
}

func (r rawConfig) applyTo(cfg *bench.RunConfig) {
	setInt(&cfg.StepLimit, r.StepLimit)
	setInt(&cfg.MaxAttempts, r.MaxAttempts)
	setInt(&cfg.MaxFixIterations, r.MaxFixIterations)
	if r.LoopPolicy != "" {
		cfg.LoopPolicy = bench.LoopPolicy(r.LoopPolicy)
	}
	setInt(&cfg.SearchStreakLimit, r.SearchStreakLimit)
	setInt(&cfg.NoDiffStreakLimit, r.NoDiffStreakLimit)
	setInt(&cfg.RepeatedFailLimit, r.RepeatedFailLimit)
	setInt(&cfg.SedFailLimit, r.SedFailLimit)
	setInt(&cfg.P2PSmokeCount, r.P2PSmokeCount)
	if r.PytestTimeout != "" {
		if d, err := time.ParseDuration(r.PytestTimeout); err == nil {
			cfg.PytestTimeout = d
		}
	}
	if r.PatchCompileGate != nil {
		cfg.PatchCompileGate = *r.PatchCompileGate
	}
	setInt(&cfg.MaxCompileFixIters, r.MaxCompileFixIters)
	setInt(&cfg.MaxChangedLines, r.MaxChangedLines)
	setInt(&cfg.MaxFilesChanged, r.MaxFilesChanged)
	if r.CostLimit != nil {
		cfg.CostLimit = *r.CostLimit
	}
	cfg.TDDMode = r.TDDMode
	cfg.GraphRAGEnabled = r.GraphRAGEnabled
	if r.GraphRAGServerURL != "" {
		cfg.GraphRAGServerURL = r.GraphRAGServerURL
	}
	setInt(&cfg.AgentRetryLimit, r.AgentRetryLimit)
	if r.AgentRetryBackoff != "" {
		if d, err := time.ParseDuration(r.AgentRetryBackoff); err == nil {
			cfg.AgentRetryBackoff = d
		}
	}
	if r.WorkspaceRoot != "" {
		cfg.WorkspaceRoot = r.WorkspaceRoot
	}
	if r.LogDir != "" {
		cfg.LogDir = r.LogDir
	}
	if r.PredictionsDir != "" {
		cfg.PredictionsDir = r.PredictionsDir
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// Validate checks a RunConfig's thresholds for internal consistency.
func Validate(cfg bench.RunConfig) []error {
	var errs []error

	if cfg.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1"))
	}
	if cfg.StepLimit < 1 {
		errs = append(errs, fmt.Errorf("step_limit must be at least 1"))
	}
	switch cfg.LoopPolicy {
	case bench.LoopPolicyOff, bench.LoopPolicyWarn, bench.LoopPolicyStrict:
	default:
		errs = append(errs, fmt.Errorf("loop_policy must be one of off, warn, strict (got %q)", cfg.LoopPolicy))
	}
	if cfg.PytestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pytest_timeout must be positive"))
	}
	if cfg.MaxFixIterations < 0 {
		errs = append(errs, fmt.Errorf("max_fix_iterations cannot be negative"))
	}
	if cfg.GraphRAGEnabled && cfg.GraphRAGServerURL == "" {
		errs = append(errs, fmt.Errorf("graphrag_enabled requires graphrag_server_url"))
	}

	return errs
}

func firstErr(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
