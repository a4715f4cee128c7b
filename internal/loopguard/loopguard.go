// Package loopguard implements the AgentDriver's loop-detection state
// machine as a plain observer, replacing the original's runtime
// monkey-patch of agent.add_message (logging_add_message in
// qwen_mini_interface.py) with an explicit interface a Go AgentDriver can
// call after every transcript message, per the redesign direction: no
// method rebinding, just a struct that watches what it's told.
package loopguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/re-cinq/patchwash/internal/bench"
	"github.com/re-cinq/patchwash/internal/gitops"
)

// Role distinguishes the two transcript message kinds a Detector watches.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleObserver  Role = "observer" // tool/environment output shown back to the agent
)

var (
	searchCommandRe = regexp.MustCompile(`(?m)^\s*(grep|find|rg|ls)\b`)
	sedCommandRe    = regexp.MustCompile(`(?m)^\s*sed\b`)
	failedCmdRe     = regexp.MustCompile(`(?i)\b(command not found|no such file or directory|permission denied|syntax error)\b`)
)

// Decision is the outcome of one Observe call.
type Decision struct {
	Warnings []string
	Abort    *AbortDecision
}

// AbortDecision names which streak tripped and why, surfaced as the
// Candidate's LoopAbortReason.
type AbortDecision struct {
	Reason string
}

// Detector tracks the four streak counters the original's loop-abort logic
// uses: consecutive search-only commands, consecutive identical failing
// commands, consecutive sed invocations that fail, and consecutive
// no-diff-producing turns.
type Detector struct {
	policy bench.LoopPolicy

	searchStreakLimit int
	noDiffStreakLimit int
	repeatedFailLimit int
	sedFailLimit      int

	searchStreak    int
	noDiffStreak    int
	sedFailStreak   int
	repeatedFailStreak int
	lastFailedCmd   string
	lastFailedBaseCmd string
	lastDiffSig     uint64
	haveLastDiffSig bool
}

// New builds a Detector from a RunConfig's thresholds.
func New(cfg bench.RunConfig) *Detector {
	return &Detector{
		policy:            cfg.LoopPolicy,
		searchStreakLimit: cfg.SearchStreakLimit,
		noDiffStreakLimit: cfg.NoDiffStreakLimit,
		repeatedFailLimit: cfg.RepeatedFailLimit,
		sedFailLimit:      cfg.SedFailLimit,
	}
}

// ObserveCommand updates the search/sed/repeated-fail streaks from one
// executed shell command and its exit status.
func (d *Detector) ObserveCommand(command string, exitCode int, stdout, stderr string) Decision {
	var warnings []string

	if searchCommandRe.MatchString(command) {
		d.searchStreak++
	} else {
		d.searchStreak = 0
	}

	failed := exitCode != 0 || failedCmdRe.MatchString(stdout+stderr)
	normalized := normalizeCommand(command)
	if failed {
		if normalized == d.lastFailedCmd {
			d.repeatedFailStreak++
		} else {
			d.repeatedFailStreak = 1
		}
		d.lastFailedCmd = normalized
		d.lastFailedBaseCmd = baseCommand(normalized)
	} else {
		d.repeatedFailStreak = 0
		d.lastFailedCmd = ""
		d.lastFailedBaseCmd = ""
	}

	if sedCommandRe.MatchString(command) && failed {
		d.sedFailStreak++
	} else if sedCommandRe.MatchString(command) {
		d.sedFailStreak = 0
	}

	if d.searchStreak >= d.searchStreakLimit {
		warnings = append(warnings, fmt.Sprintf("%d consecutive search-only commands — consider editing a file instead of searching further", d.searchStreak))
	}
	if d.repeatedFailStreak >= d.repeatedFailLimit {
		warnings = append(warnings, fmt.Sprintf("the same command has now failed %d times in a row — try a different approach", d.repeatedFailStreak))
	}
	if d.sedFailStreak >= d.sedFailLimit {
		warnings = append(warnings, fmt.Sprintf("sed has failed %d times in a row — double-check the pattern and target file, or use a different edit tool", d.sedFailStreak))
	}

	return d.resolve(warnings)
}

// ObserveDiff updates the no-diff streak from the workspace's diff after
// one agent turn, using gitops.DiffSignature to detect "no new
// information" turns without comparing full patch text.
func (d *Detector) ObserveDiff(diff string) Decision {
	sig := gitops.DiffSignature(diff)
	var warnings []string

	if d.haveLastDiffSig && sig == d.lastDiffSig {
		d.noDiffStreak++
	} else {
		d.noDiffStreak = 0
	}
	d.lastDiffSig = sig
	d.haveLastDiffSig = true

	if d.noDiffStreak >= d.noDiffStreakLimit {
		warnings = append(warnings, fmt.Sprintf("%d consecutive turns produced no change to the diff — the agent may be stuck", d.noDiffStreak))
	}

	return d.resolve(warnings)
}

// resolve turns accumulated warnings into a Decision, adding an Abort only
// under strict policy. warn policy surfaces the same warnings but never
// aborts or retries; off suppresses both.
func (d *Detector) resolve(warnings []string) Decision {
	if d.policy == bench.LoopPolicyOff {
		return Decision{}
	}

	dec := Decision{Warnings: warnings}
	if d.policy != bench.LoopPolicyStrict || len(warnings) == 0 {
		return dec
	}

	// Priority order matches the original: repeated failing command first,
	// then search streak, then sed failures, then no-diff streak.
	switch {
	case d.repeatedFailStreak >= d.repeatedFailLimit:
		dec.Abort = &AbortDecision{Reason: fmt.Sprintf("repeated_failing_command:%s x%d", d.lastFailedBaseCmd, d.repeatedFailStreak)}
	case d.searchStreak >= d.searchStreakLimit:
		dec.Abort = &AbortDecision{Reason: fmt.Sprintf("search_only_streak:%d", d.searchStreak)}
	case d.sedFailStreak >= d.sedFailLimit:
		dec.Abort = &AbortDecision{Reason: fmt.Sprintf("sed_fail_streak:%d", d.sedFailStreak)}
	case d.noDiffStreak >= d.noDiffStreakLimit:
		dec.Abort = &AbortDecision{Reason: fmt.Sprintf("no_diff_streak:%d", d.noDiffStreak)}
	}
	return dec
}

// normalizeCommand collapses whitespace so trivially-reformatted repeats
// of the same failing command are still recognized as a repeat.
func normalizeCommand(cmd string) string {
	fields := strings.Fields(cmd)
	return strings.Join(fields, " ")
}

// baseCommand returns the first token of a normalized command — the
// program name reported alongside a repeated_failing_command abort.
func baseCommand(normalized string) string {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
