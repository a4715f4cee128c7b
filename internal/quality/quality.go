// Package quality implements QualityGate: structural and syntactic checks
// on a candidate diff, plus a Python compile gate comparing the candidate
// against the baseline commit. Grounded line-for-line on
// _validate_patch_quality and _check_compile_gate from the original
// qwen-mini interface — the regexes, thresholds, and classification rules
// below reproduce that tool's exact behavior so the scenarios it was tuned
// against still hold.
package quality

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/re-cinq/patchwash/internal/bench"
	"github.com/re-cinq/patchwash/internal/gitops"
)

const compileCheckTimeout = 10 * time.Second

var (
	diffHeaderRe  = regexp.MustCompile(`(?m)^diff --git a/(\S+) b/(\S+)`)
	addedLineRe   = regexp.MustCompile(`(?m)^\+[^+]`)
	removedLineRe = regexp.MustCompile(`(?m)^-[^-]`)
	defHeaderRe   = regexp.MustCompile(`(?m)^[+-]\s*def\s+\w+\s*\([^)]*\)`)
)

// placeholderMarkers are the literal substrings _validate_patch_quality
// checks each added line against; anything else (e.g. a bare "pass") is not
// a signal.
var placeholderMarkers = []string{"TODO", "FIXME", "Placeholder", "NotImplementedError"}

// Validate runs every structural and syntactic rule against diff and
// returns the first failing rule's verdict, or a passing verdict if none
// fire. maxChangedLines bounds total added+removed lines (catastrophic
// change guard); maxFilesChanged bounds the number of files touched. 0
// disables either check.
func Validate(diff string, maxChangedLines, maxFilesChanged int) bench.QualityDecision {
	files := diffHeaderRe.FindAllStringSubmatch(diff, -1)
	added := len(addedLineRe.FindAllStringIndex(diff, -1))
	removed := len(removedLineRe.FindAllStringIndex(diff, -1))

	d := bench.QualityDecision{
		ChangedFiles: len(files),
		AddedLines:   added,
		RemovedLines: removed,
	}

	if strings.TrimSpace(diff) == "" {
		d.Valid = false
		d.Reason = "empty_diff"
		d.Severity = "fail"
		return d
	}

	if len(files) == 0 {
		d.Valid = false
		d.Reason = "no_file_headers"
		d.Severity = "fail"
		return d
	}

	if maxFilesChanged > 0 && len(files) > maxFilesChanged {
		d.Valid = false
		d.Reason = fmt.Sprintf("too_many_files:%d", len(files))
		d.Severity = "fail"
		return d
	}

	// Catastrophic deletion: large net removal with little offsetting
	// addition. added must be positive — a diff that only removes code
	// (e.g. deleting a dead file) isn't the "agent nuked the file" failure
	// mode this rule targets.
	if removed > 50 && added > 0 && removed > 5*added {
		d.Valid = false
		d.Reason = fmt.Sprintf("catastrophic_deletion:%d_removed_vs_%d_added", removed, added)
		d.Severity = "fail"
		return d
	}

	if maxChangedLines > 0 && added+removed > maxChangedLines {
		d.Valid = false
		d.Reason = "max_changed_lines_exceeded"
		d.Severity = "fail"
		return d
	}

	if dup := maxDuplicateCount(diff); dup >= 4 {
		d.Valid = false
		d.Reason = "duplicate_lines"
		d.Severity = "fail"
		return d
	}

	if hasPlaceholderAddedLine(diff) {
		d.Valid = false
		d.Reason = "placeholder_code"
		d.Severity = "fail"
		return d
	}

	if sigHeaders := defHeaderRe.FindAllString(diff, -1); len(sigHeaders) > 0 && signatureChanged(sigHeaders) {
		// Signature changes are suspicious but not fatal — downstream
		// callers may still accept the candidate, only logged as a warn.
		d.Valid = true
		d.Reason = "function_signature_changed"
		d.Severity = "warn"
		return d
	}

	d.Valid = true
	return d
}

// maxDuplicateCount returns the highest number of times any single nonblank
// added line repeats anywhere in the diff (not just consecutively) — a
// signal of an agent stuck pasting the same edit repeatedly.
func maxDuplicateCount(diff string) int {
	lines := addedLineRe.FindAllString(diff, -1)
	counts := map[string]int{}
	best := 0
	for _, l := range lines {
		content := strings.TrimSpace(strings.TrimPrefix(l, "+"))
		if content == "" {
			continue
		}
		counts[content]++
		if counts[content] > best {
			best = counts[content]
		}
	}
	return best
}

// hasPlaceholderAddedLine reports whether any added (not removed or
// context) line contains one of placeholderMarkers as a literal substring.
func hasPlaceholderAddedLine(diff string) bool {
	for _, l := range addedLineRe.FindAllString(diff, -1) {
		content := strings.TrimPrefix(l, "+")
		for _, marker := range placeholderMarkers {
			if strings.Contains(content, marker) {
				return true
			}
		}
	}
	return false
}

// signatureChanged reports whether the matched def headers, with their
// +/- prefix and surrounding whitespace stripped, hold more than one
// distinct text — a crude signature-change detector that doesn't need a
// Python parser. Headers are not paired by function name, so two different
// added (or removed) defs also count as a change, while a single added or
// removed def does not.
func signatureChanged(headers []string) bool {
	seen := map[string]bool{}
	for _, h := range headers {
		key := strings.TrimSpace(strings.TrimLeft(h, "+- "))
		if seen[key] {
			continue
		}
		seen[key] = true
	}
	// More than one distinct normalized signature among the matched
	// headers means an added def doesn't match its removed counterpart.
	return len(seen) > 1
}

// CheckCompile runs `python3 -m py_compile` against the candidate's current
// file content and, where available, its baseline content at repo's
// baseRef, classifying each changed Python file as ok, regression (only
// the candidate fails), preexisting (both fail), or baseline_missing (the
// file is new and compiles). A new file that fails to compile is classified
// as a regression.
func CheckCompile(ctx context.Context, repo *gitops.Repo, baseRef string, changedFiles []string) ([]bench.CompileGateEntry, bool) {
	var entries []bench.CompileGateEntry
	regression := false

	for _, f := range changedFiles {
		if !strings.HasSuffix(f, ".py") {
			continue
		}
		currentErr := compileFile(ctx, filepath.Join(repo.Dir, f))

		baselineContent, err := repo.ShowFileAt(baseRef, f)
		var baselineErr string
		classification := "ok"
		switch {
		case err != nil:
			classification = "baseline_missing"
			if currentErr != "" {
				classification = "regression"
				regression = true
			}
		default:
			baselineErr = compileSource(ctx, baselineContent)
			switch {
			case currentErr != "" && baselineErr == "":
				classification = "regression"
				regression = true
			case currentErr != "" && baselineErr != "":
				classification = "preexisting"
			case currentErr == "":
				classification = "ok"
			}
		}

		entries = append(entries, bench.CompileGateEntry{
			File:           f,
			CurrentError:   currentErr,
			BaselineError:  baselineErr,
			Classification: classification,
		})
	}

	return entries, regression
}

func compileFile(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, compileCheckTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "python3", "-m", "py_compile", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out))
	}
	return ""
}

func compileSource(ctx context.Context, source string) string {
	ctx, cancel := context.WithTimeout(ctx, compileCheckTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "python3", "-c", "import sys,compileall,io;compile(sys.stdin.read(), '<baseline>', 'exec')")
	cmd.Stdin = strings.NewReader(source)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out))
	}
	return ""
}

// ValidateWithCompileGate runs Validate, then — only when the structural
// rules pass and gate is enabled — runs CheckCompile, downgrading the
// verdict to invalid on any regression. Mirrors _extract_patch's
// compose-then-short-circuit ordering.
func ValidateWithCompileGate(ctx context.Context, diff string, maxChangedLines, maxFilesChanged int, gateEnabled bool, repo *gitops.Repo, baseRef string, changedFiles []string) bench.QualityDecision {
	d := Validate(diff, maxChangedLines, maxFilesChanged)
	if !d.Valid || !gateEnabled {
		return d
	}
	entries, regression := CheckCompile(ctx, repo, baseRef, changedFiles)
	d.CompileEntries = entries
	if regression {
		d.Valid = false
		d.Reason = "compile_regression"
		d.Severity = "fail"
	}
	return d
}

// FormatCompileFailureTask renders the repair-round prompt text for a
// compile-gate regression: the failing files and their errors, with an
// instruction to fix compile errors first via minimal targeted edits.
// Carries the original's exact wording pattern.
func FormatCompileFailureTask(entries []bench.CompileGateEntry) string {
	var sb strings.Builder
	sb.WriteString("Your previous change introduced a Python syntax error. Fix the compile errors first with minimal, targeted edits before making any other changes.\n\n")
	for _, e := range entries {
		if e.Classification != "regression" {
			continue
		}
		sb.WriteString(fmt.Sprintf("File: %s\nError:\n%s\n\n", e.File, e.CurrentError))
	}
	return sb.String()
}
