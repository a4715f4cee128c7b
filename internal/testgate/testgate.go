// Package testgate implements TestGate: bounded pytest execution over a
// FAIL_TO_PASS/PASS_TO_PASS subset, with a timeout-to-failure fallback.
// Grounded on _run_pytest_subset and _evaluate_candidate from the original
// qwen-mini interface.
package testgate

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/re-cinq/patchwash/internal/bench"
)

var (
	passedRe = regexp.MustCompile(`(\d+)\s+passed`)
	failedRe = regexp.MustCompile(`(\d+)\s+failed`)
	errorRe  = regexp.MustCompile(`(\d+)\s+error`)
)

// runResult is the parsed outcome of one pytest invocation.
type runResult struct {
	Passed     int
	Failed     int
	TimedOut   bool
	ReturnCode int
}

// RunSubset runs `pytest -q <tests...>` under dir with a bounded timeout,
// parsing passed/failed counters from the output. When both counters are
// absent (e.g. a collection error, or output lost to truncation), it falls
// back to the process's return code: a clean exit counts every requested
// test as passed, a nonzero exit counts them all as failed. On timeout,
// every requested test is counted failed with return code 124, matching a
// killed subprocess's conventional shell exit code.
func RunSubset(ctx context.Context, dir string, tests []string, timeout time.Duration) runResult {
	if len(tests) == 0 {
		return runResult{}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"-q"}, tests...)
	cmd := exec.CommandContext(runCtx, "pytest", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()

	if runCtx.Err() == context.DeadlineExceeded {
		return runResult{Failed: len(tests), TimedOut: true, ReturnCode: 124}
	}

	text := string(out)
	passed, hasPassed := extractCount(passedRe, text)
	failed, hasFailed := extractCount(failedRe, text)
	errored, hasErrored := extractCount(errorRe, text)
	if hasErrored {
		failed += errored
		hasFailed = hasFailed || hasErrored
	}

	if !hasPassed && !hasFailed {
		rc := exitCode(err)
		if rc == 0 {
			return runResult{Passed: len(tests), ReturnCode: rc}
		}
		return runResult{Failed: len(tests), ReturnCode: rc}
	}

	if passed > len(tests) {
		passed = len(tests)
	}
	if failed > len(tests) {
		failed = len(tests)
	}

	return runResult{Passed: passed, Failed: failed, ReturnCode: exitCode(err)}
}

func extractCount(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

// Evaluate runs the FAIL_TO_PASS tests in full and a PASS_TO_PASS "smoke"
// subset capped at smokeCount, reporting TestMetrics. clean_resolution is
// only ever true when both subsets actually ran (neither list empty).
func Evaluate(ctx context.Context, dir string, failToPass, passToPass []string, smokeCount int, timeout time.Duration) bench.TestMetrics {
	var m bench.TestMetrics

	if len(failToPass) > 0 {
		res := RunSubset(ctx, dir, failToPass, timeout)
		m.F2PTotal = len(failToPass)
		m.F2PPassed = res.Passed
		if m.F2PTotal > 0 {
			m.F2PPassRate = float64(res.Passed) / float64(m.F2PTotal)
		}
		m.Ran = true
	}

	smoke := passToPass
	if smokeCount > 0 && len(smoke) > smokeCount {
		smoke = smoke[:smokeCount]
	}
	if len(smoke) > 0 {
		res := RunSubset(ctx, dir, smoke, timeout)
		m.P2PSmokeTotal = len(smoke)
		m.P2PSmokeFailed = res.Failed
		m.Ran = true
	}

	m.CleanResolution = len(failToPass) > 0 && len(passToPass) > 0 &&
		m.F2PPassRate == 1 && m.P2PSmokeFailed == 0

	return m
}

// FormatTestFailureTask renders a repair-round prompt describing which
// FAIL_TO_PASS/PASS_TO_PASS tests still fail, carrying the original
// _format_test_failure_task's wording pattern.
func FormatTestFailureTask(m bench.TestMetrics) string {
	return fmt.Sprintf(
		"Your change does not yet resolve the issue. %d/%d target tests pass and %d previously-passing test(s) now fail. Investigate the remaining failures and adjust your change; do not just suppress the test output.",
		m.F2PPassed, m.F2PTotal, m.P2PSmokeFailed,
	)
}
