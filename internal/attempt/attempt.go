// Package attempt implements AttemptController: one attempt end-to-end —
// acquire a workspace, drive the agent, gate its diff, run tests, and
// repair in bounded rounds — producing one bench.Candidate. Grounded
// field-for-field on execute_code_cli's inner loop in
// qwen_mini_interface.py.
package attempt

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/re-cinq/patchwash/internal/agentdriver"
	"github.com/re-cinq/patchwash/internal/backend"
	"github.com/re-cinq/patchwash/internal/bench"
	"github.com/re-cinq/patchwash/internal/gitops"
	"github.com/re-cinq/patchwash/internal/graphrag"
	"github.com/re-cinq/patchwash/internal/quality"
	"github.com/re-cinq/patchwash/internal/testgate"
	"github.com/re-cinq/patchwash/internal/workspace"
)

// Controller runs one attempt against one Task.
type Controller struct {
	Config   bench.RunConfig
	Backend  backend.Backend
	GraphRAG *graphrag.Client
	Log      *log.Logger
}

// Run acquires a fresh workspace, drives the agent, and returns a
// Candidate. The workspace is always torn down before Run returns,
// including on every error path.
func (c *Controller) Run(ctx context.Context, task bench.Task, attemptIndex int, priorAbortReason, priorGateReason string) (bench.Candidate, error) {
	ws, err := workspace.Acquire(ctx, task, c.Config.WorkspaceRoot)
	if err != nil {
		return bench.Candidate{}, err
	}
	defer ws.Close()

	if c.Config.GraphRAGEnabled && c.GraphRAG != nil {
		// A graph-build failure never fails the attempt — GraphRAG is a
		// soft dependency throughout.
		_ = c.GraphRAG.BuildGraph(ctx, ws.Dir, ws.BaseCommit, false)
	}

	driver := agentdriver.New(c.Backend, c.Config)

	task0 := retryGuidance(task, attemptIndex, priorAbortReason, priorGateReason, c.Config.PatchCompileGate)
	transcript := []backend.Message{
		{Role: "system", Content: backend.SystemTemplate},
		{Role: "user", Content: task0},
	}

	candidate := bench.Candidate{AttemptIndex: attemptIndex}

	for step := 0; step < c.Config.StepLimit; step++ {
		res, err := driver.Run(ctx, transcript)
		if err != nil {
			// A fatal or retry-exhausted backend error ends the turn loop,
			// but whatever diff the agent already produced still goes
			// through the gates below rather than being discarded.
			break
		}
		transcript = append(transcript, res.Message)

		diff, derr := ws.Repo.Diff(ws.BaseCommit)
		if derr != nil {
			return bench.Candidate{}, fmt.Errorf("diffing workspace: %w", derr)
		}

		warnings, abortErr := driver.ObserveTurn(res.Message.Content, 0, res.Message.Content, "", diff)
		if abortErr != nil {
			abort := abortErr.(*bench.LoopAbortError)
			candidate.LoopAbortReason = abort.Reason
			break
		}
		if len(warnings) > 0 {
			transcript = append(transcript, backend.Message{Role: "user", Content: joinWarnings(warnings)})
		}

		if isCompleteSentinel(res.Message.Content) {
			break
		}
	}

	diff, err := ws.Repo.Diff(ws.BaseCommit)
	if err != nil {
		return bench.Candidate{}, fmt.Errorf("final diff: %w", err)
	}
	candidate.Patch = diff
	candidate.DiffSignature = gitops.DiffSignature(diff)

	changedFiles, _ := ws.Repo.ChangedFiles(ws.BaseCommit)
	changedFiles = ws.FilterIgnored(changedFiles)

	candidate.Gate = quality.ValidateWithCompileGate(ctx, diff, c.Config.MaxChangedLines, c.Config.MaxFilesChanged, c.Config.PatchCompileGate, ws.Repo, ws.BaseCommit, changedFiles)

	if !candidate.Gate.Valid && candidate.Gate.Reason == "compile_regression" {
		candidate = c.runCompileRepair(ctx, &candidate, ws, task, transcript, driver)
	}

	if candidate.Gate.Valid {
		candidate.Tests = testgate.Evaluate(ctx, ws.Dir, task.FailToPass, task.PassToPass, c.Config.P2PSmokeCount, c.Config.PytestTimeout)

		if c.Config.GraphRAGEnabled && c.GraphRAG != nil {
			c.runGraphRAGRepair(ctx, &candidate, ws, changedFiles)
		}

		if c.Config.MaxFixIterations > 0 && !candidate.Tests.CleanResolution {
			c.runTestFailureRepair(ctx, &candidate, ws, task, driver, transcript)
		}
	}

	return candidate, nil
}

// runCompileRepair re-prompts the agent up to MaxCompileFixIters times to
// fix a compile regression before giving up on the attempt.
func (c *Controller) runCompileRepair(ctx context.Context, candidate *bench.Candidate, ws *workspace.Handle, task bench.Task, transcript []backend.Message, driver *agentdriver.Driver) bench.Candidate {
	for i := 0; i < c.Config.MaxCompileFixIters; i++ {
		if candidate.Gate.Valid || candidate.Gate.Reason != "compile_regression" {
			break
		}
		task := quality.FormatCompileFailureTask(candidate.Gate.CompileEntries)
		transcript = append(transcript, backend.Message{Role: "user", Content: task})

		res, err := driver.Run(ctx, transcript)
		if err != nil {
			break
		}
		transcript = append(transcript, res.Message)

		diff, err := ws.Repo.Diff(ws.BaseCommit)
		if err != nil {
			break
		}
		candidate.Patch = diff
		candidate.DiffSignature = gitops.DiffSignature(diff)

		changedFiles, _ := ws.Repo.ChangedFiles(ws.BaseCommit)
		changedFiles = ws.FilterIgnored(changedFiles)
		candidate.Gate = quality.ValidateWithCompileGate(ctx, diff, c.Config.MaxChangedLines, c.Config.MaxFilesChanged, true, ws.Repo, ws.BaseCommit, changedFiles)
	}
	return *candidate
}

// runGraphRAGRepair asks the GraphRAG service which tests it judges
// impacted by the change and has the service run them. When the service
// reports failures and the local metrics show no P2P smoke failures, the
// service's count is recorded as P2PSmokeFailed. The agent is not
// re-prompted here: no GraphRAG repair round is run.
func (c *Controller) runGraphRAGRepair(ctx context.Context, candidate *bench.Candidate, ws *workspace.Handle, changedFiles []string) {
	impacted, err := c.GraphRAG.GetImpactedTests(ctx, ws.Dir, changedFiles)
	if err != nil {
		// GraphRAG failures are always soft — never touch the candidate.
		return
	}
	if len(impacted.Tests) == 0 {
		return
	}
	metrics, err := c.GraphRAG.RunImpactedTests(ctx, ws.Dir, impacted.Tests)
	if err != nil {
		return
	}
	if metrics.P2PSmokeFailed > 0 && candidate.Tests.P2PSmokeFailed == 0 {
		candidate.Tests.P2PSmokeFailed = metrics.P2PSmokeFailed
	}
}

// runTestFailureRepair re-prompts the agent with the current test
// failures, up to MaxFixIterations rounds, re-evaluating after each.
func (c *Controller) runTestFailureRepair(ctx context.Context, candidate *bench.Candidate, ws *workspace.Handle, task bench.Task, driver *agentdriver.Driver, transcript []backend.Message) {
	for i := 0; i < c.Config.MaxFixIterations; i++ {
		if candidate.Tests.CleanResolution {
			return
		}
		prompt := testgate.FormatTestFailureTask(candidate.Tests)
		transcript = append(transcript, backend.Message{Role: "user", Content: prompt})

		res, err := driver.Run(ctx, transcript)
		if err != nil {
			return
		}
		transcript = append(transcript, res.Message)

		diff, err := ws.Repo.Diff(ws.BaseCommit)
		if err != nil {
			return
		}
		candidate.Patch = diff
		candidate.DiffSignature = gitops.DiffSignature(diff)

		candidate.Tests = testgate.Evaluate(ctx, ws.Dir, task.FailToPass, task.PassToPass, c.Config.P2PSmokeCount, c.Config.PytestTimeout)
	}
}

func joinWarnings(warnings []string) string {
	out := "<warning>\n"
	for _, w := range warnings {
		out += w + "\n"
	}
	out += "</warning>"
	return out
}

func isCompleteSentinel(content string) bool {
	return strings.Contains(content, "COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT")
}

// retryGuidance renders the initial or repeat-attempt instance prompt,
// appending retry-specific guidance from attemptIndex > 1 on, carrying the
// original's _format_retry_task pattern: note the attempt index, ask for a
// different edit strategy, and surface the prior attempt's loop-abort or
// gate-failure reason.
func retryGuidance(task bench.Task, attemptIndex int, priorAbortReason, priorGateReason string, compileGate bool) string {
	base := instanceText(task)
	if attemptIndex <= 1 {
		return base
	}

	guidance := fmt.Sprintf("\n\nThis is attempt %d. A previous attempt did not succeed — use a different edit strategy this time.", attemptIndex)
	if priorAbortReason != "" {
		guidance += fmt.Sprintf(" The previous attempt was aborted: %s.", priorAbortReason)
	}
	if priorGateReason != "" {
		guidance += fmt.Sprintf(" The previous attempt's patch was rejected: %s.", priorGateReason)
		if compileGate && priorGateReason == "compile_regression" {
			guidance += " Double-check your edits compile before finishing."
		}
	}
	return base + guidance
}

func instanceText(task bench.Task) string {
	return fmt.Sprintf("Repository: %s\nIssue:\n\n%s\n\nMake the minimal code change needed to resolve the issue. Do not modify test files unless the issue explicitly asks you to.", task.Repo, task.ProblemStmt)
}
