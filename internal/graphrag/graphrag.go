// Package graphrag is an HTTP client for the GraphRAGService: an external
// code-graph impact-analysis server. Grounded on
// utils/mcp_graphrag_interface.py's REST surface, narrowed to the five
// RPCs the data model names. Every failure downgrades to a no-op result —
// this service is a cache, never a dependency the run can fail on.
package graphrag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/re-cinq/patchwash/internal/bench"
)

// Client talks to a GraphRAGService instance at BaseURL, deduping
// concurrent BuildGraph calls for the same (repo, base_commit) key since
// the service is described as a read-mostly cache shared across instances
// running in the same process.
type Client struct {
	BaseURL string
	http    *http.Client
	group   singleflight.Group
}

// New builds a Client against baseURL, or a disabled client if baseURL is
// empty (every call then returns GraphRAGUnavailableError immediately).
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

// ImpactedTests is the shape of GetImpactedTests's response: test node IDs
// the service judges reachable from the changed files.
type ImpactedTests struct {
	Tests []string `json:"tests"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c.BaseURL == "" {
		return &bench.GraphRAGUnavailableError{Err: fmt.Errorf("no graphrag server configured")}
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &bench.GraphRAGUnavailableError{Err: err}
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return &bench.GraphRAGUnavailableError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &bench.GraphRAGUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &bench.GraphRAGUnavailableError{Err: fmt.Errorf("graphrag returned status %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &bench.GraphRAGUnavailableError{Err: err}
	}
	return nil
}

// BuildGraph asks the server to build (or reuse) an impact graph for repo
// at baseCommit, deduping concurrent calls for the same key.
func (c *Client) BuildGraph(ctx context.Context, repoPath, baseCommit string, forceRebuild bool) error {
	key := repoPath + "@" + baseCommit
	_, err, _ := c.group.Do(key, func() (any, error) {
		body := map[string]any{"repo_path": repoPath, "base_commit": baseCommit, "force_rebuild": forceRebuild}
		return nil, c.do(ctx, http.MethodPost, "/build_graph", body, nil)
	})
	return err
}

// IncrementalUpdate tells the server to refresh its graph for the given
// changed files, rather than rebuilding from scratch.
func (c *Client) IncrementalUpdate(ctx context.Context, repoPath string, changedFiles []string) error {
	body := map[string]any{"repo_path": repoPath, "changed_files": changedFiles}
	return c.do(ctx, http.MethodPost, "/incremental_update", body, nil)
}

// GetImpactedTests asks the server which tests are reachable from
// changedFiles in the current graph.
func (c *Client) GetImpactedTests(ctx context.Context, repoPath string, changedFiles []string) (ImpactedTests, error) {
	var out ImpactedTests
	body := map[string]any{"repo_path": repoPath, "changed_files": changedFiles}
	err := c.do(ctx, http.MethodPost, "/impacted_tests", body, &out)
	return out, err
}

// RunImpactedTests asks the server to execute the impacted test set
// itself and report pass/fail counts. AttemptController calls it after the
// local TestGate run.
func (c *Client) RunImpactedTests(ctx context.Context, repoPath string, tests []string) (bench.TestMetrics, error) {
	var out bench.TestMetrics
	body := map[string]any{"repo_path": repoPath, "tests": tests}
	err := c.do(ctx, http.MethodPost, "/run_impacted_tests", body, &out)
	return out, err
}

// ClearDatabase drops the server's cached graph for repoPath, used between
// unrelated runs sharing the same server instance.
func (c *Client) ClearDatabase(ctx context.Context, repoPath string) error {
	body := map[string]any{"repo_path": repoPath}
	return c.do(ctx, http.MethodPost, "/clear_database", body, nil)
}

// FormatGraphRAGFailureTask renders a repair-round prompt naming the tests
// GraphRAG judged impacted by the change but which still fail, carrying
// the original's _format_graphrag_failure_task wording pattern.
func FormatGraphRAGFailureTask(impacted []string) string {
	msg := "GraphRAG impact analysis found tests related to your change that still fail:\n"
	for _, t := range impacted {
		msg += "- " + t + "\n"
	}
	msg += "\nInvestigate why these are affected and adjust your change."
	return msg
}
