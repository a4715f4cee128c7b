// Package workspace implements RepoWorkspace: acquiring a task's repository
// into a throwaway directory, checked out at base_commit, with guaranteed
// cleanup. Grounded on the shallow-clone-then-fallback-to-full-clone
// sequence in the original qwen-mini interface's _setup_repository, and on
// the teacher's convention of a guaranteed defer-based teardown around any
// resource it hands an agent.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/re-cinq/patchwash/internal/bench"
	"github.com/re-cinq/patchwash/internal/gitops"
)

const (
	cloneTimeout    = 5 * time.Minute
	unshallowTimeout = 5 * time.Minute
)

// Handle is an acquired, checked-out workspace. Callers must call Close to
// remove the underlying directory.
type Handle struct {
	Dir        string
	Repo       *gitops.Repo
	BaseCommit string
	ignorer    *ignore.GitIgnore
}

// Close removes the workspace directory. Safe to call multiple times.
func (h *Handle) Close() error {
	if h == nil || h.Dir == "" {
		return nil
	}
	return os.RemoveAll(h.Dir)
}

// Acquire clones task.Repo into a fresh temp directory under root (or the
// system temp dir if root is ""), checks out task.BaseCommit, and returns a
// Handle. The caller must defer Close. Mirrors _setup_repository: try a
// shallow clone first (falling back to a full clone if it fails),
// unshallow-and-retry if base_commit isn't reachable
// at depth 1, and always return a *bench.SetupError on failure so callers
// can distinguish acquisition failures from agent failures.
func Acquire(ctx context.Context, task bench.Task, root string) (*Handle, error) {
	dir, err := os.MkdirTemp(root, "patchwash-"+sanitize(task.InstanceID)+"-")
	if err != nil {
		return nil, &bench.SetupError{Instance: task.InstanceID, Err: fmt.Errorf("creating workspace dir: %w", err)}
	}

	repoURL := resolveRepoURL(task.Repo)

	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	repo, err := cloneShallow(cloneCtx, dir, repoURL)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, &bench.SetupError{Instance: task.InstanceID, Err: err}
	}

	if !repo.BranchExists(task.BaseCommit) {
		if err := unshallowOrFetch(ctx, repo, task.BaseCommit); err != nil {
			_ = os.RemoveAll(dir)
			return nil, &bench.SetupError{Instance: task.InstanceID, Err: err}
		}
	}

	if err := repo.Checkout(task.BaseCommit); err != nil {
		_ = os.RemoveAll(dir)
		return nil, &bench.SetupError{Instance: task.InstanceID, Err: fmt.Errorf("checking out base_commit: %w", err)}
	}

	repo.EnsureIdentity()

	ignorer, _ := ignore.CompileIgnoreLines(loadIgnorePatterns(dir)...)

	return &Handle{Dir: dir, Repo: repo, BaseCommit: task.BaseCommit, ignorer: ignorer}, nil
}

func cloneShallow(ctx context.Context, dir, repoURL string) (*gitops.Repo, error) {
	done := make(chan struct{})
	var repo *gitops.Repo
	var err error
	go func() {
		repo, err = gitops.Clone(dir, repoURL)
		if err != nil {
			repo, err = gitops.CloneFull(dir, repoURL)
		}
		close(done)
	}()
	select {
	case <-done:
		return repo, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func unshallowOrFetch(ctx context.Context, repo *gitops.Repo, commit string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, unshallowTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := repo.Unshallow(); err != nil {
			errCh <- repo.FetchCommit(commit)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-fetchCtx.Done():
		return fetchCtx.Err()
	}
}

func resolveRepoURL(repo string) string {
	if repo == "" {
		return repo
	}
	for _, prefix := range []string{"http://", "https://", "git@", "ssh://", "file://"} {
		if len(repo) >= len(prefix) && repo[:len(prefix)] == prefix {
			return repo
		}
	}
	return "https://github.com/" + repo + ".git"
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// loadIgnorePatterns reads .patchwashignore from the workspace root, if
// present, returning an empty pattern set otherwise.
func loadIgnorePatterns(dir string) []string {
	data, err := os.ReadFile(filepath.Join(dir, ".patchwashignore"))
	if err != nil {
		return nil
	}
	return splitLines(string(data))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// FilterIgnored removes paths the workspace's .patchwashignore matches.
// AttemptController applies it to the file list handed to the compile gate
// and to the GraphRAG impacted-test query; QualityGate's structural file
// count comes from the diff headers and is not filtered.
func (h *Handle) FilterIgnored(paths []string) []string {
	if h.ignorer == nil {
		return paths
	}
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if !h.ignorer.MatchesPath(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
