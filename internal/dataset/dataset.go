// Package dataset implements DatasetSource: a read-only provider of
// Task records. CachedSource reads a local JSON or JSONL cache file,
// mirroring load_cached_dataset's cache-hit path in the original tool —
// the download-from-HuggingFace path itself is the explicitly out-of-scope
// collaborator, so a miss here is a ConfigError, not a fetch.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/re-cinq/patchwash/internal/bench"
)

// ErrNotCached is returned when the requested cache file doesn't exist.
var ErrNotCached = errors.New("dataset not cached locally")

// Source provides Task records for a run.
type Source interface {
	// Select returns tasks matching ids, or every task in the cache if
	// ids is empty.
	Select(ids []string) ([]bench.Task, error)
}

// CachedSource reads Task records from a local file at Path, either a
// JSON array or newline-delimited JSON (detected by the first
// non-whitespace byte).
type CachedSource struct {
	Path string
}

// NewCachedSource builds a CachedSource bound to path.
func NewCachedSource(path string) *CachedSource {
	return &CachedSource{Path: path}
}

func (c *CachedSource) Select(ids []string) ([]bench.Task, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", c.Path, ErrNotCached)
		}
		return nil, fmt.Errorf("opening dataset cache: %w", err)
	}
	defer f.Close()

	all, err := readAll(f)
	if err != nil {
		return nil, fmt.Errorf("parsing dataset cache %s: %w", c.Path, err)
	}

	if len(ids) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []bench.Task
	for _, t := range all {
		if want[t.InstanceID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func readAll(f *os.File) ([]bench.Task, error) {
	br := bufio.NewReader(f)
	var first byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, nil
		}
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			first = b
			_ = br.UnreadByte()
			break
		}
	}

	if first == '[' {
		var tasks []bench.Task
		if err := json.NewDecoder(br).Decode(&tasks); err != nil {
			return nil, err
		}
		return tasks, nil
	}

	var tasks []bench.Task
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var t bench.Task
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}
