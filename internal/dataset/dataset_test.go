package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCachedSource_JSONL(t *testing.T) {
	path := writeTemp(t, `{"instance_id":"a","repo":"r/r"}
{"instance_id":"b","repo":"r/r"}
`)
	src := NewCachedSource(path)
	tasks, err := src.Select(nil)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestCachedSource_JSONArray(t *testing.T) {
	path := writeTemp(t, `[{"instance_id":"a"},{"instance_id":"b"}]`)
	src := NewCachedSource(path)
	tasks, err := src.Select([]string{"b"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].InstanceID)
}

func TestCachedSource_NotFound(t *testing.T) {
	src := NewCachedSource(filepath.Join(t.TempDir(), "missing.jsonl"))
	_, err := src.Select(nil)
	assert.ErrorIs(t, err, ErrNotCached)
}
