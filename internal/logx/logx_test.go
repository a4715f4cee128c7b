package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForInstance_WritesToBothSinkAndFile(t *testing.T) {
	var console bytes.Buffer
	root := New(&console, "info")

	dir := t.TempDir()
	logger, f, err := root.ForInstance(dir, "demo-1")
	require.NoError(t, err)

	logger.Info("hello", "key", "value")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "demo-1.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "demo-1")
	assert.Contains(t, console.String(), "hello")
}

func TestForInstance_CreatesLogDir(t *testing.T) {
	console := &bytes.Buffer{}
	root := New(console, "debug")

	dir := filepath.Join(t.TempDir(), "nested", "logs")
	_, f, err := root.ForInstance(dir, "demo-2")
	require.NoError(t, err)
	f.Close()

	_, err = os.Stat(filepath.Join(dir, "demo-2.log"))
	assert.NoError(t, err)
}
