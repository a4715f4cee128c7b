package graphrag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/patchwash/internal/bench"
)

func TestBuildGraph_ConcurrentCallsForSameKeyAllSucceed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := New(srv.URL)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- c.BuildGraph(context.Background(), "repo", "commit", false)
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	assert.LessOrEqual(t, int(atomic.LoadInt32(&calls)), 8)
}

func TestGetImpactedTests_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ImpactedTests{Tests: []string{"tests/test_a.py::test_x"}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.GetImpactedTests(context.Background(), "/repo", []string{"a.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tests/test_a.py::test_x"}, got.Tests)
}

func TestDo_NoBaseURLIsUnavailable(t *testing.T) {
	c := New("")
	err := c.BuildGraph(context.Background(), "repo", "commit", false)
	require.Error(t, err)
	var unavailable *bench.GraphRAGUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestDo_NonOKStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.ClearDatabase(context.Background(), "/repo")
	require.Error(t, err)
	var unavailable *bench.GraphRAGUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
