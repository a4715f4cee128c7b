package agentdriver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/patchwash/internal/backend"
	"github.com/re-cinq/patchwash/internal/bench"
)

type fakeBackend struct {
	steps []func() (backend.Message, error)
	calls int
}

func (f *fakeBackend) Step(ctx context.Context, transcript []backend.Message) (backend.Message, error) {
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i]()
}

type retryableErr struct{ retryable bool }

func (e *retryableErr) Error() string   { return "transport error" }
func (e *retryableErr) Retryable() bool { return e.retryable }

func testConfig() bench.RunConfig {
	cfg := bench.DefaultRunConfig()
	cfg.AgentRetryLimit = 2
	cfg.AgentRetryBackoff = time.Millisecond
	return cfg
}

func TestRun_SucceedsOnFirstTry(t *testing.T) {
	b := &fakeBackend{steps: []func() (backend.Message, error){
		func() (backend.Message, error) { return backend.Message{Role: "assistant", Content: "ok"}, nil },
	}}
	d := New(b, testConfig())

	res, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Message.Content)
	assert.Equal(t, 1, b.calls)
}

func TestRun_RetriesTransientThenSucceeds(t *testing.T) {
	b := &fakeBackend{steps: []func() (backend.Message, error){
		func() (backend.Message, error) { return backend.Message{}, &retryableErr{retryable: true} },
		func() (backend.Message, error) { return backend.Message{Role: "assistant", Content: "ok"}, nil },
	}}
	d := New(b, testConfig())

	res, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Message.Content)
	assert.Equal(t, 2, b.calls)
}

func TestRun_NonRetryableErrorIsFatalImmediately(t *testing.T) {
	b := &fakeBackend{steps: []func() (backend.Message, error){
		func() (backend.Message, error) { return backend.Message{}, errors.New("boom") },
	}}
	d := New(b, testConfig())

	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	var fatal *bench.AgentFatalError
	assert.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, b.calls)
}

func TestRun_RetryExhaustion(t *testing.T) {
	b := &fakeBackend{steps: []func() (backend.Message, error){
		func() (backend.Message, error) { return backend.Message{}, &retryableErr{retryable: true} },
	}}
	d := New(b, testConfig())

	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	var fatal *bench.AgentFatalError
	assert.ErrorAs(t, err, &fatal)
	assert.Equal(t, d.RetryLimit+1, b.calls)
}

func TestObserveTurn_NoAbortUnderStrictWithFreshCommands(t *testing.T) {
	cfg := testConfig()
	d := New(&fakeBackend{}, cfg)

	warnings, err := d.ObserveTurn("echo hi", 0, "hi", "", "diff --git a/x b/x\n+1\n")
	assert.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestObserveTurn_AbortsOnSearchStreak(t *testing.T) {
	cfg := testConfig()
	cfg.SearchStreakLimit = 2
	d := New(&fakeBackend{}, cfg)

	_, err := d.ObserveTurn("grep foo .", 0, "", "", "")
	assert.NoError(t, err)
	_, err = d.ObserveTurn("grep foo .", 0, "", "", "")
	var abortErr *bench.LoopAbortError
	assert.ErrorAs(t, err, &abortErr)
}
