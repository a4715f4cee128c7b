package loopguard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/re-cinq/patchwash/internal/bench"
)

func testConfig() bench.RunConfig {
	cfg := bench.DefaultRunConfig()
	cfg.SearchStreakLimit = 3
	cfg.NoDiffStreakLimit = 3
	cfg.RepeatedFailLimit = 2
	cfg.SedFailLimit = 2
	return cfg
}

func TestSearchStreakAbort(t *testing.T) {
	d := New(testConfig())
	var dec Decision
	for i := 0; i < 3; i++ {
		dec = d.ObserveCommand("grep -r foo .", 0, "", "")
	}
	assert.NotNil(t, dec.Abort)
	assert.Equal(t, "search_only_streak:3", dec.Abort.Reason)
}

func TestSearchStreakResetsOnEdit(t *testing.T) {
	d := New(testConfig())
	d.ObserveCommand("grep -r foo .", 0, "", "")
	d.ObserveCommand("grep -r foo .", 0, "", "")
	dec := d.ObserveCommand("sed -i 's/a/b/' foo.py", 0, "", "")
	assert.Nil(t, dec.Abort)
	assert.Equal(t, 0, d.searchStreak)
}

func TestRepeatedFailingCommand(t *testing.T) {
	d := New(testConfig())
	d.ObserveCommand("python bad.py", 1, "", "command not found")
	dec := d.ObserveCommand("python bad.py", 1, "", "command not found")
	assert.NotNil(t, dec.Abort)
	assert.Equal(t, "repeated_failing_command:python x2", dec.Abort.Reason)
}

func TestRepeatedFailingCommandOutranksSearchStreak(t *testing.T) {
	d := New(testConfig())
	d.ObserveCommand("grep -r foo .", 0, "", "")
	d.ObserveCommand("grep -r foo .", 0, "", "")
	d.ObserveCommand("grep bad.py", 1, "", "command not found")
	dec := d.ObserveCommand("grep bad.py", 1, "", "command not found")
	assert.NotNil(t, dec.Abort)
	assert.Equal(t, "repeated_failing_command:grep x2", dec.Abort.Reason)
}

func TestNoDiffStreak(t *testing.T) {
	d := New(testConfig())
	diff := "diff --git a/x b/x\n+same\n"
	d.ObserveDiff(diff)
	d.ObserveDiff(diff)
	d.ObserveDiff(diff)
	dec := d.ObserveDiff(diff)
	assert.NotNil(t, dec.Abort)
	assert.Equal(t, "no_diff_streak:3", dec.Abort.Reason)
}

func TestWarnPolicyNeverAborts(t *testing.T) {
	cfg := testConfig()
	cfg.LoopPolicy = bench.LoopPolicyWarn
	d := New(cfg)
	var dec Decision
	for i := 0; i < 5; i++ {
		dec = d.ObserveCommand("grep -r foo .", 0, "", "")
	}
	assert.Nil(t, dec.Abort)
	assert.NotEmpty(t, dec.Warnings)
}

func TestOffPolicySuppressesEverything(t *testing.T) {
	cfg := testConfig()
	cfg.LoopPolicy = bench.LoopPolicyOff
	d := New(cfg)
	dec := d.ObserveCommand("grep -r foo .", 0, "", "")
	assert.Nil(t, dec.Abort)
	assert.Empty(t, dec.Warnings)
}
