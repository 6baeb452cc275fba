package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAppend(t *testing.T, store Store, e Event, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NoError(t, AppendEvent(t.Context(), store, e))
}

func TestRunHistoryProjectionRebuild(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	started, err := NewRunStarted(testRunID, RunStartedMeta{ConfigHash: "abc", MaxResolution: 4, Backend: "dryrun"})
	mustAppend(t, store, started, err)
	grown, err := NewNetworkGrown(testRunID, Growth{Tick: 8, ImageSize: 8, LR: 0.00087})
	mustAppend(t, store, grown, err)
	tick, err := NewTickCompleted(testRunID, TickProgress{Tick: 9, Iteration: 18, Resolution: 3.125, Phase: "gtrns", LossD: 0.5, LossG: 1.5})
	mustAppend(t, store, tick, err)
	flushed, err := NewFadeInFlushed(testRunID, Flush{Tick: 12, Role: "gen", Resolution: 3.5})
	mustAppend(t, store, flushed, err)
	saved, err := NewCheckpointSaved(testRunID, CheckpointRef{Tick: 14, Level: 3, Gen: "g", Dis: "d"})
	mustAppend(t, store, saved, err)
	failed, err := NewCheckpointFailed(testRunID, CheckpointFailure{Tick: 16, Error: "disk full"})
	mustAppend(t, store, failed, err)

	p := NewRunHistoryProjection(store, 10)
	require.NoError(t, p.Rebuild(t.Context()))
	assert.False(t, p.LastSyncTime().IsZero())

	run, ok := p.GetRun(testRunID)
	require.True(t, ok)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, "abc", run.Config.ConfigHash)
	assert.Equal(t, 9, run.LastTick)
	assert.Equal(t, "gtrns", run.LastPhase)
	assert.InDelta(t, 1.5, run.LastLossG, 0)
	assert.Equal(t, []Growth{{Tick: 8, ImageSize: 8, LR: 0.00087}}, run.Growths)
	assert.Equal(t, 1, run.Flushes)
	assert.Equal(t, 1, run.Checkpoints)
	require.NotNil(t, run.LastCheckpoint)
	assert.Equal(t, 14, run.LastCheckpoint.Tick)
	assert.Equal(t, 1, run.CheckpointFailures)

	active, ok := p.GetActiveRun()
	require.True(t, ok)
	assert.Equal(t, testRunID, active.RunID)
}

func TestRunHistoryProjectionResumeAndFinish(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	p := NewRunHistoryProjection(store, 10)

	started, err := NewRunStarted(testRunID, RunStartedMeta{})
	require.NoError(t, err)
	p.Apply(started)
	for _, size := range []int{8, 16} {
		g, err := NewNetworkGrown(testRunID, Growth{ImageSize: size})
		require.NoError(t, err)
		p.Apply(g)
	}
	stopped, err := NewRunFinished(testRunID, RunOutcome{Status: RunStatusInterrupted, Tick: 20})
	require.NoError(t, err)
	p.Apply(stopped)

	run, _ := p.GetRun(testRunID)
	assert.Equal(t, RunStatusInterrupted, run.Status)
	require.NotNil(t, run.FinishedAt)

	resumed, err := NewRunResumed(testRunID, RunResumedMeta{FromTick: 14, Phase: "dstab"})
	require.NoError(t, err)
	p.Apply(resumed)
	// replay regrows the same sizes
	g, err := NewNetworkGrown(testRunID, Growth{ImageSize: 8})
	require.NoError(t, err)
	p.Apply(g)

	run, _ = p.GetRun(testRunID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, 1, run.Resumes)
	assert.Equal(t, 14, run.LastTick)
	assert.Len(t, run.Growths, 2)

	done, err := NewRunFinished(testRunID, RunOutcome{Status: RunStatusCompleted, Tick: 40, Phase: "final"})
	require.NoError(t, err)
	p.Apply(done)
	run, _ = p.GetRun(testRunID)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, "final", run.LastPhase)
	_, active := p.GetActiveRun()
	assert.False(t, active)
}

func TestRunHistoryProjectionPrunesFinishedRuns(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	p := NewRunHistoryProjection(store, 2)

	for _, id := range []string{"r1", "r2", "r3"} {
		s, err := NewRunStarted(id, RunStartedMeta{})
		require.NoError(t, err)
		p.Apply(s)
		f, err := NewRunFinished(id, RunOutcome{Status: RunStatusCompleted})
		require.NoError(t, err)
		p.Apply(f)
	}
	live, err := NewRunStarted("r4", RunStartedMeta{})
	require.NoError(t, err)
	p.Apply(live)

	history := p.GetHistory()
	ids := make([]string, 0, len(history))
	for _, h := range history {
		ids = append(ids, h.RunID)
	}
	assert.Contains(t, ids, "r4")
	assert.NotContains(t, ids, "r1")
	assert.Len(t, ids, 3)
}
