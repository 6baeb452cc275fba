package schedule

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/progan/internal/control"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

func constBatch(n int) BatchSizer { return func() int { return n } }

func TestReplayReconstructsStateAtIteration(t *testing.T) {
	original, _ := newTest(t, scenario(5), nil)
	var saved State
	for range 120 {
		out, err := original.Advance(t.Context(), 5)
		require.NoError(t, err)
		// a checkpoint-eligible point: tick boundary inside a stable phase
		if out.TickCompleted && out.State.Phase == PhaseGStab && saved.GlobalIter == 0 {
			saved = out.State
		}
	}
	require.NotZero(t, saved.GlobalIter)

	resumed, rec := newTest(t, scenario(5), nil)
	st, err := resumed.Replay(t.Context(), ReplayTarget{Tick: saved.GlobalTick, Iteration: saved.GlobalIter}, constBatch(5))
	require.NoError(t, err)
	assert.Equal(t, saved, st)
	assert.Equal(t, saved.Level()-2, len(rec.grows), "networks regrown to the saved topology")

	// the resumed scheduler continues exactly like the original would have
	continued, _ := newTest(t, scenario(5), nil)
	for range saved.GlobalIter + 30 {
		_, err := continued.Advance(t.Context(), 5)
		require.NoError(t, err)
	}
	for range 30 {
		_, err := resumed.Advance(t.Context(), 5)
		require.NoError(t, err)
	}
	assert.Equal(t, continued.State(), resumed.State())
}

func TestReplayIgnoresControlSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	sig := control.NewFileSignal(path, nil)
	require.NoError(t, sig.Request())

	s, _ := newTest(t, scenario(4), sig)
	st, err := s.Replay(t.Context(), ReplayTarget{Tick: 20, Iteration: 40}, constBatch(5))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Accelerate)
	assert.False(t, st.Skip)
	assert.Equal(t, 1, control.Read(path), "replay never consumes the request")
}

func TestReplayWithoutIterationStopsBeforeNextTick(t *testing.T) {
	s, _ := newTest(t, scenario(4), nil)
	st, err := s.Replay(t.Context(), ReplayTarget{Tick: 9}, constBatch(3))
	require.NoError(t, err)
	assert.Equal(t, 9, st.GlobalTick)
	assert.Less(t, (st.KImgs+3)%10, st.KImgs%10, "the next advance crosses a tick boundary")
}

func TestReplayMatchesCompletenessAtTick(t *testing.T) {
	for tick := 8; tick <= 24; tick++ {
		ref, _ := newTest(t, scenario(4), nil)
		var want State
		for {
			out, err := ref.Advance(t.Context(), 5)
			require.NoError(t, err)
			if out.TickCompleted && out.State.GlobalTick == tick {
				want = out.State
				break
			}
		}
		s, _ := newTest(t, scenario(4), nil)
		got, err := s.Replay(t.Context(), ReplayTarget{Tick: tick, Iteration: want.GlobalIter}, constBatch(5))
		require.NoError(t, err)
		assert.Equal(t, want.Resolution, got.Resolution, "tick %d", tick)
		assert.Equal(t, want.Phase, got.Phase, "tick %d", tick)
		assert.Equal(t, want.Complete, got.Complete, "tick %d", tick)
	}
}

func TestReplayRejectsUsedSchedulerAndOvershoot(t *testing.T) {
	s, _ := newTest(t, scenario(4), nil)
	advanceN(t, s, 1, 5)
	_, err := s.Replay(t.Context(), ReplayTarget{Tick: 2}, constBatch(5))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryResume))

	fresh, _ := newTest(t, scenario(4), nil)
	// iteration 40 lies at tick 20, not tick 3
	_, err = fresh.Replay(t.Context(), ReplayTarget{Tick: 3, Iteration: 40}, constBatch(5))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryResume))
}
