package schedule

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/progan/internal/control"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/model"
)

type testFade struct{ alpha float64 }

func (f *testFade) Alpha() float64 { return f.alpha }
func (f *testFade) UpdateAlpha(d float64) {
	f.alpha = math.Min(1, f.alpha+d)
}

// recordingStructure stands in for the growth controller.
type recordingStructure struct {
	max     int
	grows   []int
	lrs     []float64
	flushes []string
	failAt  int
}

func (r *recordingStructure) Grow(_ context.Context, level int, lr float64) (model.FadeIns, error) {
	if level > r.max {
		return model.FadeIns{}, errors.InternalError("grow past max").Fatal().Build()
	}
	if level == r.failAt {
		return model.FadeIns{}, errors.GrowthError("boom").Build()
	}
	r.grows = append(r.grows, level)
	r.lrs = append(r.lrs, lr)
	return model.FadeIns{Gen: &testFade{}, Dis: &testFade{}}, nil
}

func (r *recordingStructure) Flush(_ context.Context, role model.Role) error {
	r.flushes = append(r.flushes, string(role))
	return nil
}

// scenario is trns_tick=2, stab_tick=2, tick=10, batch 5: two iterations per tick.
func scenario(maxRes int) Params {
	return Params{TrnsTick: 2, StabTick: 2, Tick: 10, MaxResolution: maxRes, LR: 0.001, LRDecay: 0.87}
}

func newTest(t *testing.T, p Params, sig control.Signal) (*Scheduler, *recordingStructure) {
	t.Helper()
	rec := &recordingStructure{max: p.MaxResolution}
	s, err := New(p, rec, sig)
	require.NoError(t, err)
	return s, rec
}

func advanceN(t *testing.T, s *Scheduler, n, batch int) Outcome {
	t.Helper()
	var out Outcome
	for range n {
		var err error
		out, err = s.Advance(t.Context(), batch)
		require.NoError(t, err)
	}
	return out
}

func TestDeltaAndDAlpha(t *testing.T) {
	p := scenario(4)
	assert.InDelta(t, 0.125, p.Delta(), 1e-12)
	assert.InDelta(t, 0.25, p.DAlpha(5), 1e-12)
	assert.Equal(t, 8, p.Period())
}

func TestResolutionAdvancesPerTick(t *testing.T) {
	s, _ := newTest(t, scenario(4), nil)
	assert.InDelta(t, 2.0, s.State().Resolution, 1e-12)
	assert.Equal(t, PhaseInit, s.State().Phase)

	out := advanceN(t, s, 1, 5)
	assert.False(t, out.TickCompleted)
	out = advanceN(t, s, 1, 5)
	assert.True(t, out.TickCompleted)

	advanceN(t, s, 2, 5)
	st := s.State()
	assert.Equal(t, 2, st.GlobalTick)
	assert.Equal(t, 4, st.GlobalIter)
	assert.Equal(t, 20, st.KImgs)
	assert.InDelta(t, 2.25, st.Resolution, 1e-12)
	assert.Equal(t, PhaseInit, st.Phase, "no fade-in exists before the first growth")
}

func TestGrowthScenario(t *testing.T) {
	s, rec := newTest(t, scenario(4), nil)

	out := advanceN(t, s, 15, 5)
	assert.False(t, out.Grew)
	assert.Empty(t, rec.grows)

	out = advanceN(t, s, 1, 5)
	require.True(t, out.Grew, "growth at tick 8")
	assert.Equal(t, []int{3}, rec.grows)
	assert.InDelta(t, 0.001*0.87, rec.lrs[0], 1e-15)
	st := out.State
	assert.Equal(t, 8, st.GlobalTick)
	assert.Equal(t, 3, st.Level())
	assert.Equal(t, 8, st.ImageSize())
	assert.Equal(t, Completeness{}, st.Complete)
	assert.True(t, st.FlushGen)
	assert.True(t, st.FlushDis)
	assert.Empty(t, rec.flushes, "no flush at the first growth step")

	type point struct {
		tick  int
		phase Phase
		gen   float64
		dis   float64
	}
	// one entry per iteration after growth, through the end of level 3
	want := []point{
		{8, PhaseGTrns, 25, 0}, {9, PhaseGTrns, 50, 0},
		{9, PhaseGTrns, 75, 0}, {10, PhaseGTrns, 100, 0},
		{10, PhaseGStab, 100, 0}, {11, PhaseGStab, 100, 0},
		{11, PhaseGStab, 100, 0}, {12, PhaseDTrns, 0, 0}, // gen flushed
		{12, PhaseDTrns, 0, 25}, {13, PhaseDTrns, 0, 50},
		{13, PhaseDTrns, 0, 75}, {14, PhaseDTrns, 0, 100},
		{14, PhaseDStab, 0, 100}, {15, PhaseDStab, 0, 100},
		{15, PhaseDStab, 0, 100},
	}
	for i, w := range want {
		out := advanceN(t, s, 1, 5)
		st := out.State
		assert.Equal(t, w.tick, st.GlobalTick, "iteration %d", i)
		assert.Equal(t, w.phase, st.Phase, "iteration %d", i)
		assert.InDelta(t, w.gen, st.Complete.Gen, 1e-9, "iteration %d", i)
		assert.InDelta(t, w.dis, st.Complete.Dis, 1e-9, "iteration %d", i)
	}
	assert.Equal(t, []string{"gen"}, rec.flushes)

	out = advanceN(t, s, 1, 5)
	assert.True(t, out.FlushedDis)
	assert.True(t, out.Grew)
	assert.Equal(t, []int{3, 4}, rec.grows)
	assert.Equal(t, []string{"gen", "dis"}, rec.flushes)
	assert.Equal(t, 4, out.State.Level())
	assert.InDelta(t, 0.001*0.87*0.87, out.State.LR, 1e-15)
}

func TestFinalPhaseAtMaxResolution(t *testing.T) {
	s, rec := newTest(t, scenario(4), nil)

	// level 4 spans ticks 16..23; the last dstab band completes at tick 24
	out := advanceN(t, s, 47, 5)
	assert.Equal(t, PhaseDStab, out.State.Phase)
	assert.Equal(t, 23, out.State.GlobalTick)

	out = advanceN(t, s, 1, 5)
	require.True(t, out.EnteredFinal)
	assert.True(t, out.FlushedDis)
	assert.Equal(t, PhaseFinal, out.State.Phase)
	assert.InDelta(t, 4+7.0/8, out.State.Resolution, 1e-12)
	assert.Equal(t, []int{3, 4}, rec.grows, "never grows past max_resolution")

	pinned := out.State.Resolution
	out = advanceN(t, s, 40, 5)
	assert.Equal(t, PhaseFinal, out.State.Phase)
	assert.InDelta(t, pinned, out.State.Resolution, 0)
	assert.Equal(t, 1, out.State.Accelerate)
	assert.Equal(t, []string{"gen", "dis", "gen", "dis"}, rec.flushes)
}

func TestPhaseOrderAndMonotonicity(t *testing.T) {
	for _, p := range []Params{
		scenario(4),
		{TrnsTick: 3, StabTick: 1, Tick: 7, MaxResolution: 5, LR: 1, LRDecay: 0.5},
		{TrnsTick: 1, StabTick: 2, Tick: 4, MaxResolution: 3, LR: 1, LRDecay: 1},
	} {
		t.Run(fmt.Sprintf("T%d_S%d_TICK%d", p.TrnsTick, p.StabTick, p.Tick), func(t *testing.T) {
			s, rec := newTest(t, p, nil)
			batch := p.Tick - 1
			order := map[Phase]Phase{PhaseGTrns: PhaseGStab, PhaseGStab: PhaseDTrns, PhaseDTrns: PhaseDStab}
			last := s.State()
			for range 40 * p.Period() * p.Tick {
				out, err := s.Advance(t.Context(), batch)
				require.NoError(t, err)
				st := out.State
				require.GreaterOrEqual(t, st.Resolution, last.Resolution)
				require.GreaterOrEqual(t, st.Resolution, MinResolution)
				require.LessOrEqual(t, st.Resolution, MaxResolution)
				if st.Phase != last.Phase && last.Phase != PhaseInit {
					switch {
					case out.Grew || st.Phase == PhaseFinal:
						require.Equal(t, PhaseDStab, last.Phase, "growth and final follow dstab")
					case last.Phase == PhaseDStab:
						require.Equal(t, PhaseGTrns, st.Phase)
					default:
						require.Equal(t, order[last.Phase], st.Phase, "after %s", last.Phase)
					}
				}
				last = st
			}
			assert.Equal(t, PhaseFinal, last.Phase)
			want := []int{}
			for l := 3; l <= p.MaxResolution; l++ {
				want = append(want, l)
			}
			assert.Equal(t, want, rec.grows, "exactly one growth per level")
		})
	}
}

func TestResolutionSaturatesAtMaximum(t *testing.T) {
	p := Params{TrnsTick: 1, StabTick: 1, Tick: 2, MaxResolution: 10, LR: 1, LRDecay: 1}
	s, rec := newTest(t, p, nil)

	// Level 10 is entered at tick 32; its bands are one tick each with Period 4. The growth
	// iteration itself still reports the dstab it closed.
	var order []Phase
	stableTicks := 0
	var finalTick int
	for range 2 * 60 {
		out, err := s.Advance(t.Context(), 1)
		require.NoError(t, err)
		st := out.State
		assert.LessOrEqual(t, st.Resolution, MaxResolution)
		if st.Level() == 10 && !out.Grew {
			if len(order) == 0 || order[len(order)-1] != st.Phase {
				order = append(order, st.Phase)
			}
			if out.TickCompleted && st.Phase.IsStable() {
				stableTicks++
			}
		}
		if out.EnteredFinal {
			finalTick = st.GlobalTick
		}
	}

	st := s.State()
	assert.InDelta(t, 10.5, st.Resolution, 1e-12)
	assert.Equal(t, 60, st.GlobalTick)
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9, 10}, rec.grows)
	assert.Equal(t, 36, finalTick)
	assert.Equal(t, []Phase{PhaseGTrns, PhaseGStab, PhaseDTrns, PhaseDStab, PhaseFinal}, order)
	assert.Equal(t, PhaseFinal, st.Phase)
	assert.Equal(t, 60-36+1, stableTicks, "every tick from final on is checkpoint-eligible")
	assert.False(t, st.FlushGen)
	assert.False(t, st.FlushDis)
	assert.Equal(t, []string{string(model.RoleGenerator), string(model.RoleDiscriminator)},
		rec.flushes[len(rec.flushes)-2:])
}

func TestControlSignalAfterSaturationRequestsSkip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	sig := control.NewFileSignal(path, nil)
	require.NoError(t, sig.Init())
	p := Params{TrnsTick: 1, StabTick: 1, Tick: 2, MaxResolution: 10, LR: 1, LRDecay: 1}
	s, _ := newTest(t, p, sig)

	advanceN(t, s, 2*40, 1)
	require.Equal(t, PhaseFinal, s.State().Phase)
	for range 5 {
		require.NoError(t, sig.Request())
		advanceN(t, s, 2, 1)
	}
	assert.Equal(t, 1, s.State().Accelerate)
	assert.True(t, s.State().Skip)
}

func TestDeterministicTrajectory(t *testing.T) {
	record := func() []State {
		dir := t.TempDir()
		sig := control.NewFileSignal(filepath.Join(dir, "continue.txt"), nil)
		s, _ := newTest(t, scenario(5), sig)
		var ticks []State
		for i := range 400 {
			if i%37 == 0 {
				require.NoError(t, sig.Request())
			}
			out, err := s.Advance(t.Context(), 5)
			require.NoError(t, err)
			if out.TickCompleted {
				ticks = append(ticks, out.State)
			}
		}
		return ticks
	}
	assert.Equal(t, record(), record())
}

func TestControlSignalDoublesAccelerateInTransition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	sig := control.NewFileSignal(path, nil)
	require.NoError(t, sig.Init())
	s, _ := newTest(t, scenario(4), sig)

	advanceN(t, s, 17, 5)
	require.Equal(t, PhaseGTrns, s.State().Phase)
	require.Equal(t, 1, s.State().Accelerate)

	require.NoError(t, sig.Request())
	out := advanceN(t, s, 1, 5)
	require.True(t, out.TickCompleted)
	assert.True(t, out.Signalled)
	assert.Equal(t, 2, out.State.Accelerate)
	assert.False(t, out.State.Skip)
	assert.Equal(t, 0, control.Read(path), "request consumed and reset")
	assert.False(t, out.State.SkipStep(), "iteration 18 is a multiple of 2")

	out = advanceN(t, s, 1, 5)
	assert.Equal(t, 2, out.State.Accelerate)
	assert.True(t, out.State.SkipStep(), "odd iterations are thinned out")

	out = advanceN(t, s, 1, 5)
	assert.True(t, out.TickCompleted)
	assert.False(t, out.Signalled)
	assert.Equal(t, 2, out.State.Accelerate, "no change until another request")

	// accelerate resets once the phase is no longer a transition
	advanceN(t, s, 2, 5)
	assert.Equal(t, 1, s.State().Accelerate)
}

func TestControlSignalRequestsSkipOutsideTransition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	sig := control.NewFileSignal(path, nil)
	s, _ := newTest(t, scenario(4), sig)

	advanceN(t, s, 21, 5)
	require.Equal(t, PhaseGStab, s.State().Phase)

	require.NoError(t, os.WriteFile(path, []byte("1"), 0o600))
	out := advanceN(t, s, 1, 5)
	require.True(t, out.Signalled)
	assert.True(t, out.State.Skip)
	assert.True(t, out.State.SkipStep())

	out = advanceN(t, s, 1, 5)
	assert.True(t, out.State.Skip, "skip holds while the phase is unchanged")

	out = advanceN(t, s, 1, 5)
	require.True(t, out.FlushedGen)
	assert.False(t, out.State.Skip, "skip clears when the phase moves on")
}

func TestMalformedSignalIsInert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	require.NoError(t, os.WriteFile(path, []byte("maybe"), 0o600))
	s, _ := newTest(t, scenario(4), control.NewFileSignal(path, nil))
	out := advanceN(t, s, 40, 5)
	assert.Equal(t, 1, out.State.Accelerate)
	assert.False(t, out.State.Skip)
}

func TestAdvanceRejectsBadBatch(t *testing.T) {
	s, _ := newTest(t, scenario(4), nil)
	_, err := s.Advance(t.Context(), 0)
	require.Error(t, err)
	_, err = s.Advance(t.Context(), 10)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategorySchedule))
	assert.Zero(t, s.State().GlobalIter)
}

func TestGrowthFailureIsSurfaced(t *testing.T) {
	p := scenario(4)
	rec := &recordingStructure{max: 4, failAt: 3}
	s, err := New(p, rec, nil)
	require.NoError(t, err)
	for range 15 {
		_, err = s.Advance(t.Context(), 5)
		require.NoError(t, err)
	}
	_, err = s.Advance(t.Context(), 5)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryGrowth))
}

func TestNewValidatesParams(t *testing.T) {
	_, err := New(Params{TrnsTick: 0, StabTick: 1, Tick: 10, MaxResolution: 4}, &recordingStructure{}, nil)
	require.Error(t, err)
	_, err = New(scenario(11), &recordingStructure{}, nil)
	require.Error(t, err)
	_, err = New(scenario(4), nil, nil)
	require.Error(t, err)
}
