package dryrun

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/progan/internal/model"
	"git.home.luguber.info/inful/progan/internal/tensor"
)

var _ model.Backend = (*Backend)(nil)

func spec(level, batch int) model.BufferSpec {
	return model.BufferSpec{BatchSize: batch, ImageSize: 1 << level, Channels: 3, Nz: 8, LR: 0.001, Beta2: 0.99}
}

func TestNetworkGrowAndFlush(t *testing.T) {
	n := NewNetwork(model.RoleGenerator, 7)
	assert.Equal(t, 2, n.Level())
	_, ok := n.ActiveFadeIn()
	assert.False(t, ok)
	require.Error(t, n.Flush(), "nothing to flush at the base level")

	_, err := n.Grow(4)
	require.Error(t, err, "levels cannot be skipped")

	fade, err := n.Grow(3)
	require.NoError(t, err)
	assert.Equal(t, 3, n.Level())
	assert.Zero(t, fade.Alpha())

	_, err = n.Grow(4)
	require.Error(t, err, "growing again requires a flush first")

	fade.UpdateAlpha(0.6)
	fade.UpdateAlpha(0.6)
	assert.InDelta(t, 1.0, fade.Alpha(), 1e-12)

	require.NoError(t, n.Flush())
	_, ok = n.ActiveFadeIn()
	assert.False(t, ok)
}

func TestStateDictRequiresMatchingTopology(t *testing.T) {
	a := NewNetwork(model.RoleDiscriminator, 1)
	_, err := a.Grow(3)
	require.NoError(t, err)
	data, err := a.StateDict()
	require.NoError(t, err)

	b := NewNetwork(model.RoleDiscriminator, 99)
	require.Error(t, b.LoadStateDict(data), "base-only network cannot take a grown state")

	_, err = b.Grow(3)
	require.NoError(t, err)
	require.NoError(t, b.LoadStateDict(data))
	assert.Equal(t, a.stages, b.stages)

	g := NewNetwork(model.RoleGenerator, 1)
	_, _ = g.Grow(3)
	require.Error(t, g.LoadStateDict(data), "role mismatch")
}

func TestBackendStepsAreDeterministicAndFinite(t *testing.T) {
	run := func() []float64 {
		b := New(42)
		require.NoError(t, b.Rebuild(spec(2, 4)))
		batch := tensor.New(4, 3, 4, 4)
		for i := range batch.Data {
			batch.Data[i] = float32(i%7) / 7
		}
		var out []float64
		for range 5 {
			d, err := b.StepDiscriminator(t.Context(), model.DiscriminatorStep{Real: batch, Lambda: 10, Epsilon: 0.001, Drift: true})
			require.NoError(t, err)
			g, err := b.StepGenerator(t.Context())
			require.NoError(t, err)
			out = append(out, d.Loss, g.Loss, d.FakeMean)
		}
		return out
	}
	a, b := run(), run()
	assert.Equal(t, a, b)
	for _, v := range a {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestDriftPenaltyIsGated(t *testing.T) {
	b := New(3)
	require.NoError(t, b.Rebuild(spec(2, 2)))
	batch := tensor.New(2, 3, 4, 4)
	for i := range batch.Data {
		batch.Data[i] = 0.5
	}
	res, err := b.StepDiscriminator(t.Context(), model.DiscriminatorStep{Real: batch, Epsilon: 0.001})
	require.NoError(t, err)
	assert.Zero(t, res.DriftPenalty)
}

func TestRebuildResetsOptimizers(t *testing.T) {
	b := New(5)
	require.Error(t, b.Rebuild(spec(3, 4)), "image size must match generator level")
	require.NoError(t, b.Rebuild(spec(2, 4)))

	opt := b.Optimizer(model.RoleGenerator)
	assert.InDelta(t, 0.001, opt.LearningRate(), 1e-12)

	_, err := b.StepGenerator(t.Context())
	require.NoError(t, err)
	data, err := opt.StateDict()
	require.NoError(t, err)

	_, err = b.gen.Grow(3)
	require.NoError(t, err)
	_, err = b.dis.Grow(3)
	require.NoError(t, err)
	s := spec(3, 4)
	s.LR = 0.00087
	require.NoError(t, b.Rebuild(s))
	assert.InDelta(t, 0.00087, b.Optimizer(model.RoleGenerator).LearningRate(), 1e-12)

	require.NoError(t, b.Optimizer(model.RoleGenerator).LoadStateDict(data))
	assert.EqualValues(t, 1, b.opt[model.RoleGenerator].Steps)
}

func TestGenerateBlendsDuringFadeIn(t *testing.T) {
	b := New(9)
	_, err := b.gen.Grow(3)
	require.NoError(t, err)
	_, err = b.dis.Grow(3)
	require.NoError(t, err)
	require.NoError(t, b.Rebuild(spec(3, 2)))

	z := tensor.New(2, 8, 1, 1)
	out, err := b.Generate(t.Context(), z)
	require.NoError(t, err)
	assert.Equal(t, [4]int{2, 3, 8, 8}, out.Shape())

	// alpha 0: the output is the upsampled previous stage, constant over 2x2 blocks
	assert.Equal(t, out.At(0, 0, 0, 0), out.At(0, 0, 1, 1))
}
