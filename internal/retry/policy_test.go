package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/progan/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, config.RetryBackoffLinear, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
	assert.Equal(t, 2, p.MaxRetries)
}

func TestNewPolicyClampsInitial(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, config.RetryBackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)

	unknown := NewPolicy("random", 0, 0, -1)
	assert.Equal(t, DefaultPolicy(), unknown)
}

func TestDelayModes(t *testing.T) {
	ms := time.Millisecond
	fixed := NewPolicy(config.RetryBackoffFixed, 100*ms, 500*ms, 3)
	linear := NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5)
	exp := NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5)

	assert.Equal(t, 100*ms, fixed.Delay(3))
	assert.Equal(t, []time.Duration{100 * ms, 200 * ms, 250 * ms, 250 * ms},
		[]time.Duration{linear.Delay(1), linear.Delay(2), linear.Delay(3), linear.Delay(4)})
	assert.Equal(t, []time.Duration{50 * ms, 100 * ms, 160 * ms, 160 * ms},
		[]time.Duration{exp.Delay(1), exp.Delay(2), exp.Delay(3), exp.Delay(4)})
	assert.Equal(t, 160*ms, exp.Delay(64))
	assert.Zero(t, linear.Delay(0))
	assert.Zero(t, linear.Delay(-1))
}

func TestFromCheckpointConfig(t *testing.T) {
	p := FromCheckpointConfig(config.CheckpointConfig{
		RetryBackoff:      config.RetryBackoffExponential,
		RetryInitialDelay: "10ms",
		RetryMaxDelay:     "1s",
		MaxRetries:        4,
	})
	assert.Equal(t, config.RetryBackoffExponential, p.Mode)
	assert.Equal(t, 10*time.Millisecond, p.Initial)
	assert.Equal(t, time.Second, p.Max)
	assert.Equal(t, 4, p.MaxRetries)
	require.NoError(t, p.Validate())
}

func TestValidate(t *testing.T) {
	assert.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: 0}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)
	calls := 0
	err := p.Do(t.Context(), func(int) error {
		calls++
		if calls < 3 {
			return errors.New("disk busy")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5)
	permanent := errors.New("permission denied")
	calls := 0
	err := p.Do(t.Context(), func(int) error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
	var attempts []int
	err := p.Do(t.Context(), func(a int) error {
		attempts = append(attempts, a)
		return errors.New("nope")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestDoHonoursContext(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 3)
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return errors.New("first")
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
