package config

import (
	"fmt"
	"strconv"
	"time"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

// Validate checks the defaulted configuration. Errors are ValidationError-classified.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	for _, check := range []func() error{
		v.validateSchedule,
		v.validateOptimizer,
		v.validateTraining,
		v.validateCheckpoint,
		v.validateMonitoring,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func invalid(field string, format string, args ...any) error {
	return errors.ValidationError(fmt.Sprintf(format, args...)).
		WithContext("field", field).
		Build()
}

func (cv *configurationValidator) validateSchedule() error {
	s := cv.config.Schedule
	if s.MaxResolution < 2 || s.MaxResolution > 10 {
		return invalid("schedule.max_resolution", "max_resolution must be between 2 and 10, got %d", s.MaxResolution)
	}
	if s.BatchSize >= s.Tick {
		// tick boundaries are detected by the image counter wrapping modulo tick
		return invalid("schedule.batch_size", "batch_size %d must be smaller than tick %d", s.BatchSize, s.Tick)
	}
	for key, n := range s.BatchSizes {
		side, err := strconv.Atoi(key)
		if err != nil || side < 4 || side&(side-1) != 0 {
			return invalid("schedule.batch_sizes", "batch_sizes key %q is not a power-of-two image side", key)
		}
		if n <= 0 || n >= s.Tick {
			return invalid("schedule.batch_sizes", "batch_sizes[%s]=%d must be in 1..%d", key, n, s.Tick-1)
		}
	}
	return nil
}

func (cv *configurationValidator) validateOptimizer() error {
	o := cv.config.Optimizer
	if o.Name != "adam" {
		return invalid("optimizer.name", "unsupported optimizer %q", o.Name)
	}
	if o.LRDecay > 1 {
		return invalid("optimizer.lr_decay", "lr_decay must be in (0,1], got %g", o.LRDecay)
	}
	if o.Beta1 < 0 || o.Beta1 >= 1 || o.Beta2 >= 1 {
		return invalid("optimizer.beta", "betas must be in [0,1), got %g/%g", o.Beta1, o.Beta2)
	}
	return nil
}

func (cv *configurationValidator) validateTraining() error {
	if cv.config.Training.WGANEpsilon < 0 {
		return invalid("training.wgan_epsilon", "wgan_epsilon must not be negative")
	}
	return nil
}

func (cv *configurationValidator) validateCheckpoint() error {
	c := cv.config.Checkpoint
	if c.RetryBackoff == "" {
		return invalid("checkpoint.retry_backoff", "unknown retry_backoff mode")
	}
	initial, err := time.ParseDuration(c.RetryInitialDelay)
	if err != nil {
		return invalid("checkpoint.retry_initial_delay", "invalid retry_initial_delay: %v", err)
	}
	maxDelay, err := time.ParseDuration(c.RetryMaxDelay)
	if err != nil {
		return invalid("checkpoint.retry_max_delay", "invalid retry_max_delay: %v", err)
	}
	if maxDelay < initial {
		return invalid("checkpoint.retry_max_delay", "retry_max_delay (%s) must be >= retry_initial_delay (%s)", maxDelay, initial)
	}
	return nil
}

func (cv *configurationValidator) validateMonitoring() error {
	d, err := time.ParseDuration(cv.config.Monitoring.HeartbeatInterval)
	if err != nil || d < 0 {
		return invalid("monitoring.heartbeat_interval", "invalid heartbeat_interval %q", cv.config.Monitoring.HeartbeatInterval)
	}
	return nil
}

// RetryDelays returns the parsed checkpoint retry delays. Validate guarantees they parse.
func (c CheckpointConfig) RetryDelays() (initial, maxDelay time.Duration) {
	initial, _ = time.ParseDuration(c.RetryInitialDelay)
	maxDelay, _ = time.ParseDuration(c.RetryMaxDelay)
	return initial, maxDelay
}

// Heartbeat returns the parsed heartbeat interval; zero disables the heartbeat.
func (m MonitoringConfig) Heartbeat() time.Duration {
	d, err := time.ParseDuration(m.HeartbeatInterval)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}
