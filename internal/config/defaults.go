package config

import (
	"path/filepath"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// ScheduleDefaultApplier fills the scheduler window sizes.
type ScheduleDefaultApplier struct{}

func (ScheduleDefaultApplier) Domain() string { return "schedule" }

func (ScheduleDefaultApplier) ApplyDefaults(cfg *Config) error {
	s := &cfg.Schedule
	if s.TrnsTick <= 0 {
		s.TrnsTick = 200
	}
	if s.StabTick <= 0 {
		s.StabTick = 100
	}
	if s.Tick <= 0 {
		s.Tick = 1000
	}
	if s.MaxResolution == 0 {
		s.MaxResolution = 8
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 16
	}
	if s.FinalStages <= 0 {
		s.FinalStages = 5
	}
	return nil
}

// OptimizerDefaultApplier fills Adam hyperparameters. Beta1 defaults to zero, which is
// also the Go zero value, so it is never overwritten.
type OptimizerDefaultApplier struct{}

func (OptimizerDefaultApplier) Domain() string { return "optimizer" }

func (OptimizerDefaultApplier) ApplyDefaults(cfg *Config) error {
	o := &cfg.Optimizer
	if o.Name == "" {
		o.Name = "adam"
	}
	if o.LR <= 0 {
		o.LR = 0.001
	}
	if o.LRDecay <= 0 {
		o.LRDecay = 0.87
	}
	if o.Beta2 <= 0 {
		o.Beta2 = 0.99
	}
	return nil
}

type TrainingDefaultApplier struct{}

func (TrainingDefaultApplier) Domain() string { return "training" }

func (TrainingDefaultApplier) ApplyDefaults(cfg *Config) error {
	t := &cfg.Training
	if t.Nz <= 0 {
		t.Nz = 512
	}
	if t.WGANLambda <= 0 {
		t.WGANLambda = 10
	}
	if t.WGANEpsilon <= 0 {
		t.WGANEpsilon = 0.001
	}
	if t.LogEvery <= 0 {
		t.LogEvery = 10
	}
	if t.SaveImgEvery <= 0 {
		t.SaveImgEvery = 20
	}
	if t.DatasetSize <= 0 {
		t.DatasetSize = 30000
	}
	return nil
}

type PathsDefaultApplier struct{}

func (PathsDefaultApplier) Domain() string { return "paths" }

func (PathsDefaultApplier) ApplyDefaults(cfg *Config) error {
	p := &cfg.Paths
	if p.CheckpointDir == "" {
		p.CheckpointDir = filepath.Join("repo", "model")
	}
	if p.GridDir == "" {
		p.GridDir = filepath.Join("repo", "save")
	}
	if p.ControlFile == "" {
		p.ControlFile = "continue.txt"
	}
	if p.EventDB == "" {
		p.EventDB = filepath.Join("repo", "events.db")
	}
	return nil
}

type CheckpointDefaultApplier struct{}

func (CheckpointDefaultApplier) Domain() string { return "checkpoint" }

func (CheckpointDefaultApplier) ApplyDefaults(cfg *Config) error {
	c := &cfg.Checkpoint
	if c.EveryTicks <= 0 {
		c.EveryTicks = 50
	}
	if c.Extension == "" {
		c.Extension = "ckpt"
	}
	if c.RetryBackoff == "" {
		c.RetryBackoff = RetryBackoffLinear
	}
	if c.RetryInitialDelay == "" {
		c.RetryInitialDelay = "1s"
	}
	if c.RetryMaxDelay == "" {
		c.RetryMaxDelay = "30s"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	return nil
}

type MonitoringDefaultApplier struct{}

func (MonitoringDefaultApplier) Domain() string { return "monitoring" }

func (MonitoringDefaultApplier) ApplyDefaults(cfg *Config) error {
	m := &cfg.Monitoring
	if m.Logging.Level == "" {
		m.Logging.Level = LogLevelInfo
	}
	if m.Logging.Format == "" {
		m.Logging.Format = LogFormatText
	}
	if m.Metrics.Listen == "" {
		m.Metrics.Listen = ":9464"
	}
	if m.HeartbeatInterval == "" {
		m.HeartbeatInterval = "30s"
	}
	return nil
}

type EventsDefaultApplier struct{}

func (EventsDefaultApplier) Domain() string { return "events" }

func (EventsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "progan.events"
	}
	return nil
}

// defaultAppliers lists domain appliers in dependency order.
func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		ScheduleDefaultApplier{},
		OptimizerDefaultApplier{},
		TrainingDefaultApplier{},
		PathsDefaultApplier{},
		CheckpointDefaultApplier{},
		MonitoringDefaultApplier{},
		EventsDefaultApplier{},
	}
}

func applyDefaults(cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	for _, a := range defaultAppliers() {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a fully defaulted configuration without reading any file.
func Default() *Config {
	cfg := &Config{}
	// appliers never fail on an empty config
	_ = applyDefaults(cfg)
	return cfg
}
