package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

// CurrentVersion is the configuration format version this build understands.
const CurrentVersion = "1"

// Config is the trainer configuration, loaded from YAML or TOML.
type Config struct {
	Version    string           `yaml:"version" toml:"version"`
	Schedule   ScheduleConfig   `yaml:"schedule" toml:"schedule"`
	Optimizer  OptimizerConfig  `yaml:"optimizer" toml:"optimizer"`
	Training   TrainingConfig   `yaml:"training" toml:"training"`
	Paths      PathsConfig      `yaml:"paths" toml:"paths"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" toml:"checkpoint"`
	Monitoring MonitoringConfig `yaml:"monitoring" toml:"monitoring"`
	Events     EventsConfig     `yaml:"events" toml:"events"`
}

// ScheduleConfig drives the resolution/phase scheduler.
type ScheduleConfig struct {
	TrnsTick      int `yaml:"trns_tick" toml:"trns_tick"`           // ticks per transition segment
	StabTick      int `yaml:"stab_tick" toml:"stab_tick"`           // ticks per stabilize segment
	Tick          int `yaml:"tick" toml:"tick"`                     // images per tick (TICK)
	MaxResolution int `yaml:"max_resolution" toml:"max_resolution"` // exponent ceiling, 2^max px
	BatchSize     int `yaml:"batch_size" toml:"batch_size"`
	// BatchSizes overrides BatchSize per image side, keyed by side length ("4", "8", ... "1024").
	BatchSizes  map[string]int `yaml:"batch_sizes,omitempty" toml:"batch_sizes,omitempty"`
	FinalStages int            `yaml:"final_stages" toml:"final_stages"` // extra stages trained at max resolution
}

// OptimizerConfig holds Adam hyperparameters and the per-growth decay.
type OptimizerConfig struct {
	Name    string  `yaml:"name" toml:"name"`
	LR      float64 `yaml:"lr" toml:"lr"`
	LRDecay float64 `yaml:"lr_decay" toml:"lr_decay"`
	Beta1   float64 `yaml:"beta1" toml:"beta1"`
	Beta2   float64 `yaml:"beta2" toml:"beta2"`
}

// TrainingConfig holds loop-level knobs.
type TrainingConfig struct {
	Nz              int     `yaml:"nz" toml:"nz"`
	Seed            int64   `yaml:"seed" toml:"seed"`
	FlagAddNoise    *bool   `yaml:"flag_add_noise" toml:"flag_add_noise"` // nil means enabled
	FlagAddDrift    *bool   `yaml:"flag_add_drift" toml:"flag_add_drift"` // nil means enabled
	WGANLambda      float64 `yaml:"wgan_lambda" toml:"wgan_lambda"`
	WGANEpsilon     float64 `yaml:"wgan_epsilon" toml:"wgan_epsilon"`
	LogEvery        int     `yaml:"log_every" toml:"log_every"`
	SaveImgEvery    int     `yaml:"save_img_every" toml:"save_img_every"`
	HaltOnNonFinite bool    `yaml:"halt_on_nonfinite" toml:"halt_on_nonfinite"`
	Resume          bool    `yaml:"resume" toml:"resume"`
	DatasetSize     int     `yaml:"dataset_size" toml:"dataset_size"` // synthetic loader only
}

// AddNoise reports whether adaptive discriminator input noise is enabled.
func (t TrainingConfig) AddNoise() bool { return t.FlagAddNoise == nil || *t.FlagAddNoise }

// AddDrift reports whether the epsilon drift penalty is enabled.
func (t TrainingConfig) AddDrift() bool { return t.FlagAddDrift == nil || *t.FlagAddDrift }

// PathsConfig locates on-disk artifacts.
type PathsConfig struct {
	CheckpointDir string `yaml:"checkpoint_dir" toml:"checkpoint_dir"`
	GridDir       string `yaml:"grid_dir" toml:"grid_dir"`
	ControlFile   string `yaml:"control_file" toml:"control_file"`
	EventDB       string `yaml:"event_db" toml:"event_db"`
}

// CheckpointConfig controls snapshot cadence and write retries.
type CheckpointConfig struct {
	EveryTicks        int              `yaml:"every_ticks" toml:"every_ticks"`
	Extension         string           `yaml:"extension" toml:"extension"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff" toml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay" toml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay" toml:"retry_max_delay"`
	MaxRetries        int              `yaml:"max_retries" toml:"max_retries"`
}

// MonitoringConfig covers logging, metrics and the heartbeat job.
type MonitoringConfig struct {
	Logging           LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics           MetricsConfig `yaml:"metrics" toml:"metrics"`
	HeartbeatInterval string        `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	WatchControl      bool          `yaml:"watch_control" toml:"watch_control"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level" toml:"level"`
	Format LogFormat `yaml:"format" toml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Listen  string `yaml:"listen" toml:"listen"`
}

// EventsConfig configures fan-out of run journal events.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url" toml:"nats_url"`
	Subject string `yaml:"subject" toml:"subject"`
}

// BatchSizeFor returns the batch size used while training at 2^level pixels.
func (s ScheduleConfig) BatchSizeFor(level int) int {
	if s.BatchSizes != nil {
		if n, ok := s.BatchSizes[strconv.Itoa(1<<level)]; ok && n > 0 {
			return n
		}
	}
	return s.BatchSize
}

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration file").
			WithContext("path", configPath).
			Build()
	}

	cfg, err := Parse(filepath.Ext(configPath), []byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration bytes (".toml" selects TOML, anything else YAML)
// and runs the normalize, defaults and validate passes.
func Parse(ext string, data []byte) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to decode TOML configuration").Fatal().Build()
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to decode YAML configuration").Fatal().Build()
		}
	}

	if cfg.Version != "" && cfg.Version != CurrentVersion {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported configuration version %q (expected %q)", cfg.Version, CurrentVersion)).Build()
	}

	normalize(&cfg)
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
