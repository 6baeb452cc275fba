package config

import (
	"strconv"
	"strings"
)

// normalize canonicalizes enum-like and free-text fields before defaults are applied.
func normalize(cfg *Config) {
	if cfg.Monitoring.Logging.Level != "" {
		cfg.Monitoring.Logging.Level = NormalizeLogLevel(string(cfg.Monitoring.Logging.Level))
	}
	if cfg.Monitoring.Logging.Format != "" {
		cfg.Monitoring.Logging.Format = NormalizeLogFormat(string(cfg.Monitoring.Logging.Format))
	}
	if cfg.Checkpoint.RetryBackoff != "" {
		// unknown modes fall back to the default applier's choice
		cfg.Checkpoint.RetryBackoff = NormalizeRetryBackoff(string(cfg.Checkpoint.RetryBackoff))
	}
	cfg.Optimizer.Name = strings.ToLower(strings.TrimSpace(cfg.Optimizer.Name))
	cfg.Checkpoint.Extension = strings.TrimPrefix(strings.TrimSpace(cfg.Checkpoint.Extension), ".")

	for _, p := range []*string{&cfg.Paths.CheckpointDir, &cfg.Paths.GridDir, &cfg.Paths.ControlFile, &cfg.Paths.EventDB} {
		*p = strings.TrimSpace(*p)
	}

	if len(cfg.Schedule.BatchSizes) > 0 {
		sizes := make(map[string]int, len(cfg.Schedule.BatchSizes))
		for k, v := range cfg.Schedule.BatchSizes {
			key := strings.TrimSpace(k)
			// "16x16" and "16" address the same level
			if i := strings.IndexByte(key, 'x'); i > 0 {
				key = key[:i]
			}
			if n, err := strconv.Atoi(key); err == nil {
				key = strconv.Itoa(n)
			}
			sizes[key] = v
		}
		cfg.Schedule.BatchSizes = sizes
	}
}
