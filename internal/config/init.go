package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

// Example returns the configuration written by `progan init`.
func Example() *Config {
	cfg := Default()
	cfg.Schedule.BatchSizes = map[string]int{
		"4": 128, "8": 128, "16": 64, "32": 32, "64": 16, "128": 16, "256": 12,
	}
	cfg.Training.Seed = 1
	cfg.Monitoring.Metrics.Enabled = true
	cfg.Events.NATSURL = "${PROGAN_NATS_URL}"
	return cfg
}

// Init writes an example configuration to configPath. The encoding follows the extension.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).
			WithContext("path", configPath).
			Build()
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(Example())
		data = buf.Bytes()
	} else {
		data, err = yaml.Marshal(Example())
	}
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode example configuration").Build()
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to create configuration directory").
				WithContext("path", dir).
				Build()
		}
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write configuration file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
