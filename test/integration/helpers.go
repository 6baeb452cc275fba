package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/report"
)

// PlanEvent is the golden form of a plan point where the topology or phase band changed.
type PlanEvent struct {
	Tick       int      `yaml:"tick" json:"tick"`
	Iteration  int      `yaml:"iteration" json:"iteration"`
	Resolution float64  `yaml:"resolution" json:"resolution"`
	Phase      string   `yaml:"phase" json:"phase"`
	Events     []string `yaml:"events" json:"events"`
}

// loadGoldenConfig loads a test configuration and points every artifact path into a
// temporary directory.
func loadGoldenConfig(t *testing.T, configPath string) *config.Config {
	t.Helper()

	cfg, err := config.Load(configPath)
	require.NoError(t, err, "failed to load test config")

	dir := t.TempDir()
	cfg.Paths.CheckpointDir = filepath.Join(dir, "model")
	cfg.Paths.GridDir = filepath.Join(dir, "save")
	cfg.Paths.ControlFile = filepath.Join(dir, "continue.txt")
	cfg.Paths.EventDB = filepath.Join(dir, "events.db")
	return cfg
}

func planEvents(points []report.PlanPoint) []PlanEvent {
	var out []PlanEvent
	for _, pt := range points {
		if len(pt.Events) == 0 {
			continue
		}
		out = append(out, PlanEvent{
			Tick:       pt.Tick,
			Iteration:  pt.Iteration,
			Resolution: pt.Resolution,
			Phase:      string(pt.Phase),
			Events:     pt.Events,
		})
	}
	return out
}

// verifyGolden compares actual against a YAML golden file, or rewrites the file when
// updateGolden is set.
func verifyGolden(t *testing.T, goldenPath string, actual any, updateGolden bool) {
	t.Helper()

	if updateGolden {
		data, err := yaml.Marshal(actual)
		require.NoError(t, err, "failed to marshal golden data")
		require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0o750), "failed to create golden directory")
		require.NoError(t, os.WriteFile(goldenPath, data, 0o600), "failed to write golden file")
		t.Logf("Updated golden file: %s", goldenPath)
		return
	}

	// #nosec G304 -- test utility reading golden file from testdata
	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "failed to read golden file: %s", goldenPath)

	var expected any
	require.NoError(t, yaml.Unmarshal(goldenData, &expected), "failed to parse golden file")

	// round-trip actual through YAML so both sides share the same shape
	actualData, err := yaml.Marshal(actual)
	require.NoError(t, err)
	var normalized any
	require.NoError(t, yaml.Unmarshal(actualData, &normalized))

	expectedJSON, err := json.MarshalIndent(expected, "", "  ")
	require.NoError(t, err)
	actualJSON, err := json.MarshalIndent(normalized, "", "  ")
	require.NoError(t, err)
	require.JSONEq(t, string(expectedJSON), string(actualJSON), "golden mismatch: %s", goldenPath)
}
