package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/progan/internal/checkpoint"
	"git.home.luguber.info/inful/progan/internal/control"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

const smallConfig = `version: "1"
schedule:
  trns_tick: 2
  stab_tick: 2
  tick: 10
  max_resolution: 4
  batch_size: 5
  final_stages: 1
training:
  nz: 8
  seed: 3
  dataset_size: 32
  log_every: 10
  save_img_every: 8
checkpoint:
  every_ticks: 4
monitoring:
  heartbeat_interval: "0s"
paths:
  checkpoint_dir: DIR/model
  grid_dir: DIR/save
  control_file: DIR/continue.txt
  event_db: DIR/events.db
`

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "progan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(smallConfig, "DIR", dir)), 0o600))
	return dir, path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	var cli CLI
	g := &Global{}
	parser, err := kong.New(&cli, kong.Name("progan"), kong.Bind(g), kong.Exit(func(int) {}),
		kong.Vars{"version": "test"})
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return ctx.Run(&cli)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progan.yaml")
	require.NoError(t, run(t, "--config", path, "init"))
	_, err := os.Stat(path)
	require.NoError(t, err)

	err = run(t, "--config", path, "init")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	require.NoError(t, run(t, "--config", path, "init", "--force"))
}

func TestTrainRequiresDryRun(t *testing.T) {
	_, path := writeConfig(t)
	err := run(t, "--config", path, "train")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestTrainThenInspect(t *testing.T) {
	dir, path := writeConfig(t)
	require.NoError(t, run(t, "--config", path, "train", "--dry-run", "--run-id", "cli-run"))

	pairs, err := checkpoint.Scan(filepath.Join(dir, "model"), "ckpt")
	require.NoError(t, err)
	assert.NotEmpty(t, pairs)

	require.NoError(t, run(t, "--config", path, "checkpoints"))
	require.NoError(t, run(t, "--config", path, "plan", "--events-only"))

	report := filepath.Join(dir, "history.html")
	require.NoError(t, run(t, "--config", path, "history", "--html", "-o", report))
	html, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(html), "cli-run")
}

func TestResumeFlagWithoutCheckpoints(t *testing.T) {
	_, path := writeConfig(t)
	err := run(t, "--config", path, "train", "--dry-run", "--resume")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestSignalArmsControlFile(t *testing.T) {
	dir, path := writeConfig(t)
	require.NoError(t, run(t, "--config", path, "signal"))
	assert.Equal(t, 1, control.Read(filepath.Join(dir, "continue.txt")))
}
