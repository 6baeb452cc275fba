package integration

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/progan/internal/checkpoint"
	"git.home.luguber.info/inful/progan/internal/data"
	"git.home.luguber.info/inful/progan/internal/eventstore"
	"git.home.luguber.info/inful/progan/internal/model/dryrun"
	"git.home.luguber.info/inful/progan/internal/report"
	"git.home.luguber.info/inful/progan/internal/trainer"
)

var updateGolden = flag.Bool("update-golden", false, "Update golden files")

const smallConfig = "../testdata/configs/small.yaml"

// TestGolden_SmallPlan pins the structural trajectory of the small schedule: growth
// at every period boundary below the max level, a generator flush halfway through each
// period and the final phase once the last stable band at max resolution is done.
func TestGolden_SmallPlan(t *testing.T) {
	cfg := loadGoldenConfig(t, smallConfig)

	points, err := report.Plan(t.Context(), cfg, 0)
	require.NoError(t, err)

	verifyGolden(t, "../testdata/golden/small-plan.golden.yaml", planEvents(points), *updateGolden)
}

// TestRunFollowsPlan trains the small schedule with dry-run networks and checks that the
// journal records the same growth ticks the plan predicts and that every journalled
// checkpoint left a complete pair on disk.
func TestRunFollowsPlan(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end run in short mode")
	}
	cfg := loadGoldenConfig(t, smallConfig)

	store, err := eventstore.NewSQLiteStore(cfg.Paths.EventDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d, err := trainer.New(cfg, trainer.Deps{
		Backend: dryrun.New(uint64(cfg.Training.Seed)),
		Loader:  data.NewSynthetic(cfg.Schedule, cfg.Training.DatasetSize, 1),
		Store:   store,
	}, trainer.WithRunID("golden"))
	require.NoError(t, err)
	res, err := d.Run(t.Context())
	require.NoError(t, err)

	points, err := report.Plan(t.Context(), cfg, 0)
	require.NoError(t, err)
	var planned []int
	for _, ev := range planEvents(points) {
		for _, e := range ev.Events {
			if len(e) > 4 && e[:4] == "grow" {
				planned = append(planned, ev.Tick)
			}
		}
	}

	proj := eventstore.NewRunHistoryProjection(store, 10)
	require.NoError(t, proj.Rebuild(t.Context()))
	run, ok := proj.GetRun("golden")
	require.True(t, ok)
	var grown []int
	for _, g := range run.Growths {
		grown = append(grown, g.Tick)
	}
	assert.Equal(t, planned, grown)
	assert.Equal(t, eventstore.RunStatusCompleted, run.Status)

	pairs, err := checkpoint.Scan(cfg.Paths.CheckpointDir, cfg.Checkpoint.Extension)
	require.NoError(t, err)
	require.Len(t, pairs, res.Checkpoints)
	for _, p := range pairs {
		assert.True(t, p.Complete(), "pair at tick %d", p.Tick)
	}
	require.NotNil(t, run.LastCheckpoint)
	assert.Equal(t, pairs[len(pairs)-1].Tick, run.LastCheckpoint.Tick)
}
