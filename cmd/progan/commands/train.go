package commands

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/control"
	"git.home.luguber.info/inful/progan/internal/data"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/metrics"
	"git.home.luguber.info/inful/progan/internal/model/dryrun"
	"git.home.luguber.info/inful/progan/internal/notify"
	"git.home.luguber.info/inful/progan/internal/provenance"
	"git.home.luguber.info/inful/progan/internal/trainer"
)

// TrainCmd implements the 'train' command.
type TrainCmd struct {
	DryRun bool   `name:"dry-run" help:"Train the deterministic CPU networks on synthetic images"`
	Resume bool   `help:"Resume from the newest checkpoint pair; fail when there is none"`
	RunID  string `name:"run-id" help:"Run id for a fresh run (default: random)"`
}

func (t *TrainCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if !t.DryRun {
		return errors.ConfigError("no network backend is linked into this build; use --dry-run").
			UserAction().
			Build()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunTrain(ctx, cfg, t.resumeMode(cfg), t.RunID, g.Logger)
}

func (t *TrainCmd) resumeMode(cfg *config.Config) trainer.ResumeMode {
	switch {
	case t.Resume:
		return trainer.ResumeRequired
	case cfg.Training.Resume:
		return trainer.ResumeIfPresent
	default:
		return trainer.ResumeNever
	}
}

// RunTrain wires the journal, fan-out, metrics and control file around a dry-run driver.
func RunTrain(ctx context.Context, cfg *config.Config, mode trainer.ResumeMode, runID string, logger *slog.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Failed to close run journal", "error", cerr)
		}
	}()

	deps := trainer.Deps{
		Backend: dryrun.New(uint64(cfg.Training.Seed)),
		Loader:  data.NewSynthetic(cfg.Schedule, cfg.Training.DatasetSize, uint64(cfg.Training.Seed)),
		Store:   store,
		Grids:   trainer.NewPNGGrids(cfg.Paths.GridDir),
	}

	sig := control.NewFileSignal(cfg.Paths.ControlFile, logger)
	if err := sig.Init(); err != nil {
		return err
	}
	deps.Signal = sig

	if cfg.Events.NATSURL != "" {
		pub, perr := notify.NewNATSPublisher(ctx, cfg.Events, logger)
		if perr != nil {
			// the journal is authoritative; fan-out is best effort
			logger.Warn("Event fan-out disabled", "error", perr)
		} else {
			defer func() { _ = pub.Close() }()
			deps.Publisher = pub
			deps.Status = pub
		}
	}

	opts := []trainer.Option{
		trainer.WithLogger(logger),
		trainer.WithResume(mode),
		trainer.WithProvenance(provenance.Collect(workDir()), "dryrun"),
	}
	if runID != "" {
		opts = append(opts, trainer.WithRunID(runID))
	}
	if cfg.Monitoring.Metrics.Enabled {
		reg := prom.NewRegistry()
		opts = append(opts, trainer.WithRecorder(metrics.NewPrometheusRecorder(reg)))
		go func() {
			if serr := metrics.Serve(ctx, cfg.Monitoring.Metrics.Listen, reg); serr != nil {
				logger.Error("Metrics endpoint stopped", "error", serr)
			}
		}()
	}

	d, err := trainer.New(cfg, deps, opts...)
	if err != nil {
		return err
	}
	res, err := d.Run(ctx)
	if stderrors.Is(err, context.Canceled) {
		logger.Info("Training interrupted; continue with --resume",
			"run_id", res.RunID, "iteration", res.State.GlobalIter)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Training finished",
		"run_id", res.RunID,
		"iterations", res.State.GlobalIter,
		"ticks", res.State.GlobalTick,
		"checkpoints", res.Checkpoints,
		"resumed", res.Resumed)
	return nil
}

func workDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
