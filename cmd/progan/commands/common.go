package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/eventstore"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/observability"
)

// Global carries state shared by subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"progan.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Train       TrainCmd       `cmd:"" help:"Train until the final stage completes, resuming from checkpoints on request"`
	Plan        PlanCmd        `cmd:"" help:"Print the resolution and phase trajectory of the configured schedule"`
	Checkpoints CheckpointsCmd `cmd:"" help:"List checkpoint pairs and the one resume would load"`
	History     HistoryCmd     `cmd:"" help:"Render the run journal as a markdown or HTML report"`
	Signal      SignalCmd      `cmd:"" help:"Request a skip or acceleration at the next tick boundary"`
	Init        InitCmd        `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; the logger is refined once a command has loaded
// its configuration.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = observability.NewLogger(os.Stderr, config.LoggingConfig{}, c.Verbose)
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig loads the root configuration and switches the default logger to its
// logging section.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = observability.NewLogger(os.Stderr, cfg.Monitoring.Logging, root.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func openStore(cfg *config.Config) (*eventstore.SQLiteStore, error) {
	store, err := eventstore.NewSQLiteStore(cfg.Paths.EventDB)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryEventStore, "failed to open run journal").
			WithContext("path", cfg.Paths.EventDB).
			Build()
	}
	return store, nil
}
