package commands

import (
	"os"

	"git.home.luguber.info/inful/progan/internal/checkpoint"
	"git.home.luguber.info/inful/progan/internal/report"
)

// CheckpointsCmd implements the 'checkpoints' command.
type CheckpointsCmd struct {
	Dir string `help:"Checkpoint directory (default: paths.checkpoint_dir)"`
}

func (c *CheckpointsCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	dir := cfg.Paths.CheckpointDir
	if c.Dir != "" {
		dir = c.Dir
	}
	pairs, err := checkpoint.Scan(dir, cfg.Checkpoint.Extension)
	if err != nil {
		return err
	}
	return report.WriteCheckpoints(os.Stdout, pairs)
}
