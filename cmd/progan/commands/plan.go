package commands

import (
	"context"
	"os"

	"git.home.luguber.info/inful/progan/internal/report"
)

// PlanCmd implements the 'plan' command.
type PlanCmd struct {
	Until      int  `help:"Stop after this tick"`
	EventsOnly bool `name:"events-only" help:"Only list ticks where the phase or topology changed"`
}

func (p *PlanCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	points, err := report.Plan(context.Background(), cfg, p.Until)
	if err != nil {
		return err
	}
	return report.WritePlan(os.Stdout, points, p.EventsOnly)
}
