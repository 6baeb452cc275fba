package commands

import (
	"context"
	"fmt"
	"os"

	"git.home.luguber.info/inful/progan/internal/eventstore"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/report"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	HTML   bool   `name:"html" help:"Render HTML instead of markdown"`
	Output string `short:"o" help:"Write the report to a file instead of stdout"`
	Limit  int    `help:"Number of runs to include" default:"20"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	proj := eventstore.NewRunHistoryProjection(store, h.Limit)
	if err := proj.Rebuild(context.Background()); err != nil {
		return err
	}
	doc, err := report.History(proj.GetHistory())
	if err != nil {
		return err
	}
	out := []byte(doc)
	if h.HTML {
		if out, err = report.HTML(doc); err != nil {
			return err
		}
	}

	if h.Output != "" {
		if err := os.WriteFile(h.Output, out, 0o644); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to write report").
				WithContext("path", h.Output).
				Build()
		}
		fmt.Printf("Wrote %s\n", h.Output)
		return nil
	}
	_, err = os.Stdout.Write(out)
	return err
}
