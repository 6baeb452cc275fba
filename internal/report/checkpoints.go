package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/progan/internal/checkpoint"
)

// WriteCheckpoints lists checkpoint pairs oldest first and marks the pair resume selects.
// An incomplete newest pair is flagged, since resume refuses it.
func WriteCheckpoints(w io.Writer, pairs []checkpoint.Pair) error {
	if len(pairs) == 0 {
		_, err := fmt.Fprintln(w, "No checkpoints found.")
		return err
	}
	latest, _ := checkpoint.Latest(pairs)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "tick\tsize\tstatus\tgenerator\t")
	for _, p := range pairs {
		status := "complete"
		if !p.Complete() {
			missing := make([]string, 0, 2)
			for _, r := range p.Missing() {
				missing = append(missing, string(r))
			}
			status = "missing " + strings.Join(missing, ",")
		}
		if p.Tick == latest.Tick && p.Level == latest.Level {
			if p.Complete() {
				status += " (resume)"
			} else {
				status += " (resume will fail)"
			}
		}
		gen := p.Gen
		if gen == "" {
			gen = "-"
		}
		fmt.Fprintf(tw, "%d\t%dpx\t%s\t%s\t\n", p.Tick, 1<<p.Level, status, gen)
	}
	return tw.Flush()
}
