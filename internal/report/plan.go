package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/data"
	"git.home.luguber.info/inful/progan/internal/growth"
	"git.home.luguber.info/inful/progan/internal/model/dryrun"
	"git.home.luguber.info/inful/progan/internal/schedule"
)

// PlanPoint is the schedule position right after one tick boundary.
type PlanPoint struct {
	Tick        int
	Iteration   int
	Images      int
	Resolution  float64
	ImageSize   int
	Phase       schedule.Phase
	GenComplete float64
	DisComplete float64
	LR          float64
	Events      []string
}

// Plan replays the schedule with dry-run networks and an inert control signal, recording
// every tick boundary until the final phase (or untilTick when positive).
func Plan(ctx context.Context, cfg *config.Config, untilTick int) ([]PlanPoint, error) {
	params := schedule.ParamsFromConfig(cfg)
	settings := growth.SettingsFromConfig(cfg)
	settings.Nz = 1
	ctrl := growth.New(dryrun.New(1), data.NewSynthetic(cfg.Schedule, 1, 1), settings)
	if err := ctrl.Prepare(ctx, params.LR); err != nil {
		return nil, err
	}
	sched, err := schedule.New(params, ctrl, nil)
	if err != nil {
		return nil, err
	}

	var points []PlanPoint
	for {
		if err := ctx.Err(); err != nil {
			return points, err
		}
		out, err := sched.Advance(ctx, ctrl.BatchSize())
		if err != nil {
			return points, err
		}
		if !out.TickCompleted {
			continue
		}
		st := out.State
		pt := PlanPoint{
			Tick:        st.GlobalTick,
			Iteration:   st.GlobalIter,
			Images:      st.KImgs,
			Resolution:  st.Resolution,
			ImageSize:   st.ImageSize(),
			Phase:       st.Phase,
			GenComplete: st.Complete.Gen,
			DisComplete: st.Complete.Dis,
			LR:          st.LR,
		}
		if out.FlushedGen {
			pt.Events = append(pt.Events, "flush gen")
		}
		if out.FlushedDis {
			pt.Events = append(pt.Events, "flush dis")
		}
		if out.Grew {
			pt.Events = append(pt.Events, fmt.Sprintf("grow %dpx", st.ImageSize()))
		}
		if out.EnteredFinal {
			pt.Events = append(pt.Events, "final")
		}
		points = append(points, pt)
		if out.EnteredFinal || (untilTick > 0 && st.GlobalTick >= untilTick) {
			return points, nil
		}
	}
}

// WritePlan prints points as an aligned table. With eventsOnly, only ticks where the
// topology or phase band changed are listed.
func WritePlan(w io.Writer, points []PlanPoint, eventsOnly bool) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "tick\titeration\timages\tresolution\tsize\tphase\tG%\tD%\tlr\tevents\t")
	var prev schedule.Phase
	for _, pt := range points {
		if eventsOnly && len(pt.Events) == 0 && pt.Phase == prev {
			continue
		}
		prev = pt.Phase
		p.Fprintf(tw, "%d\t%d\t%d\t%.3f\t%d\t%s\t%.1f\t%.1f\t%.5f\t%s\t\n",
			pt.Tick, pt.Iteration, pt.Images, pt.Resolution, pt.ImageSize, pt.Phase,
			pt.GenComplete, pt.DisComplete, pt.LR, strings.Join(pt.Events, ", "))
	}
	if len(points) > 0 {
		last := points[len(points)-1]
		p.Fprintf(tw, "\n%d ticks, %d iterations, %d images\t\n", last.Tick, last.Iteration, last.Images)
	}
	return tw.Flush()
}
