// Package report renders run history, schedule plans and checkpoint listings for humans.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/progan/internal/eventstore"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

// History renders runs as a markdown document with a fingerprinted frontmatter block, so
// regenerated reports with unchanged content keep their fingerprint.
func History(runs []eventstore.RunSummary) (string, error) {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "---\ntitle: Training runs\nruns: %d\n---\n\n", len(runs))
	b.WriteString("# Training runs\n\n")
	if len(runs) == 0 {
		b.WriteString("No runs recorded.\n")
	} else {
		b.WriteString("| Run | Status | Started | Duration | Tick | Iterations | Resolution | Phase | Checkpoints | Resumes |\n")
		b.WriteString("|---|---|---|---|---:|---:|---:|---|---:|---:|\n")
		for _, r := range runs {
			p.Fprintf(&b, "| %s | %s | %s | %s | %d | %d | %.3f | %s | %d | %d |\n",
				shortID(r.RunID), r.Status, r.StartedAt.UTC().Format(time.RFC3339), duration(r),
				r.LastTick, r.LastIteration, r.LastResolution, r.LastPhase, r.Checkpoints, r.Resumes)
		}
	}

	for _, r := range runs {
		fmt.Fprintf(&b, "\n## Run %s\n\n", r.RunID)
		c := r.Config
		p.Fprintf(&b, "- Schedule: trns %d, stab %d, tick %d images, max %dpx\n",
			c.TrnsTick, c.StabTick, c.Tick, 1<<c.MaxResolution)
		if c.Commit != "" {
			dirty := ""
			if c.Dirty {
				dirty = " (dirty)"
			}
			fmt.Fprintf(&b, "- Source: `%s`%s\n", c.Commit, dirty)
		}
		if c.CPU != "" {
			fmt.Fprintf(&b, "- Host: %s\n", c.CPU)
		}
		p.Fprintf(&b, "- Losses at last tick: D %.4f, G %.4f\n", r.LastLossD, r.LastLossG)
		for _, g := range r.Growths {
			p.Fprintf(&b, "- Grew to %dpx at tick %d (lr %.5f)\n", g.ImageSize, g.Tick, g.LR)
		}
		if r.LastCheckpoint != nil {
			fmt.Fprintf(&b, "- Last checkpoint: `%s` (tick %d)\n", r.LastCheckpoint.Gen, r.LastCheckpoint.Tick)
		}
		if r.CheckpointFailures > 0 {
			fmt.Fprintf(&b, "- Checkpoint failures: %d\n", r.CheckpointFailures)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n", r.Error)
		}
	}

	out, err := mdfp.ProcessContent(b.String())
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryInternal, "failed to fingerprint report").Build()
	}
	return out, nil
}

// HTML converts a markdown report to HTML, dropping its frontmatter.
func HTML(markdown string) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(stripFrontmatter(markdown)), &buf); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to render HTML report").Build()
	}
	return buf.Bytes(), nil
}

func stripFrontmatter(s string) string {
	if !strings.HasPrefix(s, "---\n") {
		return s
	}
	if end := strings.Index(s[4:], "\n---\n"); end >= 0 {
		return strings.TrimLeft(s[4+end+5:], "\n")
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func duration(r eventstore.RunSummary) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.Duration.Round(time.Second).String()
}
