package trainer

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/progan/internal/eventstore"
	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/notify"
)

// journal appends run events to the store and fans them out. Neither failure stops
// training; both are logged.
type journal struct {
	runID     string
	store     eventstore.Store
	publisher notify.Publisher
	logger    *slog.Logger
}

func (j *journal) record(ctx context.Context, e eventstore.Event, err error) {
	if err != nil {
		j.logger.WarnContext(ctx, "Failed to build journal event", logfields.Error(err))
		return
	}
	if j.store != nil {
		if err := eventstore.AppendEvent(ctx, j.store, e); err != nil {
			j.logger.WarnContext(ctx, "Failed to append journal event",
				slog.String("type", e.Type()), logfields.RunID(j.runID), logfields.Error(err))
		}
	}
	if j.publisher != nil {
		if err := j.publisher.Publish(ctx, e); err != nil {
			j.logger.WarnContext(ctx, "Failed to publish journal event",
				slog.String("type", e.Type()), logfields.RunID(j.runID), logfields.Error(err))
		}
	}
}
