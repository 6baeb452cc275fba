package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/notify"
)

// Heartbeat periodically logs the latest run status and, when a sink is set, stores it
// for external dashboards.
type Heartbeat struct {
	scheduler gocron.Scheduler
	status    func() (Status, bool)
	sink      notify.StatusSink
	logger    *slog.Logger
}

// NewHeartbeat creates a stopped heartbeat. sink may be nil.
func NewHeartbeat(status func() (Status, bool), sink notify.StatusSink, logger *slog.Logger) (*Heartbeat, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{scheduler: s, status: status, sink: sink, logger: logger}, nil
}

// Start schedules the heartbeat every interval and starts the scheduler.
func (h *Heartbeat) Start(interval time.Duration) (string, error) {
	job, err := h.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(h.beat),
		gocron.WithName("heartbeat"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create heartbeat job: %w", err)
	}
	h.scheduler.Start()
	return job.ID().String(), nil
}

// Stop shuts the scheduler down, waiting for a running beat.
func (h *Heartbeat) Stop() error {
	return h.scheduler.Shutdown()
}

func (h *Heartbeat) beat() {
	st, ok := h.status()
	if !ok {
		h.logger.Debug("Heartbeat: no status yet")
		return
	}
	h.logger.Info("Heartbeat",
		logfields.RunID(st.RunID),
		slog.Int("stage", st.Stage),
		logfields.Tick(st.Tick),
		logfields.Iteration(st.Iteration),
		logfields.Resolution(st.Resolution),
		logfields.Phase(st.Phase),
		slog.Float64("loss_d", st.LossD),
		slog.Float64("loss_g", st.LossG),
		slog.Duration("age", time.Since(st.UpdatedAt)))

	if h.sink == nil {
		return
	}
	doc, err := json.Marshal(st)
	if err != nil {
		h.logger.Warn("Failed to encode run status", logfields.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.sink.PutStatus(ctx, st.RunID, doc); err != nil {
		h.logger.Warn("Failed to store run status", logfields.RunID(st.RunID), logfields.Error(err))
	}
}
