// Package eventstore journals training runs as append-only events in SQLite and rebuilds
// per-run summaries from them.
package eventstore

import (
	"context"
	"slices"
	"sync"
	"time"
)

// RunSummary is a read model of one training run.
type RunSummary struct {
	RunID              string         `json:"run_id"`
	Status             string         `json:"status"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         *time.Time     `json:"finished_at,omitempty"`
	Duration           time.Duration  `json:"duration,omitempty"`
	Config             RunStartedMeta `json:"config"`
	Resumes            int            `json:"resumes"`
	LastTick           int            `json:"last_tick"`
	LastIteration      int            `json:"last_iteration"`
	LastResolution     float64        `json:"last_resolution"`
	LastPhase          string         `json:"last_phase"`
	LastLossD          float64        `json:"last_loss_d"`
	LastLossG          float64        `json:"last_loss_g"`
	Growths            []Growth       `json:"growths,omitempty"`
	Flushes            int            `json:"flushes"`
	Checkpoints        int            `json:"checkpoints"`
	LastCheckpoint     *CheckpointRef `json:"last_checkpoint,omitempty"`
	CheckpointFailures int            `json:"checkpoint_failures"`
	Error              string         `json:"error,omitempty"`
}

// RunHistoryProjection maintains an in-memory view of run history, reconstructed from the
// journal.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary
	maxSize  int
	lastSync time.Time
}

func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return wrap(ErrProjectionRebuildFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = make(map[string]*RunSummary)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	p.pruneLocked()
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event as it is emitted.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
	p.pruneLocked()
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}
	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{RunID: runID, Status: RunStatusRunning, StartedAt: event.Timestamp()}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		summary.StartedAt = event.Timestamp()
		summary.Status = RunStatusRunning
		if meta, err := Decode[RunStartedMeta](event); err == nil {
			summary.Config = meta
		}

	case TypeRunResumed:
		summary.Resumes++
		summary.Status = RunStatusRunning
		summary.FinishedAt = nil
		if meta, err := Decode[RunResumedMeta](event); err == nil {
			summary.LastTick = meta.FromTick
			summary.LastIteration = meta.FromIteration
			summary.LastResolution = meta.Resolution
			summary.LastPhase = meta.Phase
		}

	case TypeTickCompleted:
		if prog, err := Decode[TickProgress](event); err == nil {
			summary.LastTick = prog.Tick
			summary.LastIteration = prog.Iteration
			summary.LastResolution = prog.Resolution
			summary.LastPhase = prog.Phase
			summary.LastLossD = prog.LossD
			summary.LastLossG = prog.LossG
		}

	case TypePhaseChanged:
		if c, err := Decode[PhaseChange](event); err == nil {
			summary.LastPhase = c.To
		}

	case TypeNetworkGrown:
		if g, err := Decode[Growth](event); err == nil {
			// a resumed run replays growth; count each size once
			if !slices.ContainsFunc(summary.Growths, func(x Growth) bool { return x.ImageSize == g.ImageSize }) {
				summary.Growths = append(summary.Growths, g)
			}
		}

	case TypeFadeInFlushed:
		summary.Flushes++

	case TypeCheckpointSaved:
		if c, err := Decode[CheckpointRef](event); err == nil {
			summary.Checkpoints++
			summary.LastCheckpoint = &c
		}

	case TypeCheckpointFailed:
		summary.CheckpointFailures++

	case TypeRunFinished:
		now := event.Timestamp()
		summary.FinishedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		summary.Status = RunStatusCompleted
		if o, err := Decode[RunOutcome](event); err == nil {
			if o.Status != "" {
				summary.Status = o.Status
			}
			summary.LastTick = o.Tick
			summary.LastIteration = o.Iteration
			summary.LastResolution = o.Resolution
			summary.LastPhase = o.Phase
			summary.Error = o.Error
		}
	}
}

// pruneLocked drops the oldest finished runs beyond maxSize. Running runs are kept.
func (p *RunHistoryProjection) pruneLocked() {
	if len(p.runs) <= p.maxSize {
		return
	}
	history := p.sortedLocked()
	kept := 0
	for _, s := range history {
		if s.Status == RunStatusRunning {
			continue
		}
		kept++
		if kept > p.maxSize {
			delete(p.runs, s.RunID)
		}
	}
}

// sortedLocked returns summaries newest first.
func (p *RunHistoryProjection) sortedLocked() []*RunSummary {
	out := make([]*RunSummary, 0, len(p.runs))
	for _, s := range p.runs {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *RunSummary) int { return b.StartedAt.Compare(a.StartedAt) })
	return out
}

// GetHistory returns copies of all tracked runs, newest first.
func (p *RunHistoryProjection) GetHistory() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sorted := p.sortedLocked()
	result := make([]RunSummary, len(sorted))
	for i, s := range sorted {
		result[i] = *s
	}
	return result
}

// GetRun returns the summary for one run.
func (p *RunHistoryProjection) GetRun(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	summary, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return *summary, true
}

// GetActiveRun returns the newest run that has not finished.
func (p *RunHistoryProjection) GetActiveRun() (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.sortedLocked() {
		if s.Status == RunStatusRunning {
			return *s, true
		}
	}
	return RunSummary{}, false
}

func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
