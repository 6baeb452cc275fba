// Package trainer runs the progressive training loop: it advances the schedule once per
// iteration, performs the adversarial updates, and snapshots, journals and exports along
// the way.
package trainer

import (
	"context"
	stderrors "errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/progan/internal/checkpoint"
	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/control"
	"git.home.luguber.info/inful/progan/internal/data"
	"git.home.luguber.info/inful/progan/internal/eventstore"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/growth"
	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/metrics"
	"git.home.luguber.info/inful/progan/internal/model"
	"git.home.luguber.info/inful/progan/internal/notify"
	"git.home.luguber.info/inful/progan/internal/observability"
	"git.home.luguber.info/inful/progan/internal/provenance"
	"git.home.luguber.info/inful/progan/internal/schedule"
	"git.home.luguber.info/inful/progan/internal/tensor"
)

// ResumeMode selects what Run does with existing checkpoints.
type ResumeMode int

const (
	ResumeNever     ResumeMode = iota
	ResumeIfPresent            // resume when a checkpoint exists, else start fresh
	ResumeRequired             // fail when no checkpoint exists
)

// gridSamples is the size of the fixed latent batch rendered into image grids.
const gridSamples = 16

// Deps are the collaborators of a run. Backend and Loader are required.
type Deps struct {
	Backend   model.Backend
	Loader    data.Loader
	Signal    control.Signal
	Store     eventstore.Store
	Publisher notify.Publisher
	Status    notify.StatusSink
	Grids     GridSink
}

// Result summarizes a finished run.
type Result struct {
	RunID       string
	State       schedule.State
	Stages      int
	Resumed     bool
	Checkpoints int
	NonFinite   int
}

type Option func(*Driver)

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(d *Driver) {
		if r != nil {
			d.recorder = r
		}
	}
}

func WithResume(mode ResumeMode) Option { return func(d *Driver) { d.resume = mode } }

// WithRunID fixes the id of a fresh run. A resumed run keeps the id stored in its checkpoint.
func WithRunID(id string) Option { return func(d *Driver) { d.runID = id } }

// WithProvenance records source and host details in the RunStarted event.
func WithProvenance(info provenance.Info, backend string) Option {
	return func(d *Driver) {
		d.info = info
		d.backendName = backend
	}
}

// Driver owns one training run. It is not safe for concurrent use apart from Status.
type Driver struct {
	cfg      *config.Config
	deps     Deps
	logger   *slog.Logger
	recorder metrics.Recorder
	resume   ResumeMode
	runID    string

	info        provenance.Info
	backendName string

	params  schedule.Params
	sched   *schedule.Scheduler
	growth  *growth.Controller
	ckpt    *checkpoint.Manager
	journal *journal
	board   statusBoard
	noise   adaptiveNoise
	zTest   *tensor.Batch

	stages      int
	stage       int
	epoch       int
	stack       int
	fakeMean    float64
	lossD       float64
	lossG       float64
	lastReal    *tensor.Batch
	nonFinite   int
	checkpoints int
	failedTick  int
}

// New validates the collaborators and returns a driver ready to Run.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, errors.InternalError("trainer requires a configuration").Build()
	}
	if deps.Backend == nil || deps.Loader == nil {
		return nil, errors.InternalError("trainer requires a backend and a data loader").Build()
	}
	if deps.Signal == nil {
		deps.Signal = control.Inert{}
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Noop{}
	}
	if deps.Grids == nil {
		deps.Grids = noGrids{}
	}
	d := &Driver{
		cfg:        cfg,
		deps:       deps,
		logger:     slog.Default(),
		recorder:   metrics.NoopRecorder{},
		params:     schedule.ParamsFromConfig(cfg),
		failedTick: -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}
	d.stages = d.params.MaxResolution + max(cfg.Schedule.FinalStages, 1) - 1
	return d, nil
}

// Status returns the latest published loop status. It is safe to call from any goroutine.
func (d *Driver) Status() (Status, bool) { return d.board.load() }

func (d *Driver) RunID() string { return d.runID }

// Run trains until every stage is done, the context is cancelled, or a fatal error occurs.
// The outcome is journaled in all three cases.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	resumed, err := d.setup(ctx)
	if err != nil {
		return Result{RunID: d.runID}, err
	}
	ctx = observability.WithRunID(ctx, d.runID)

	if hb := d.startHeartbeat(); hb != nil {
		defer func() { _ = hb.Stop() }()
	}
	if w := d.startWatcher(ctx); w != nil {
		defer func() { _ = w.Stop() }()
	}

	runErr := d.loop(ctx)
	st := d.sched.State()
	outcome := eventstore.RunOutcome{
		Status:     eventstore.RunStatusCompleted,
		Tick:       st.GlobalTick,
		Iteration:  st.GlobalIter,
		Resolution: st.Resolution,
		Phase:      string(st.Phase),
	}
	switch {
	case runErr == nil:
	case stderrors.Is(runErr, context.Canceled) || stderrors.Is(runErr, context.DeadlineExceeded):
		outcome.Status = eventstore.RunStatusInterrupted
		outcome.Error = runErr.Error()
	default:
		outcome.Status = eventstore.RunStatusFailed
		outcome.Error = runErr.Error()
	}
	// the run context may already be cancelled; the outcome still has to be journaled
	e, buildErr := eventstore.NewRunFinished(d.runID, outcome)
	d.journal.record(context.WithoutCancel(ctx), e, buildErr)

	result := Result{
		RunID:       d.runID,
		State:       st,
		Stages:      d.stages,
		Resumed:     resumed,
		Checkpoints: d.checkpoints,
		NonFinite:   d.nonFinite,
	}
	if runErr != nil {
		observability.ErrorContext(ctx, "Training run stopped",
			slog.String("status", outcome.Status), logfields.Tick(st.GlobalTick), logfields.Error(runErr))
		return result, runErr
	}
	observability.InfoContext(ctx, "Training run completed",
		logfields.Tick(st.GlobalTick), logfields.Iteration(st.GlobalIter),
		logfields.Resolution(st.Resolution), slog.Int("checkpoints", d.checkpoints))
	return result, nil
}

// setup wires the growth controller, scheduler and checkpoint manager, then resumes or
// journals a fresh start.
func (d *Driver) setup(ctx context.Context) (bool, error) {
	cfg := d.cfg
	d.growth = growth.New(d.deps.Backend, d.deps.Loader, growth.SettingsFromConfig(cfg),
		growth.WithLogger(d.logger), growth.WithRecorder(d.recorder))
	if err := d.growth.Prepare(ctx, cfg.Optimizer.LR); err != nil {
		return false, err
	}
	sched, err := schedule.New(d.params, d.growth, d.deps.Signal, schedule.WithLogger(d.logger))
	if err != nil {
		return false, err
	}
	d.sched = sched
	d.ckpt = checkpoint.NewManager(cfg.Paths.CheckpointDir, cfg.Checkpoint,
		checkpoint.WithLogger(d.logger), checkpoint.WithRecorder(d.recorder))

	seed := uint64(cfg.Training.Seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	d.zTest = tensor.New(gridSamples, max(cfg.Training.Nz, 1), 1, 1)
	for i := range d.zTest.Data {
		d.zTest.Data[i] = float32(rng.NormFloat64())
	}
	d.stage = 1

	var resumed checkpoint.Resumed
	found := false
	if d.resume != ResumeNever {
		spanCtx, span := observability.StartSpan(ctx, "checkpoint.resume")
		resumed, found, err = d.ckpt.Resume(spanCtx, d.sched, d.deps.Backend, d.growth.BatchSize, d.resume == ResumeRequired)
		observability.EndSpan(span, err)
		if err != nil {
			return false, err
		}
	}

	if found {
		rec := resumed.Record
		if rec.RunID != "" {
			d.runID = rec.RunID
		}
		d.stage = max(rec.Stage, 1)
		d.epoch = rec.Epoch
		d.stack = rec.Stack
	}
	d.journal = &journal{runID: d.runID, store: d.deps.Store, publisher: d.deps.Publisher, logger: d.logger}
	st := d.sched.State()
	d.board.publish(d.status(st))

	if found {
		changed := resumed.Record.ConfigHash != "" && resumed.Record.ConfigHash != cfg.Snapshot()
		if changed {
			d.logger.WarnContext(ctx, "Schedule configuration changed since the checkpoint was written; the replayed trajectory may differ",
				logfields.RunID(d.runID), logfields.Path(resumed.Pair.Gen))
		}
		e, err := eventstore.NewRunResumed(d.runID, eventstore.RunResumedMeta{
			FromTick:      st.GlobalTick,
			FromIteration: st.GlobalIter,
			Resolution:    st.Resolution,
			Phase:         string(st.Phase),
			Checkpoint:    resumed.Pair.Gen,
			ConfigChanged: changed,
		})
		d.journal.record(ctx, e, err)
		return true, nil
	}

	e, err := eventstore.NewRunStarted(d.runID, eventstore.RunStartedMeta{
		ConfigHash:    cfg.Snapshot(),
		MaxResolution: d.params.MaxResolution,
		TrnsTick:      d.params.TrnsTick,
		StabTick:      d.params.StabTick,
		Tick:          d.params.Tick,
		Backend:       d.backendName,
		Commit:        d.info.Commit,
		Dirty:         d.info.Dirty,
		CPU:           d.info.CPU,
		Version:       d.info.Version,
	})
	d.journal.record(ctx, e, err)
	d.logger.InfoContext(ctx, "Training run started",
		logfields.RunID(d.runID), slog.Int("stages", d.stages),
		logfields.ImageSize(1<<d.params.MaxResolution), logfields.BatchSize(d.growth.BatchSize()))
	return false, nil
}

func (d *Driver) startHeartbeat() *Heartbeat {
	interval := d.cfg.Monitoring.Heartbeat()
	if interval <= 0 {
		return nil
	}
	hb, err := NewHeartbeat(d.Status, d.deps.Status, d.logger)
	if err != nil {
		d.logger.Warn("Heartbeat disabled", logfields.Error(err))
		return nil
	}
	if _, err := hb.Start(interval); err != nil {
		d.logger.Warn("Heartbeat disabled", logfields.Error(err))
		_ = hb.Stop()
		return nil
	}
	return hb
}

func (d *Driver) startWatcher(ctx context.Context) *control.Watcher {
	path := d.cfg.Paths.ControlFile
	if !d.cfg.Monitoring.WatchControl || path == "" {
		return nil
	}
	w, err := control.NewWatcher(path, func() {
		d.logger.Info("Control request armed; it applies at the next tick boundary", logfields.Path(path))
	}, d.logger)
	if err != nil {
		d.logger.Warn("Control file watch disabled", logfields.Error(err))
		return nil
	}
	if err := w.Start(ctx); err != nil {
		d.logger.Warn("Control file watch disabled", logfields.Error(err))
		_ = w.Stop()
		return nil
	}
	return w
}

// loop runs the stages. Below the max level a stage ends when the networks grow, so each
// stage trains one resolution level; at the max level every stage runs its full budget.
func (d *Driver) loop(ctx context.Context) error {
	for ; d.stage <= d.stages; d.stage++ {
		stageCtx := observability.WithStage(ctx, strconv.Itoa(d.stage))
		budget := d.stageBudget()
		d.logger.DebugContext(stageCtx, "Stage started",
			slog.Int("stage", d.stage), slog.Int("budget", budget),
			logfields.ImageSize(d.sched.State().ImageSize()))
		for i := 0; ; i++ {
			atMax := d.sched.State().Level() >= d.params.MaxResolution
			if atMax && i >= budget {
				break
			}
			grew, err := d.iterate(stageCtx)
			if err != nil {
				return err
			}
			if grew && !atMax {
				break
			}
		}
	}
	return nil
}

// stageBudget is the number of iterations one resolution period takes at the current
// batch size.
func (d *Driver) stageBudget() int {
	images := d.params.Period() * d.params.Tick
	batch := max(d.growth.BatchSize(), 1)
	return (images + batch - 1) / batch
}

// iterate runs one iteration and reports whether the networks grew during it.
func (d *Driver) iterate(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	start := time.Now()
	batch := d.growth.BatchSize()
	d.stack += batch
	if n := d.deps.Loader.Len(); n > 0 && d.stack > n {
		d.epoch++
		d.stack %= n
	}

	before := d.sched.State()
	out, err := d.sched.Advance(ctx, batch)
	if err != nil {
		return false, err
	}
	st := out.State
	d.observe(ctx, before, out)

	stepped := false
	if st.SkipStep() {
		reason := "accelerate"
		if st.Skip {
			reason = "skip"
		}
		d.recorder.IncSkippedStep(reason)
	} else {
		if err := d.step(ctx, st); err != nil {
			return out.Grew, err
		}
		stepped = true
	}

	// a growth iteration closes the stage; a checkpoint taken on it belongs to the next one
	stage := d.stage
	if out.Grew {
		stage++
	}
	d.snapshot(ctx, st, stage)

	if stepped {
		if every := d.cfg.Training.LogEvery; every > 0 && st.GlobalIter%every == 0 {
			d.logProgress(ctx, st)
		}
		if every := d.cfg.Training.SaveImgEvery; every > 0 && st.GlobalIter%every == 0 {
			d.exportGrid(ctx, st)
		}
		d.recorder.ObserveIterationDuration(time.Since(start))
	}
	d.board.publish(d.status(st))
	return out.Grew, nil
}

// step performs one discriminator and one generator update.
func (d *Driver) step(ctx context.Context, st schedule.State) error {
	tc := d.cfg.Training
	batch, err := d.deps.Loader.NextBatch(ctx)
	if err != nil {
		return errors.WrapError(err, errors.CategoryTraining, "failed to load real batch").
			WithContext("iteration", st.GlobalIter).Build()
	}
	x, err := interpolate(batch, st, d.params.MaxResolution)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to interpolate real batch").
			Fatal().WithContext("image_size", st.ImageSize()).Build()
	}
	noise := 0.0
	if tc.AddNoise() {
		noise = d.noise.next(d.fakeMean)
	}

	dres, err := d.deps.Backend.StepDiscriminator(ctx, model.DiscriminatorStep{
		Real:     x,
		NoiseStd: noise,
		Lambda:   tc.WGANLambda,
		Epsilon:  tc.WGANEpsilon,
		Drift:    tc.AddDrift(),
	})
	if err != nil {
		return errors.WrapError(err, errors.CategoryTraining, "discriminator step failed").
			WithContext("iteration", st.GlobalIter).Build()
	}
	gres, err := d.deps.Backend.StepGenerator(ctx)
	if err != nil {
		return errors.WrapError(err, errors.CategoryTraining, "generator step failed").
			WithContext("iteration", st.GlobalIter).Build()
	}
	d.lastReal = x

	// non-finite values never reach the journal or the noise average
	if bad := nonFinite(dres.Loss, gres.Loss); bad != "" {
		d.nonFinite++
		d.recorder.IncNonFinite(bad)
		d.logger.WarnContext(ctx, "Non-finite loss",
			logfields.Iteration(st.GlobalIter), logfields.Tick(st.GlobalTick),
			slog.String("network", bad), slog.Float64("loss_d", dres.Loss), slog.Float64("loss_g", gres.Loss))
		if tc.HaltOnNonFinite {
			return errors.TrainingError("loss is not finite").
				Fatal().
				WithContext("network", bad).
				WithContext("iteration", st.GlobalIter).
				WithContext("tick", st.GlobalTick).
				Build()
		}
		return nil
	}
	d.fakeMean = dres.FakeMean
	d.lossD, d.lossG = dres.Loss, gres.Loss
	d.recorder.ObserveLosses(dres.Loss, gres.Loss)
	return nil
}

func nonFinite(lossD, lossG float64) string {
	switch {
	case math.IsNaN(lossD) || math.IsInf(lossD, 0):
		return string(model.RoleDiscriminator)
	case math.IsNaN(lossG) || math.IsInf(lossG, 0):
		return string(model.RoleGenerator)
	}
	return ""
}

// observe turns what the scheduler did into metrics and journal events.
func (d *Driver) observe(ctx context.Context, before schedule.State, out schedule.Outcome) {
	st := out.State
	d.recorder.SetSchedule(st.Resolution, string(st.Phase), st.Complete.Gen, st.Complete.Dis, st.LR)

	if out.Signalled {
		effect := "skip"
		if st.Accelerate > before.Accelerate {
			effect = "accelerate"
		}
		d.recorder.IncControlSignal(effect)
	}
	if out.FlushedGen {
		d.recordFlush(ctx, st, model.RoleGenerator)
	}
	if out.FlushedDis {
		d.recordFlush(ctx, st, model.RoleDiscriminator)
	}
	if out.Grew {
		e, err := eventstore.NewNetworkGrown(d.runID, eventstore.Growth{
			Tick: st.GlobalTick, ImageSize: st.ImageSize(), LR: st.LR,
		})
		d.journal.record(ctx, e, err)
	}
	if st.Phase != before.Phase {
		d.logger.InfoContext(ctx, "Phase changed",
			slog.String("from", string(before.Phase)), logfields.Phase(string(st.Phase)),
			logfields.Tick(st.GlobalTick), logfields.Resolution(st.Resolution))
		e, err := eventstore.NewPhaseChanged(d.runID, eventstore.PhaseChange{
			Tick: st.GlobalTick, From: string(before.Phase), To: string(st.Phase), Resolution: st.Resolution,
		})
		d.journal.record(ctx, e, err)
	}
	if out.TickCompleted {
		d.recorder.IncTick()
		e, err := eventstore.NewTickCompleted(d.runID, eventstore.TickProgress{
			Tick:        st.GlobalTick,
			Iteration:   st.GlobalIter,
			KImgs:       st.KImgs,
			Resolution:  st.Resolution,
			Phase:       string(st.Phase),
			GenComplete: st.Complete.Gen,
			DisComplete: st.Complete.Dis,
			LossD:       d.lossD,
			LossG:       d.lossG,
		})
		d.journal.record(ctx, e, err)
	}
}

func (d *Driver) recordFlush(ctx context.Context, st schedule.State, role model.Role) {
	e, err := eventstore.NewFadeInFlushed(d.runID, eventstore.Flush{
		Tick: st.GlobalTick, Role: string(role), Resolution: st.Resolution,
	})
	d.journal.record(ctx, e, err)
}

// snapshot offers the state to the checkpoint manager. A failed write is retried once
// the next tick is reached.
func (d *Driver) snapshot(ctx context.Context, st schedule.State, stage int) {
	if st.GlobalTick == d.failedTick {
		return
	}
	saved, ok, err := d.ckpt.Snapshot(ctx, d.deps.Backend, checkpoint.Progress{
		State:      st,
		Stage:      stage,
		Epoch:      d.epoch,
		Stack:      d.stack,
		RunID:      d.runID,
		ConfigHash: d.cfg.Snapshot(),
	})
	if err != nil {
		d.failedTick = st.GlobalTick
		d.logger.WarnContext(ctx, "Checkpoint failed; retrying at the next eligible tick",
			logfields.Tick(st.GlobalTick), logfields.Error(err))
		e, buildErr := eventstore.NewCheckpointFailed(d.runID, eventstore.CheckpointFailure{
			Tick: st.GlobalTick, Error: err.Error(),
		})
		d.journal.record(ctx, e, buildErr)
		return
	}
	if !ok {
		return
	}
	d.checkpoints++
	e, buildErr := eventstore.NewCheckpointSaved(d.runID, eventstore.CheckpointRef{
		Tick:       saved.Tick,
		Level:      saved.Level,
		Gen:        saved.Gen,
		Dis:        saved.Dis,
		DurationMS: saved.Duration.Milliseconds(),
	})
	d.journal.record(ctx, e, buildErr)
}

// exportGrid renders the fixed latent batch and, every tenth export, the last real batch.
func (d *Driver) exportGrid(ctx context.Context, st schedule.State) {
	every := d.cfg.Training.SaveImgEvery
	fake, err := d.deps.Backend.Generate(ctx, d.zTest)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to render image grid", logfields.Error(err))
		return
	}
	g := Grid{
		Index: st.GlobalIter / every,
		Level: st.Level(),
		Phase: string(st.Phase),
		Gen:   st.Complete.Gen,
		Dis:   st.Complete.Dis,
		Fake:  fake,
	}
	if st.GlobalIter%(every*10) == 0 {
		g.Real = d.lastReal
	}
	if err := d.deps.Grids.WriteGrid(ctx, g); err != nil {
		d.logger.WarnContext(ctx, "Failed to write image grid", slog.String("grid", g.Name()), logfields.Error(err))
	}
}

func (d *Driver) status(st schedule.State) Status {
	s := statusFrom(d.runID, st)
	s.Stage = d.stage
	s.Stages = d.stages
	s.Epoch = d.epoch
	s.LossD = d.lossD
	s.LossG = d.lossG
	s.NonFinite = d.nonFinite
	return s
}
