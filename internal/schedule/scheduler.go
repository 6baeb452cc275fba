package schedule

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/progan/internal/control"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/model"
)

// Structure is the structural capability the scheduler drives at tick boundaries.
type Structure interface {
	// Grow adds one stage at level to both networks and rebuilds buffers and optimizers
	// for lr. It returns the new fade-in blocks.
	Grow(ctx context.Context, level int, lr float64) (model.FadeIns, error)
	// Flush commits the active fade-in block of one network.
	Flush(ctx context.Context, role model.Role) error
}

// Outcome reports what one Advance call did besides updating the state.
type Outcome struct {
	State         State
	TickCompleted bool
	Signalled     bool // a control request was consumed at this tick boundary
	FlushedGen    bool
	FlushedDis    bool
	Grew          bool
	EnteredFinal  bool
}

// Structural reports whether the network topology changed during the call.
func (o Outcome) Structural() bool { return o.FlushedGen || o.FlushedDis || o.Grew }

// Scheduler is the sole mutator of State. It is not safe for concurrent use.
type Scheduler struct {
	params    Params
	structure Structure
	signal    control.Signal
	logger    *slog.Logger

	state  State
	fadeIn model.FadeIns
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a scheduler at resolution 2, phase init. A nil signal is inert.
func New(params Params, structure Structure, signal control.Signal, opts ...Option) (*Scheduler, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "invalid schedule parameters").Fatal().Build()
	}
	if structure == nil {
		return nil, errors.InternalError("scheduler requires a structure").Build()
	}
	if signal == nil {
		signal = control.Inert{}
	}
	s := &Scheduler{
		params:    params,
		structure: structure,
		signal:    signal,
		logger:    slog.Default(),
		state:     initialState(params),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns a copy of the current state.
func (s *Scheduler) State() State { return s.state }

func (s *Scheduler) Params() Params { return s.params }

// Advance moves the schedule forward by one iteration of batch images.
func (s *Scheduler) Advance(ctx context.Context, batch int) (Outcome, error) {
	return s.advance(ctx, batch, s.signal)
}

func (s *Scheduler) advance(ctx context.Context, batch int, signal control.Signal) (Outcome, error) {
	p := s.params
	if batch <= 0 || batch >= p.Tick {
		return Outcome{State: s.state}, errors.ScheduleError("batch size out of range").
			WithContext("batch_size", batch).
			WithContext("tick", p.Tick).
			Build()
	}
	st := &s.state
	out := Outcome{}

	st.GlobalIter++
	st.PreviousPhase = st.Phase
	if !st.Phase.IsTransition() {
		st.Accelerate = 1
	}

	dAlpha := p.DAlpha(batch)
	pos := st.Cursor % p.Period()
	if gen := s.fadeIn.Gen; gen != nil {
		switch {
		case pos < p.TrnsTick:
			gen.UpdateAlpha(dAlpha)
			st.Complete.Gen = gen.Alpha() * 100
			st.Phase = PhaseGTrns
		case pos < p.TrnsTick+p.StabTick:
			st.Phase = PhaseGStab
		}
	}
	if dis := s.fadeIn.Dis; dis != nil {
		switch {
		case pos >= p.TrnsTick+p.StabTick && pos < 2*p.TrnsTick+p.StabTick:
			dis.UpdateAlpha(dAlpha)
			st.Complete.Dis = dis.Alpha() * 100
			st.Phase = PhaseDTrns
		case pos >= 2*p.TrnsTick+p.StabTick && st.Phase != PhaseFinal:
			st.Phase = PhaseDStab
		}
	}

	prev := st.KImgs
	st.KImgs += batch
	if st.KImgs%p.Tick < prev%p.Tick {
		out.TickCompleted = true
		if err := s.onTick(ctx, signal, &out); err != nil {
			out.State = s.state
			return out, err
		}
	}

	if st.Skip && st.PreviousPhase != st.Phase {
		st.Skip = false
	}
	out.State = s.state
	return out, nil
}

// onTick runs the tick-boundary logic: control signal, cursor, flush, growth, final.
func (s *Scheduler) onTick(ctx context.Context, signal control.Signal, out *Outcome) error {
	p := s.params
	st := &s.state
	st.GlobalTick++
	prevLevel := st.Level()

	if signal.Poll(ctx) {
		out.Signalled = true
		if st.Phase.IsTransition() {
			st.Accelerate *= 2
		} else {
			st.Skip = true
		}
		s.logger.InfoContext(ctx, "Control signal consumed",
			logfields.Tick(st.GlobalTick), logfields.Phase(string(st.Phase)),
			logfields.Accelerate(st.Accelerate), slog.Bool("skip", st.Skip))
	}

	if st.Phase == PhaseFinal {
		return nil
	}

	next := st.Cursor + 1
	if 2+next/p.Period() > p.MaxResolution {
		return s.enterFinal(ctx, out)
	}
	st.Cursor = next
	st.Resolution = min(MinResolution+float64(st.Cursor)/float64(p.Period()), MaxResolution)
	level := st.Level()
	pos := st.Cursor % p.Period()

	switch {
	case st.FlushGen && pos >= p.TrnsTick+p.StabTick && prevLevel > 2:
		if err := s.flush(ctx, model.RoleGenerator); err != nil {
			return err
		}
		st.Phase = PhaseDTrns
		out.FlushedGen = true
	case st.FlushDis && level != prevLevel && prevLevel > 2:
		if err := s.flush(ctx, model.RoleDiscriminator); err != nil {
			return err
		}
		if level < p.MaxResolution {
			st.Phase = PhaseGTrns
		}
		out.FlushedDis = true
	}

	if level != prevLevel && level <= p.MaxResolution {
		if err := s.grow(ctx, level); err != nil {
			return err
		}
		out.Grew = true
	}
	return nil
}

func (s *Scheduler) flush(ctx context.Context, role model.Role) error {
	st := &s.state
	if err := s.structure.Flush(ctx, role); err != nil {
		return errors.WrapError(err, errors.CategoryGrowth, "failed to flush fade-in block").
			Fatal().
			WithContext("role", string(role)).
			WithContext("tick", st.GlobalTick).
			Build()
	}
	if role == model.RoleGenerator {
		st.FlushGen = false
		s.fadeIn.Gen = nil
		st.Complete.Gen = 0
	} else {
		st.FlushDis = false
		s.fadeIn.Dis = nil
		st.Complete.Dis = 0
	}
	s.logger.InfoContext(ctx, "Flushed fade-in block",
		logfields.Role(string(role)), logfields.Tick(st.GlobalTick), logfields.Resolution(st.Resolution))
	return nil
}

func (s *Scheduler) grow(ctx context.Context, level int) error {
	st := &s.state
	st.LR *= s.params.LRDecay
	fadeIns, err := s.structure.Grow(ctx, level, st.LR)
	if err != nil {
		return err
	}
	if fadeIns.Gen == nil || fadeIns.Dis == nil {
		return errors.InternalError("growth returned no fade-in block").Fatal().
			WithContext("level", level).
			Build()
	}
	s.fadeIn = fadeIns
	st.FlushGen, st.FlushDis = true, true
	st.Complete = Completeness{}
	s.logger.InfoContext(ctx, "Grew networks",
		logfields.ImageSize(1<<level), logfields.Tick(st.GlobalTick), logfields.LearningRate(st.LR))
	return nil
}

// enterFinal ends growth once the last stable band at max resolution is complete. The
// cursor stays where it is, so resolution never decreases.
func (s *Scheduler) enterFinal(ctx context.Context, out *Outcome) error {
	st := &s.state
	if st.FlushDis {
		if err := s.flush(ctx, model.RoleDiscriminator); err != nil {
			return err
		}
		out.FlushedDis = true
	}
	st.Phase = PhaseFinal
	out.EnteredFinal = true
	s.logger.InfoContext(ctx, "Entered final phase",
		logfields.Tick(st.GlobalTick), logfields.Resolution(st.Resolution))
	return nil
}
