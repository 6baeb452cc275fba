package schedule

import (
	"context"

	"git.home.luguber.info/inful/progan/internal/control"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/logfields"
)

// ReplayTarget is the progress recorded in a checkpoint.
type ReplayTarget struct {
	Tick      int
	Iteration int // zero when the record predates iteration tracking
}

// BatchSizer reports the batch size in effect; it changes when growth renews the loader.
type BatchSizer func() int

// replayCheckEvery bounds how often a long replay looks at ctx.
const replayCheckEvery = 4096

// Replay advances a fresh scheduler with the control signal forced inert until the
// recorded progress is reached. Growth runs normally, so the networks end up with the
// topology the checkpoint was saved from. With an iteration target the replay stops at that
// exact iteration; without one it stops just before the next tick boundary.
func (s *Scheduler) Replay(ctx context.Context, target ReplayTarget, batch BatchSizer) (State, error) {
	if s.state.GlobalIter != 0 {
		return s.state, errors.ResumeError("replay requires a fresh scheduler").
			WithContext("global_iter", s.state.GlobalIter).
			Build()
	}
	inert := control.Inert{}
	step := func() error {
		if s.state.GlobalIter%replayCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		_, err := s.advance(ctx, batch(), inert)
		return err
	}

	for s.state.GlobalTick < target.Tick {
		if err := step(); err != nil {
			return s.state, err
		}
	}
	if target.Iteration > 0 {
		for s.state.GlobalIter < target.Iteration {
			if err := step(); err != nil {
				return s.state, err
			}
		}
	} else {
		for (s.state.KImgs+batch())%s.params.Tick >= s.state.KImgs%s.params.Tick {
			if err := step(); err != nil {
				return s.state, err
			}
		}
	}

	if s.state.GlobalTick != target.Tick {
		return s.state, errors.ResumeError("replay overshot the recorded tick").
			WithContext("tick", target.Tick).
			WithContext("replayed_tick", s.state.GlobalTick).
			WithContext("iteration", target.Iteration).
			Build()
	}
	s.logger.InfoContext(ctx, "Replayed schedule",
		logfields.Tick(s.state.GlobalTick), logfields.Iteration(s.state.GlobalIter),
		logfields.Resolution(s.state.Resolution), logfields.Phase(string(s.state.Phase)))
	return s.state, nil
}
