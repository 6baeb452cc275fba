// Package schedule drives progressive growth: it owns the resolution cursor, the training
// phase and the fade-in blend progress, and advances them once per iteration.
package schedule

import (
	"fmt"

	"git.home.luguber.info/inful/progan/internal/config"
)

// Phase is the position inside one resolution level.
type Phase string

const (
	PhaseInit  Phase = "init"
	PhaseGTrns Phase = "gtrns" // generator fade-in
	PhaseGStab Phase = "gstab"
	PhaseDTrns Phase = "dtrns" // discriminator fade-in
	PhaseDStab Phase = "dstab"
	PhaseFinal Phase = "final"
)

// IsTransition reports whether a fade-in is blending during p.
func (p Phase) IsTransition() bool { return p == PhaseGTrns || p == PhaseDTrns }

// IsStable reports whether p is eligible for checkpointing.
func (p Phase) IsStable() bool { return p == PhaseGStab || p == PhaseDStab || p == PhaseFinal }

const (
	MinResolution = 2.0
	MaxResolution = 10.5
)

// Params are the schedule constants. Tick sizes are counted in images.
type Params struct {
	TrnsTick      int
	StabTick      int
	Tick          int
	MaxResolution int
	LR            float64
	LRDecay       float64
}

// ParamsFromConfig extracts the schedule constants from a validated configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		TrnsTick:      cfg.Schedule.TrnsTick,
		StabTick:      cfg.Schedule.StabTick,
		Tick:          cfg.Schedule.Tick,
		MaxResolution: cfg.Schedule.MaxResolution,
		LR:            cfg.Optimizer.LR,
		LRDecay:       cfg.Optimizer.LRDecay,
	}
}

// Validate rejects constants the scheduler cannot run with.
func (p Params) Validate() error {
	switch {
	case p.TrnsTick <= 0 || p.StabTick <= 0:
		return fmt.Errorf("trns_tick and stab_tick must be positive (got %d, %d)", p.TrnsTick, p.StabTick)
	case p.Tick <= 0:
		return fmt.Errorf("tick must be positive (got %d)", p.Tick)
	case p.MaxResolution < 2 || p.MaxResolution > 10:
		return fmt.Errorf("max_resolution must be in 2..10 (got %d)", p.MaxResolution)
	}
	return nil
}

// Period is the number of ticks spent on one resolution level.
func (p Params) Period() int { return 2*p.TrnsTick + 2*p.StabTick }

// Delta is the resolution increment per tick.
func (p Params) Delta() float64 { return 1 / float64(p.Period()) }

// DAlpha is the fade-in alpha increment per iteration of batch images.
func (p Params) DAlpha(batch int) float64 {
	return float64(batch) / float64(p.TrnsTick) / float64(p.Tick)
}

// Completeness is the fade-in blend percentage per network, each in [0, 100].
type Completeness struct {
	Gen float64 `json:"gen"`
	Dis float64 `json:"dis"`
}

// State is the full schedule state. It is a value: copies handed out by the scheduler
// never alias its internal state.
type State struct {
	// Cursor counts resolution ticks since 4x4. Resolution = 2 + Cursor/Period, capped at
	// 10.5, so band boundaries are compared exactly. Past the cap only Cursor moves, which
	// keeps the top level walking its bands into final.
	Cursor        int          `json:"cursor"`
	Resolution    float64      `json:"resolution"`
	Phase         Phase        `json:"phase"`
	PreviousPhase Phase        `json:"previous_phase"`
	Complete      Completeness `json:"complete"`
	KImgs         int          `json:"kimgs"`
	GlobalTick    int          `json:"global_tick"`
	GlobalIter    int          `json:"global_iter"`
	FlushGen      bool         `json:"flush_gen"`
	FlushDis      bool         `json:"flush_dis"`
	Accelerate    int          `json:"accelerate"`
	Skip          bool         `json:"skip"`
	LR            float64      `json:"lr"`
}

// Level is floor(Resolution): the image side is 2^Level.
func (s State) Level() int { return int(s.Resolution) }

// ImageSize is the side length of images at the current level.
func (s State) ImageSize() int { return 1 << s.Level() }

// SkipStep reports whether the driver should skip the optimizer step this iteration,
// either because a skip request is pending or because acceleration thins out steps.
func (s State) SkipStep() bool {
	if s.Skip {
		return true
	}
	return s.Accelerate > 1 && s.GlobalIter%s.Accelerate != 0
}

func initialState(p Params) State {
	return State{
		Resolution:    MinResolution,
		Phase:         PhaseInit,
		PreviousPhase: PhaseInit,
		Accelerate:    1,
		LR:            p.LR,
	}
}
