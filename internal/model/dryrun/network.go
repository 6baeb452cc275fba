// Package dryrun is a deterministic CPU backend with a handful of weights per stage. It keeps
// the growth, fade-in and checkpoint contracts of a real backend so schedules, snapshots and
// resumes can be exercised end to end without a GPU.
package dryrun

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"

	"git.home.luguber.info/inful/progan/internal/model"
)

const (
	baseLevel     = 2
	weightsPerLvl = 4
)

type fadeIn struct {
	alpha float64
}

func (f *fadeIn) Alpha() float64 { return f.alpha }

func (f *fadeIn) UpdateAlpha(delta float64) {
	f.alpha = math.Min(1, math.Max(0, f.alpha+delta))
}

type stage struct {
	Level   int       `json:"level"`
	Weights []float32 `json:"weights"`
}

// Network is a stack of stages, the last of which may still be blending in.
type Network struct {
	role   model.Role
	seed   uint64
	stages []stage
	fade   *fadeIn
}

// NewNetwork returns a network with only the 4x4 base stage.
func NewNetwork(role model.Role, seed uint64) *Network {
	n := &Network{role: role, seed: seed}
	n.stages = []stage{n.newStage(baseLevel)}
	return n
}

func (n *Network) newStage(level int) stage {
	salt := uint64(1)
	if n.role == model.RoleDiscriminator {
		salt = 2
	}
	rng := rand.New(rand.NewPCG(n.seed, salt<<8|uint64(level)))
	w := make([]float32, weightsPerLvl)
	for i := range w {
		w[i] = float32(rng.NormFloat64() * 0.1)
	}
	return stage{Level: level, Weights: w}
}

func (n *Network) Role() model.Role { return n.role }

func (n *Network) Level() int { return n.stages[len(n.stages)-1].Level }

// Grow appends the stage for level. Levels must be added one at a time.
func (n *Network) Grow(level int) (model.FadeIn, error) {
	if level != n.Level()+1 {
		return nil, fmt.Errorf("dryrun %s: cannot grow from level %d to %d", n.role, n.Level(), level)
	}
	if n.fade != nil {
		return nil, fmt.Errorf("dryrun %s: fade-in at level %d not flushed", n.role, n.Level())
	}
	n.stages = append(n.stages, n.newStage(level))
	n.fade = &fadeIn{}
	return n.fade, nil
}

func (n *Network) Flush() error {
	if n.fade == nil {
		return fmt.Errorf("dryrun %s: no active fade-in to flush", n.role)
	}
	n.fade = nil
	return nil
}

func (n *Network) ActiveFadeIn() (model.FadeIn, bool) {
	if n.fade == nil {
		return nil, false
	}
	return n.fade, true
}

// sum is the scalar the toy forward pass scales by.
func (n *Network) sum() float64 {
	var s float64
	for i, st := range n.stages {
		var w float64
		for _, v := range st.Weights {
			w += float64(v)
		}
		if i == len(n.stages)-1 && n.fade != nil {
			w *= n.fade.alpha
		}
		s += w
	}
	return s
}

// nudge applies a deterministic update to every weight.
func (n *Network) nudge(step float64) {
	for i := range n.stages {
		for j := range n.stages[i].Weights {
			n.stages[i].Weights[j] -= float32(step * float64(n.stages[i].Weights[j]))
		}
	}
}

type networkState struct {
	Role   model.Role `json:"role"`
	FadeIn bool       `json:"fade_in"`
	Stages []stage    `json:"stages"`
}

// StateDict holds weights and topology. Fade-in alpha is not part of it; it is rebuilt by
// replaying the schedule.
func (n *Network) StateDict() ([]byte, error) {
	return json.Marshal(networkState{Role: n.role, FadeIn: n.fade != nil, Stages: n.stages})
}

// LoadStateDict requires the saved topology to match the current one exactly.
func (n *Network) LoadStateDict(data []byte) error {
	var st networkState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("dryrun %s: decode state: %w", n.role, err)
	}
	if st.Role != n.role {
		return fmt.Errorf("dryrun %s: state belongs to %s", n.role, st.Role)
	}
	if len(st.Stages) != len(n.stages) || st.FadeIn != (n.fade != nil) {
		return fmt.Errorf("dryrun %s: topology mismatch (saved %d stages, fade-in %t; have %d, %t)",
			n.role, len(st.Stages), st.FadeIn, len(n.stages), n.fade != nil)
	}
	for i := range st.Stages {
		if st.Stages[i].Level != n.stages[i].Level || len(st.Stages[i].Weights) != weightsPerLvl {
			return fmt.Errorf("dryrun %s: stage %d mismatch", n.role, i)
		}
	}
	n.stages = st.Stages
	return nil
}
