// Package model defines the boundary between the trainer and the generator/discriminator
// implementation. Networks, optimizers and the per-iteration adversarial steps live behind
// these interfaces; the trainer only drives structure (grow, flush) and reads scalars back.
package model

import (
	"context"

	"git.home.luguber.info/inful/progan/internal/tensor"
)

// Role identifies one of the two adversarial networks.
type Role string

const (
	RoleGenerator     Role = "gen"
	RoleDiscriminator Role = "dis"
)

// Roles lists both networks in checkpoint write order: discriminator first.
var Roles = []Role{RoleDiscriminator, RoleGenerator}

// FadeIn is a blend layer mixing a freshly grown stage with the upsampled output of the
// previous one. Alpha is in [0,1]; UpdateAlpha saturates at 1.
type FadeIn interface {
	Alpha() float64
	UpdateAlpha(delta float64)
}

// FadeIns holds the blend layers created by one growth step.
type FadeIns struct {
	Gen FadeIn
	Dis FadeIn
}

// Network is a progressively grown generator or discriminator.
type Network interface {
	Role() Role
	// Level is the resolution exponent of the outermost stage (image side 2^Level).
	Level() int
	// Grow appends one stage at level and returns its fade-in block.
	Grow(level int) (FadeIn, error)
	// Flush replaces the active fade-in block with a committed, non-blended layer.
	Flush() error
	ActiveFadeIn() (FadeIn, bool)
	StateDict() ([]byte, error)
	LoadStateDict(data []byte) error
}

// Optimizer is the per-network parameter update rule.
type Optimizer interface {
	LearningRate() float64
	StateDict() ([]byte, error)
	LoadStateDict(data []byte) error
}

// BufferSpec sizes the per-iteration tensors and optimizers after a growth step.
type BufferSpec struct {
	BatchSize int
	ImageSize int
	Channels  int
	Nz        int
	LR        float64
	Beta1     float64
	Beta2     float64
}

// DiscriminatorStep is the input to one discriminator update.
type DiscriminatorStep struct {
	Real     *tensor.Batch
	NoiseStd float64 // std of Gaussian noise added to the real batch before it reaches the discriminator
	Lambda   float64 // gradient-penalty weight
	Epsilon  float64 // drift penalty weight
	Drift    bool
}

// DiscriminatorResult carries the scalars of one discriminator update. Loss already
// includes both penalties.
type DiscriminatorResult struct {
	Loss            float64
	GradientPenalty float64
	DriftPenalty    float64
	RealMean        float64 // mean D(x)
	FakeMean        float64 // mean D(G(z)), feeds the adaptive noise EMA
}

type GeneratorResult struct {
	Loss float64
}

// Backend owns both networks, their optimizers and scratch buffers.
type Backend interface {
	Generator() Network
	Discriminator() Network
	Optimizer(role Role) Optimizer
	// Rebuild recreates buffers and optimizers for the current topology.
	Rebuild(spec BufferSpec) error
	StepDiscriminator(ctx context.Context, step DiscriminatorStep) (DiscriminatorResult, error)
	StepGenerator(ctx context.Context) (GeneratorResult, error)
	// Generate runs the generator on z laid out as [N, nz, 1, 1].
	Generate(ctx context.Context, z *tensor.Batch) (*tensor.Batch, error)
}

// NetworkFor returns the backend's network for role.
func NetworkFor(b Backend, role Role) Network {
	if role == RoleGenerator {
		return b.Generator()
	}
	return b.Discriminator()
}
