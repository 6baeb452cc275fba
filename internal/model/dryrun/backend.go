package dryrun

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"

	"git.home.luguber.info/inful/progan/internal/model"
	"git.home.luguber.info/inful/progan/internal/tensor"
)

// Optimizer is a bookkeeping stand-in for Adam: it tracks hyperparameters and step count.
type Optimizer struct {
	LR    float64 `json:"lr"`
	Beta1 float64 `json:"beta1"`
	Beta2 float64 `json:"beta2"`
	Steps int64   `json:"steps"`
}

func (o *Optimizer) LearningRate() float64 { return o.LR }

func (o *Optimizer) StateDict() ([]byte, error) { return json.Marshal(o) }

func (o *Optimizer) LoadStateDict(data []byte) error {
	var st Optimizer
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("dryrun optimizer: decode state: %w", err)
	}
	*o = st
	return nil
}

// Backend implements model.Backend with toy forward passes.
type Backend struct {
	gen, dis *Network
	opt      map[model.Role]*Optimizer
	spec     model.BufferSpec
	rng      *rand.Rand
	lastFake *tensor.Batch
}

// New builds a backend whose weights and sampling are fully determined by seed.
func New(seed uint64) *Backend {
	return &Backend{
		gen: NewNetwork(model.RoleGenerator, seed),
		dis: NewNetwork(model.RoleDiscriminator, seed),
		opt: map[model.Role]*Optimizer{
			model.RoleGenerator:     {},
			model.RoleDiscriminator: {},
		},
		rng: rand.New(rand.NewPCG(seed, 0x5eed)),
	}
}

func (b *Backend) Generator() model.Network     { return b.gen }
func (b *Backend) Discriminator() model.Network { return b.dis }

func (b *Backend) Optimizer(role model.Role) model.Optimizer { return b.opt[role] }

// Spec returns the buffer spec from the last Rebuild.
func (b *Backend) Spec() model.BufferSpec { return b.spec }

func (b *Backend) Rebuild(spec model.BufferSpec) error {
	if spec.BatchSize <= 0 || spec.ImageSize != 1<<b.gen.Level() {
		return fmt.Errorf("dryrun: buffer spec %dx%d batch %d does not fit generator level %d",
			spec.ImageSize, spec.ImageSize, spec.BatchSize, b.gen.Level())
	}
	if spec.Channels == 0 {
		spec.Channels = 3
	}
	b.spec = spec
	for role := range b.opt {
		b.opt[role] = &Optimizer{LR: spec.LR, Beta1: spec.Beta1, Beta2: spec.Beta2}
	}
	return nil
}

func (b *Backend) latent(n int) *tensor.Batch {
	z := tensor.New(n, max(b.spec.Nz, 1), 1, 1)
	for i := range z.Data {
		z.Data[i] = float32(b.rng.NormFloat64())
	}
	return z
}

// Generate renders a smooth pattern per sample. While the outer stage is fading in, the
// output is the alpha blend of the new stage and the upsampled previous one.
func (b *Backend) Generate(ctx context.Context, z *tensor.Batch) (*tensor.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	level := b.gen.Level()
	out := b.render(z, level)
	if fade, ok := b.gen.ActiveFadeIn(); ok && level > baseLevel {
		low, err := tensor.Upsample(b.render(z, level-1), 2)
		if err != nil {
			return nil, err
		}
		return tensor.Lerp(low, out, fade.Alpha())
	}
	return out, nil
}

func (b *Backend) render(z *tensor.Batch, level int) *tensor.Batch {
	side := 1 << level
	channels := b.spec.Channels
	if channels == 0 {
		channels = 3
	}
	scale := b.gen.sum()
	out := tensor.New(z.N, channels, side, side)
	for n := range z.N {
		var zm float64
		for k := range z.C {
			zm += float64(z.At(n, k, 0, 0))
		}
		zm /= float64(max(z.C, 1))
		for c := range channels {
			for y := range side {
				for x := range side {
					v := math.Tanh(scale*zm + float64(x+y+c)/float64(2*side))
					out.Set(n, c, y, x, float32(v))
				}
			}
		}
	}
	return out
}

func (b *Backend) critic(x *tensor.Batch) float64 {
	return math.Tanh(b.dis.sum() * tensor.Mean(x))
}

func (b *Backend) StepDiscriminator(ctx context.Context, step model.DiscriminatorStep) (model.DiscriminatorResult, error) {
	if step.Real == nil {
		return model.DiscriminatorResult{}, fmt.Errorf("dryrun: discriminator step without real batch")
	}
	fake, err := b.Generate(ctx, b.latent(step.Real.N))
	if err != nil {
		return model.DiscriminatorResult{}, err
	}
	b.lastFake = fake
	x := step.Real
	if step.NoiseStd > 0 {
		x = x.Clone()
		tensor.AddGaussian(x, step.NoiseStd, b.rng)
	}

	fx := b.critic(x)
	fxt := b.critic(fake)
	res := model.DiscriminatorResult{RealMean: fx, FakeMean: fxt}

	res.Loss = (fx-1)*(fx-1) + fxt*fxt
	norm := math.Abs(b.dis.sum())
	res.GradientPenalty = step.Lambda * (norm - 1) * (norm - 1) * 1e-3
	if step.Drift {
		res.DriftPenalty = step.Epsilon * fx * fx
	}
	res.Loss += res.GradientPenalty + res.DriftPenalty

	opt := b.opt[model.RoleDiscriminator]
	b.dis.nudge(opt.LR * 1e-2 * res.Loss)
	opt.Steps++
	return res, nil
}

func (b *Backend) StepGenerator(ctx context.Context) (model.GeneratorResult, error) {
	if err := ctx.Err(); err != nil {
		return model.GeneratorResult{}, err
	}
	fake := b.lastFake
	if fake == nil {
		var err error
		if fake, err = b.Generate(ctx, b.latent(max(b.spec.BatchSize, 1))); err != nil {
			return model.GeneratorResult{}, err
		}
	}
	fxt := b.critic(fake)
	loss := (fxt - 1) * (fxt - 1)

	opt := b.opt[model.RoleGenerator]
	b.gen.nudge(opt.LR * 1e-2 * loss)
	opt.Steps++
	b.lastFake = nil
	return model.GeneratorResult{Loss: loss}, nil
}
