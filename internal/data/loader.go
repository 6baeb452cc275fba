// Package data supplies real image batches to the trainer at the current resolution.
package data

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/tensor"
)

// Loader yields batches of real images in [-1, 1], laid out [N, 3, S, S].
type Loader interface {
	// Renew re-targets the loader at image side 2^level, which may change the batch size.
	Renew(level int) error
	BatchSize() int
	ImageSize() int
	// Len is the number of images in one pass over the dataset.
	Len() int
	NextBatch(ctx context.Context) (*tensor.Batch, error)
}

// Synthetic renders procedurally generated images. Each dataset index maps to a fixed
// image, so epochs are reproducible for a given seed.
type Synthetic struct {
	schedule config.ScheduleConfig
	size     int
	seed     uint64
	level    int
	cursor   int
	batch    int
}

// NewSynthetic returns a loader over size images, not yet renewed.
func NewSynthetic(schedule config.ScheduleConfig, size int, seed uint64) *Synthetic {
	return &Synthetic{schedule: schedule, size: size, seed: seed}
}

func (s *Synthetic) Renew(level int) error {
	if level < 2 || level > 10 {
		return fmt.Errorf("data: level %d outside 2..10", level)
	}
	s.level = level
	s.batch = s.schedule.BatchSizeFor(level)
	return nil
}

func (s *Synthetic) BatchSize() int { return s.batch }
func (s *Synthetic) ImageSize() int { return 1 << s.level }
func (s *Synthetic) Len() int       { return s.size }

func (s *Synthetic) NextBatch(ctx context.Context) (*tensor.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.level == 0 {
		return nil, fmt.Errorf("data: loader used before Renew")
	}
	side := s.ImageSize()
	b := tensor.New(s.batch, 3, side, side)
	for n := range s.batch {
		s.render(b, n, s.cursor)
		s.cursor = (s.cursor + 1) % max(s.size, 1)
	}
	return b, nil
}

// render draws a blob whose centre and colour depend only on the dataset index.
func (s *Synthetic) render(b *tensor.Batch, n, index int) {
	rng := rand.New(rand.NewPCG(s.seed, uint64(index)))
	cx, cy := rng.Float64(), rng.Float64()
	radius := 0.15 + 0.3*rng.Float64()
	colour := [3]float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
	side := float64(b.W)
	for y := range b.H {
		for x := range b.W {
			dx := (float64(x)+0.5)/side - cx
			dy := (float64(y)+0.5)/side - cy
			inside := math.Exp(-(dx*dx + dy*dy) / (2 * radius * radius))
			for c := range 3 {
				b.Set(n, c, y, x, float32(inside*colour[c]+(1-inside)*-1))
			}
		}
	}
}
