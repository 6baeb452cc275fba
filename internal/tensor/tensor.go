// Package tensor implements the small set of image-batch operations the trainer performs
// outside the model backend: nearest-neighbour resampling, cross-fading and noise injection.
package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Batch is a dense float32 tensor laid out as [N, C, H, W].
type Batch struct {
	N, C, H, W int
	Data       []float32
}

// New allocates a zeroed batch.
func New(n, c, h, w int) *Batch {
	return &Batch{N: n, C: c, H: h, W: w, Data: make([]float32, n*c*h*w)}
}

// Shape returns [N, C, H, W].
func (b *Batch) Shape() [4]int { return [4]int{b.N, b.C, b.H, b.W} }

// Len is the element count.
func (b *Batch) Len() int { return len(b.Data) }

func (b *Batch) index(n, c, y, x int) int {
	return ((n*b.C+c)*b.H+y)*b.W + x
}

// At returns the element at (n, c, y, x).
func (b *Batch) At(n, c, y, x int) float32 { return b.Data[b.index(n, c, y, x)] }

// Set stores v at (n, c, y, x).
func (b *Batch) Set(n, c, y, x int, v float32) { b.Data[b.index(n, c, y, x)] = v }

// Clone returns a deep copy.
func (b *Batch) Clone() *Batch {
	out := *b
	out.Data = append([]float32(nil), b.Data...)
	return &out
}

// Downsample shrinks H and W by factor, keeping the top-left sample of each block.
func Downsample(b *Batch, factor int) (*Batch, error) {
	if factor < 1 || b.H%factor != 0 || b.W%factor != 0 {
		return nil, fmt.Errorf("tensor: cannot downsample %dx%d by %d", b.H, b.W, factor)
	}
	out := New(b.N, b.C, b.H/factor, b.W/factor)
	for n := range b.N {
		for c := range b.C {
			for y := range out.H {
				for x := range out.W {
					out.Set(n, c, y, x, b.At(n, c, y*factor, x*factor))
				}
			}
		}
	}
	return out, nil
}

// Upsample grows H and W by factor, repeating each sample.
func Upsample(b *Batch, factor int) (*Batch, error) {
	if factor < 1 {
		return nil, fmt.Errorf("tensor: invalid upsample factor %d", factor)
	}
	out := New(b.N, b.C, b.H*factor, b.W*factor)
	for n := range b.N {
		for c := range b.C {
			for y := range out.H {
				for x := range out.W {
					out.Set(n, c, y, x, b.At(n, c, y/factor, x/factor))
				}
			}
		}
	}
	return out, nil
}

// Lerp returns (1-alpha)*a + alpha*b. Shapes must match.
func Lerp(a, b *Batch, alpha float64) (*Batch, error) {
	if a.Shape() != b.Shape() {
		return nil, fmt.Errorf("tensor: lerp shape mismatch %v vs %v", a.Shape(), b.Shape())
	}
	out := New(a.N, a.C, a.H, a.W)
	wa, wb := float32(1-alpha), float32(alpha)
	for i := range a.Data {
		out.Data[i] = wa*a.Data[i] + wb*b.Data[i]
	}
	return out, nil
}

// Mean is the arithmetic mean of all elements, zero for an empty batch.
func Mean(b *Batch) float64 {
	if len(b.Data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range b.Data {
		sum += float64(v)
	}
	return sum / float64(len(b.Data))
}

// AddGaussian adds N(0, std^2) noise in place.
func AddGaussian(b *Batch, std float64, rng *rand.Rand) {
	if std == 0 {
		return
	}
	for i := range b.Data {
		b.Data[i] += float32(rng.NormFloat64() * std)
	}
}

// Finite reports whether every element is neither NaN nor infinite.
func Finite(b *Batch) bool {
	for _, v := range b.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
