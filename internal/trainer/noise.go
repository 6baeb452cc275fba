package trainer

import (
	"math"

	"git.home.luguber.info/inful/progan/internal/foundation"
)

// adaptiveNoise tracks an EMA of the discriminator's mean output on generated samples.
// The noise added to real inputs grows once that average climbs above 0.5.
type adaptiveNoise struct {
	ema foundation.Option[float64]
}

// next folds the previous step's fake mean into the average and returns the noise std
// for the coming step. The first call starts the average at zero.
func (n *adaptiveNoise) next(fakeMean float64) float64 {
	d := 0.0
	if prev, ok := n.ema.Get(); ok {
		d = prev*0.9 + fakeMean*0.1
	}
	n.ema = foundation.Some(d)
	return 0.2 * math.Pow(max(0, d-0.5), 2)
}

func (n *adaptiveNoise) average() float64 { return n.ema.UnwrapOr(0) }
