package trainer

import (
	"git.home.luguber.info/inful/progan/internal/schedule"
	"git.home.luguber.info/inful/progan/internal/tensor"
)

// interpolate blends real images toward their one-level-lower rendition while the
// generator fades in, so the discriminator sees inputs matching the generator's blend.
// Outside gtrns above the base level x is returned unchanged.
func interpolate(x *tensor.Batch, st schedule.State, maxLevel int) (*tensor.Batch, error) {
	level := st.Level()
	if st.Phase != schedule.PhaseGTrns || level <= 2 || level > maxLevel {
		return x, nil
	}
	low, err := tensor.Downsample(x, 2)
	if err != nil {
		return nil, err
	}
	if low, err = tensor.Upsample(low, 2); err != nil {
		return nil, err
	}
	return tensor.Lerp(low, x, st.Complete.Gen/100)
}
