package trainer

import (
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/progan/internal/schedule"
)

// Status is an immutable snapshot of the loop position, published after every iteration
// for readers outside the loop goroutine.
type Status struct {
	RunID       string    `json:"run_id"`
	Stage       int       `json:"stage"`
	Stages      int       `json:"stages"`
	Epoch       int       `json:"epoch"`
	Tick        int       `json:"tick"`
	Iteration   int       `json:"iteration"`
	KImgs       int       `json:"kimgs"`
	Resolution  float64   `json:"resolution"`
	ImageSize   int       `json:"image_size"`
	Phase       string    `json:"phase"`
	GenComplete float64   `json:"gen_complete"`
	DisComplete float64   `json:"dis_complete"`
	LR          float64   `json:"lr"`
	LossD       float64   `json:"loss_d"`
	LossG       float64   `json:"loss_g"`
	NonFinite   int       `json:"non_finite"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func statusFrom(runID string, st schedule.State) Status {
	return Status{
		RunID:       runID,
		Tick:        st.GlobalTick,
		Iteration:   st.GlobalIter,
		KImgs:       st.KImgs,
		Resolution:  st.Resolution,
		ImageSize:   st.ImageSize(),
		Phase:       string(st.Phase),
		GenComplete: st.Complete.Gen,
		DisComplete: st.Complete.Dis,
		LR:          st.LR,
		UpdatedAt:   time.Now().UTC(),
	}
}

// statusBoard holds the latest published Status.
type statusBoard struct {
	latest atomic.Pointer[Status]
}

func (b *statusBoard) publish(s Status) { b.latest.Store(&s) }

func (b *statusBoard) load() (Status, bool) {
	s := b.latest.Load()
	if s == nil {
		return Status{}, false
	}
	return *s, true
}
