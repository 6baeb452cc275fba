package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

// Event type names as stored in the journal.
const (
	TypeRunStarted       = "RunStarted"
	TypeRunResumed       = "RunResumed"
	TypeTickCompleted    = "TickCompleted"
	TypePhaseChanged     = "PhaseChanged"
	TypeNetworkGrown     = "NetworkGrown"
	TypeFadeInFlushed    = "FadeInFlushed"
	TypeCheckpointSaved  = "CheckpointSaved"
	TypeCheckpointFailed = "CheckpointFailed"
	TypeRunFinished      = "RunFinished"
)

// Run outcomes recorded by RunFinished.
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)

// RunStartedMeta describes the configuration and host of a run.
type RunStartedMeta struct {
	ConfigHash    string `json:"config_hash"`
	MaxResolution int    `json:"max_resolution"`
	TrnsTick      int    `json:"trns_tick"`
	StabTick      int    `json:"stab_tick"`
	Tick          int    `json:"tick"`
	Backend       string `json:"backend"`
	Commit        string `json:"commit,omitempty"`
	Dirty         bool   `json:"dirty,omitempty"`
	CPU           string `json:"cpu,omitempty"`
	Version       string `json:"version,omitempty"`
}

type RunResumedMeta struct {
	FromTick      int     `json:"from_tick"`
	FromIteration int     `json:"from_iteration"`
	Resolution    float64 `json:"resolution"`
	Phase         string  `json:"phase"`
	Checkpoint    string  `json:"checkpoint"`
	ConfigChanged bool    `json:"config_changed,omitempty"`
}

// TickProgress is the scheduler position at a tick boundary.
type TickProgress struct {
	Tick        int     `json:"tick"`
	Iteration   int     `json:"iteration"`
	KImgs       int     `json:"kimgs"`
	Resolution  float64 `json:"resolution"`
	Phase       string  `json:"phase"`
	GenComplete float64 `json:"gen_complete"`
	DisComplete float64 `json:"dis_complete"`
	LossD       float64 `json:"loss_d"`
	LossG       float64 `json:"loss_g"`
}

type PhaseChange struct {
	Tick       int     `json:"tick"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Resolution float64 `json:"resolution"`
}

type Growth struct {
	Tick      int     `json:"tick"`
	ImageSize int     `json:"image_size"`
	LR        float64 `json:"lr"`
}

type Flush struct {
	Tick       int     `json:"tick"`
	Role       string  `json:"role"`
	Resolution float64 `json:"resolution"`
}

type CheckpointRef struct {
	Tick       int    `json:"tick"`
	Level      int    `json:"resolution"`
	Gen        string `json:"gen"`
	Dis        string `json:"dis"`
	DurationMS int64  `json:"duration_ms"`
}

type CheckpointFailure struct {
	Tick  int    `json:"tick"`
	Error string `json:"error"`
}

type RunOutcome struct {
	Status     string  `json:"status"`
	Tick       int     `json:"tick"`
	Iteration  int     `json:"iteration"`
	Resolution float64 `json:"resolution"`
	Phase      string  `json:"phase"`
	Error      string  `json:"error,omitempty"`
}

// Typed events. Each embeds BaseEvent and carries its decoded payload.
type (
	RunStarted struct {
		BaseEvent
		Meta RunStartedMeta
	}
	RunResumed struct {
		BaseEvent
		Meta RunResumedMeta
	}
	TickCompleted struct {
		BaseEvent
		Progress TickProgress
	}
	PhaseChanged struct {
		BaseEvent
		Change PhaseChange
	}
	NetworkGrown struct {
		BaseEvent
		Growth Growth
	}
	FadeInFlushed struct {
		BaseEvent
		Flush Flush
	}
	CheckpointSaved struct {
		BaseEvent
		Checkpoint CheckpointRef
	}
	CheckpointFailed struct {
		BaseEvent
		Failure CheckpointFailure
	}
	RunFinished struct {
		BaseEvent
		Outcome RunOutcome
	}
)

func newBase(runID, eventType string, data any) (BaseEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return BaseEvent{}, errors.WrapError(err, errors.CategoryEventStore, "failed to marshal "+eventType+" payload").
			WithContext("run_id", runID).
			Build()
	}
	return BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}, nil
}

func NewRunStarted(runID string, meta RunStartedMeta) (*RunStarted, error) {
	base, err := newBase(runID, TypeRunStarted, meta)
	if err != nil {
		return nil, err
	}
	return &RunStarted{BaseEvent: base, Meta: meta}, nil
}

func NewRunResumed(runID string, meta RunResumedMeta) (*RunResumed, error) {
	base, err := newBase(runID, TypeRunResumed, meta)
	if err != nil {
		return nil, err
	}
	return &RunResumed{BaseEvent: base, Meta: meta}, nil
}

func NewTickCompleted(runID string, p TickProgress) (*TickCompleted, error) {
	base, err := newBase(runID, TypeTickCompleted, p)
	if err != nil {
		return nil, err
	}
	return &TickCompleted{BaseEvent: base, Progress: p}, nil
}

func NewPhaseChanged(runID string, c PhaseChange) (*PhaseChanged, error) {
	base, err := newBase(runID, TypePhaseChanged, c)
	if err != nil {
		return nil, err
	}
	return &PhaseChanged{BaseEvent: base, Change: c}, nil
}

func NewNetworkGrown(runID string, g Growth) (*NetworkGrown, error) {
	base, err := newBase(runID, TypeNetworkGrown, g)
	if err != nil {
		return nil, err
	}
	return &NetworkGrown{BaseEvent: base, Growth: g}, nil
}

func NewFadeInFlushed(runID string, f Flush) (*FadeInFlushed, error) {
	base, err := newBase(runID, TypeFadeInFlushed, f)
	if err != nil {
		return nil, err
	}
	return &FadeInFlushed{BaseEvent: base, Flush: f}, nil
}

func NewCheckpointSaved(runID string, c CheckpointRef) (*CheckpointSaved, error) {
	base, err := newBase(runID, TypeCheckpointSaved, c)
	if err != nil {
		return nil, err
	}
	return &CheckpointSaved{BaseEvent: base, Checkpoint: c}, nil
}

func NewCheckpointFailed(runID string, f CheckpointFailure) (*CheckpointFailed, error) {
	base, err := newBase(runID, TypeCheckpointFailed, f)
	if err != nil {
		return nil, err
	}
	return &CheckpointFailed{BaseEvent: base, Failure: f}, nil
}

func NewRunFinished(runID string, o RunOutcome) (*RunFinished, error) {
	base, err := newBase(runID, TypeRunFinished, o)
	if err != nil {
		return nil, err
	}
	return &RunFinished{BaseEvent: base, Outcome: o}, nil
}

// Decode unmarshals an event payload into T.
func Decode[T any](e Event) (T, error) {
	var v T
	if err := json.Unmarshal(e.Payload(), &v); err != nil {
		return v, wrap(ErrUnmarshalPayloadFailed, err)
	}
	return v, nil
}
