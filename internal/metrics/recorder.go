package metrics

import "time"

// ResultLabel enumerates outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultRetried ResultLabel = "retried"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines the training observability hooks.
type Recorder interface {
	ObserveLosses(lossD, lossG float64)
	ObserveIterationDuration(d time.Duration)
	// SetSchedule publishes the scheduler position after each iteration.
	SetSchedule(resolution float64, phase string, genComplete, disComplete, lr float64)
	IncTick()
	IncGrowth(imageSize int)
	IncFlush(role string)
	IncCheckpoint(result ResultLabel)
	ObserveCheckpointDuration(d time.Duration)
	IncSkippedStep(reason string)
	IncNonFinite(stage string)
	IncControlSignal(effect string)
}

// NoopRecorder discards everything; it is the default when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) ObserveLosses(float64, float64)                        {}
func (NoopRecorder) ObserveIterationDuration(time.Duration)                {}
func (NoopRecorder) SetSchedule(float64, string, float64, float64, float64) {}
func (NoopRecorder) IncTick()                                              {}
func (NoopRecorder) IncGrowth(int)                                         {}
func (NoopRecorder) IncFlush(string)                                       {}
func (NoopRecorder) IncCheckpoint(ResultLabel)                             {}
func (NoopRecorder) ObserveCheckpointDuration(time.Duration)               {}
func (NoopRecorder) IncSkippedStep(string)                                 {}
func (NoopRecorder) IncNonFinite(string)                                   {}
func (NoopRecorder) IncControlSignal(string)                               {}
