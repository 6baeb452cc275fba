package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "progan"

// Phases are the label values of the phase gauge; exactly one is set to 1.
var Phases = []string{"init", "gtrns", "gstab", "dtrns", "dstab", "final"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once sync.Once

	lossD              prom.Gauge
	lossG              prom.Gauge
	iterationDuration  prom.Histogram
	iterations         prom.Counter
	resolution         prom.Gauge
	phase              *prom.GaugeVec
	completeness       *prom.GaugeVec
	learningRate       prom.Gauge
	ticks              prom.Counter
	growths            *prom.CounterVec
	flushes            *prom.CounterVec
	checkpoints        *prom.CounterVec
	checkpointDuration prom.Histogram
	skipped            *prom.CounterVec
	nonFinite          *prom.CounterVec
	controlSignals     *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the training metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.lossD = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace, Name: "loss_discriminator",
			Help: "Discriminator loss of the last optimizer step, penalties included",
		})
		pr.lossG = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace, Name: "loss_generator",
			Help: "Generator loss of the last optimizer step",
		})
		pr.iterationDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace, Name: "iteration_duration_seconds",
			Help:    "Wall time of one discriminator plus generator update",
			Buckets: prom.ExponentialBuckets(0.001, 2, 14),
		})
		pr.iterations = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Name: "optimizer_steps_total",
			Help: "Iterations that ran an optimizer step",
		})
		pr.resolution = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace, Name: "resolution",
			Help: "Continuous resolution cursor; the image side is 2^floor(resolution)",
		})
		pr.phase = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace, Name: "phase",
			Help: "Current training phase (1 for the active phase)",
		}, []string{"phase"})
		pr.completeness = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace, Name: "fadein_completeness_percent",
			Help: "Fade-in blend percentage per network",
		}, []string{"role"})
		pr.learningRate = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace, Name: "learning_rate",
			Help: "Learning rate after per-growth decay",
		})
		pr.ticks = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Completed tick windows",
		})
		pr.growths = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Name: "growths_total",
			Help: "Network growth steps by new image size",
		}, []string{"image_size"})
		pr.flushes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Name: "fadein_flushes_total",
			Help: "Fade-in blocks committed per network",
		}, []string{"role"})
		pr.checkpoints = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Name: "checkpoints_total",
			Help: "Checkpoint pair writes by result",
		}, []string{"result"})
		pr.checkpointDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace, Name: "checkpoint_duration_seconds",
			Help:    "Time to write and verify a checkpoint pair",
			Buckets: prom.DefBuckets,
		})
		pr.skipped = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Name: "skipped_steps_total",
			Help: "Iterations that advanced counters without an optimizer step",
		}, []string{"reason"})
		pr.nonFinite = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Name: "nonfinite_losses_total",
			Help: "Optimizer steps that produced NaN or Inf losses",
		}, []string{"stage"})
		pr.controlSignals = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace, Name: "control_signals_total",
			Help: "Consumed control requests by effect",
		}, []string{"effect"})
		reg.MustRegister(pr.lossD, pr.lossG, pr.iterationDuration, pr.iterations, pr.resolution, pr.phase,
			pr.completeness, pr.learningRate, pr.ticks, pr.growths, pr.flushes, pr.checkpoints,
			pr.checkpointDuration, pr.skipped, pr.nonFinite, pr.controlSignals)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveLosses(lossD, lossG float64) {
	if p == nil || p.lossD == nil {
		return
	}
	p.lossD.Set(lossD)
	p.lossG.Set(lossG)
}

func (p *PrometheusRecorder) ObserveIterationDuration(d time.Duration) {
	if p == nil || p.iterationDuration == nil {
		return
	}
	p.iterationDuration.Observe(d.Seconds())
	p.iterations.Inc()
}

func (p *PrometheusRecorder) SetSchedule(resolution float64, phase string, genComplete, disComplete, lr float64) {
	if p == nil || p.resolution == nil {
		return
	}
	p.resolution.Set(resolution)
	for _, ph := range Phases {
		v := 0.0
		if ph == phase {
			v = 1
		}
		p.phase.WithLabelValues(ph).Set(v)
	}
	p.completeness.WithLabelValues("gen").Set(genComplete)
	p.completeness.WithLabelValues("dis").Set(disComplete)
	p.learningRate.Set(lr)
}

func (p *PrometheusRecorder) IncTick() {
	if p == nil || p.ticks == nil {
		return
	}
	p.ticks.Inc()
}

func (p *PrometheusRecorder) IncGrowth(imageSize int) {
	if p == nil || p.growths == nil {
		return
	}
	p.growths.WithLabelValues(strconv.Itoa(imageSize)).Inc()
}

func (p *PrometheusRecorder) IncFlush(role string) {
	if p == nil || p.flushes == nil {
		return
	}
	p.flushes.WithLabelValues(role).Inc()
}

func (p *PrometheusRecorder) IncCheckpoint(result ResultLabel) {
	if p == nil || p.checkpoints == nil {
		return
	}
	p.checkpoints.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveCheckpointDuration(d time.Duration) {
	if p == nil || p.checkpointDuration == nil {
		return
	}
	p.checkpointDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSkippedStep(reason string) {
	if p == nil || p.skipped == nil {
		return
	}
	p.skipped.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncNonFinite(stage string) {
	if p == nil || p.nonFinite == nil {
		return
	}
	p.nonFinite.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncControlSignal(effect string) {
	if p == nil || p.controlSignals == nil {
		return
	}
	p.controlSignals.WithLabelValues(effect).Inc()
}
