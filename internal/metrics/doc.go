// Package metrics records training progress: losses, learning rate, resolution, phase,
// fade-in completeness, growth, flush and checkpoint events.
//
// Components receive a Recorder through injection and default to NoopRecorder, so no
// call site needs a nil check:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	driver := trainer.New(cfg, deps, trainer.WithRecorder(recorder))
//
// PrometheusRecorder methods are also safe on a nil receiver. HTTPHandler exposes a
// registry for scraping while a run is in progress.
package metrics
