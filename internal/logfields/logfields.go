package logfields

import "log/slog"

// Canonical log field names so every package emits the same keys.
const (
	KeyRunID        = "run_id"
	KeyTick         = "tick"
	KeyIteration    = "iteration"
	KeyImages       = "kimgs"
	KeyResolution   = "resolution"
	KeyImageSize    = "image_size"
	KeyPhase        = "phase"
	KeyGenComplete  = "gen_complete"
	KeyDisComplete  = "dis_complete"
	KeyAccelerate   = "accelerate"
	KeyLearningRate = "lr"
	KeyRole         = "role"
	KeyPath         = "path"
	KeyBatchSize    = "batch_size"
	KeyDurationMS   = "duration_ms"
	KeyError        = "error"
)

func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Tick(t int) slog.Attr               { return slog.Int(KeyTick, t) }
func Iteration(i int) slog.Attr          { return slog.Int(KeyIteration, i) }
func Images(n int) slog.Attr             { return slog.Int(KeyImages, n) }
func Resolution(r float64) slog.Attr     { return slog.Float64(KeyResolution, r) }
func ImageSize(px int) slog.Attr         { return slog.Int(KeyImageSize, px) }
func Phase(p string) slog.Attr           { return slog.String(KeyPhase, p) }
func GenComplete(pct float64) slog.Attr  { return slog.Float64(KeyGenComplete, pct) }
func DisComplete(pct float64) slog.Attr  { return slog.Float64(KeyDisComplete, pct) }
func Accelerate(n int) slog.Attr         { return slog.Int(KeyAccelerate, n) }
func LearningRate(lr float64) slog.Attr  { return slog.Float64(KeyLearningRate, lr) }
func Role(r string) slog.Attr            { return slog.String(KeyRole, r) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func BatchSize(n int) slog.Attr          { return slog.Int(KeyBatchSize, n) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
