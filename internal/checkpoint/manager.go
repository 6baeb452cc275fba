// Package checkpoint persists generator and discriminator state in pairs at stable tick
// boundaries and resumes a run from the newest complete pair.
package checkpoint

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/metrics"
	"git.home.luguber.info/inful/progan/internal/model"
	"git.home.luguber.info/inful/progan/internal/retry"
	"git.home.luguber.info/inful/progan/internal/schedule"
)

// Saved describes a written checkpoint pair.
type Saved struct {
	Level    int
	Tick     int
	Gen      string
	Dis      string
	Duration time.Duration
}

// Manager writes and reads checkpoint pairs in one directory.
type Manager struct {
	dir      string
	ext      string
	every    int
	policy   retry.Policy
	logger   *slog.Logger
	recorder metrics.Recorder

	last *Saved
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithPolicy overrides the write retry policy taken from the configuration.
func WithPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

func NewManager(dir string, cfg config.CheckpointConfig, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		ext:      cfg.Extension,
		every:    cfg.EveryTicks,
		policy:   retry.FromCheckpointConfig(cfg),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	if m.ext == "" {
		m.ext = "ckpt"
	}
	if m.every <= 0 {
		m.every = 50
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir() string { return m.dir }

// Path returns the file path for role at (level, tick).
func (m *Manager) Path(role model.Role, level, tick int) string {
	return filepath.Join(m.dir, FileName(role, level, tick, m.ext))
}

// Due reports whether st sits on a checkpoint boundary in a stable phase. It does no I/O.
func (m *Manager) Due(st schedule.State) bool {
	return st.GlobalTick > 0 && st.GlobalTick%m.every == 0 && st.Phase.IsStable()
}

// Exists reports whether both files for (level, tick) are present.
func (m *Manager) Exists(level, tick int) bool {
	if m.last != nil && m.last.Level == level && m.last.Tick == tick {
		return true
	}
	for _, role := range model.Roles {
		if _, err := os.Stat(m.Path(role, level, tick)); err != nil {
			return false
		}
	}
	return true
}

// Snapshot is called every iteration. It writes a pair only when the state is due and no
// pair exists yet for its (level, tick); ok reports whether a pair was written. Write
// failures are retried under the configured policy, then returned as a checkpoint error
// that the caller retries on a later iteration.
func (m *Manager) Snapshot(ctx context.Context, backend model.Backend, p Progress) (Saved, bool, error) {
	st := p.State
	if !m.Due(st) || m.Exists(st.Level(), st.GlobalTick) {
		return Saved{}, false, nil
	}
	start := time.Now()
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		m.recorder.IncCheckpoint(metrics.ResultFailed)
		return Saved{}, false, errors.WrapError(err, errors.CategoryFileSystem, "failed to create checkpoint directory").
			NextTick().WithContext("dir", m.dir).Build()
	}

	records := make(map[model.Role]Record, len(model.Roles))
	for _, role := range model.Roles {
		rec, err := capture(backend, role, p)
		if err != nil {
			m.recorder.IncCheckpoint(metrics.ResultFailed)
			return Saved{}, false, errors.WrapError(err, errors.CategoryCheckpoint, "failed to capture network state").
				NextTick().WithContext("role", string(role)).Build()
		}
		records[role] = rec
	}

	saved := Saved{Level: st.Level(), Tick: st.GlobalTick}
	written := make([]string, 0, len(model.Roles))
	for _, role := range model.Roles {
		path := m.Path(role, saved.Level, saved.Tick)
		err := m.policy.Do(ctx, func(attempt int) error {
			if attempt > 0 {
				m.recorder.IncCheckpoint(metrics.ResultRetried)
				m.logger.WarnContext(ctx, "Retrying checkpoint write", logfields.Path(path), slog.Int("attempt", attempt))
			}
			return writeAndVerify(path, records[role])
		}, nil)
		if err != nil {
			// Never leave half a pair behind: resume would refuse it.
			for _, w := range written {
				_ = os.Remove(w)
			}
			m.recorder.IncCheckpoint(metrics.ResultFailed)
			return Saved{}, false, errors.WrapError(err, errors.CategoryCheckpoint, "failed to write checkpoint").
				NextTick().
				WithContext("role", string(role)).
				WithContext("path", path).
				WithContext("tick", saved.Tick).
				Build()
		}
		written = append(written, path)
		if role == model.RoleGenerator {
			saved.Gen = path
		} else {
			saved.Dis = path
		}
	}

	saved.Duration = time.Since(start)
	m.last = &saved
	m.recorder.IncCheckpoint(metrics.ResultSuccess)
	m.recorder.ObserveCheckpointDuration(saved.Duration)
	m.logger.InfoContext(ctx, "Checkpoint saved",
		logfields.Tick(saved.Tick), logfields.ImageSize(1<<saved.Level), logfields.Path(saved.Gen),
		logfields.DurationMS(float64(saved.Duration.Microseconds())/1000))
	return saved, true, nil
}

func capture(backend model.Backend, role model.Role, p Progress) (Record, error) {
	weights, err := model.NetworkFor(backend, role).StateDict()
	if err != nil {
		return Record{}, err
	}
	opt, err := backend.Optimizer(role).StateDict()
	if err != nil {
		return Record{}, err
	}
	return newRecord(role, p, weights, opt), nil
}

func writeAndVerify(path string, r Record) error {
	if err := writeRecord(path, r); err != nil {
		return err
	}
	back, err := ReadRecord(path)
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	if back.Checksum != r.Checksum {
		_ = os.Remove(path)
		return errors.CheckpointError("checkpoint read back differs from what was written").
			WithContext("path", path).Build()
	}
	return nil
}
