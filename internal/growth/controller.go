// Package growth grows the generator and discriminator one resolution stage at a time and
// keeps the loader, buffers and optimizers sized for the current topology.
package growth

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/progan/internal/config"
	"git.home.luguber.info/inful/progan/internal/data"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/metrics"
	"git.home.luguber.info/inful/progan/internal/model"
)

const baseLevel = 2

// Settings are the constants a rebuild needs besides the learning rate.
type Settings struct {
	MaxLevel int
	Nz       int
	Channels int
	Beta1    float64
	Beta2    float64
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxLevel: cfg.Schedule.MaxResolution,
		Nz:       cfg.Training.Nz,
		Channels: 3,
		Beta1:    cfg.Optimizer.Beta1,
		Beta2:    cfg.Optimizer.Beta2,
	}
}

// Controller implements schedule.Structure over a model backend and a data loader.
type Controller struct {
	backend  model.Backend
	loader   data.Loader
	settings Settings
	logger   *slog.Logger
	recorder metrics.Recorder
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

func New(backend model.Backend, loader data.Loader, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		loader:   loader,
		settings: settings,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prepare sizes the loader and buffers for the 4x4 base networks. It runs once before the
// first iteration, fresh or resumed.
func (c *Controller) Prepare(ctx context.Context, lr float64) error {
	if err := c.loader.Renew(baseLevel); err != nil {
		return errors.WrapError(err, errors.CategoryGrowth, "failed to prepare data loader").
			Fatal().WithContext("level", baseLevel).Build()
	}
	return c.rebuild(ctx, baseLevel, lr)
}

// Grow appends the stage for level to both networks, generator first, and returns their
// fade-in blocks. Growing past the configured maximum or skipping a level is a programming
// error and always fatal.
func (c *Controller) Grow(ctx context.Context, level int, lr float64) (model.FadeIns, error) {
	start := time.Now()
	current := c.backend.Generator().Level()
	if level > c.settings.MaxLevel {
		return model.FadeIns{}, errors.InternalError("growth requested beyond max_resolution").
			Fatal().
			WithContext("level", level).
			WithContext("max_resolution", c.settings.MaxLevel).
			Build()
	}
	if level != current+1 || c.backend.Discriminator().Level() != current {
		return model.FadeIns{}, errors.InternalError("growth must add exactly one level to both networks").
			Fatal().
			WithContext("level", level).
			WithContext("generator_level", current).
			WithContext("discriminator_level", c.backend.Discriminator().Level()).
			Build()
	}

	var fadeIns model.FadeIns
	for _, role := range []model.Role{model.RoleGenerator, model.RoleDiscriminator} {
		fade, err := model.NetworkFor(c.backend, role).Grow(level)
		if err != nil {
			return model.FadeIns{}, errors.WrapError(err, errors.CategoryGrowth, "network refused to grow").
				Fatal().
				WithContext("role", string(role)).
				WithContext("level", level).
				Build()
		}
		if role == model.RoleGenerator {
			fadeIns.Gen = fade
		} else {
			fadeIns.Dis = fade
		}
	}

	if err := c.loader.Renew(level); err != nil {
		return model.FadeIns{}, errors.WrapError(err, errors.CategoryGrowth, "failed to renew data loader").
			Fatal().WithContext("level", level).Build()
	}
	if err := c.rebuild(ctx, level, lr); err != nil {
		return model.FadeIns{}, err
	}

	c.recorder.IncGrowth(1 << level)
	c.logger.DebugContext(ctx, "Networks grown",
		logfields.ImageSize(1<<level),
		logfields.BatchSize(c.loader.BatchSize()),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	return fadeIns, nil
}

// Flush commits the active fade-in block of role.
func (c *Controller) Flush(ctx context.Context, role model.Role) error {
	net := model.NetworkFor(c.backend, role)
	if _, ok := net.ActiveFadeIn(); !ok {
		return errors.InternalError("no active fade-in block to flush").
			Fatal().WithContext("role", string(role)).Build()
	}
	if err := net.Flush(); err != nil {
		return errors.WrapError(err, errors.CategoryGrowth, "network refused to flush").
			Fatal().WithContext("role", string(role)).Build()
	}
	c.recorder.IncFlush(string(role))
	return nil
}

// BatchSize is the loader's batch size at the current level.
func (c *Controller) BatchSize() int { return c.loader.BatchSize() }

func (c *Controller) rebuild(ctx context.Context, level int, lr float64) error {
	spec := model.BufferSpec{
		BatchSize: c.loader.BatchSize(),
		ImageSize: c.loader.ImageSize(),
		Channels:  c.settings.Channels,
		Nz:        c.settings.Nz,
		LR:        lr,
		Beta1:     c.settings.Beta1,
		Beta2:     c.settings.Beta2,
	}
	if err := c.backend.Rebuild(spec); err != nil {
		return errors.WrapError(err, errors.CategoryGrowth, "failed to rebuild buffers and optimizers").
			Fatal().
			WithContext("level", level).
			WithContext("batch_size", spec.BatchSize).
			Build()
	}
	c.logger.DebugContext(ctx, "Rebuilt buffers",
		logfields.ImageSize(spec.ImageSize), logfields.BatchSize(spec.BatchSize), logfields.LearningRate(lr))
	return nil
}
