package checkpoint

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/logfields"
	"git.home.luguber.info/inful/progan/internal/model"
	"git.home.luguber.info/inful/progan/internal/schedule"
)

// Resumed describes the pair a run was restored from.
type Resumed struct {
	Pair   Pair
	Record Record // generator record; carries the loop position
	State  schedule.State
}

// Resume restores the newest pair in the checkpoint directory. The schedule is replayed
// first so both networks are regrown to the saved topology, then weights and optimizer
// state are loaded into them. found is false when there is nothing to resume from; that
// is an error only when required is set.
func (m *Manager) Resume(ctx context.Context, sched *schedule.Scheduler, backend model.Backend, batch schedule.BatchSizer, required bool) (Resumed, bool, error) {
	pairs, err := Scan(m.dir, m.ext)
	if err != nil {
		return Resumed{}, false, err
	}
	latest, ok := Latest(pairs)
	if !ok {
		if required {
			return Resumed{}, false, errors.ConfigError("resume requested but no checkpoints were found").
				WithContext("dir", m.dir).
				UserAction().
				Build()
		}
		m.logger.InfoContext(ctx, "No checkpoint found, starting fresh", slog.String("dir", m.dir))
		return Resumed{}, false, nil
	}
	if !latest.Complete() {
		return Resumed{}, false, errors.ResumeError("newest checkpoint pair is incomplete").
			Fatal().
			WithContext("tick", latest.Tick).
			WithContext("resolution", latest.Level).
			WithContext("missing", latest.Missing()).
			Build()
	}

	records := make(map[model.Role]Record, len(model.Roles))
	for _, role := range model.Roles {
		path := latest.Gen
		if role == model.RoleDiscriminator {
			path = latest.Dis
		}
		rec, err := ReadRecord(path)
		if err != nil {
			return Resumed{}, false, errors.WrapError(err, errors.CategoryResume, "failed to read checkpoint").
				Fatal().WithContext("path", path).Build()
		}
		if rec.Role != role || rec.Tick != latest.Tick || rec.Level != latest.Level {
			return Resumed{}, false, errors.ResumeError("checkpoint contents do not match its file name").
				Fatal().WithContext("path", path).Build()
		}
		records[role] = rec
	}
	gen, dis := records[model.RoleGenerator], records[model.RoleDiscriminator]
	if gen.Iteration != dis.Iteration {
		return Resumed{}, false, errors.ResumeError("checkpoint pair was saved at different iterations").
			Fatal().
			WithContext("gen_iteration", gen.Iteration).
			WithContext("dis_iteration", dis.Iteration).
			Build()
	}

	st, err := sched.Replay(ctx, schedule.ReplayTarget{Tick: gen.Tick, Iteration: gen.Iteration}, batch)
	if err != nil {
		return Resumed{}, false, err
	}
	if st.Level() != gen.Level {
		return Resumed{}, false, errors.ResumeError("schedule replay reached a different resolution than the checkpoint").
			Fatal().
			WithContext("checkpoint_resolution", gen.Level).
			WithContext("replayed_resolution", st.Level()).
			Build()
	}
	if gen.Phase != "" && (gen.Phase != string(st.Phase) || gen.Resolution != st.Resolution) {
		m.logger.WarnContext(ctx, "Replayed schedule differs from the saved position",
			slog.String("saved_phase", gen.Phase), logfields.Phase(string(st.Phase)),
			slog.Float64("saved_resolution", gen.Resolution), logfields.Resolution(st.Resolution))
	}

	for _, role := range model.Roles {
		rec := records[role]
		if err := model.NetworkFor(backend, role).LoadStateDict(rec.Weights); err != nil {
			return Resumed{}, false, errors.WrapError(err, errors.CategoryResume, "failed to load network state").
				Fatal().WithContext("role", string(role)).Build()
		}
		if err := backend.Optimizer(role).LoadStateDict(rec.Optimizer); err != nil {
			return Resumed{}, false, errors.WrapError(err, errors.CategoryResume, "failed to load optimizer state").
				Fatal().WithContext("role", string(role)).Build()
		}
	}

	m.last = &Saved{Level: latest.Level, Tick: latest.Tick, Gen: latest.Gen, Dis: latest.Dis}
	m.logger.InfoContext(ctx, "Resumed from checkpoint",
		logfields.Tick(st.GlobalTick), logfields.Iteration(st.GlobalIter),
		logfields.Resolution(st.Resolution), logfields.Phase(string(st.Phase)), logfields.Path(latest.Gen))
	return Resumed{Pair: latest, Record: gen, State: st}, true, nil
}
