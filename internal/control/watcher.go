package control

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/progan/internal/logfields"
)

// Watcher observes the control file and calls onArmed when a request is written, so the
// operator gets feedback before the next tick boundary consumes it. It never consumes
// the request itself.
type Watcher struct {
	path    string
	onArmed func()
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

func NewWatcher(path string, onArmed func(), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve control path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{path: abs, onArmed: onArmed, logger: logger, watcher: w, done: make(chan struct{})}, nil
}

// Start watches the control file's directory; editors often replace files instead of
// writing them in place.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch control directory %s: %w", dir, err)
	}
	w.logger.DebugContext(ctx, "Watching control file", logfields.Path(w.path))
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if Read(w.path) != 0 && w.onArmed != nil {
				w.onArmed()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WarnContext(ctx, "Control watcher error", logfields.Error(err))
		}
	}
}

// Stop is idempotent.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
