// Package control implements the user toggle polled by the scheduler at tick boundaries.
//
// The toggle is a text file holding "0" or "1". Writers and the poller are not
// synchronized; anything that does not parse as an integer reads as "0".
package control

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/logfields"
)

// Signal is polled once per tick boundary. Poll consumes a pending request.
type Signal interface {
	Poll(ctx context.Context) bool
}

// Inert never reports a request. It is used while replaying the schedule on resume.
type Inert struct{}

func (Inert) Poll(context.Context) bool { return false }

// Read returns the integer in the control file, or 0 on any read or parse failure.
func Read(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return v
}

// FileSignal polls a control file on disk.
type FileSignal struct {
	path   string
	logger *slog.Logger
}

func NewFileSignal(path string, logger *slog.Logger) *FileSignal {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSignal{path: path, logger: logger}
}

func (f *FileSignal) Path() string { return f.path }

// Poll reports whether the file holds a nonzero value and, if so, rewrites it to "0".
// A failed reset is logged; the request still counts once.
func (f *FileSignal) Poll(ctx context.Context) bool {
	if Read(f.path) == 0 {
		return false
	}
	if err := f.Reset(); err != nil {
		f.logger.WarnContext(ctx, "Failed to reset control file", logfields.Path(f.path), logfields.Error(err))
	}
	return true
}

// Reset writes "0".
func (f *FileSignal) Reset() error { return f.write("0") }

// Request writes "1"; the scheduler consumes it at the next tick boundary.
func (f *FileSignal) Request() error { return f.write("1") }

// Init creates the file holding "0" if it does not exist yet.
func (f *FileSignal) Init() error {
	if _, err := os.Stat(f.path); err == nil {
		return nil
	}
	return f.Reset()
}

func (f *FileSignal) write(value string) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapError(err, errors.CategoryControl, "failed to create control directory").
				WithContext("path", dir).
				Build()
		}
	}
	if err := os.WriteFile(f.path, []byte(value), 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryControl, "failed to write control file").
			WithContext("path", f.path).
			Build()
	}
	return nil
}
