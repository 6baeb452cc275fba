package control

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTreatsGarbageAsZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "continue.txt")

	assert.Zero(t, Read(path), "missing file")

	for content, want := range map[string]int{"1": 1, "0": 0, " 1\n": 1, "": 0, "yes": 0, "1.5": 0, "2": 2} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		assert.Equal(t, want, Read(path), "content %q", content)
	}
}

func TestPollConsumesRequestOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	sig := NewFileSignal(path, nil)
	require.NoError(t, sig.Init())
	assert.False(t, sig.Poll(t.Context()))

	require.NoError(t, sig.Request())
	assert.True(t, sig.Poll(t.Context()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
	assert.False(t, sig.Poll(t.Context()), "second poll sees the reset")
}

func TestPollMissingFileIsInert(t *testing.T) {
	sig := NewFileSignal(filepath.Join(t.TempDir(), "nested", "continue.txt"), nil)
	assert.False(t, sig.Poll(t.Context()))
	assert.False(t, Inert{}.Poll(t.Context()))
}

func TestInitKeepsExistingRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o600))
	require.NoError(t, NewFileSignal(path, nil).Init())
	assert.Equal(t, 1, Read(path))
}

func TestWatcherReportsArmedSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continue.txt")
	sig := NewFileSignal(path, nil)
	require.NoError(t, sig.Init())

	var armed atomic.Int32
	w, err := NewWatcher(path, func() { armed.Add(1) }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, sig.Request())
	require.Eventually(t, func() bool { return armed.Load() > 0 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, Read(path), "watcher does not consume the request")
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
