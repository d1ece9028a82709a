package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// waitForMode reads updates until one carries mode. Editors and WriteFile may
// emit several events per save, so earlier revisions can repeat.
func waitForMode(t *testing.T, w *Watcher, mode string) Settings {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-w.Updates():
			if s.Mode == mode {
				return s
			}
		case <-deadline:
			t.Fatalf("no settings update with mode %s", mode)
		}
	}
}

func TestWatcherReloadsEditedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: velocity\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := Watch(ctx, path, 20*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("mode: density\nclear: true\n"), 0o644))
	s := waitForMode(t, w, "density")
	assert.True(t, s.Clear)

	// Invalid revisions are dropped and the next valid one still arrives.
	require.NoError(t, os.WriteFile(path, []byte("mode: vorticity\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("mode: pressure\n"), 0o644))
	s = waitForMode(t, w, "pressure")
	assert.False(t, s.Clear)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: velocity\n"), 0o644))

	w, err := Watch(context.Background(), path, 20*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("mode: density\n"), 0o644))
	select {
	case s := <-w.Updates():
		t.Fatalf("unexpected update %+v", s)
	case <-time.After(200 * time.Millisecond):
	}
	assert.NoError(t, w.Close())
}

func TestWatchMissingDirectory(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "fluid.yaml"), 0, nil)
	assert.Error(t, err)
}
