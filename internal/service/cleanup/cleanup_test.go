package cleanup

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/acstdl/internal/adapter/fsadapter"
	"github.com/jgivc/acstdl/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcile(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"old1.mp3", "old2.mp3", "new.mp3", "notes.txt", "feed.md"} {
		require.NoError(t, afero.WriteFile(fs, "/podcasts/news/"+name, []byte("x"), 0o644))
	}
	require.NoError(t, afero.WriteFile(fs, "/podcasts/other/old3.mp3", []byte("x"), 0o644))

	storage, err := fsadapter.NewFSAdapterWithFS(fs, &config.FSAdapterConfig{WorkDir: "/podcasts"}, discard())
	require.NoError(t, err)

	removed, err := NewCleanupReconciler(storage, nil, discard()).Reconcile("news", map[string]struct{}{"new.mp3": {}})
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	for name, want := range map[string]bool{
		"/podcasts/news/old1.mp3":   false,
		"/podcasts/news/old2.mp3":   false,
		"/podcasts/news/new.mp3":    true,
		"/podcasts/news/notes.txt":  true,
		"/podcasts/news/feed.md":    true,
		"/podcasts/other/old3.mp3": true,
	} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		require.Equal(t, want, exists, name)
	}
}

func TestReconcileMissingFolder(t *testing.T) {
	storage, err := fsadapter.NewFSAdapterWithFS(afero.NewMemMapFs(), &config.FSAdapterConfig{WorkDir: "/podcasts"}, discard())
	require.NoError(t, err)

	removed, err := NewCleanupReconciler(storage, nil, discard()).Reconcile("news", nil)
	require.NoError(t, err)
	require.Zero(t, removed)
}

type failingStorage struct {
	names []string
}

func (s *failingStorage) ListMP3(folder string) ([]string, error) {
	return s.names, nil
}

func (s *failingStorage) Remove(folder, name string) error {
	if name == "locked.mp3" {
		return errors.New("permission denied")
	}

	return nil
}

func TestReconcileContinuesAfterError(t *testing.T) {
	storage := &failingStorage{names: []string{"a.mp3", "locked.mp3", "b.mp3"}}

	removed, err := NewCleanupReconciler(storage, nil, discard()).Reconcile("news", nil)
	require.Error(t, err)
	require.Equal(t, 2, removed)
}
