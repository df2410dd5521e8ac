package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fsys afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	require.NoError(t, fsys.Chtimes(path, mtime, mtime))
}

func TestWalk(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	writeFile(t, fsys, "/watch/a.fits", "a", t1)
	writeFile(t, fsys, "/watch/night1/b.fits", "b", t2)
	writeFile(t, fsys, "/watch/fswatcher.log", "log", t2)
	writeFile(t, fsys, "/watch/scratch/c.fits", "c", t2)

	m := NewManager(fsys, []string{"scratch"})
	snap, err := m.Walk(context.Background(), "/watch", time.Time{})
	require.NoError(t, err)

	assert.Len(t, snap, 2)
	assert.True(t, snap["/watch/a.fits"].Equal(t1))
	assert.True(t, snap["/watch/night1/b.fits"].Equal(t2))
	assert.NotContains(t, snap, "/watch/fswatcher.log")
	assert.NotContains(t, snap, "/watch/scratch/c.fits")
}

func TestWalkSince(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	writeFile(t, fsys, "/watch/old.fits", "o", old)
	writeFile(t, fsys, "/watch/new.fits", "n", recent)

	m := NewManager(fsys, nil)
	snap, err := m.Walk(context.Background(), "/watch", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"/watch/new.fits"}, snap.Paths())
}

func TestWalkCancelled(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/watch/a.fits", "a", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewManager(fsys, nil).Walk(ctx, "/watch", time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkMissingRoot(t *testing.T) {
	t.Parallel()
	_, err := NewManager(afero.NewMemMapFs(), nil).Walk(context.Background(), "/missing", time.Time{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenAndStat(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	mtime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, fsys, "/watch/a.fits", "hello", mtime)

	m := NewManager(fsys, nil)

	rc, err := m.Open("/watch/a.fits")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	st, err := m.Stat("/watch/a.fits")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size)
	assert.True(t, st.Mtime.Equal(mtime))
	assert.Equal(t, uint32(0o100644), st.Mode)

	_, err = m.Open("/watch")
	assert.Error(t, err)

	_, err = m.Stat("/watch/gone.fits")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewOSManagerReadsIgnoreFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("*.tmp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.fits"), []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.tmp"), []byte("s"), 0o644))

	m, err := NewOSManager(root, nil)
	require.NoError(t, err)

	snap, err := m.Walk(context.Background(), root, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "keep.fits")}, snap.Paths())

	st, err := m.Stat(filepath.Join(root, "keep.fits"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Size)
}
