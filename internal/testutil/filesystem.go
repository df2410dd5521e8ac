package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"fswatcher/internal/fs"
)

// MemFS is an in-memory watch tree and the mirror.FileSystem over it.
type MemFS struct {
	Fs      afero.Fs
	Manager *fs.Manager
}

// NewMemFS creates an empty in-memory filesystem.
func NewMemFS(ignore ...string) *MemFS {
	fsys := afero.NewMemMapFs()
	return &MemFS{Fs: fsys, Manager: fs.NewManager(fsys, ignore)}
}

// WriteFile creates path with content and sets its mtime.
func (m *MemFS) WriteFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := m.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(m.Fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := m.Fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting times on %s: %v", path, err)
	}
}

// Remove deletes path.
func (m *MemFS) Remove(t *testing.T, path string) {
	t.Helper()
	if err := m.Fs.Remove(path); err != nil {
		t.Fatalf("removing %s: %v", path, err)
	}
}
