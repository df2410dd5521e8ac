package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"fswatcher/internal/mirror"
)

// Manager is the afero-backed implementation of mirror.FileSystem.
type Manager struct {
	fs     afero.Fs
	ignore *IgnoreMatcher
}

var _ mirror.FileSystem = (*Manager)(nil)

// NewManager creates a Manager over fsys that skips paths matching ignore.
func NewManager(fsys afero.Fs, ignore []string) *Manager {
	return &Manager{fs: fsys, ignore: NewIgnoreMatcher(ignore)}
}

// NewOSManager creates a Manager on the real filesystem. Patterns from the
// watch root's ignore file are added to ignore.
func NewOSManager(watchRoot string, ignore []string) (*Manager, error) {
	fsys := afero.NewOsFs()
	extra, err := ParseIgnoreFile(fsys, filepath.Join(watchRoot, IgnoreFileName))
	if err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return NewManager(fsys, append(append([]string{}, ignore...), extra...)), nil
}

// Matcher returns the ignore rules Walk applies, including the ignore file's.
func (m *Manager) Matcher() *IgnoreMatcher {
	return m.ignore
}

// Open opens a regular file for reading.
func (m *Manager) Open(path string) (io.ReadCloser, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return f, nil
}

// Stat returns the stat fields used for object tags.
func (m *Manager) Stat(path string) (*mirror.FileStat, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	return statFromInfo(info), nil
}

// Walk lists regular files under root with their modification times. Files
// that vanish mid-walk are skipped; ignored directories are not descended.
func (m *Manager) Walk(ctx context.Context, root string, since time.Time) (mirror.Snapshot, error) {
	snap := make(mirror.Snapshot)
	err := afero.Walk(m.fs, root, func(p string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p != root && errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		if info.IsDir() {
			if p != root && m.ignore.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || m.ignore.Match(rel) {
			return nil
		}
		if !since.IsZero() && !info.ModTime().After(since) {
			return nil
		}
		snap[p] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return snap, nil
}

// unixMode converts a FileMode to st_mode bits.
func unixMode(mode iofs.FileMode) uint32 {
	bits := uint32(mode.Perm())
	switch {
	case mode.IsDir():
		bits |= 0o040000
	case mode&iofs.ModeSymlink != 0:
		bits |= 0o120000
	case mode.IsRegular():
		bits |= 0o100000
	}
	return bits
}

// genericStat fills what FileInfo alone provides.
func genericStat(info iofs.FileInfo) *mirror.FileStat {
	return &mirror.FileStat{
		Mode:  unixMode(info.Mode()),
		Size:  info.Size(),
		Atime: info.ModTime(),
		Mtime: info.ModTime(),
		Ctime: info.ModTime(),
	}
}
