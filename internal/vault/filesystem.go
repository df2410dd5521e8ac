package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fswatcher/internal/mirror"
)

// FileSystemStore is a filesystem-based implementation of the ObjectStore
// interface, mirroring into a local directory (for example a mounted share).
// Objects and their tags are stored as files:
//
//	<root>/
//	  objects/
//	    <key>          (object content)
//	  tags/
//	    <key>.tags     (URL-encoded tag string)
type FileSystemStore struct {
	root       string
	objectsDir string
	tagsDir    string
}

// NewFileSystemStore creates a store rooted at root. The root itself must
// exist; it plays the part of the bucket.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", mirror.ErrBucketNotFound, root)
		}
		return nil, fmt.Errorf("checking store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root is not a directory: %s", root)
	}

	objectsDir := filepath.Join(root, "objects")
	tagsDir := filepath.Join(root, "tags")
	if err := os.MkdirAll(objectsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create objects directory: %w", err)
	}
	if err := os.MkdirAll(tagsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tags directory: %w", err)
	}

	return &FileSystemStore{root: root, objectsDir: objectsDir, tagsDir: tagsDir}, nil
}

// Put writes the object and its tags. Both writes are atomic renames.
func (v *FileSystemStore) Put(_ context.Context, key string, body io.Reader, tags string) error {
	objPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	if err := v.writeFile(objPath, body); err != nil {
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := v.writeFile(v.tagsPath(key), strings.NewReader(tags)); err != nil {
		return fmt.Errorf("writing tags for %s: %w", key, err)
	}
	return nil
}

// Delete removes the object and its tags. Missing keys are not an error.
func (v *FileSystemStore) Delete(_ context.Context, key string) error {
	objPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	for _, p := range []string{objPath, v.tagsPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return nil
}

// List returns the sorted keys under prefix.
func (v *FileSystemStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(v.objectsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(v.objectsDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (v *FileSystemStore) Exists(_ context.Context, key string) (bool, error) {
	objPath, err := v.objectPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(objPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return true, nil
}

// Tags returns the tag string stored for key.
func (v *FileSystemStore) Tags(key string) (string, error) {
	data, err := os.ReadFile(v.tagsPath(key))
	if err != nil {
		return "", fmt.Errorf("reading tags for %s: %w", key, err)
	}
	return string(data), nil
}

// objectPath maps key into the objects directory, refusing keys that escape it.
func (v *FileSystemStore) objectPath(key string) (string, error) {
	p := filepath.Join(v.objectsDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, v.objectsDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid key %q", mirror.ErrClient, key)
	}
	return p, nil
}

func (v *FileSystemStore) tagsPath(key string) string {
	return filepath.Join(v.tagsDir, filepath.FromSlash(key)+".tags")
}

// writeFile writes r to destPath through a temp file and an atomic rename.
func (v *FileSystemStore) writeFile(destPath string, r io.Reader) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements mirror.ObjectStore interface
var _ mirror.ObjectStore = (*FileSystemStore)(nil)
