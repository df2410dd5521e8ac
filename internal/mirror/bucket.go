package mirror

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BucketSpec is a parsed "<bucket>[/<prefix>]" string.
// Prefix is empty or ends with a single "/".
type BucketSpec struct {
	Name   string
	Prefix string
}

// ParseBucketSpec splits a bucket specification into bucket name and folder prefix.
func ParseBucketSpec(s string) (BucketSpec, error) {
	s = strings.TrimSpace(s)
	name, prefix, _ := strings.Cut(s, "/")
	if name == "" {
		return BucketSpec{}, fmt.Errorf("invalid bucket specification %q: missing bucket name", s)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return BucketSpec{Name: name, Prefix: prefix}, nil
}

func (b BucketSpec) String() string {
	if b.Prefix == "" {
		return b.Name
	}
	return b.Name + "/" + strings.TrimSuffix(b.Prefix, "/")
}

// RemoteKey derives the object key for a local path: the watch root is
// stripped, then a single leading separator, then the folder prefix is prepended.
func (b BucketSpec) RemoteKey(path, watchRoot string) string {
	rel := filepath.ToSlash(path)
	root := strings.TrimSuffix(filepath.ToSlash(watchRoot), "/")
	if root != "" && (rel == root || strings.HasPrefix(rel, root+"/")) {
		rel = strings.TrimPrefix(rel, root)
	}
	rel = strings.TrimPrefix(rel, "/")
	return b.Prefix + rel
}

// LocalPath maps an object key back to the local path it would have been
// uploaded from. Keys outside the prefix map to the watch root joined with the
// whole key.
func (b BucketSpec) LocalPath(key, watchRoot string) string {
	rel := strings.TrimPrefix(key, b.Prefix)
	return filepath.Join(watchRoot, filepath.FromSlash(rel))
}
