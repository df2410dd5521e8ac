package fs

import (
	"bufio"
	"errors"
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"fswatcher/internal/mirror"
)

// IgnoreFileName is the per-root ignore file, read from the top of the watch root.
const IgnoreFileName = ".fswatcherignore"

// defaultIgnorePatterns are always applied: the ignore file itself, the
// process log, and temp files written by atomic-rename writers.
var defaultIgnorePatterns = []string{IgnoreFileName, mirror.DefaultLogFileName, ".tmp-*"}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// IgnoreMatcher checks paths relative to the watch root against ignore patterns.
// Patterns without '/' match the basename; patterns with '/' match the relative path.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

var _ mirror.PathMatcher = (*IgnoreMatcher)(nil)

// NewIgnoreMatcher creates an IgnoreMatcher from the default patterns plus
// rawPatterns. Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range append(append([]string{}, defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether relativePath should be ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		target := basename
		if p.matchPath {
			target = normalized
		}
		// Malformed patterns never match.
		if ok, err := filepath.Match(p.pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads raw patterns from path on fsys.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
