package mirror

import (
	"path/filepath"
	"strings"
)

// DefaultLogFileName is the process log file; events on it are never mirrored.
const DefaultLogFileName = "fswatcher.log"

// InFlightChecker reports whether an equivalent record is already pending.
type InFlightChecker interface {
	Contains(key RecordKey) bool
}

// PathMatcher reports whether a path relative to the watch root is ignored.
type PathMatcher interface {
	Match(relativePath string) bool
}

// Classifier turns raw notifications into change records for one watch root.
// It has no side effects; the caller owns insertion into the in-flight set.
type Classifier struct {
	watchRoot string
	ignore    PathMatcher
}

// NewClassifier creates a Classifier. ignore should be the matcher the walker
// uses so push and pull detection skip the same paths; it may be nil.
// DefaultLogFileName is always ignored.
func NewClassifier(watchRoot string, ignore PathMatcher) *Classifier {
	return &Classifier{watchRoot: watchRoot, ignore: ignore}
}

// Classify returns the change record for ev, or false if the event carries no
// mirroring work or an equivalent record is already in flight.
func (c *Classifier) Classify(ev RawEvent, inFlight InFlightChecker) (*ChangeRecord, bool) {
	if ev.IsDir {
		return nil, false
	}
	// Moves are filtered on their destination.
	target := ev.Path
	if ev.Op == OpMoved {
		target = ev.DestPath
	}
	if c.ignored(target) {
		return nil, false
	}

	rec := &ChangeRecord{SourcePath: ev.Path, WatchRoot: c.watchRoot}
	switch ev.Op {
	case OpCreated:
		rec.Kind = KindCreate
	case OpModified:
		rec.Kind = KindUpdate
	case OpMoved:
		if ev.DestPath == "" {
			return nil, false
		}
		rec.Kind = KindMove
		rec.DestPath = ev.DestPath
	case OpDeleted:
		rec.Kind = KindDelete
	default:
		return nil, false
	}

	if inFlight != nil && inFlight.Contains(rec.Key()) {
		return nil, false
	}
	return rec, true
}

// ignored applies the matcher to the path and to each parent directory, since
// a walk never descends into an ignored directory.
func (c *Classifier) ignored(path string) bool {
	if filepath.Base(path) == DefaultLogFileName {
		return true
	}
	if c.ignore == nil {
		return false
	}
	rel, err := filepath.Rel(c.watchRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := range parts {
		if c.ignore.Match(strings.Join(parts[:i+1], "/")) {
			return true
		}
	}
	return false
}
