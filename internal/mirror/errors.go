package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrBucketNotFound means the configured bucket does not exist. It is fatal.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrRetriesExhausted marks a transient transport failure that outlived the
	// transport's retry budget. Uploads failing this way are dead-lettered.
	ErrRetriesExhausted = errors.New("transport retries exhausted")

	// ErrClient marks a request the remote store rejected, such as an
	// authorization failure. It invalidates the current session.
	ErrClient = errors.New("remote store rejected request")

	// ErrWatchLimit means the OS refused further change notifications because a
	// kernel watch or instance limit was reached.
	ErrWatchLimit = errors.New("filesystem watch limit reached")
)

// Failure is a recoverable per-record failure carrying enough context to triage.
type Failure struct {
	Action string
	Path   string
	Bucket string
	Key    string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s (%s/%s): %v", f.Action, f.Path, f.Bucket, f.Key, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
