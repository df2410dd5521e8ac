package mirror

import (
	"context"
	"io"
)

// ObjectStore is the remote object store files are mirrored into.
// Implementations wrap transport failures with ErrRetriesExhausted and
// rejected requests with ErrClient so the pipeline can route them.
type ObjectStore interface {
	// Put uploads body under key with the URL-encoded tag string attached.
	// Put overwrites existing objects.
	Put(ctx context.Context, key string, body io.Reader, tags string) error

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
