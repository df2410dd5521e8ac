package mirror

import (
	"context"
	"io"
	"time"
)

// FileStat is the subset of stat(2) fields attached to uploaded objects.
type FileStat struct {
	Mode  uint32
	Inode uint64
	UID   uint32
	GID   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// FileSystem is the local side of the mirror.
// Open and Stat return errors satisfying errors.Is(err, fs.ErrNotExist) for
// files that have vanished.
type FileSystem interface {
	Open(path string) (io.ReadCloser, error)
	Stat(path string) (*FileStat, error)

	// Walk returns every regular, non-ignored file under root. If since is
	// non-zero only files modified after it are returned.
	Walk(ctx context.Context, root string, since time.Time) (Snapshot, error)
}
