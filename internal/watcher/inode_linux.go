//go:build linux

package watcher

import (
	iofs "io/fs"
	"syscall"
)

// inodeOf returns the inode number behind info, or 0 if it is unknown.
func inodeOf(info iofs.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Ino)
	}
	return 0
}
