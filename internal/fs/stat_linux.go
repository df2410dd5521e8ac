//go:build linux

package fs

import (
	iofs "io/fs"
	"syscall"
	"time"

	"fswatcher/internal/mirror"
)

// statFromInfo extracts inode, ownership and timestamps when the FileInfo
// comes from the OS; in-memory filesystems fall back to genericStat.
func statFromInfo(info iofs.FileInfo) *mirror.FileStat {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return genericStat(info)
	}
	return &mirror.FileStat{
		Mode:  uint32(st.Mode),
		Inode: uint64(st.Ino),
		UID:   st.Uid,
		GID:   st.Gid,
		Size:  info.Size(),
		Atime: time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec)),
		Mtime: info.ModTime(),
		Ctime: time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec)),
	}
}
