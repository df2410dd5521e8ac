//go:build !linux

package fs

import (
	iofs "io/fs"

	"fswatcher/internal/mirror"
)

func statFromInfo(info iofs.FileInfo) *mirror.FileStat {
	return genericStat(info)
}
