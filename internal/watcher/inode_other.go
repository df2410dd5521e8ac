//go:build !linux

package watcher

import iofs "io/fs"

// inodeOf reports no inode, so renames are never paired and surface as a
// delete followed by a create.
func inodeOf(iofs.FileInfo) uint64 { return 0 }
