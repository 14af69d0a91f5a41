package util

import (
	"syscall"
)

// AvailableBytes reports the free disk space for the filesystem containing
// the given path, as seen by an unprivileged caller.
func AvailableBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
