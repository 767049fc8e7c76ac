//go:build linux || darwin || freebsd

package sysfiles

import "golang.org/x/sys/unix"

// freeSpace returns the number of bytes available to unprivileged users on the
// file system containing `dir`.
func freeSpace(dir string) (uint64, bool, error) {
	var stat unix.Statfs_t
	err := unix.Statfs(dir, &stat)
	if err != nil {
		return 0, false, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), true, nil
}
