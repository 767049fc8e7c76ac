//go:build !(linux || darwin || freebsd)

package sysfiles

// freeSpace can't determine the free space on this platform; the copy is
// attempted regardless.
func freeSpace(dir string) (uint64, bool, error) {
	return 0, false, nil
}
