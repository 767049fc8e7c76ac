//go:build unix && !linux

package sectorio

import "golang.org/x/sys/unix"

const lockCommand = unix.F_SETLK
