//go:build unix

package sectorio

import (
	"errors"
	"io"
	"os"

	"github.com/dargueta/dossys"
	"golang.org/x/sys/unix"
)

func lockRange(f *os.File, start, length int64) error {
	flock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(io.SeekStart),
		Start:  start,
		Len:    length,
	}

	err := unix.FcntlFlock(f.Fd(), lockCommand, &flock)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
		return dossys.ErrBusy.WithMessage(f.Name() + " is locked by another process")
	}
	if err != nil {
		return dossys.ErrDeviceIO.Wrap(err)
	}
	return nil
}

func unlockRange(f *os.File, start, length int64) error {
	flock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(io.SeekStart),
		Start:  start,
		Len:    length,
	}

	err := unix.FcntlFlock(f.Fd(), lockCommand, &flock)
	if err != nil {
		return dossys.ErrDeviceIO.Wrap(err)
	}
	return nil
}
