package sectorio

import "golang.org/x/sys/unix"

// Open file description locks belong to the file handle rather than the
// process, so closing some other handle to the same file (e.g. an output file
// that happens to be the image) doesn't drop the lock.
const lockCommand = unix.F_OFD_SETLK
