//go:build !linux

package sectorio

import (
	"os"

	"github.com/dargueta/dossys"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

func checkSectorSize(f *os.File) error {
	return nil
}

func flushBuffers(f *os.File) error {
	return nil
}

func findParentPartition(f *os.File) (*mbr.Partition, error) {
	return nil, dossys.ErrNotSupported.WithMessage(
		"finding the partition table of a block device isn't supported on this platform")
}
