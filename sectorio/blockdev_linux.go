package sectorio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dargueta/dossys"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"golang.org/x/sys/unix"
)

func checkSectorSize(f *os.File) error {
	sectorSize, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return dossys.ErrDeviceIO.Wrap(fmt.Errorf("unable to get device logical sector size: %w", err))
	}
	if sectorSize != dossys.SectorSize {
		return dossys.ErrUnsupportedSectorSize.WithMessage(
			fmt.Sprintf("%s has %d-byte sectors", f.Name(), sectorSize))
	}
	return nil
}

// flushBuffers drops the kernel's buffer cache for the device, so that nothing
// reads back stale boot sector contents.
func flushBuffers(f *os.File) error {
	return unix.IoctlSetInt(int(f.Fd()), unix.BLKFLSBUF, 0)
}

// findParentPartition looks up the partition table entry of a partition block
// device, e.g. /dev/sda1, in the MBR of its disk.
func findParentPartition(f *os.File) (*mbr.Partition, error) {
	var stat unix.Stat_t
	err := unix.Fstat(int(f.Fd()), &stat)
	if err != nil {
		return nil, dossys.ErrDeviceIO.Wrap(err)
	}

	sysPath, err := filepath.EvalSymlinks(
		fmt.Sprintf(
			"/sys/dev/block/%d:%d",
			unix.Major(uint64(stat.Rdev)),
			unix.Minor(uint64(stat.Rdev))))
	if err != nil {
		return nil, dossys.ErrNotSupported.Wrap(err)
	}

	_, err = os.Stat(filepath.Join(sysPath, "partition"))
	if err != nil {
		return nil, dossys.ErrNotSupported.WithMessage(f.Name() + " is a whole disk, not a partition")
	}

	rawStart, err := os.ReadFile(filepath.Join(sysPath, "start"))
	if err != nil {
		return nil, dossys.ErrNotSupported.Wrap(err)
	}
	start, err := strconv.ParseUint(strings.TrimSpace(string(rawStart)), 10, 32)
	if err != nil {
		return nil, dossys.ErrNotSupported.Wrap(err)
	}

	diskPath := filepath.Join("/dev", filepath.Base(filepath.Dir(sysPath)))
	disk, err := os.Open(diskPath)
	if err != nil {
		return nil, dossys.ErrNotSupported.Wrap(err)
	}
	defer disk.Close()

	table, err := mbr.Read(disk, dossys.SectorSize, dossys.SectorSize)
	if err != nil {
		return nil, dossys.ErrNotSupported.Wrap(err)
	}

	for _, partition := range table.Partitions {
		if partition.Type != mbr.Empty && partition.Start == uint32(start) {
			return partition, nil
		}
	}
	return nil, dossys.ErrNotFound.WithMessage(
		fmt.Sprintf("no entry in the partition table of %s starts at sector %d", diskPath, start))
}
