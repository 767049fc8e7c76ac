// Package sectorio provides access to volumes stored in image files or on block
// devices, one sector at a time.
package sectorio

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dargueta/dossys"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/sirupsen/logrus"
)

// MaxFloppyImageSize is the size of the largest floppy format DOS knows of, the
// 2.88 MB ED disk. Unpartitioned targets no larger than this are treated as
// floppy drive A: unless told otherwise.
const MaxFloppyImageSize = 2949120

// Target identifies the volume to operate on.
type Target struct {
	// Path is the image file or block device containing the volume.
	Path string
	// Partition is the 1-based number of the MBR primary partition holding the
	// volume. 0 means the volume occupies the whole of Path.
	Partition int
	// Drive is the DOS drive the volume is going to be. Only meaningful if
	// DriveSet is true; otherwise it's inferred from the target's size.
	Drive    dossys.DriveID
	DriveSet bool
}

// ParseTarget splits a target of the form "path" or "path@N", where N selects
// an MBR primary partition.
func ParseTarget(value string) (Target, error) {
	if value == "" {
		return Target{}, dossys.ErrInvalidArgument.WithMessage("no target given")
	}

	at := strings.LastIndexByte(value, '@')
	if at < 0 {
		return Target{Path: value}, nil
	}

	partition, err := strconv.Atoi(value[at+1:])
	if err != nil || partition < 1 || partition > 4 {
		return Target{}, dossys.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid partition number in %q; must be 1-4", value))
	}
	return Target{Path: value[:at], Partition: partition}, nil
}

func (t Target) String() string {
	if t.Partition == 0 {
		return t.Path
	}
	return fmt.Sprintf("%s@%d", t.Path, t.Partition)
}

// FileDevice is a [dossys.SectorDevice] on top of an image file or a block
// device, optionally restricted to one of its MBR partitions.
type FileDevice struct {
	file         *os.File
	target       Target
	drive        dossys.DriveID
	offset       int64
	totalSectors uint32
	partition    *mbr.Partition
	blockDevice  bool
	locked       bool
	log          logrus.FieldLogger
}

var _ dossys.SectorDevice = (*FileDevice)(nil)

// Open opens the target for reading and writing.
func Open(target Target, log logrus.FieldLogger) (*FileDevice, error) {
	file, err := os.OpenFile(target.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	device, err := newFileDevice(file, target, log)
	if err != nil {
		file.Close()
		return nil, err
	}
	return device, nil
}

func newFileDevice(file *os.File, target Target, log logrus.FieldLogger) (*FileDevice, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	device := &FileDevice{
		file:   file,
		target: target,
		log:    log.WithField("target", target.String()),
	}

	size := stat.Size()
	if stat.Mode()&os.ModeDevice != 0 {
		device.blockDevice = true
		err = checkSectorSize(file)
		if err != nil {
			return nil, err
		}
		// Block devices report a size of 0 through stat.
		size, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, err
		}
	}

	if target.Partition == 0 {
		device.totalSectors = uint32(size / dossys.SectorSize)
	} else {
		table, err := mbr.Read(file, dossys.SectorSize, dossys.SectorSize)
		if err != nil {
			return nil, dossys.ErrFileSystemCorrupted.Wrap(err)
		}

		partition := table.Partitions[target.Partition-1]
		if partition.Type == mbr.Empty || partition.Size == 0 {
			return nil, dossys.ErrNotFound.WithMessage(
				fmt.Sprintf("partition %d of %s is empty", target.Partition, target.Path))
		}

		end := (int64(partition.Start) + int64(partition.Size)) * dossys.SectorSize
		if end > size {
			return nil, dossys.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"partition %d ends at byte %d, past the end of %s (%d bytes)",
					target.Partition,
					end,
					target.Path,
					size))
		}

		device.partition = partition
		device.offset = int64(partition.Start) * dossys.SectorSize
		device.totalSectors = partition.Size
	}

	if device.totalSectors == 0 {
		return nil, dossys.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s is smaller than a sector", target.String()))
	}

	switch {
	case target.DriveSet:
		device.drive = target.Drive
	case target.Partition == 0 && size <= MaxFloppyImageSize:
		device.drive = 0
	default:
		device.drive = dossys.FloppyDriveCount
	}

	device.log.WithFields(logrus.Fields{
		"drive":   device.drive.Letter(),
		"sectors": device.totalSectors,
		"offset":  device.offset,
	}).Debug("opened target")
	return device, nil
}

// Close releases the lock, if held, and closes the underlying file.
func (d *FileDevice) Close() error {
	if d.locked {
		err := d.Unlock()
		if err != nil {
			d.file.Close()
			return err
		}
	}
	return d.file.Close()
}

func (d *FileDevice) Drive() dossys.DriveID {
	return d.drive
}

// TotalSectors returns the size of the volume, in sectors.
func (d *FileDevice) TotalSectors() uint32 {
	return d.totalSectors
}

func (d *FileDevice) checkBounds(lba dossys.LBA) error {
	if uint32(lba) >= d.totalSectors {
		return dossys.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector %d not in [0, %d)", lba, d.totalSectors))
	}
	return nil
}

func (d *FileDevice) ReadSector(lba dossys.LBA) (dossys.Sector, error) {
	var data dossys.Sector

	err := d.checkBounds(lba)
	if err != nil {
		return data, err
	}

	_, err = d.file.ReadAt(data[:], d.offset+int64(lba)*dossys.SectorSize)
	if err != nil {
		return data, dossys.ErrDeviceIO.Wrap(err)
	}
	return data, nil
}

func (d *FileDevice) WriteSector(lba dossys.LBA, data *dossys.Sector) error {
	err := d.checkBounds(lba)
	if err != nil {
		return err
	}

	_, err = d.file.WriteAt(data[:], d.offset+int64(lba)*dossys.SectorSize)
	if err != nil {
		return dossys.ErrDeviceIO.Wrap(err)
	}
	return nil
}

// Lock takes an advisory write lock on the byte range of the volume. It fails
// immediately with [dossys.ErrBusy] if another process holds a conflicting lock.
func (d *FileDevice) Lock() error {
	if d.locked {
		return dossys.ErrBusy.WithMessage("volume is already locked")
	}

	err := lockRange(d.file, d.offset, int64(d.totalSectors)*dossys.SectorSize)
	if err != nil {
		return err
	}
	d.locked = true
	return nil
}

// Unlock flushes everything written to the volume and releases the lock.
func (d *FileDevice) Unlock() error {
	if !d.locked {
		return dossys.ErrInvalidArgument.WithMessage("volume is not locked")
	}

	syncErr := d.file.Sync()
	if syncErr == nil && d.blockDevice {
		syncErr = flushBuffers(d.file)
	}

	err := unlockRange(d.file, d.offset, int64(d.totalSectors)*dossys.SectorSize)
	if err != nil {
		return err
	}
	d.locked = false

	if syncErr != nil {
		return dossys.ErrDeviceIO.Wrap(syncErr)
	}
	return nil
}

// HasLBASupport always returns true. A hosted installer has no way of asking the
// BIOS of the machine that will eventually boot the volume.
func (d *FileDevice) HasLBASupport() bool {
	return true
}

// QueryDefaultBPB returns the geometry recorded in the partition table entry of
// the volume. For unpartitioned block devices the partition table of the parent
// disk is consulted, where the platform has a way of finding it.
func (d *FileDevice) QueryDefaultBPB(
	hint dossys.FileSystemVariant,
) (dossys.GeometryFragment, error) {
	partition := d.partition
	if partition == nil && d.blockDevice {
		found, err := findParentPartition(d.file)
		if err != nil {
			return dossys.GeometryFragment{}, err
		}
		partition = found
	}

	if partition == nil {
		return dossys.GeometryFragment{}, dossys.ErrNotSupported.WithMessage(
			fmt.Sprintf("%s isn't a partition", d.target.String()))
	}

	geometry, err := GeometryFromPartition(partition)
	if err != nil {
		return geometry, err
	}

	d.log.WithFields(logrus.Fields{
		"variant":           hint.String(),
		"heads":             geometry.Heads,
		"sectors_per_track": geometry.SectorsPerTrack,
		"hidden_sectors":    geometry.HiddenSectors,
	}).Debug("geometry from partition table")
	return geometry, nil
}

// GeometryFromPartition derives the geometry of a disk from the CHS address of
// the last sector of one of its partitions. Partitioning tools end partitions on
// a cylinder boundary, so that address holds the highest head and sector
// numbers.
func GeometryFromPartition(partition *mbr.Partition) (dossys.GeometryFragment, error) {
	sectorsPerTrack := uint16(partition.EndSector & 0x3F)
	if sectorsPerTrack == 0 {
		return dossys.GeometryFragment{}, dossys.ErrNotSupported.WithMessage(
			"partition table entry has no CHS geometry")
	}

	return dossys.GeometryFragment{
		SectorsPerTrack: sectorsPerTrack,
		Heads:           uint16(partition.EndHead) + 1,
		HiddenSectors:   partition.Start,
	}, nil
}
