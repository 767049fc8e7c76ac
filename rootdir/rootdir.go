// Package rootdir rearranges the root directory of FAT12/16 volumes so that the
// system files are the first two entries, which the OEM-compatible boot code and
// the kernels it loads require.
package rootdir

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/bootsector"
	"github.com/dargueta/dossys/sectorcache"
	"github.com/sirupsen/logrus"
)

const (
	// AttrVolumeLabel marks the directory entry holding the volume label.
	AttrVolumeLabel = 0x08
	// AttrLongName is the attribute combination marking a VFAT long name entry.
	AttrLongName = 0x0F

	deletedMarker = 0xE5
	endMarker     = 0x00
)

// RawDirent is the on-disk representation of a directory entry.
type RawDirent struct {
	Name              bootsector.ShortName
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeMillis uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// IsFree reports whether the entry is unused, either because it was deleted or
// because it's past the end of the directory.
func (d *RawDirent) IsFree() bool {
	return d.Name[0] == deletedMarker || d.Name[0] == endMarker
}

// IsFile reports whether the entry describes a file or directory, as opposed to
// a volume label or a piece of a long name.
func (d *RawDirent) IsFile() bool {
	return !d.IsFree() &&
		d.AttributeFlags&AttrLongName != AttrLongName &&
		d.AttributeFlags&AttrVolumeLabel == 0
}

// Directory is the fixed-size root directory of a FAT12/16 volume.
type Directory struct {
	cache   *sectorcache.SectorCache
	entries int
}

// Open creates a view of the root directory described by `layout`. Nothing is
// read from the device until the directory is searched.
func Open(device dossys.SectorReadWriter, layout bootsector.Layout) (*Directory, error) {
	if layout.Variant == dossys.VariantFAT32 || layout.RootDirSectors == 0 {
		return nil, dossys.ErrNotSupported.WithMessage(
			"only FAT12 and FAT16 volumes have a fixed root directory")
	}

	return &Directory{
		cache: sectorcache.New(
			device, dossys.LBA(layout.RootSector), uint(layout.RootDirSectors)),
		entries: int(layout.BootSector.RootEntryCount),
	}, nil
}

// Entry decodes the directory entry at `index`.
func (dir *Directory) Entry(index int) (RawDirent, error) {
	var dirent RawDirent

	raw, err := dir.rawEntry(index)
	if err != nil {
		return dirent, err
	}

	err = binary.Read(bytes.NewReader(raw), binary.LittleEndian, &dirent)
	if err != nil {
		return dirent, dossys.ErrFileSystemCorrupted.Wrap(err)
	}
	return dirent, nil
}

func (dir *Directory) rawEntry(index int) ([]byte, error) {
	if index < 0 || index >= dir.entries {
		return nil, dossys.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("directory entry %d not in [0, %d)", index, dir.entries))
	}

	sector := uint(index * bootsector.DirentSize / dossys.SectorSize)
	data, err := dir.cache.Slice(sector, 1)
	if err != nil {
		return nil, err
	}

	offset := index * bootsector.DirentSize % dossys.SectorSize
	return data[offset : offset+bootsector.DirentSize], nil
}

// Find returns the index of the first file entry named `name`, or -1 if there is
// none. The search stops at the end-of-directory marker.
func (dir *Directory) Find(name bootsector.ShortName) (int, error) {
	for i := 0; i < dir.entries; i++ {
		dirent, err := dir.Entry(i)
		if err != nil {
			return -1, err
		}

		if dirent.Name[0] == endMarker {
			break
		}
		if dirent.IsFile() && dirent.Name == name {
			return i, nil
		}
	}
	return -1, nil
}

// Swap exchanges two directory entries. The change isn't written to the device
// until [Directory.Flush] is called.
func (dir *Directory) Swap(left, right int) error {
	if left == right {
		return nil
	}

	leftEntry, err := dir.rawEntry(left)
	if err != nil {
		return err
	}
	rightEntry, err := dir.rawEntry(right)
	if err != nil {
		return err
	}

	var scratch [bootsector.DirentSize]byte
	copy(scratch[:], leftEntry)
	copy(leftEntry, rightEntry)
	copy(rightEntry, scratch[:])

	err = dir.cache.MarkDirty(uint(left*bootsector.DirentSize/dossys.SectorSize), 1)
	if err != nil {
		return err
	}
	return dir.cache.MarkDirty(uint(right*bootsector.DirentSize/dossys.SectorSize), 1)
}

// Flush writes every modified sector of the directory back to the device.
func (dir *Directory) Flush() error {
	return dir.cache.Flush()
}

// Fixup makes `first` and `second` the first two entries of the root directory,
// swapping out whatever was there before. If either file can't be found, a
// warning is logged and the directory is left untouched.
func Fixup(
	device dossys.SectorReadWriter,
	layout bootsector.Layout,
	first, second bootsector.ShortName,
	log logrus.FieldLogger,
) error {
	dir, err := Open(device, layout)
	if err != nil {
		return err
	}

	firstIndex, err := dir.Find(first)
	if err != nil {
		return err
	}
	secondIndex, err := dir.Find(second)
	if err != nil {
		return err
	}

	if firstIndex < 0 || secondIndex < 0 {
		log.WithFields(logrus.Fields{
			"first":  first.String(),
			"second": second.String(),
		}).Warn("System files not found in root directory; it was not reordered")
		return nil
	}

	err = dir.Swap(0, firstIndex)
	if err != nil {
		return err
	}
	if secondIndex == 0 {
		secondIndex = firstIndex
	}
	err = dir.Swap(1, secondIndex)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"lba":    layout.RootSector,
		"first":  first.String(),
		"second": second.String(),
	}).Debug("root directory reordered")
	return dir.Flush()
}
