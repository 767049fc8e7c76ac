package dossys

import "fmt"

// SectorSize is the only sector size supported anywhere in this module.
const SectorSize = 512

// Sector is the contents of a single 512-byte sector. Boot sectors are always
// handled as values of this type so that a copy can never alias the buffer it
// was made from.
type Sector [SectorSize]byte

// LBA is a logical block address relative to the start of a volume.
type LBA uint32

// DriveID identifies a target volume the way DOS does: 0 is A:, 1 is B:, 2 is
// C: and so on. Drives 0 and 1 are floppy-class.
type DriveID int

// FloppyDriveCount is the number of drive letters reserved for floppies.
const FloppyDriveCount = 2

// IsFloppy reports whether the drive belongs to the floppy class. Floppy drives
// have no partition, so there is no authoritative geometry to query for them.
func (d DriveID) IsFloppy() bool {
	return d < FloppyDriveCount
}

// Letter returns the drive's DOS letter followed by a colon, e.g. "C:".
func (d DriveID) Letter() string {
	if d < 0 || d > 25 {
		return fmt.Sprintf("#%d:", int(d))
	}
	return string(rune('A'+int(d))) + ":"
}

func (d DriveID) String() string {
	return d.Letter()
}

// ParseDriveLetter converts "C", "c:" etc. into a DriveID.
func ParseDriveLetter(letter string) (DriveID, error) {
	if len(letter) == 2 && letter[1] == ':' {
		letter = letter[:1]
	}
	if len(letter) != 1 {
		return 0, ErrInvalidArgument.WithMessage(
			fmt.Sprintf("not a drive letter: %q", letter))
	}

	c := letter[0] | 0x20
	if c < 'a' || c > 'z' {
		return 0, ErrInvalidArgument.WithMessage(
			fmt.Sprintf("not a drive letter: %q", letter))
	}
	return DriveID(c - 'a'), nil
}

// GeometryFragment is the part of a BIOS parameter block that the platform can
// report authoritatively for a partitioned volume.
type GeometryFragment struct {
	SectorsPerTrack uint16
	Heads           uint16
	HiddenSectors   uint32
}

// SectorReader reads one sector at a time from a volume.
type SectorReader interface {
	ReadSector(lba LBA) (Sector, error)
}

// SectorWriter writes one sector at a time to a volume.
type SectorWriter interface {
	WriteSector(lba LBA, data *Sector) error
}

// SectorReadWriter combines SectorReader and SectorWriter.
type SectorReadWriter interface {
	SectorReader
	SectorWriter
}

// GeometryQuerier is implemented by devices that can report the geometry the
// platform believes the volume has. Implementations return an error wrapping
// [ErrNotSupported] when no such information exists.
type GeometryQuerier interface {
	QueryDefaultBPB(hint FileSystemVariant) (GeometryFragment, error)
}

// SectorDevice is the interface a volume must provide to have a boot sector
// installed on it.
type SectorDevice interface {
	SectorReadWriter
	GeometryQuerier

	// Drive returns the DOS drive this device stands for.
	Drive() DriveID

	// Lock acquires exclusive access to the volume. Until Unlock is called no
	// other cooperating process may touch it.
	Lock() error

	// Unlock releases the lock taken by Lock. Calling it without holding the
	// lock is an error.
	Unlock() error

	// HasLBASupport reports whether the firmware that will boot from this volume
	// supports LBA disk access.
	HasLBASupport() bool
}
