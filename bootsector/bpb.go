// Package bootsector decodes the BIOS parameter block (BPB) of FAT boot sectors
// and computes the layout values needed to install new boot code on a volume.
package bootsector

import (
	"bytes"
	"encoding/binary"

	"github.com/dargueta/dossys"
)

// Byte offsets of fields within a boot sector.
const (
	OEMNameOffset          = 0x03
	OEMNameLength          = 8
	BPBOffset              = 0x0B
	SectorsPerTrackOffset  = 0x18
	HeadsOffset            = 0x1A
	HiddenSectorsOffset    = 0x1C
	DriveNumberOffsetFAT16 = 0x24
	BackupBootOffset       = 0x32
	DriveNumberOffsetFAT32 = 0x40
	KernelNameOffset       = 0x1F1
	KernelNameLength       = 11
	SignatureOffset        = 0x1FE
)

// The BPB proper starts right after the OEM name and ends where the boot code of
// the variant's templates begins.
const (
	bpbEndFAT16 = 0x3E
	bpbEndFAT32 = 0x5A
)

// DefaultBackupBootSector is the sector Microsoft formatters put the FAT32
// backup boot sector in.
const DefaultBackupBootSector = 6

// BPBSize returns the number of bytes, starting at [BPBOffset], that belong to
// the BPB of a volume of the given variant.
func BPBSize(variant dossys.FileSystemVariant) int {
	if variant == dossys.VariantFAT32 {
		return bpbEndFAT32 - BPBOffset
	}
	return bpbEndFAT16 - BPBOffset
}

// DriveNumberOffset returns the offset of the BIOS drive number field for the
// given variant.
func DriveNumberOffset(variant dossys.FileSystemVariant) int {
	if variant == dossys.VariantFAT32 {
		return DriveNumberOffsetFAT32
	}
	return DriveNumberOffsetFAT16
}

// RawBPB is the on-disk representation of the part of the boot sector common to
// all FAT versions.
type RawBPB struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

// RawFAT16Extension is the extended BPB found after [RawBPB] on FAT12 and FAT16
// volumes.
type RawFAT16Extension struct {
	DriveNumber    uint8
	Reserved1      uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

// RawFAT32Extension is the extended BPB found after [RawBPB] on FAT32 volumes.
type RawFAT32Extension struct {
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	Reserved         [12]byte
	DriveNumber      uint8
	Reserved1        uint8
	BootSignature    uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	FileSystemType   [8]byte
}

// BootSector is a decoded boot sector. Both extensions are always decoded since
// they overlap; which one is meaningful depends on the variant, which can only be
// determined after the common part has been read.
type BootSector struct {
	RawBPB
	FAT16 RawFAT16Extension
	FAT32 RawFAT32Extension
}

// Parse decodes the BPB of a boot sector. It never fails on well-formed input
// since every field is fixed-size; validation is left to [Analyze].
func Parse(image *dossys.Sector) (*BootSector, error) {
	bs := BootSector{}
	reader := bytes.NewReader(image[:])

	err := binary.Read(reader, binary.LittleEndian, &bs.RawBPB)
	if err != nil {
		return nil, dossys.ErrFileSystemCorrupted.Wrap(err)
	}

	extensionStart := binary.Size(bs.RawBPB)

	err = binary.Read(
		bytes.NewReader(image[extensionStart:]), binary.LittleEndian, &bs.FAT16)
	if err != nil {
		return nil, dossys.ErrFileSystemCorrupted.Wrap(err)
	}

	err = binary.Read(
		bytes.NewReader(image[extensionStart:]), binary.LittleEndian, &bs.FAT32)
	if err != nil {
		return nil, dossys.ErrFileSystemCorrupted.Wrap(err)
	}
	return &bs, nil
}

// TotalSectors returns the number of sectors in the volume, falling back to the
// 32-bit field when the 16-bit one is zero.
func (bs *BootSector) TotalSectors() uint32 {
	if bs.TotalSectors16 != 0 {
		return uint32(bs.TotalSectors16)
	}
	return bs.TotalSectors32
}

// SectorsPerFAT returns the size of one FAT, falling back to the FAT32 field when
// the 16-bit one is zero.
func (bs *BootSector) SectorsPerFAT() uint32 {
	if bs.SectorsPerFAT16 != 0 {
		return uint32(bs.SectorsPerFAT16)
	}
	return bs.FAT32.SectorsPerFAT32
}

// Geometry returns the sectors per track, heads, and hidden sectors recorded in
// the BPB.
func (bs *BootSector) Geometry() dossys.GeometryFragment {
	return dossys.GeometryFragment{
		SectorsPerTrack: bs.SectorsPerTrack,
		Heads:           bs.NumHeads,
		HiddenSectors:   bs.HiddenSectors,
	}
}
