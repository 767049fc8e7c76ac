// Package testing contains helpers shared by the tests of several packages:
// synthetic boot sectors, in-memory devices, and disk image files.
package testing

import (
	"encoding/binary"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/bootsector"
	"github.com/noxer/bytewriter"
)

var _ dossys.SectorDevice = (*MemoryDevice)(nil)

// BootCodeFiller is the byte used to fill the boot code area of synthetic boot
// sectors, so tests can tell whether template code replaced it.
const BootCodeFiller = 0xCC

// VolumeParams describes a synthetic FAT volume.
type VolumeParams struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	Media             uint8
	SectorsPerFAT     uint32
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	DriveNumber       uint8
	VolumeID          uint32
	VolumeLabel       string

	// FAT32 selects the FAT32 extended BPB.
	FAT32            bool
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
}

// FAT12Floppy returns the parameters of a standard 1.44 MB floppy.
func FAT12Floppy() VolumeParams {
	return VolumeParams{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    224,
		TotalSectors:      2880,
		Media:             0xF0,
		SectorsPerFAT:     9,
		SectorsPerTrack:   18,
		Heads:             2,
		VolumeID:          0x1234ABCD,
		VolumeLabel:       "FLOPPY",
	}
}

// FAT16Partition returns the parameters of a 100 MB FAT16 primary partition.
func FAT16Partition() VolumeParams {
	return VolumeParams{
		BytesPerSector:    512,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    512,
		TotalSectors:      204800,
		Media:             0xF8,
		SectorsPerFAT:     200,
		SectorsPerTrack:   63,
		Heads:             255,
		HiddenSectors:     63,
		DriveNumber:       0x80,
		VolumeID:          0x0BADF00D,
		VolumeLabel:       "HARDDISK",
	}
}

// FAT32Partition returns the parameters of a 2 GiB FAT32 primary partition.
func FAT32Partition() VolumeParams {
	return VolumeParams{
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumFATs:           2,
		RootEntryCount:    0,
		TotalSectors:      4194304,
		Media:             0xF8,
		SectorsPerFAT:     4088,
		SectorsPerTrack:   63,
		Heads:             255,
		HiddenSectors:     2048,
		DriveNumber:       0x80,
		VolumeID:          0xFEEDFACE,
		VolumeLabel:       "BIGDISK",
		FAT32:             true,
		RootCluster:       2,
		FSInfoSector:      1,
		BackupBootSector:  6,
	}
}

func paddedArray11(s string) [11]byte {
	var out [11]byte
	copy(out[:], "           ")
	copy(out[:], s)
	return out
}

func paddedArray8(s string) [8]byte {
	var out [8]byte
	copy(out[:], "        ")
	copy(out[:], s)
	return out
}

// BootSector encodes the parameters into a boot sector the way a formatter
// would, with the boot code area filled with [BootCodeFiller].
func (p VolumeParams) BootSector() dossys.Sector {
	var image dossys.Sector
	for i := range image {
		image[i] = BootCodeFiller
	}

	raw := bootsector.RawBPB{
		OEMName:           paddedArray8("MSWIN4.1"),
		BytesPerSector:    p.BytesPerSector,
		SectorsPerCluster: p.SectorsPerCluster,
		ReservedSectors:   p.ReservedSectors,
		NumFATs:           p.NumFATs,
		RootEntryCount:    p.RootEntryCount,
		Media:             p.Media,
		SectorsPerTrack:   p.SectorsPerTrack,
		NumHeads:          p.Heads,
		HiddenSectors:     p.HiddenSectors,
	}
	if p.TotalSectors < 0x10000 && !p.FAT32 {
		raw.TotalSectors16 = uint16(p.TotalSectors)
	} else {
		raw.TotalSectors32 = p.TotalSectors
	}

	writer := bytewriter.New(image[:])
	if p.FAT32 {
		raw.JmpBoot = [3]byte{0xEB, 0x58, 0x90}
		binary.Write(writer, binary.LittleEndian, raw)
		binary.Write(writer, binary.LittleEndian, bootsector.RawFAT32Extension{
			SectorsPerFAT32:  p.SectorsPerFAT,
			RootCluster:      p.RootCluster,
			FSInfoSector:     p.FSInfoSector,
			BackupBootSector: p.BackupBootSector,
			DriveNumber:      p.DriveNumber,
			BootSignature:    0x29,
			VolumeID:         p.VolumeID,
			VolumeLabel:      paddedArray11(p.VolumeLabel),
			FileSystemType:   paddedArray8("FAT32"),
		})
	} else {
		raw.JmpBoot = [3]byte{0xEB, 0x3C, 0x90}
		raw.SectorsPerFAT16 = uint16(p.SectorsPerFAT)
		fsType := "FAT16"
		if p.TotalSectors < 32680 {
			fsType = "FAT12"
		}
		binary.Write(writer, binary.LittleEndian, raw)
		binary.Write(writer, binary.LittleEndian, bootsector.RawFAT16Extension{
			DriveNumber:    p.DriveNumber,
			BootSignature:  0x29,
			VolumeID:       p.VolumeID,
			VolumeLabel:    paddedArray11(p.VolumeLabel),
			FileSystemType: paddedArray8(fsType),
		})
	}

	image[bootsector.SignatureOffset] = 0x55
	image[bootsector.SignatureOffset+1] = 0xAA
	return image
}
