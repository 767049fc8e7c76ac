package bootsector

import (
	"fmt"

	"github.com/dargueta/dossys"
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// Layout is everything the later stages need to know about a volume. It is
// computed once from the boot sector read off the volume and then passed along
// unchanged.
type Layout struct {
	Variant dossys.FileSystemVariant
	// RootSector is the first sector of the root directory on FAT12/16, or the
	// first data sector on FAT32.
	RootSector uint32
	// RootDirSectors is the number of sectors taken up by the fixed-size root
	// directory. It's 0 on FAT32.
	RootDirSectors uint32
	Clusters       uint32
	BootSector     *BootSector
}

// Classify determines the version of the FAT file system from the number of
// clusters on the volume. This is the only proper way to do so.
func Classify(clusters uint32) dossys.FileSystemVariant {
	// These cluster counts, while odd-looking, are correct. They're taken directly
	// from Microsoft's FAT documentation, v1.03, page 14.
	if clusters < 4085 {
		return dossys.VariantFAT12
	}
	if clusters < 65525 {
		return dossys.VariantFAT16
	}
	return dossys.VariantFAT32
}

// Analyze decodes the boot sector read from a volume and classifies the volume's
// file system.
//
// It fails with [dossys.ErrUnsupportedSectorSize] if the sector size recorded in
// the BPB isn't 512, and with [dossys.ErrFileSystemCorrupted] if the BPB
// describes a layout that can't exist.
func Analyze(image *dossys.Sector) (Layout, error) {
	bs, err := Parse(image)
	if err != nil {
		return Layout{}, err
	}

	if bs.BytesPerSector != dossys.SectorSize {
		return Layout{}, dossys.ErrUnsupportedSectorSize.WithMessage(
			fmt.Sprintf(
				"sector size is %d bytes; only %d is supported",
				bs.BytesPerSector,
				dossys.SectorSize))
	}

	if bs.SectorsPerCluster == 0 {
		return Layout{}, dossys.ErrFileSystemCorrupted.WithMessage(
			"sectors per cluster is 0")
	}

	rootDirSectors := (uint32(bs.RootEntryCount)*DirentSize + dossys.SectorSize - 1) /
		dossys.SectorSize
	rootSector := uint32(bs.ReservedSectors) + uint32(bs.NumFATs)*bs.SectorsPerFAT()
	totalSectors := bs.TotalSectors()

	if totalSectors < rootSector+rootDirSectors {
		return Layout{}, dossys.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"volume has %d sectors but its metadata ends at sector %d",
				totalSectors,
				rootSector+rootDirSectors))
	}

	clusters := (totalSectors - rootSector - rootDirSectors) /
		uint32(bs.SectorsPerCluster)

	return Layout{
		Variant:        Classify(clusters),
		RootSector:     rootSector,
		RootDirSectors: rootDirSectors,
		Clusters:       clusters,
		BootSector:     bs,
	}, nil
}
