// Package patcher builds the boot sector to install from the chosen boot code
// and the boot sector currently on the volume.
package patcher

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/bootcode"
	"github.com/dargueta/dossys/bootsector"
	"github.com/noxer/bytewriter"
	"github.com/sirupsen/logrus"
)

// OEMName is written over the OEM name of every boot sector this tool installs.
// Some DOS versions validate this field on boot and require five uppercase
// letters, a digit, a dot, and a digit.
const OEMName = "FRDOS5.1"

// Patch copies the BPB of `old` into the selected boot code and patches the
// code's fixed locations according to `config`.
//
// `layout` must be the result of analyzing `old`. The returned sector is built
// from scratch; neither `selection` nor `old` is modified.
func Patch(
	selection bootcode.Selection,
	old *dossys.Sector,
	layout bootsector.Layout,
	config *dossys.BootConfig,
	log logrus.FieldLogger,
) (dossys.Sector, error) {
	image := selection.Code

	bpbEnd := bootsector.BPBOffset + bootsector.BPBSize(layout.Variant)
	copy(image[bootsector.BPBOffset:bpbEnd], old[bootsector.BPBOffset:bpbEnd])
	copy(image[bootsector.OEMNameOffset:bootsector.BPBOffset], OEMName)

	if layout.Variant == dossys.VariantFAT32 {
		fixBackupBootSector(&image, layout, log)
	}
	image[bootsector.DriveNumberOffset(layout.Variant)] = config.BootDrive

	if selection.External() {
		log.Debug("external boot code; skipping template-specific patches")
		return image, nil
	}

	contract := selection.Template.Contract
	driveOverride, err := patchEntryPoint(&image, selection.Template, config)
	if err != nil {
		return image, err
	}

	if config.IgnoreBIOS {
		err = nopDriveOverride(&image, driveOverride)
		if err != nil {
			return image, err
		}
	}

	nameField, ok := contract.Point(bootcode.PatchKernelName)
	if !ok {
		return image, missingPoint(selection.Template, bootcode.PatchKernelName)
	}
	kernelName := bootsector.EncodeShortName(config.KernelName)
	copy(image[nameField.Offset:nameField.Offset+len(kernelName)], kernelName[:])

	logSummary(&image, layout, selection.Template, config, log)
	return image, nil
}

// fixBackupBootSector forces the FAT32 backup boot sector number to the default
// if it doesn't point into the reserved area.
func fixBackupBootSector(image *dossys.Sector, layout bootsector.Layout, log logrus.FieldLogger) {
	backup := binary.LittleEndian.Uint16(image[bootsector.BackupBootOffset:])
	reserved := layout.BootSector.ReservedSectors

	if backup < 1 || backup > reserved {
		log.WithFields(logrus.Fields{
			"backup_sector":    backup,
			"reserved_sectors": reserved,
		}).Debug("BPB appears to have invalid backup boot sector #, forcing to default")
		putWord(image, bootsector.BackupBootOffset, bootsector.DefaultBackupBootSector)
	}
}

// patchEntryPoint writes the load segment (standard boot code) or the kernel
// jump target (OEM-compatible boot code), and returns the location of the
// instruction that stores the BIOS drive number.
func patchEntryPoint(
	image *dossys.Sector,
	template *bootcode.Template,
	config *dossys.BootConfig,
) (bootcode.ContractPoint, error) {
	var entryKind bootcode.PatchKind

	switch template.Style {
	case dossys.StyleStandard:
		entryKind = bootcode.PatchLoadSegment
	case dossys.StyleOEMCompatible:
		if template.Variant == dossys.VariantFAT32 {
			return bootcode.ContractPoint{}, dossys.ErrUnsupportedCombination.WithMessage(
				"OEM compatible boot code can't be installed on FAT32")
		}
		entryKind = bootcode.PatchJumpTarget
	default:
		return bootcode.ContractPoint{}, dossys.ErrUnsupportedCombination.WithMessage(
			fmt.Sprintf("unknown boot code style %d", int(template.Style)))
	}

	entry, ok := template.Contract.Point(entryKind)
	if !ok {
		return entry, missingPoint(template, entryKind)
	}
	putWord(image, entry.Offset, config.LoadSegment)

	driveOverride, ok := template.Contract.Point(bootcode.PatchDriveOverride)
	if !ok {
		return driveOverride, missingPoint(template, bootcode.PatchDriveOverride)
	}
	return driveOverride, nil
}

// nopDriveOverride replaces the 3-byte `mov [bp+x], dl` with NOPs so the boot
// code keeps the drive number stored in the BPB.
func nopDriveOverride(image *dossys.Sector, point bootcode.ContractPoint) error {
	if !point.Matches(image) {
		return dossys.ErrUnexpectedTemplateLayout.WithMessage(
			fmt.Sprintf(
				"expected % X at %#x, found % X",
				point.Expected,
				point.Offset,
				image[point.Offset:point.Offset+len(point.Expected)]))
	}

	for i := 0; i < 3; i++ {
		image[point.Offset+i] = bootcode.OpNOP
	}
	return nil
}

func putWord(image *dossys.Sector, offset int, value uint16) {
	writer := bytewriter.New(image[offset : offset+2])
	// Can't fail; the slice is exactly two bytes.
	_ = binary.Write(writer, binary.LittleEndian, value)
}

func missingPoint(template *bootcode.Template, kind bootcode.PatchKind) error {
	return dossys.ErrUnexpectedTemplateLayout.WithMessage(
		fmt.Sprintf("template %s has no %s", template.ID, kind))
}

func logSummary(
	image *dossys.Sector,
	layout bootsector.Layout,
	template *bootcode.Template,
	config *dossys.BootConfig,
	log logrus.FieldLogger,
) {
	bs := layout.BootSector
	log.WithFields(logrus.Fields{
		"root_dir_entries": bs.RootEntryCount,
		"hidden_sectors":   bs.HiddenSectors,
		"reserved_sectors": bs.ReservedSectors,
		"fat_sectors":      bs.SectorsPerFAT(),
		"fats":             bs.NumFATs,
	}).Debug("file system layout")

	var kernelName bootsector.ShortName
	copy(kernelName[:], image[bootcode.KernelNameOffset:])
	entry := log.WithFields(logrus.Fields{
		"template": template.ID,
		"kernel":   kernelName.String(),
	})

	if template.Style == dossys.StyleStandard {
		entry.Debugf("Boot sector kernel load segment set to %X:0h", config.LoadSegment)
	} else {
		entry.Debugf("Boot sector kernel jmp address set to 70:%Xh", config.LoadSegment)
	}
}
