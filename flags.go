package dossys

import (
	"fmt"
	"strings"
)

// FileSystemVariant is the FAT flavor of a volume. It is always derived from the
// volume's cluster count and never chosen by the user.
type FileSystemVariant int

const (
	VariantUnknown FileSystemVariant = iota
	VariantFAT12
	VariantFAT16
	VariantFAT32
)

func (v FileSystemVariant) String() string {
	switch v {
	case VariantFAT12:
		return "FAT12"
	case VariantFAT16:
		return "FAT16"
	case VariantFAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// ForceMode selects how the installed boot code addresses the disk.
type ForceMode int

const (
	// ForceAuto keeps the runtime probe in the boot code, or for FAT32 picks the
	// template from what the platform reports.
	ForceAuto ForceMode = iota
	ForceLBA
	ForceCHS
)

func (m ForceMode) String() string {
	switch m {
	case ForceLBA:
		return "lba"
	case ForceCHS:
		return "chs"
	default:
		return "auto"
	}
}

// ParseForceMode is the inverse of [ForceMode.String]. It is case-insensitive.
func ParseForceMode(value string) (ForceMode, error) {
	switch strings.ToLower(value) {
	case "", "auto":
		return ForceAuto, nil
	case "lba":
		return ForceLBA, nil
	case "chs":
		return ForceCHS, nil
	}
	return ForceAuto, ErrInvalidArgument.WithMessage(
		fmt.Sprintf("unknown addressing mode %q; expected auto, lba, or chs", value))
}

// BootCodeStyle distinguishes this tool's own boot code from the boot code
// compatible with OEM (PC/MS-DOS style) kernels.
type BootCodeStyle int

const (
	StyleStandard BootCodeStyle = iota
	StyleOEMCompatible
)

func (s BootCodeStyle) String() string {
	if s == StyleOEMCompatible {
		return "oem"
	}
	return "standard"
}
