package bootcode

import (
	"fmt"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/sectorio"
)

// LBAProber reports whether the machine that will boot the volume can use LBA
// disk access. [dossys.SectorDevice] implements it.
type LBAProber interface {
	HasLBASupport() bool
}

// Selection is the boot code chosen for a volume, ready for the patcher.
type Selection struct {
	// Template is the built-in template the code came from. It's nil if the
	// code was read from an external file.
	Template *Template
	// Code is the boot code, with the addressing probe already patched for
	// FAT12/16 standard templates.
	Code dossys.Sector
}

// External reports whether the code came from a file instead of a built-in
// template.
func (s Selection) External() bool {
	return s.Template == nil
}

// LoadExternal reads replacement boot code from a file. The file must be at
// least 512 bytes long; anything after the first sector is ignored.
func LoadExternal(path string) (dossys.Sector, error) {
	code, err := sectorio.ReadSectorFile(path)
	if err != nil {
		return code, dossys.ErrTemplateRead.Wrap(err)
	}
	return code, nil
}

// Select picks the boot code to install on a volume of the given variant.
//
// If config.ExternalBootCode is set the code is read from that file and used
// as-is. Otherwise the built-in template matching the variant and config.Style
// is used, with its addressing probe adjusted for config.Force.
func Select(
	variant dossys.FileSystemVariant,
	config *dossys.BootConfig,
	prober LBAProber,
) (Selection, error) {
	if config.ExternalBootCode != "" {
		code, err := LoadExternal(config.ExternalBootCode)
		if err != nil {
			return Selection{}, err
		}
		return Selection{Code: code}, nil
	}

	id, err := chooseTemplate(variant, config, prober)
	if err != nil {
		return Selection{}, err
	}

	template, err := Builtin(id)
	if err != nil {
		return Selection{}, err
	}
	err = template.Validate()
	if err != nil {
		return Selection{}, err
	}

	selection := Selection{Template: &template, Code: template.Code}
	if template.Addressing == AddressingProbe {
		err = forceAddressing(&selection, config.Force)
		if err != nil {
			return Selection{}, err
		}
	}
	return selection, nil
}

func chooseTemplate(
	variant dossys.FileSystemVariant,
	config *dossys.BootConfig,
	prober LBAProber,
) (ID, error) {
	switch variant {
	case dossys.VariantFAT32:
		if !config.Features.FAT32 {
			return "", dossys.ErrFeatureNotAvailable.WithMessage(
				"FAT32 support is disabled")
		}

		switch config.Style {
		case dossys.StyleStandard:
			if config.Force == dossys.ForceLBA ||
				(config.Force == dossys.ForceAuto && prober.HasLBASupport()) {
				return FAT32LBA, nil
			}
			return FAT32CHS, nil
		case dossys.StyleOEMCompatible:
			return "", dossys.ErrUnsupportedCombination.WithMessage(
				"FAT32 versions of PC/MS-DOS compatible boot sectors are not supported")
		}

	case dossys.VariantFAT12, dossys.VariantFAT16:
		switch config.Style {
		case dossys.StyleStandard:
			if variant == dossys.VariantFAT16 {
				return FAT16, nil
			}
			return FAT12, nil
		case dossys.StyleOEMCompatible:
			if !config.Features.OEMCompatible {
				return "", dossys.ErrFeatureNotAvailable.WithMessage(
					"OEM compatible boot sectors are disabled")
			}
			if variant == dossys.VariantFAT16 {
				return OEMCompatFAT16, nil
			}
			return OEMCompatFAT12, nil
		}
	}

	return "", dossys.ErrUnsupportedCombination.WithMessage(
		fmt.Sprintf("no boot code for %s with %s boot code", variant, config.Style))
}

// forceAddressing rewrites the probe in FAT12/16 boot code so that it always
// takes the LBA path or always takes the CHS path. ForceAuto leaves it alone.
func forceAddressing(selection *Selection, force dossys.ForceMode) error {
	probe, ok := selection.Template.Contract.Point(PatchAddressingProbe)
	if !ok || !probe.Matches(&selection.Code) {
		return dossys.ErrUnexpectedTemplateLayout.WithMessage(
			fmt.Sprintf("template %s has no addressing probe", selection.Template.ID))
	}

	code := &selection.Code
	switch force {
	case dossys.ForceLBA:
		// The conditional jump right after the test skips the LBA code.
		code[probe.Offset+2] = OpNOP
		code[probe.Offset+3] = OpNOP
	case dossys.ForceCHS:
		// `xor dl, dl` always sets ZF, so the jump over the LBA code is taken.
		code[probe.Offset] = OpXorRM8
	}
	return nil
}
