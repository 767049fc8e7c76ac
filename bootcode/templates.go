// Package bootcode holds the built-in boot code templates and picks the one to
// install on a volume.
//
// Each template is a 512-byte boot sector whose BPB area is blank. The patcher
// fills in the BPB and a handful of fixed locations in the code; those
// locations are described by the template's [Contract] and checked before
// anything is patched.
//
// The embedded assets are placeholders: they carry the patch points, the kernel
// name slot and the signature at the right offsets, but the code between them
// is NOPs ending in a halt and never reads the disk. A volume installed with
// one of them will not boot. They are marked [Template.Placeholder] until the
// assembled FreeDOS boot sectors replace them.
package bootcode

import (
	"embed"
	"fmt"
	"sort"

	"github.com/dargueta/dossys"
)

// Addressing is the disk access method built-in boot code uses.
type Addressing int

const (
	// AddressingProbe boot code decides between CHS and LBA at boot time.
	AddressingProbe Addressing = iota
	AddressingCHS
	AddressingLBA
)

func (a Addressing) String() string {
	switch a {
	case AddressingCHS:
		return "CHS"
	case AddressingLBA:
		return "LBA"
	default:
		return "CHS+LBA"
	}
}

// ID names a built-in template.
type ID string

const (
	FAT12          ID = "fat12"
	FAT16          ID = "fat16"
	FAT32CHS       ID = "fat32chs"
	FAT32LBA       ID = "fat32lba"
	OEMCompatFAT12 ID = "oemfat12"
	OEMCompatFAT16 ID = "oemfat16"
)

// Template is one built-in boot code binary and the contract the patcher relies
// on.
type Template struct {
	ID         ID
	Variant    dossys.FileSystemVariant
	Style      dossys.BootCodeStyle
	Addressing Addressing
	Code       dossys.Sector
	Contract   Contract

	// Placeholder is set for assets that satisfy the contract but contain no
	// working loader.
	Placeholder bool
}

// Validate checks the template's code against its contract.
func (t *Template) Validate() error {
	mismatch, ok := t.Contract.firstMismatch(&t.Code)
	if ok {
		return dossys.ErrUnexpectedTemplateLayout.WithMessage(
			fmt.Sprintf("template %s: %s", t.ID, mismatch))
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////

//go:embed templates/*.bin
var templateFiles embed.FS

type templateDefinition struct {
	id          ID
	variant     dossys.FileSystemVariant
	style       dossys.BootCodeStyle
	addressing  Addressing
	contract    Contract
	placeholder bool
}

var templateDefinitions = []templateDefinition{
	{FAT12, dossys.VariantFAT12, dossys.StyleStandard, AddressingProbe, standardFAT16Contract(ProbeOffsetFAT12), true},
	{FAT16, dossys.VariantFAT16, dossys.StyleStandard, AddressingProbe, standardFAT16Contract(ProbeOffsetFAT16), true},
	{FAT32CHS, dossys.VariantFAT32, dossys.StyleStandard, AddressingCHS, standardFAT32Contract(), true},
	{FAT32LBA, dossys.VariantFAT32, dossys.StyleStandard, AddressingLBA, standardFAT32Contract(), true},
	{OEMCompatFAT12, dossys.VariantFAT12, dossys.StyleOEMCompatible, AddressingCHS, oemContract(JumpTargetOffsetOEMFAT12), true},
	{OEMCompatFAT16, dossys.VariantFAT16, dossys.StyleOEMCompatible, AddressingCHS, oemContract(JumpTargetOffsetOEMFAT16), true},
}

var builtinTemplates map[ID]*Template

// Builtin returns a copy of the built-in template with the given ID.
func Builtin(id ID) (Template, error) {
	template, ok := builtinTemplates[id]
	if ok {
		return *template, nil
	}
	return Template{}, dossys.ErrNotFound.WithMessage(
		fmt.Sprintf("no built-in boot code template named %q", id))
}

// All returns copies of every built-in template, sorted by ID.
func All() []Template {
	templates := make([]Template, 0, len(builtinTemplates))
	for _, template := range builtinTemplates {
		templates = append(templates, *template)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].ID < templates[j].ID
	})
	return templates
}

func init() {
	builtinTemplates = make(map[ID]*Template, len(templateDefinitions))

	for _, definition := range templateDefinitions {
		fileName := fmt.Sprintf("templates/%s.bin", definition.id)
		data, err := templateFiles.ReadFile(fileName)
		if err != nil {
			panic(fmt.Errorf("failed to load boot code template %s: %w", fileName, err))
		}
		if len(data) != dossys.SectorSize {
			panic(
				fmt.Errorf(
					"boot code template %s is %d bytes, expected %d",
					fileName,
					len(data),
					dossys.SectorSize))
		}

		_, exists := builtinTemplates[definition.id]
		if exists {
			panic(fmt.Errorf("duplicate definition for template %q", definition.id))
		}

		template := &Template{
			ID:         definition.id,
			Variant:    definition.variant,
			Style:      definition.style,
			Addressing: definition.addressing,
			Contract:   definition.contract,

			Placeholder: definition.placeholder,
		}
		copy(template.Code[:], data)
		builtinTemplates[definition.id] = template
	}
}
