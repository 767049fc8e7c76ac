// Package flavors describes the DOS variants whose kernels the installed boot
// code can load: the names of their system files, where the kernel is loaded,
// and which boot code they need.
package flavors

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/dargueta/dossys"
	"github.com/gocarina/gocsv"
)

// Segment is a real-mode segment (or offset) number, written in hex in the
// flavor table.
type Segment uint16

func (s *Segment) UnmarshalCSV(value string) error {
	parsed, err := strconv.ParseUint(value, 16, 16)
	if err != nil {
		return fmt.Errorf("invalid segment %q: %w", value, err)
	}
	*s = Segment(parsed)
	return nil
}

// Style is the boot code a flavor needs, as written in the flavor table.
type Style dossys.BootCodeStyle

func (s *Style) UnmarshalCSV(value string) error {
	switch value {
	case "standard":
		*s = Style(dossys.StyleStandard)
	case "oem":
		*s = Style(dossys.StyleOEMCompatible)
	default:
		return fmt.Errorf("invalid boot code style %q", value)
	}
	return nil
}

// BootCodeStyle converts the table value to the style used by the rest of the
// module.
func (s Style) BootCodeStyle() dossys.BootCodeStyle {
	return dossys.BootCodeStyle(s)
}

type Flavor struct {
	Slug   string `csv:"slug"`
	Name   string `csv:"name"`
	Kernel string `csv:"kernel"`
	// Secondary is the second system file of the flavor, e.g. MSDOS.SYS. Empty
	// if the flavor has none.
	Secondary string `csv:"secondary"`

	// LoadSegment is the segment the standard boot code loads the kernel to, or
	// for OEM-compatible boot code the offset of the far jump into segment 0x70.
	LoadSegment Segment `csv:"load_segment"`
	BootCode    Style   `csv:"boot_code"`

	// MinSize is the smallest size Secondary can have. 0 means Secondary is
	// optional and isn't used for detecting the flavor.
	MinSize int64 `csv:"min_size"`
}

// FreeDOS is the slug of the flavor assumed when detection fails.
const FreeDOS = "FD"

//go:embed flavors.csv
var flavorsRawCSV string

// In table order, which is also the order detection tries them in.
var flavors []Flavor

// Lookup returns the flavor with the given slug. The comparison is
// case-insensitive.
func Lookup(slug string) (Flavor, error) {
	for _, flavor := range flavors {
		if strings.EqualFold(flavor.Slug, slug) {
			return flavor, nil
		}
	}
	return Flavor{}, dossys.ErrNotFound.WithMessage(
		fmt.Sprintf("no DOS flavor with slug %q", slug))
}

// All returns every known flavor, in detection order.
func All() []Flavor {
	result := make([]Flavor, len(flavors))
	copy(result, flavors)
	return result
}

// Detect guesses the DOS flavor from the system files present at the root of
// `fsys`. It picks the first flavor whose kernel exists and isn't empty and, if
// the flavor has a minimum size, whose secondary file is at least that big.
func Detect(fsys fs.FS) (Flavor, bool) {
	for _, flavor := range flavors {
		info, err := fs.Stat(fsys, flavor.Kernel)
		if err != nil || info.Size() == 0 {
			continue
		}

		if flavor.MinSize > 0 {
			info, err = fs.Stat(fsys, flavor.Secondary)
			if err != nil || info.Size() < flavor.MinSize {
				continue
			}
		}
		return flavor, true
	}
	return Flavor{}, false
}

// DetectOrDefault is [Detect], falling back to FreeDOS.
func DetectOrDefault(fsys fs.FS) Flavor {
	flavor, ok := Detect(fsys)
	if ok {
		return flavor
	}

	flavor, err := Lookup(FreeDOS)
	if err != nil {
		panic(err)
	}
	return flavor
}

func init() {
	reader := csv.NewReader(strings.NewReader(flavorsRawCSV))
	reader.Comma = '|'

	err := gocsv.UnmarshalCSV(reader, &flavors)
	if err != nil {
		panic(fmt.Errorf("failed to decode flavor table: %w", err))
	}

	seen := map[string]bool{}
	for i, flavor := range flavors {
		key := strings.ToUpper(flavor.Slug)
		if seen[key] {
			panic(fmt.Errorf("duplicate definition for flavor %q found on row %d", flavor.Slug, i+1))
		}
		seen[key] = true
	}
}
