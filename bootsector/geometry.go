package bootsector

import (
	"encoding/binary"

	"github.com/dargueta/dossys"
	"github.com/noxer/bytewriter"
	"github.com/sirupsen/logrus"
)

// ReconcileGeometry replaces the sectors per track, heads, and hidden sectors
// of `image` with the values the platform reports for `drive`.
//
// Formatting tools and BIOS geometry reporting can disagree, and some boot
// loaders fail silently on a mismatched BPB. Reconciliation is best-effort: the
// image is returned unmodified for floppy-class drives, if the query fails, or if
// the platform reports no hidden sectors (i.e. the volume isn't a partition).
func ReconcileGeometry(
	querier dossys.GeometryQuerier,
	drive dossys.DriveID,
	variant dossys.FileSystemVariant,
	image dossys.Sector,
	log logrus.FieldLogger,
) dossys.Sector {
	if drive.IsFloppy() {
		return image
	}

	reported, err := querier.QueryDefaultBPB(variant)
	if err != nil {
		log.WithError(err).WithField("drive", drive).
			Debug("no default BPB available; leaving geometry untouched")
		return image
	}
	if reported.HiddenSectors == 0 {
		return image
	}

	old := readGeometry(&image)
	log.WithFields(logrus.Fields{
		"sectors_per_track": old.SectorsPerTrack,
		"heads":             old.Heads,
		"hidden":            old.HiddenSectors,
	}).Debug("Old boot sector values")
	log.WithFields(logrus.Fields{
		"sectors_per_track": reported.SectorsPerTrack,
		"heads":             reported.Heads,
		"hidden":            reported.HiddenSectors,
	}).Debug("Default and new boot sector values")

	writer := bytewriter.New(image[SectorsPerTrackOffset : HiddenSectorsOffset+4])
	// Can't fail; the three fields are exactly the size of the slice.
	_ = binary.Write(writer, binary.LittleEndian, reported)
	return image
}

func readGeometry(image *dossys.Sector) dossys.GeometryFragment {
	return dossys.GeometryFragment{
		SectorsPerTrack: binary.LittleEndian.Uint16(image[SectorsPerTrackOffset:]),
		Heads:           binary.LittleEndian.Uint16(image[HeadsOffset:]),
		HiddenSectors:   binary.LittleEndian.Uint32(image[HiddenSectorsOffset:]),
	}
}
