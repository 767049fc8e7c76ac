package testing

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/dossys"
	"github.com/stretchr/testify/require"
)

// PartitionEntry describes one primary partition of a synthetic MBR disk.
type PartitionEntry struct {
	Type  byte
	Start uint32
	Size  uint32
	// EndHead and EndSector are stored in the CHS end address of the entry. The
	// cylinder is always written as 0.
	EndHead   byte
	EndSector byte
	Bootable  bool
}

// CreatePartitionedImage returns a disk image of `totalSectors` sectors with an
// MBR describing the given partitions. The contents of each partition are
// zeroed.
func CreatePartitionedImage(totalSectors uint, partitions ...PartitionEntry) []byte {
	image := make([]byte, totalSectors*dossys.SectorSize)

	for i, partition := range partitions {
		entry := image[0x1BE+i*16 : 0x1BE+(i+1)*16]
		if partition.Bootable {
			entry[0] = 0x80
		}
		entry[4] = partition.Type
		entry[5] = partition.EndHead
		entry[6] = partition.EndSector
		binary.LittleEndian.PutUint32(entry[8:], partition.Start)
		binary.LittleEndian.PutUint32(entry[12:], partition.Size)
	}

	image[510] = 0x55
	image[511] = 0xAA
	return image
}

// WriteImageFile writes `image` to a file in a temporary directory removed
// when the test ends, and returns its path.
func WriteImageFile(t *testing.T, name string, image []byte) string {
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, image, 0o644)
	require.NoErrorf(t, err, "failed to create image file %s", path)
	return path
}

// ReadImageFile returns the current contents of an image file.
func ReadImageFile(t *testing.T, path string) []byte {
	data, err := os.ReadFile(path)
	require.NoErrorf(t, err, "failed to read image file %s", path)
	return data
}
