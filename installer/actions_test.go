package installer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/installer"
	"github.com/dargueta/dossys/patcher"
	dstest "github.com/dargueta/dossys/testing"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	bootSector := dstest.FAT12Floppy().BootSector()
	device := dstest.NewMemoryDeviceWithBootSector(t, 2880, 0, bootSector)
	path := filepath.Join(t.TempDir(), "dump.bin")

	logger, _ := test.NewNullLogger()
	require.NoError(t, installer.Dump(device, path, logger))

	assert.Equal(t, bootSector[:], dstest.ReadImageFile(t, path))
	assert.Equal(t, []string{"lock", "read 0", "unlock"}, device.Events)
}

func TestDumpReadFailure(t *testing.T) {
	device := dstest.NewMemoryDevice(t, 1, 0)
	device.FailReads[0] = dossys.ErrDeviceIO.WithMessage("drive not ready")
	path := filepath.Join(t.TempDir(), "dump.bin")

	logger, _ := test.NewNullLogger()
	err := installer.Dump(device, path, logger)
	assert.ErrorIs(t, err, dossys.ErrDeviceIO)
	assert.False(t, device.Locked())
	assert.NoFileExists(t, path)
}

func TestRestore(t *testing.T) {
	device := dstest.NewMemoryDevice(t, 4, 0)

	var saved dossys.Sector
	for i := range saved {
		saved[i] = byte(i * 7)
	}
	path := dstest.WriteImageFile(t, "saved.bin", append(saved[:], 0xFF, 0xFF))

	logger, _ := test.NewNullLogger()
	require.NoError(t, installer.Restore(device, path, logger))

	assert.Equal(t, saved, device.GetSector(0))
	assert.Equal(t, []string{"lock", "write 0", "unlock"}, device.Events)
}

func TestRestoreShortFile(t *testing.T) {
	device := dstest.NewMemoryDevice(t, 4, 0)
	path := dstest.WriteImageFile(t, "short.bin", make([]byte, 200))

	logger, _ := test.NewNullLogger()
	err := installer.Restore(device, path, logger)
	assert.ErrorIs(t, err, dossys.ErrInvalidArgument)
	assert.NotErrorIs(t, err, dossys.ErrTemplateRead)
	assert.Empty(t, device.Events, "the device must not be touched")
}

func TestRestoreMissingFile(t *testing.T) {
	device := dstest.NewMemoryDevice(t, 4, 0)

	logger, _ := test.NewNullLogger()
	err := installer.Restore(device, filepath.Join(t.TempDir(), "missing.bin"), logger)
	assert.ErrorIs(t, err, dossys.ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, device.Events, "the device must not be touched")
}

func TestPutExternal(t *testing.T) {
	original := dstest.FAT16Partition().BootSector()
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, original)

	code := make([]byte, dossys.SectorSize)
	for i := range code {
		code[i] = 0xF4
	}
	path := dstest.WriteImageFile(t, "mbr.bin", code)

	logger, _ := test.NewNullLogger()
	result, err := installer.PutExternal(device, path, *freeDOSConfig(2), logger)
	require.NoError(t, err)
	assert.Empty(t, result.Template)

	written := device.GetSector(0)
	assert.Equal(t, []byte(patcher.OEMName), written[3:11])
	assert.Equal(t, original[11:62], written[11:62])
	assert.Equal(t, code[62:], written[62:])
	assert.Equal(t, code[:3], written[:3])
}

func TestPutExternalMissingFile(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, dstest.FAT16Partition().BootSector())

	logger, _ := test.NewNullLogger()
	_, err := installer.PutExternal(
		device, filepath.Join(t.TempDir(), "missing.bin"), *freeDOSConfig(2), logger)
	assert.ErrorIs(t, err, dossys.ErrTemplateRead)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, device.Locked())
	assert.Empty(t, device.Writes())
}
