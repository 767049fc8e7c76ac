package installer_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/bootcode"
	"github.com/dargueta/dossys/bootsector"
	"github.com/dargueta/dossys/installer"
	dstest "github.com/dargueta/dossys/testing"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeDOSConfig(drive dossys.DriveID) *dossys.BootConfig {
	return &dossys.BootConfig{
		Drive:       drive,
		KernelName:  "KERNEL.SYS",
		LoadSegment: 0x60,
		Style:       dossys.StyleStandard,
		BootDrive:   0x80,
		WriteLive:   true,
		Features:    dossys.AllFeatures,

		AllowPlaceholderBootCode: true,
	}
}

func TestInstallFAT16(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, dstest.FAT16Partition().BootSector())
	device.Geometry = &dossys.GeometryFragment{SectorsPerTrack: 32, Heads: 64, HiddenSectors: 2048}

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, freeDOSConfig(2), logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"lock", "read 0", "write 0", "unlock"}, device.Events)
	assert.False(t, device.Locked())
	assert.Equal(t, []dossys.FileSystemVariant{dossys.VariantFAT16}, device.GeometryHints)
	assert.Equal(t, bootcode.FAT16, result.Template)
	assert.Equal(t, dossys.VariantFAT16, result.Layout.Variant)
	assert.Equal(
		t,
		[]installer.Stage{
			installer.StageLock,
			installer.StageReadOld,
			installer.StageAnalyze,
			installer.StageReconcile,
			installer.StageSelect,
			installer.StagePatch,
			installer.StageWriteLive,
			installer.StageUnlock,
		},
		result.Stages)

	written := device.GetSector(0)
	assert.Equal(t, result.New, written)
	assert.EqualValues(t, 32, binary.LittleEndian.Uint16(written[0x18:]))
	assert.EqualValues(t, 64, binary.LittleEndian.Uint16(written[0x1A:]))
	assert.EqualValues(t, 2048, binary.LittleEndian.Uint32(written[0x1C:]))
	assert.Equal(t, []byte("KERNEL  SYS"), written[0x1F1:0x1FC])

	// The old sector is reported as it was read, before reconciliation.
	assert.EqualValues(t, 63, binary.LittleEndian.Uint32(result.Old[0x1C:]))
}

func TestInstallFloppySkipsGeometryQuery(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 2880, 0, dstest.FAT12Floppy().BootSector())
	device.Geometry = &dossys.GeometryFragment{SectorsPerTrack: 9, Heads: 2, HiddenSectors: 1}

	config := freeDOSConfig(0)
	config.BootDrive = 0
	config.IgnoreBIOS = true

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, config, logger)
	require.NoError(t, err)

	assert.Empty(t, device.GeometryHints)
	assert.Equal(t, bootcode.FAT12, result.Template)
	written := device.GetSector(0)
	assert.EqualValues(t, 18, binary.LittleEndian.Uint16(written[0x18:]))
	assert.EqualValues(t, 0, written[0x24])
	assert.Equal(
		t,
		[]byte{0x90, 0x90, 0x90},
		written[bootcode.DriveOverrideOffsetFAT16:bootcode.DriveOverrideOffsetFAT16+3])
}

func TestInstallFAT32WritesBackup(t *testing.T) {
	tests := []struct {
		name           string
		backupSector   uint16
		skipBackup     bool
		expectedWrites []string
	}{
		{"default", 6, false, []string{"write 0", "write 6"}},
		{"nonstandard location", 12, false, []string{"write 0", "write 12"}},
		{"invalid location", 300, false, []string{"write 0", "write 6"}},
		{"skipped", 6, true, []string{"write 0"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := dstest.FAT32Partition()
			params.BackupBootSector = tc.backupSector
			device := dstest.NewMemoryDeviceWithBootSector(t, 64, 2, params.BootSector())
			device.LBASupport = true

			config := freeDOSConfig(2)
			config.SkipBackupCopy = tc.skipBackup

			logger, _ := test.NewNullLogger()
			result, err := installer.Install(device, config, logger)
			require.NoError(t, err)

			assert.Equal(t, tc.expectedWrites, device.Writes())
			assert.Equal(t, bootcode.FAT32LBA, result.Template)
			if len(tc.expectedWrites) > 1 {
				backup := device.GetSector(dossys.LBA(binary.LittleEndian.Uint16(result.New[0x32:])))
				assert.Equal(t, result.New, backup)
			}
		})
	}
}

func TestInstallOutputFileOnly(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, dstest.FAT16Partition().BootSector())
	output := dstest.WriteImageFile(t, "image.img", make([]byte, 4096))

	config := freeDOSConfig(2)
	config.WriteLive = false
	config.OutputPath = output

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, config, logger)
	require.NoError(t, err)

	assert.Empty(t, device.Writes())
	contents := dstest.ReadImageFile(t, output)
	require.Len(t, contents, 4096, "output file must not be truncated")
	assert.Equal(t, result.New[:], contents[:512])
	assert.Contains(t, result.Stages, installer.StageWriteFile)
	assert.NotContains(t, result.Stages, installer.StageWriteLive)
}

func TestInstallBacksUpOriginal(t *testing.T) {
	original := dstest.FAT16Partition().BootSector()
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, original)
	backupPath := filepath.Join(t.TempDir(), "bootsect.bak")

	config := freeDOSConfig(2)
	config.BackupOriginalPath = backupPath

	logger, _ := test.NewNullLogger()
	_, err := installer.Install(device, config, logger)
	require.NoError(t, err)

	saved := dstest.ReadImageFile(t, backupPath)
	assert.Equal(t, original[:], saved)
}

func TestInstallUnlocksOnError(t *testing.T) {
	params := dstest.FAT16Partition()
	params.BytesPerSector = 1024
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, params.BootSector())

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, freeDOSConfig(2), logger)
	assert.ErrorIs(t, err, dossys.ErrUnsupportedSectorSize)
	assert.Contains(t, err.Error(), "analyze on drive C:")

	assert.False(t, device.Locked())
	assert.Equal(t, []string{"lock", "read 0", "unlock"}, device.Events)
	assert.Empty(t, device.Writes())
	assert.NotContains(t, result.Stages, installer.StageAnalyze)
}

func TestInstallReadFailure(t *testing.T) {
	device := dstest.NewMemoryDevice(t, 16, 2)
	device.FailReads[0] = os.ErrClosed

	logger, _ := test.NewNullLogger()
	_, err := installer.Install(device, freeDOSConfig(2), logger)
	assert.ErrorIs(t, err, dossys.ErrDeviceIO)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.False(t, device.Locked())
}

func TestInstallBackupWriteFailure(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 64, 2, dstest.FAT32Partition().BootSector())
	device.FailWrites[6] = dossys.ErrDeviceIO.WithMessage("sector not found")

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, freeDOSConfig(2), logger)
	assert.ErrorIs(t, err, dossys.ErrDeviceIO)
	assert.Contains(t, result.Stages, installer.StageWriteLive)
	assert.NotContains(t, result.Stages, installer.StageWriteBackup)
	assert.False(t, device.Locked())
}

func TestInstallLockFailure(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, dstest.FAT16Partition().BootSector())
	device.FailLock = dossys.ErrBusy.WithMessage("in use")

	logger, _ := test.NewNullLogger()
	_, err := installer.Install(device, freeDOSConfig(2), logger)
	assert.ErrorIs(t, err, dossys.ErrBusy)
	assert.Equal(t, []string{"lock"}, device.Events)
}

type failingUnlockDevice struct {
	*dstest.MemoryDevice
}

func (d failingUnlockDevice) Unlock() error {
	_ = d.MemoryDevice.Unlock()
	return dossys.ErrDeviceIO.WithMessage("unlock failed")
}

func TestInstallUnlockFailureIsCombined(t *testing.T) {
	params := dstest.FAT16Partition()
	params.BytesPerSector = 4096
	device := failingUnlockDevice{dstest.NewMemoryDeviceWithBootSector(t, 16, 2, params.BootSector())}

	logger, _ := test.NewNullLogger()
	_, err := installer.Install(device, freeDOSConfig(2), logger)
	assert.ErrorIs(t, err, dossys.ErrUnsupportedSectorSize)
	assert.ErrorIs(t, err, dossys.ErrDeviceIO)
	assert.Contains(t, err.Error(), "unlock failed")
}

func TestInstallUnsupportedCombination(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 64, 2, dstest.FAT32Partition().BootSector())
	config := freeDOSConfig(2)
	config.Style = dossys.StyleOEMCompatible

	logger, _ := test.NewNullLogger()
	_, err := installer.Install(device, config, logger)
	assert.ErrorIs(t, err, dossys.ErrUnsupportedCombination)
	assert.Empty(t, device.Writes())
}

func writeRootDirectory(device *dstest.MemoryDevice, lba dossys.LBA, names ...string) {
	var sector dossys.Sector
	for i, name := range names {
		encoded := bootsector.EncodeShortName(name)
		copy(sector[i*32:], encoded[:])
		sector[i*32+11] = 0x27
	}
	device.PutSector(lba, sector)
}

func TestInstallOEMReordersRootDirectory(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 2880, 0, dstest.FAT12Floppy().BootSector())
	writeRootDirectory(device, 19, "COMMAND.COM", "MSDOS.SYS", "IO.SYS")

	config := freeDOSConfig(0)
	config.KernelName = "IO.SYS"
	config.SecondaryName = "MSDOS.SYS"
	config.MinSecondarySize = 10240
	config.LoadSegment = 0
	config.Style = dossys.StyleOEMCompatible
	config.BootDrive = 0

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, config, logger)
	require.NoError(t, err)

	assert.Equal(t, bootcode.OEMCompatFAT12, result.Template)
	assert.Equal(t, []string{"write 0", "write 19"}, device.Writes())
	assert.Equal(t, installer.StageFixupRootDir, result.Stages[len(result.Stages)-2])

	root := device.GetSector(19)
	assert.Equal(t, []byte("IO      SYS"), root[0:11])
	assert.Equal(t, []byte("MSDOS   SYS"), root[32:43])
	assert.Equal(t, []byte("COMMAND COM"), root[64:75])
}

func TestInstallOEMWithoutLiveWriteLeavesRootDirectory(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 2880, 0, dstest.FAT12Floppy().BootSector())
	writeRootDirectory(device, 19, "COMMAND.COM", "MSDOS.SYS", "IO.SYS")

	config := freeDOSConfig(0)
	config.KernelName = "IO.SYS"
	config.SecondaryName = "MSDOS.SYS"
	config.Style = dossys.StyleOEMCompatible
	config.WriteLive = false
	config.OutputPath = filepath.Join(t.TempDir(), "boot.bin")

	logger, _ := test.NewNullLogger()
	_, err := installer.Install(device, config, logger)
	require.NoError(t, err)
	assert.Empty(t, device.Writes())
}

func TestInstallRefusesPlaceholderOnVolume(t *testing.T) {
	original := dstest.FAT16Partition().BootSector()
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, original)
	config := freeDOSConfig(2)
	config.AllowPlaceholderBootCode = false

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, config, logger)
	assert.ErrorIs(t, err, dossys.ErrFeatureNotAvailable)
	assert.ErrorContains(t, err, "placeholder")

	assert.Empty(t, device.Writes())
	assert.False(t, device.Locked())
	assert.Equal(t, original, device.GetSector(0))
	assert.NotContains(t, result.Stages, installer.StagePatch)
}

func TestInstallPlaceholderToFileOnly(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, dstest.FAT16Partition().BootSector())
	output := filepath.Join(t.TempDir(), "boot.bin")

	config := freeDOSConfig(2)
	config.AllowPlaceholderBootCode = false
	config.WriteLive = false
	config.OutputPath = output

	logger, _ := test.NewNullLogger()
	result, err := installer.Install(device, config, logger)
	require.NoError(t, err)
	assert.Empty(t, device.Writes())
	assert.Equal(t, result.New[:], dstest.ReadImageFile(t, output))
}

func TestInstallDriveMismatch(t *testing.T) {
	device := dstest.NewMemoryDeviceWithBootSector(t, 16, 2, dstest.FAT16Partition().BootSector())

	logger, _ := test.NewNullLogger()
	_, err := installer.Install(device, freeDOSConfig(3), logger)
	assert.ErrorIs(t, err, dossys.ErrInvalidArgument)
	assert.Empty(t, device.Events, "the device must not be touched")
}
