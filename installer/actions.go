package installer

import (
	"errors"
	"io/fs"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/sectorio"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// withLock runs `action` while holding the device's lock.
func withLock(device dossys.SectorDevice, action func() error) (err error) {
	drive := device.Drive()

	err = device.Lock()
	if err != nil {
		return stageError(StageLock, drive, err)
	}
	defer func() {
		unlockErr := device.Unlock()
		if unlockErr != nil {
			err = multierror.Append(err, stageError(StageUnlock, drive, unlockErr))
		}
	}()
	return action()
}

// Dump saves the boot sector of the volume to a file without modifying it.
func Dump(device dossys.SectorDevice, path string, log logrus.FieldLogger) error {
	var bootSector dossys.Sector

	err := withLock(device, func() error {
		var err error
		bootSector, err = device.ReadSector(0)
		if err != nil {
			return stageError(StageReadOld, device.Drive(), deviceError(err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("writing bootsector to file %s", path)
	err = sectorio.WriteSectorFile(path, &bootSector)
	if err != nil {
		return stageError(StageWriteFile, device.Drive(), err)
	}
	return nil
}

// Restore writes the first 512 bytes of a file to the boot sector of the volume
// as-is, e.g. to undo an installation using a file saved by [Dump].
func Restore(device dossys.SectorDevice, path string, log logrus.FieldLogger) error {
	log.Infof("reading bootsector from file %s", path)
	bootSector, err := sectorio.ReadSectorFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return dossys.ErrNotFound.Wrap(err)
	} else if err != nil {
		return dossys.ErrInvalidArgument.Wrap(err)
	}

	return withLock(device, func() error {
		log.Debugf("Writing bootsector to drive %s", device.Drive())
		err := device.WriteSector(0, &bootSector)
		if err != nil {
			return stageError(StageWriteLive, device.Drive(), deviceError(err))
		}
		return nil
	})
}

// PutExternal installs the boot code in a file on the volume. Only the BPB and
// the generic header fields are adjusted; the code itself is used as-is.
func PutExternal(
	device dossys.SectorDevice,
	path string,
	config dossys.BootConfig,
	log logrus.FieldLogger,
) (Result, error) {
	config.ExternalBootCode = path
	return Install(device, &config, log)
}
