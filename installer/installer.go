// Package installer runs a complete boot sector installation against a volume:
// it reads the old boot sector, builds the new one, and writes it everywhere it
// needs to go while holding the volume's lock.
package installer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/bootcode"
	"github.com/dargueta/dossys/bootsector"
	"github.com/dargueta/dossys/patcher"
	"github.com/dargueta/dossys/rootdir"
	"github.com/dargueta/dossys/sectorio"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Stage is one step of an installation.
type Stage string

const (
	StageLock           = Stage("lock")
	StageReadOld        = Stage("read old boot sector")
	StageBackupOriginal = Stage("back up original boot sector")
	StageAnalyze        = Stage("analyze")
	StageReconcile      = Stage("reconcile geometry")
	StageSelect         = Stage("select boot code")
	StagePatch          = Stage("patch")
	StageWriteLive      = Stage("write boot sector")
	StageWriteBackup    = Stage("write backup boot sector")
	StageWriteFile      = Stage("write boot sector file")
	StageFixupRootDir   = Stage("reorder root directory")
	StageUnlock         = Stage("unlock")
)

// Result describes a completed (or partially completed) installation.
type Result struct {
	Layout bootsector.Layout
	// Old is the boot sector as read from the volume, before geometry
	// reconciliation.
	Old dossys.Sector
	New dossys.Sector
	// Template is the ID of the built-in template used, or "" for external boot
	// code.
	Template bootcode.ID
	// Stages lists every stage that completed, in order.
	Stages []Stage
}

func (r *Result) completed(stage Stage) {
	r.Stages = append(r.Stages, stage)
}

func stageError(stage Stage, drive dossys.DriveID, err error) error {
	return fmt.Errorf("%s on drive %s: %w", stage, drive, err)
}

func deviceError(err error) error {
	if errors.Is(err, dossys.ErrDeviceIO) {
		return err
	}
	return dossys.ErrDeviceIO.Wrap(err)
}

// Install installs a boot sector on `device` as described by `config`.
//
// The device is locked for the whole installation and always unlocked before
// returning, even on failure. An error from unlocking is combined with any
// earlier error.
func Install(
	device dossys.SectorDevice,
	config *dossys.BootConfig,
	log logrus.FieldLogger,
) (result Result, err error) {
	drive := device.Drive()
	log = log.WithField("drive", drive.Letter())

	if config.Drive != drive {
		return result, dossys.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"configuration is for drive %s but the device is drive %s",
				config.Drive,
				drive))
	}

	log.Debugf("Reading old bootsector from drive %s", drive)
	err = device.Lock()
	if err != nil {
		return result, stageError(StageLock, drive, err)
	}
	result.completed(StageLock)

	defer func() {
		unlockErr := device.Unlock()
		if unlockErr != nil {
			err = multierror.Append(err, stageError(StageUnlock, drive, unlockErr))
			return
		}
		result.completed(StageUnlock)
	}()

	result.Old, err = device.ReadSector(0)
	if err != nil {
		return result, stageError(StageReadOld, drive, deviceError(err))
	}
	result.completed(StageReadOld)

	if config.BackupOriginalPath != "" {
		log.Infof("Backing up original boot sector to %s", config.BackupOriginalPath)
		err = sectorio.WriteSectorFile(config.BackupOriginalPath, &result.Old)
		if err != nil {
			return result, stageError(StageBackupOriginal, drive, err)
		}
		result.completed(StageBackupOriginal)
	}

	result.Layout, err = bootsector.Analyze(&result.Old)
	if err != nil {
		return result, stageError(StageAnalyze, drive, err)
	}
	result.completed(StageAnalyze)
	log.WithField("variant", result.Layout.Variant.String()).Debug("file system detected")

	reconciled := bootsector.ReconcileGeometry(
		device, drive, result.Layout.Variant, result.Old, log)
	result.completed(StageReconcile)

	selection, err := bootcode.Select(result.Layout.Variant, config, device)
	if err != nil {
		return result, stageError(StageSelect, drive, err)
	}
	if !selection.External() {
		result.Template = selection.Template.ID
		err = checkPlaceholder(selection.Template, config)
		if err != nil {
			return result, stageError(StageSelect, drive, err)
		}
		if selection.Template.Style == dossys.StyleOEMCompatible {
			log.Info("Using OEM (PC/MS-DOS) compatible boot sector.")
		}
	}
	result.completed(StageSelect)

	result.New, err = patcher.Patch(selection, &reconciled, result.Layout, config, log)
	if err != nil {
		return result, stageError(StagePatch, drive, err)
	}
	result.completed(StagePatch)

	err = Commit(device, &result, config, selection, log)
	return result, err
}

// checkPlaceholder refuses to put boot code that can't boot on the volume unless
// the caller asked for it.
func checkPlaceholder(template *bootcode.Template, config *dossys.BootConfig) error {
	if !template.Placeholder || !config.WriteLive || config.AllowPlaceholderBootCode {
		return nil
	}
	return dossys.ErrFeatureNotAvailable.WithMessage(
		fmt.Sprintf(
			"built-in boot code %s is a placeholder that cannot boot; refusing to write it"+
				" to the volume without explicit permission",
			template.ID))
}

// Commit writes the patched boot sector in `result` to the volume, the FAT32
// backup boot sector, and the output file, as `config` requests. For
// OEM-compatible boot code it then reorders the root directory.
//
// The caller must hold the device's lock.
func Commit(
	device dossys.SectorDevice,
	result *Result,
	config *dossys.BootConfig,
	selection bootcode.Selection,
	log logrus.FieldLogger,
) error {
	drive := device.Drive()

	if config.WriteLive {
		log.Debugf("Writing new bootsector to drive %s", drive)
		err := device.WriteSector(0, &result.New)
		if err != nil {
			return stageError(StageWriteLive, drive, deviceError(err))
		}
		result.completed(StageWriteLive)

		if result.Layout.Variant == dossys.VariantFAT32 && !config.SkipBackupCopy {
			backup := dossys.LBA(
				binary.LittleEndian.Uint16(result.New[bootsector.BackupBootOffset:]))
			log.WithField("lba", backup).Debug("writing backup bootsector")

			err = device.WriteSector(backup, &result.New)
			if err != nil {
				return stageError(StageWriteBackup, drive, deviceError(err))
			}
			result.completed(StageWriteBackup)
		}
	}

	if config.OutputPath != "" {
		log.Debugf("writing new bootsector to file %s", config.OutputPath)
		err := sectorio.WriteSectorFile(config.OutputPath, &result.New)
		if err != nil {
			return stageError(StageWriteFile, drive, err)
		}
		result.completed(StageWriteFile)
	}

	if !config.WriteLive || selection.External() ||
		selection.Template.Style != dossys.StyleOEMCompatible {
		return nil
	}

	if config.SecondaryName == "" {
		log.Debug("flavor has no secondary system file; root directory left alone")
		return nil
	}

	err := rootdir.Fixup(
		device,
		result.Layout,
		bootsector.EncodeShortName(config.KernelName),
		bootsector.EncodeShortName(config.SecondaryName),
		log)
	if err != nil {
		return stageError(StageFixupRootDir, drive, err)
	}
	result.completed(StageFixupRootDir)
	return nil
}
