// Package sysfiles copies the DOS system files (kernel, secondary DOS file, and
// command shell) onto the volume the boot sector was installed on.
package sysfiles

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dargueta/dossys"
	"github.com/sirupsen/logrus"
)

// DefaultShell is the file name the command shell is copied to, and looked for
// under in the source directory.
const DefaultShell = "COMMAND.COM"

// Mode selects which files are transferred.
type Mode int

const (
	// TransferAll copies the kernel, the secondary file, and the shell.
	TransferAll Mode = iota
	// TransferKernel copies the kernel and the secondary file, but not the
	// shell.
	TransferKernel
	// TransferNone only installs the boot sector.
	TransferNone
)

// Plan lists the files to transfer.
type Plan struct {
	Mode Mode

	// Kernel is the name the kernel is stored under on the destination, e.g.
	// KERNEL.SYS.
	Kernel string
	// KernelSource is the name of the kernel file in the source directory, if
	// different from Kernel.
	KernelSource string

	// Secondary and MinSecondarySize come from the flavor. If MinSecondarySize is
	// 0, failing to copy Secondary isn't an error.
	Secondary        string
	MinSecondarySize int64

	// Shell is the path of the command shell to copy, relative to the source
	// directory. If empty, DefaultShell is used, falling back to the file named
	// by COMSPEC.
	Shell string
}

// PlanFor builds the transfer plan for an installation.
func PlanFor(config *dossys.BootConfig, mode Mode) Plan {
	return Plan{
		Mode:             mode,
		Kernel:           config.KernelName,
		Secondary:        config.SecondaryName,
		MinSecondarySize: config.MinSecondarySize,
	}
}

// Transfer copies the files in `plan` from the directory `source` to the root of
// the mounted volume at `destination`. `getenv` is used to look up COMSPEC; pass
// [os.Getenv].
func Transfer(
	source, destination string,
	plan Plan,
	getenv func(string) string,
	log logrus.FieldLogger,
) error {
	if plan.Mode == TransferNone {
		return nil
	}

	log.Info("Now copying system files...")
	kernelSource := plan.KernelSource
	if kernelSource == "" {
		kernelSource = plan.Kernel
	}

	err := Copy(filepath.Join(source, kernelSource), filepath.Join(destination, plan.Kernel), log)
	if err != nil {
		return fmt.Errorf("cannot copy %q: %w", kernelSource, err)
	}

	if plan.Secondary != "" {
		err = copySecondary(source, destination, plan, log)
		if err != nil {
			return err
		}
	}

	if plan.Mode == TransferKernel {
		return nil
	}

	log.Info("Copying shell (command interpreter)...")
	return copyShell(source, destination, plan.Shell, getenv, log)
}

func copySecondary(source, destination string, plan Plan, log logrus.FieldLogger) error {
	sourcePath := filepath.Join(source, plan.Secondary)

	if plan.MinSecondarySize > 0 {
		info, err := os.Stat(sourcePath)
		if err != nil {
			return fmt.Errorf("cannot copy %q: %w", plan.Secondary, err)
		}
		if info.Size() < plan.MinSecondarySize {
			return dossys.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"%s is %d bytes; expected at least %d",
					plan.Secondary,
					info.Size(),
					plan.MinSecondarySize))
		}
	}

	err := Copy(sourcePath, filepath.Join(destination, plan.Secondary), log)
	if err != nil {
		if plan.MinSecondarySize > 0 {
			return fmt.Errorf("cannot copy %q: %w", plan.Secondary, err)
		}
		log.WithError(err).Debugf("optional file %s not copied", plan.Secondary)
	}
	return nil
}

func copyShell(
	source, destination, override string,
	getenv func(string) string,
	log logrus.FieldLogger,
) error {
	shell := override
	if shell == "" {
		shell = DefaultShell
	}
	target := filepath.Join(destination, DefaultShell)

	err := Copy(filepath.Join(source, shell), target, log)
	if err == nil {
		return nil
	}

	comspec := getenv("COMSPEC")
	if override == "" && comspec != "" {
		log.Infof("Trying shell from %%COMSPEC%%=%q", comspec)
		err = Copy(comspec, target, log)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to find command interpreter (shell) file %s: %w", shell, err)
}

// Copy copies a single file, preserving its modification time. The destination
// is replaced if it exists. Copying a file onto itself does nothing.
func Copy(source, destination string, log logrus.FieldLogger) error {
	sourceAbs, err := filepath.Abs(source)
	if err != nil {
		return err
	}
	destinationAbs, err := filepath.Abs(destination)
	if err != nil {
		return err
	}
	if sourceAbs == destinationAbs {
		log.Infof("source and destination are identical: skipping %q", source)
		return nil
	}

	log.Infof("Copying %s...", source)

	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	info, err := input.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return dossys.ErrInvalidArgument.WithMessage(source + " is a directory")
	}

	available, known, err := freeSpace(filepath.Dir(destinationAbs))
	if err != nil {
		return err
	}
	if known && available < uint64(info.Size()) {
		return dossys.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf("not enough space to transfer %s", filepath.Base(destination)))
	}

	output, err := os.OpenFile(destination, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	copied, err := io.Copy(output, input)
	if err != nil {
		output.Close()
		os.Remove(destination)
		return err
	}

	err = output.Close()
	if err != nil {
		os.Remove(destination)
		return err
	}

	err = os.Chtimes(destination, info.ModTime(), info.ModTime())
	if err != nil {
		return err
	}

	log.Infof("%d Bytes transferred", copied)
	return nil
}
