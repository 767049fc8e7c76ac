package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/bootcode"
	"github.com/dargueta/dossys/bootsector"
	"github.com/dargueta/dossys/config"
	"github.com/dargueta/dossys/installer"
	"github.com/dargueta/dossys/sectorio"
	"github.com/dargueta/dossys/sysfiles"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// defaults is the YAML defaults file, loaded before any command runs.
var defaults = &config.File{}

func setUp(c *cli.Context) error {
	file, err := config.Load(c.String("config"), os.Getenv)
	if err != nil {
		return err
	}
	defaults = file

	if c.Bool("verbose") || defaults.Verbose {
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func requireArgs(c *cli.Context, count int) error {
	if c.NArg() != count {
		return fmt.Errorf(
			"%s: expected %d argument(s) (%s), got %d",
			c.Command.Name, count, c.Command.ArgsUsage, c.NArg())
	}
	return nil
}

// openTarget opens the volume named by the first argument.
func openTarget(c *cli.Context) (*sectorio.FileDevice, error) {
	target, err := defaults.ResolveTarget(c.Args().First())
	if err != nil {
		return nil, err
	}

	if letter := c.String("drive"); letter != "" {
		target.Drive, err = dossys.ParseDriveLetter(letter)
		if err != nil {
			return nil, err
		}
		target.DriveSet = true
	}

	device, err := sectorio.Open(target, log.StandardLogger())
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", target, err)
	}
	return device, nil
}

func overridesFromFlags(c *cli.Context) config.Overrides {
	return config.Overrides{
		Flavor:             c.String("flavor"),
		Source:             os.DirFS(c.String("source")),
		Kernel:             c.String("kernel"),
		LoadSegment:        c.String("load-segment"),
		BootDrive:          c.String("boot-drive"),
		Force:              c.StringSlice("force"),
		BackupOriginalPath: c.String("backup-original"),
		OutputPath:         c.String("output"),
		Both:               c.Bool("both"),
		SkipBackupCopy:     c.Bool("skip-backup-copy"),
		DisableOEM:         c.Bool("no-oem"),
		DisableFAT32:       c.Bool("no-fat32"),

		AllowPlaceholderBootCode: c.Bool("allow-placeholder-boot-code"),
	}
}

func transferMode(c *cli.Context) sysfiles.Mode {
	switch {
	case c.Bool("bootonly"):
		return sysfiles.TransferNone
	case c.Bool("update"):
		return sysfiles.TransferKernel
	default:
		return sysfiles.TransferAll
	}
}

func installAction(c *cli.Context) error {
	err := requireArgs(c, 1)
	if err != nil {
		return err
	}

	// Check this before touching the volume.
	mode := transferMode(c)
	mountPoint := c.String("mount")
	if mode != sysfiles.TransferNone && mountPoint == "" {
		return fmt.Errorf(
			"%s: --mount is required to copy the system files; use --bootonly to only install the boot sector",
			c.Command.Name)
	}

	device, err := openTarget(c)
	if err != nil {
		return err
	}
	defer device.Close()

	bootConfig, flavor, err := config.Resolve(device.Drive(), defaults, overridesFromFlags(c))
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"flavor": flavor.Slug,
		"kernel": bootConfig.KernelName,
	}).Debug("configuration resolved")

	log.Info("Processing boot sector...")
	_, err = installer.Install(device, &bootConfig, log.StandardLogger())
	if err != nil {
		return err
	}

	plan := sysfiles.PlanFor(&bootConfig, mode)
	plan.KernelSource = c.String("kernel-source")
	plan.Shell = c.String("shell")

	err = sysfiles.Transfer(c.String("source"), mountPoint, plan, os.Getenv, log.StandardLogger())
	if err != nil {
		return err
	}

	log.Info("System transferred.")
	return nil
}

func dumpAction(c *cli.Context) error {
	err := requireArgs(c, 2)
	if err != nil {
		return err
	}

	device, err := openTarget(c)
	if err != nil {
		return err
	}
	defer device.Close()

	return installer.Dump(device, c.Args().Get(1), log.StandardLogger())
}

func restoreAction(c *cli.Context) error {
	err := requireArgs(c, 2)
	if err != nil {
		return err
	}

	device, err := openTarget(c)
	if err != nil {
		return err
	}
	defer device.Close()

	return installer.Restore(device, c.Args().Get(1), log.StandardLogger())
}

func putAction(c *cli.Context) error {
	err := requireArgs(c, 2)
	if err != nil {
		return err
	}

	device, err := openTarget(c)
	if err != nil {
		return err
	}
	defer device.Close()

	bootConfig, _, err := config.Resolve(device.Drive(), defaults, overridesFromFlags(c))
	if err != nil {
		return err
	}

	log.Info("Processing boot sector...")
	_, err = installer.PutExternal(device, c.Args().Get(1), bootConfig, log.StandardLogger())
	return err
}

func templatesAction(c *cli.Context) error {
	writer := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tFILE SYSTEM\tSTYLE\tADDRESSING\tCONTRACT\tBOOTABLE")

	var result error
	for _, template := range bootcode.All() {
		status := "ok"
		err := template.Validate()
		if err != nil {
			status = "BROKEN"
			result = multierror.Append(result, err)
		}
		bootable := "yes"
		if template.Placeholder {
			bootable = "no (placeholder)"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			template.ID,
			template.Variant,
			template.Style,
			template.Addressing,
			status,
			bootable)
	}

	err := writer.Flush()
	if err != nil {
		return err
	}
	return result
}

func infoAction(c *cli.Context) error {
	err := requireArgs(c, 1)
	if err != nil {
		return err
	}

	device, err := openTarget(c)
	if err != nil {
		return err
	}
	defer device.Close()

	image, err := device.ReadSector(0)
	if err != nil {
		return err
	}
	layout, err := bootsector.Analyze(&image)
	if err != nil {
		return err
	}

	bs := layout.BootSector
	geometry := bs.Geometry()
	kernel := image[bootsector.KernelNameOffset : bootsector.KernelNameOffset+bootsector.KernelNameLength]

	writer := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Drive:\t%s\n", device.Drive())
	fmt.Fprintf(writer, "File system:\t%s\n", layout.Variant)
	fmt.Fprintf(writer, "OEM name:\t%q\n", strings.TrimRight(string(bs.OEMName[:]), " \x00"))
	fmt.Fprintf(writer, "Total sectors:\t%d\n", bs.TotalSectors())
	fmt.Fprintf(writer, "Sectors per cluster:\t%d\n", bs.SectorsPerCluster)
	fmt.Fprintf(writer, "Clusters:\t%d\n", layout.Clusters)
	fmt.Fprintf(writer, "Reserved sectors:\t%d\n", bs.ReservedSectors)
	fmt.Fprintf(writer, "FATs:\t%d x %d sectors\n", bs.NumFATs, bs.SectorsPerFAT())
	fmt.Fprintf(writer, "Root directory:\tsector %d, %d sectors\n", layout.RootSector, layout.RootDirSectors)
	fmt.Fprintf(writer, "Sectors per track:\t%d\n", geometry.SectorsPerTrack)
	fmt.Fprintf(writer, "Heads:\t%d\n", geometry.Heads)
	fmt.Fprintf(writer, "Hidden sectors:\t%d\n", geometry.HiddenSectors)

	if layout.Variant == dossys.VariantFAT32 {
		fmt.Fprintf(writer, "Drive number:\t0x%02X\n", bs.FAT32.DriveNumber)
		fmt.Fprintf(writer, "Backup boot sector:\t%d\n", bs.FAT32.BackupBootSector)
	} else {
		fmt.Fprintf(writer, "Drive number:\t0x%02X\n", bs.FAT16.DriveNumber)
	}
	fmt.Fprintf(writer, "Kernel:\t%q\n", strings.TrimRight(string(kernel), " \x00"))
	return writer.Flush()
}
