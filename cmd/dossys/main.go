package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var defaultLogFormatter = &log.TextFormatter{}

// infoFormatter prints Info events as bare lines so progress output reads like
// a normal command line tool, and everything else with the usual formatter.
type infoFormatter struct{}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

// targetFlags are shared by every command that opens a volume.
func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "drive",
			Usage: "DOS drive letter the volume becomes, e.g. C:. Inferred from the target if not given.",
		},
	}
}

// installFlags mirror the fields of the boot configuration. They include
// targetFlags.
func installFlags() []cli.Flag {
	return append(targetFlags(), []cli.Flag{
		&cli.StringFlag{
			Name:  "flavor",
			Usage: "DOS flavor of the system files: FD, EDR, DR, PC, MS, W9x, RX, DE, or AUTO",
		},
		&cli.StringFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "directory to copy the system files from",
			Value:   ".",
		},
		&cli.StringFlag{
			Name:    "mount",
			Aliases: []string{"m"},
			Usage:   "directory the target volume is mounted at, for copying the system files",
		},
		&cli.StringFlag{
			Name:    "kernel",
			Aliases: []string{"k"},
			Usage:   "name of the kernel file the boot sector loads",
		},
		&cli.StringFlag{
			Name:  "kernel-source",
			Usage: "name of the kernel file in the source directory, if different",
		},
		&cli.StringFlag{
			Name:  "shell",
			Usage: "command shell to copy as COMMAND.COM",
		},
		&cli.StringFlag{
			Name:    "load-segment",
			Aliases: []string{"l"},
			Usage:   "segment (hex) the kernel is loaded to",
		},
		&cli.StringFlag{
			Name:  "boot-drive",
			Usage: "BIOS drive number (hex) stored in the boot sector",
		},
		&cli.StringSliceFlag{
			Name:  "force",
			Usage: "auto, chs, lba, bsdrv, or biosdrv; may be repeated",
		},
		&cli.StringFlag{
			Name:  "backup-original",
			Usage: "save the boot sector found on the volume to this file first",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the new boot sector to this file instead of the volume",
		},
		&cli.BoolFlag{
			Name:  "both",
			Usage: "with --output, write the boot sector to the volume as well",
		},
		&cli.BoolFlag{
			Name:  "skip-backup-copy",
			Usage: "don't mirror the boot sector to the FAT32 backup boot sector",
		},
		&cli.BoolFlag{
			Name:  "bootonly",
			Usage: "only install the boot sector; don't copy any files",
		},
		&cli.BoolFlag{
			Name:  "update",
			Usage: "copy the kernel and secondary file but not the shell",
		},
		&cli.BoolFlag{
			Name:  "no-oem",
			Usage: "disable the PC/MS-DOS compatible boot sectors",
		},
		&cli.BoolFlag{
			Name:  "no-fat32",
			Usage: "refuse to install on FAT32 volumes",
		},
		&cli.BoolFlag{
			Name:  "allow-placeholder-boot-code",
			Usage: "write the built-in boot code to the volume even though it can't boot yet",
		},
	}...)
}

func main() {
	log.SetFormatter(new(infoFormatter))
	log.SetLevel(log.InfoLevel)

	app := newApp()
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("%s: %s", app.Name, err.Error())
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dossys",
		Usage: "Install DOS boot sectors and system files on FAT volumes",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "print debug output",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML defaults file (default $DOSSYS_CONFIG)",
			},
		},
		Before: setUp,
		Commands: []*cli.Command{
			{
				Name:      "install",
				Usage:     "Install a boot sector and copy the system files",
				Action:    installAction,
				ArgsUsage: "TARGET",
				Flags:     installFlags(),
			},
			{
				Name:      "dump",
				Usage:     "Save the boot sector of a volume to a file",
				Action:    dumpAction,
				ArgsUsage: "TARGET FILE",
				Flags:     targetFlags(),
			},
			{
				Name:      "restore",
				Usage:     "Write a boot sector saved with dump back to a volume",
				Action:    restoreAction,
				ArgsUsage: "TARGET FILE",
				Flags:     targetFlags(),
			},
			{
				Name:      "put",
				Usage:     "Install boot code from a file, adjusting only the BPB",
				Action:    putAction,
				ArgsUsage: "TARGET FILE",
				Flags:     installFlags(),
			},
			{
				Name:   "templates",
				Usage:  "List the built-in boot code templates and verify them",
				Action: templatesAction,
			},
			{
				Name:      "info",
				Usage:     "Print what the boot sector of a volume describes",
				Action:    infoAction,
				ArgsUsage: "TARGET",
				Flags:     targetFlags(),
			},
		},
	}
}
