// Package config resolves the [dossys.BootConfig] for one run from the flavor
// table, an optional YAML defaults file, and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/flavors"
	"github.com/dargueta/dossys/sectorio"
	"gopkg.in/yaml.v2"
)

// EnvConfigPath is the environment variable naming the defaults file when
// --config isn't given.
const EnvConfigPath = "DOSSYS_CONFIG"

// AutoFlavor asks for the flavor to be detected from the source directory.
const AutoFlavor = "AUTO"

// File is the YAML defaults file.
type File struct {
	Flavor string `yaml:"flavor,omitempty"`
	Kernel string `yaml:"kernel,omitempty"`
	// LoadSegment and BootDrive are hexadecimal, with or without a leading "0x".
	LoadSegment    string   `yaml:"load_segment,omitempty"`
	BootDrive      string   `yaml:"boot_drive,omitempty"`
	Force          []string `yaml:"force,omitempty"`
	Verbose        bool     `yaml:"verbose,omitempty"`
	SkipBackupCopy bool     `yaml:"skip_backup_copy,omitempty"`
	// Drives maps DOS drive letters ("C:") to an image file or block device,
	// optionally followed by "@N" to select MBR partition N.
	Drives map[string]string `yaml:"drives,omitempty"`
}

// Parse decodes a defaults file. Unknown keys are an error.
func Parse(data []byte) (*File, error) {
	var file File
	err := yaml.UnmarshalStrict(data, &file)
	if err != nil {
		return nil, dossys.ErrInvalidArgument.Wrap(err)
	}

	for letter := range file.Drives {
		_, err = dossys.ParseDriveLetter(letter)
		if err != nil {
			return nil, fmt.Errorf("drives: %w", err)
		}
	}
	return &file, nil
}

// Load reads the defaults file at `path`. If `path` is empty, the file named by
// $DOSSYS_CONFIG is used; if that isn't set either, an empty File is returned.
func Load(path string, getenv func(string) string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = getenv(EnvConfigPath)
		if path == "" {
			return &File{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &File{}, nil
		}
		return nil, err
	}

	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// ResolveTarget turns the target argument of a command into a
// [sectorio.Target]. A bare drive letter is looked up in the file's drives map
// and makes the volume that drive; anything else is a path as accepted by
// [sectorio.ParseTarget].
func (f *File) ResolveTarget(argument string) (sectorio.Target, error) {
	drive, err := dossys.ParseDriveLetter(argument)
	if err != nil {
		return sectorio.ParseTarget(argument)
	}

	for letter, path := range f.Drives {
		mapped, _ := dossys.ParseDriveLetter(letter)
		if mapped != drive {
			continue
		}

		target, err := sectorio.ParseTarget(path)
		if err != nil {
			return target, fmt.Errorf("drives: %s: %w", letter, err)
		}
		target.Drive = drive
		target.DriveSet = true
		return target, nil
	}
	return sectorio.Target{}, dossys.ErrNotFound.WithMessage(
		fmt.Sprintf("drive %s isn't in the drives map of the configuration file", drive))
}

// Overrides are the values given on the command line. Empty strings and nil
// slices mean "not given".
type Overrides struct {
	// Flavor is a flavor slug or [AutoFlavor].
	Flavor string
	// Source is the directory the system files come from. It's only used to
	// detect the flavor and may be nil.
	Source fs.FS

	Kernel      string
	LoadSegment string
	BootDrive   string
	Force       []string

	ExternalBootCode   string
	BackupOriginalPath string
	OutputPath         string
	// Both writes the boot sector to the volume as well as to OutputPath.
	Both           bool
	SkipBackupCopy bool

	DisableOEM   bool
	DisableFAT32 bool

	AllowPlaceholderBootCode bool
}

// resolver accumulates the values that were explicitly given, in increasing
// order of precedence.
type resolver struct {
	kernel      string
	loadSegment *uint16
	bootDrive   *uint8
	force       dossys.ForceMode
	ignoreBIOS  *bool
}

func (r *resolver) apply(kernel, loadSegment, bootDrive string, force []string) error {
	if kernel != "" {
		r.kernel = strings.ToUpper(kernel)
	}

	if loadSegment != "" {
		value, err := parseHex(loadSegment, 16)
		if err != nil {
			return fmt.Errorf("load segment: %w", err)
		}
		segment := uint16(value)
		r.loadSegment = &segment
	}

	if bootDrive != "" {
		value, err := parseHex(bootDrive, 8)
		if err != nil {
			return fmt.Errorf("boot drive: %w", err)
		}
		number := uint8(value)
		r.bootDrive = &number
	}

	for _, option := range force {
		switch strings.ToLower(option) {
		case "bsdrv", "drv":
			r.setIgnoreBIOS(true)
		case "biosdrv":
			r.setIgnoreBIOS(false)
		default:
			mode, err := dossys.ParseForceMode(option)
			if err != nil {
				return err
			}
			r.force = mode
		}
	}
	return nil
}

func (r *resolver) setIgnoreBIOS(value bool) {
	r.ignoreBIOS = &value
}

func parseHex(value string, bits int) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(value), "0x")
	parsed, err := strconv.ParseUint(trimmed, 16, bits)
	if err != nil {
		return 0, dossys.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q isn't a %d-bit hexadecimal number", value, bits))
	}
	return parsed, nil
}

func pickFlavor(slug string, source fs.FS) (flavors.Flavor, error) {
	if slug == "" || strings.EqualFold(slug, AutoFlavor) {
		if source == nil {
			return flavors.Lookup(flavors.FreeDOS)
		}
		return flavors.DetectOrDefault(source), nil
	}
	return flavors.Lookup(slug)
}

// Resolve builds the configuration for installing on `drive`.
//
// Values are taken from the flavor, then the defaults file, then the command
// line, each overriding the last. The minimum size of the secondary file and
// the boot code style always come from the flavor.
func Resolve(
	drive dossys.DriveID,
	file *File,
	overrides Overrides,
) (dossys.BootConfig, flavors.Flavor, error) {
	if file == nil {
		file = &File{}
	}

	slug := overrides.Flavor
	if slug == "" {
		slug = file.Flavor
	}
	flavor, err := pickFlavor(slug, overrides.Source)
	if err != nil {
		return dossys.BootConfig{}, flavor, err
	}

	var r resolver
	err = r.apply(file.Kernel, file.LoadSegment, file.BootDrive, file.Force)
	if err != nil {
		return dossys.BootConfig{}, flavor, fmt.Errorf("configuration file: %w", err)
	}
	err = r.apply(overrides.Kernel, overrides.LoadSegment, overrides.BootDrive, overrides.Force)
	if err != nil {
		return dossys.BootConfig{}, flavor, err
	}

	config := dossys.BootConfig{
		Drive:              drive,
		KernelName:         flavor.Kernel,
		SecondaryName:      flavor.Secondary,
		MinSecondarySize:   flavor.MinSize,
		LoadSegment:        uint16(flavor.LoadSegment),
		Style:              flavor.BootCode.BootCodeStyle(),
		Force:              r.force,
		SkipBackupCopy:     file.SkipBackupCopy || overrides.SkipBackupCopy,
		ExternalBootCode:   overrides.ExternalBootCode,
		BackupOriginalPath: overrides.BackupOriginalPath,
		OutputPath:         overrides.OutputPath,
		WriteLive:          overrides.OutputPath == "" || overrides.Both,

		AllowPlaceholderBootCode: overrides.AllowPlaceholderBootCode,

		Features: dossys.Features{
			OEMCompatible: !overrides.DisableOEM,
			FAT32:         !overrides.DisableFAT32,
		},
	}

	if r.kernel != "" {
		config.KernelName = r.kernel
	}
	if r.loadSegment != nil {
		config.LoadSegment = *r.loadSegment
	}

	// Floppies use the drive number stored in the boot sector unless told
	// otherwise. Everything else trusts the BIOS.
	if r.ignoreBIOS != nil {
		config.IgnoreBIOS = *r.ignoreBIOS
	} else {
		config.IgnoreBIOS = drive.IsFloppy()
	}

	if r.bootDrive != nil {
		config.BootDrive = *r.bootDrive
	}
	if config.BootDrive == 0 && !drive.IsFloppy() {
		config.BootDrive = 0x80
	}

	return config, flavor, nil
}
