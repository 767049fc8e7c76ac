package dossys

// Features toggles optional parts of the installer at runtime.
type Features struct {
	// OEMCompatible enables the boot code compatible with PC/MS-DOS style
	// kernels.
	OEMCompatible bool
	// FAT32 enables installation on FAT32 volumes.
	FAT32 bool
}

// AllFeatures has every optional feature enabled.
var AllFeatures = Features{OEMCompatible: true, FAT32: true}

// BootConfig is the fully resolved configuration of one installation. It is
// built once, before the target volume is touched, and never modified after.
type BootConfig struct {
	// Drive must be the drive of the device the configuration is used with.
	Drive DriveID

	// KernelName is the name of the kernel file the boot code loads, e.g.
	// "KERNEL.SYS".
	KernelName string
	// SecondaryName is the second system file some DOS flavors need, e.g.
	// "MSDOS.SYS". Empty if there is none.
	SecondaryName string
	// MinSecondarySize is the smallest size the secondary file can have and
	// still be valid. 0 means the secondary file is optional.
	MinSecondarySize int64

	// LoadSegment is the segment the standard boot code loads the kernel to. For
	// OEM-compatible boot code it's the offset of the far jump into the kernel.
	LoadSegment uint16
	Style       BootCodeStyle
	Force       ForceMode

	// IgnoreBIOS makes the boot code always use BootDrive instead of the drive
	// number the BIOS passes in at boot time.
	IgnoreBIOS bool
	BootDrive  uint8

	// SkipBackupCopy suppresses mirroring the new boot sector to the FAT32
	// backup boot sector.
	SkipBackupCopy bool

	// ExternalBootCode is the path to a 512-byte file to use instead of the
	// built-in templates.
	ExternalBootCode string
	// BackupOriginalPath is where to save the boot sector found on the volume
	// before it's replaced.
	BackupOriginalPath string
	// OutputPath is a file to write the new boot sector to. Only its first 512
	// bytes are touched.
	OutputPath string
	// WriteLive controls whether the new boot sector is written to the volume.
	WriteLive bool
	// AllowPlaceholderBootCode permits writing a built-in template that can't
	// actually boot to the volume. Writing one to OutputPath is always allowed.
	AllowPlaceholderBootCode bool

	Features Features
}
