package bootcode

import (
	"bytes"
	"fmt"

	"github.com/dargueta/dossys"
)

// PatchKind says what the installer does with a contract point.
type PatchKind int

const (
	// PatchEntryJump is the short jump over the BPB. Never modified; checked so
	// that the copied BPB can't land on top of code.
	PatchEntryJump PatchKind = iota
	// PatchAddressingProbe is the `test dl, dl` deciding between the CHS and LBA
	// read routines of the FAT12/16 boot code. The conditional jump following
	// it is NOPed out to force LBA, or the test is turned into `xor dl, dl` to
	// force CHS.
	PatchAddressingProbe
	// PatchLoadSegment is the segment word of the far pointer the kernel is
	// loaded to.
	PatchLoadSegment
	// PatchJumpTarget is the offset word of the far jump into the kernel of
	// OEM-compatible boot code.
	PatchJumpTarget
	// PatchDriveOverride is the `mov [bp+x], dl` storing the BIOS drive number
	// over the one in the BPB. NOPed out when the BPB value must be trusted.
	PatchDriveOverride
	// PatchKernelName is the 8.3 name of the kernel file, followed by a NUL.
	PatchKernelName
	// PatchSignature is the 55 AA boot signature.
	PatchSignature
)

func (k PatchKind) String() string {
	switch k {
	case PatchEntryJump:
		return "entry jump"
	case PatchAddressingProbe:
		return "addressing probe"
	case PatchLoadSegment:
		return "load segment"
	case PatchJumpTarget:
		return "jump target"
	case PatchDriveOverride:
		return "drive override"
	case PatchKernelName:
		return "kernel name"
	case PatchSignature:
		return "signature"
	default:
		return fmt.Sprintf("PatchKind(%d)", int(k))
	}
}

// ContractPoint is a location in a template that the installer depends on. The
// template must contain Expected at Offset before any patching takes place.
type ContractPoint struct {
	Offset   int
	Expected []byte
	Kind     PatchKind
}

// Matches reports whether `code` contains the expected bytes at the point.
func (p ContractPoint) Matches(code *dossys.Sector) bool {
	end := p.Offset + len(p.Expected)
	if p.Offset < 0 || end > len(code) {
		return false
	}
	return bytes.Equal(code[p.Offset:end], p.Expected)
}

// Contract is the full set of contract points of one template.
type Contract []ContractPoint

// Point returns the contract point of the given kind, if the contract has one.
func (c Contract) Point(kind PatchKind) (ContractPoint, bool) {
	for _, point := range c {
		if point.Kind == kind {
			return point, true
		}
	}
	return ContractPoint{}, false
}

// Verify checks every point of the contract against `code`. The error names the
// first point that doesn't match.
func (c Contract) Verify(code *dossys.Sector) error {
	mismatch, ok := c.firstMismatch(code)
	if ok {
		return dossys.ErrUnexpectedTemplateLayout.WithMessage(mismatch)
	}
	return nil
}

func (c Contract) firstMismatch(code *dossys.Sector) (string, bool) {
	for _, point := range c {
		if point.Matches(code) {
			continue
		}

		end := point.Offset + len(point.Expected)
		if end > len(code) {
			end = len(code)
		}
		return fmt.Sprintf(
			"%s at %#x: expected % X, found % X",
			point.Kind,
			point.Offset,
			point.Expected,
			code[point.Offset:end]), true
	}
	return "", false
}

// Opcodes the contract points are built from.
var (
	opTestDLDL       = []byte{0x84, 0xD2}
	opMovDriveDL     = []byte{0x88, 0x56}
	opShortJumpFAT16 = []byte{0xEB, 0x3C}
	opShortJumpFAT32 = []byte{0xEB, 0x58}
	defaultLoadSeg   = []byte{0x60, 0x00}
	oemFarJumpTarget = []byte{0x00, 0x00, 0x70, 0x00}
	bootSignature    = []byte{0x55, 0xAA}
	defaultKernel    = []byte("KERNEL  SYS\x00")
)

// Fixed opcodes written by the patcher.
const (
	OpNOP    = 0x90
	OpXorRM8 = 0x30
)

// Patch locations in the built-in templates. If a template changes, these must
// change with it; the contract tests fail otherwise.
const (
	ProbeOffsetFAT12         = 0x178
	ProbeOffsetFAT16         = 0x175
	LoadSegmentOffsetFAT16   = 0x5C
	LoadSegmentOffsetFAT32   = 0x78
	DriveOverrideOffsetFAT16 = 0x66
	DriveOverrideOffsetFAT32 = 0x82
	DriveOverrideOffsetOEM   = 0x4F
	JumpTargetOffsetOEMFAT12 = 0x11C
	JumpTargetOffsetOEMFAT16 = 0x119
	KernelNameOffset         = 0x1F1
	SignatureOffset          = 0x1FE
)

func commonTail() Contract {
	return Contract{
		{Offset: KernelNameOffset, Expected: defaultKernel, Kind: PatchKernelName},
		{Offset: SignatureOffset, Expected: bootSignature, Kind: PatchSignature},
	}
}

func standardFAT16Contract(probeOffset int) Contract {
	return append(
		Contract{
			{Offset: 0, Expected: opShortJumpFAT16, Kind: PatchEntryJump},
			{Offset: LoadSegmentOffsetFAT16, Expected: defaultLoadSeg, Kind: PatchLoadSegment},
			{Offset: DriveOverrideOffsetFAT16, Expected: opMovDriveDL, Kind: PatchDriveOverride},
			{Offset: probeOffset, Expected: opTestDLDL, Kind: PatchAddressingProbe},
		},
		commonTail()...,
	)
}

func standardFAT32Contract() Contract {
	return append(
		Contract{
			{Offset: 0, Expected: opShortJumpFAT32, Kind: PatchEntryJump},
			{Offset: LoadSegmentOffsetFAT32, Expected: defaultLoadSeg, Kind: PatchLoadSegment},
			{Offset: DriveOverrideOffsetFAT32, Expected: opMovDriveDL, Kind: PatchDriveOverride},
		},
		commonTail()...,
	)
}

func oemContract(jumpTargetOffset int) Contract {
	return append(
		Contract{
			{Offset: 0, Expected: opShortJumpFAT16, Kind: PatchEntryJump},
			{Offset: DriveOverrideOffsetOEM, Expected: opMovDriveDL, Kind: PatchDriveOverride},
			{Offset: jumpTargetOffset, Expected: oemFarJumpTarget, Kind: PatchJumpTarget},
		},
		commonTail()...,
	)
}
