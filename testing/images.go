package testing

import (
	"fmt"
	"io"
	"testing"

	"github.com/dargueta/dossys"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// MemoryDevice is a [dossys.SectorDevice] backed by an in-memory image. Every
// call made on it is recorded in Events so tests can check the order in which
// the volume was accessed.
type MemoryDevice struct {
	t            *testing.T
	stream       io.ReadWriteSeeker
	totalSectors uint
	drive        dossys.DriveID
	locked       bool

	// Geometry is returned by QueryDefaultBPB. If nil, the query fails with
	// [dossys.ErrNotSupported].
	Geometry *dossys.GeometryFragment
	// GeometryHints records the variant passed to every QueryDefaultBPB call.
	GeometryHints []dossys.FileSystemVariant
	LBASupport    bool

	// FailReads and FailWrites make ReadSector and WriteSector fail for the
	// given sectors.
	FailReads  map[dossys.LBA]error
	FailWrites map[dossys.LBA]error
	FailLock   error

	Events []string
}

// NewMemoryDevice creates a zero-filled device of `totalSectors` sectors.
func NewMemoryDevice(t *testing.T, totalSectors uint, drive dossys.DriveID) *MemoryDevice {
	imageBytes := make([]byte, totalSectors*dossys.SectorSize)
	return &MemoryDevice{
		t:            t,
		stream:       bytesextra.NewReadWriteSeeker(imageBytes),
		totalSectors: totalSectors,
		drive:        drive,
		FailReads:    map[dossys.LBA]error{},
		FailWrites:   map[dossys.LBA]error{},
	}
}

// NewMemoryDeviceWithBootSector creates a device and puts `bootSector` in
// sector 0 of it.
func NewMemoryDeviceWithBootSector(
	t *testing.T, totalSectors uint, drive dossys.DriveID, bootSector dossys.Sector,
) *MemoryDevice {
	device := NewMemoryDevice(t, totalSectors, drive)
	device.PutSector(0, bootSector)
	return device
}

func (d *MemoryDevice) seek(lba dossys.LBA) error {
	if uint(lba) >= d.totalSectors {
		return dossys.ErrDeviceIO.WithMessage(
			fmt.Sprintf("sector %d not in [0, %d)", lba, d.totalSectors))
	}
	_, err := d.stream.Seek(int64(lba)*dossys.SectorSize, io.SeekStart)
	return err
}

// PutSector writes a sector directly without recording an event.
func (d *MemoryDevice) PutSector(lba dossys.LBA, data dossys.Sector) {
	require.NoError(d.t, d.seek(lba))
	_, err := d.stream.Write(data[:])
	require.NoErrorf(d.t, err, "failed to initialize sector %d", lba)
}

// GetSector reads a sector directly without recording an event.
func (d *MemoryDevice) GetSector(lba dossys.LBA) dossys.Sector {
	var data dossys.Sector
	require.NoError(d.t, d.seek(lba))
	_, err := io.ReadFull(d.stream, data[:])
	require.NoErrorf(d.t, err, "failed to read back sector %d", lba)
	return data
}

func (d *MemoryDevice) Drive() dossys.DriveID {
	return d.drive
}

func (d *MemoryDevice) ReadSector(lba dossys.LBA) (dossys.Sector, error) {
	d.Events = append(d.Events, fmt.Sprintf("read %d", lba))

	var data dossys.Sector
	if err, ok := d.FailReads[lba]; ok {
		return data, err
	}
	if err := d.seek(lba); err != nil {
		return data, err
	}
	_, err := io.ReadFull(d.stream, data[:])
	if err != nil {
		return data, dossys.ErrDeviceIO.Wrap(err)
	}
	return data, nil
}

func (d *MemoryDevice) WriteSector(lba dossys.LBA, data *dossys.Sector) error {
	d.Events = append(d.Events, fmt.Sprintf("write %d", lba))

	if err, ok := d.FailWrites[lba]; ok {
		return err
	}
	if err := d.seek(lba); err != nil {
		return err
	}
	_, err := d.stream.Write(data[:])
	if err != nil {
		return dossys.ErrDeviceIO.Wrap(err)
	}
	return nil
}

func (d *MemoryDevice) Lock() error {
	d.Events = append(d.Events, "lock")
	if d.FailLock != nil {
		return d.FailLock
	}
	if d.locked {
		return dossys.ErrBusy.WithMessage("device is already locked")
	}
	d.locked = true
	return nil
}

func (d *MemoryDevice) Unlock() error {
	d.Events = append(d.Events, "unlock")
	if !d.locked {
		return dossys.ErrInvalidArgument.WithMessage("device is not locked")
	}
	d.locked = false
	return nil
}

// Locked reports whether the device's lock is currently held.
func (d *MemoryDevice) Locked() bool {
	return d.locked
}

func (d *MemoryDevice) HasLBASupport() bool {
	return d.LBASupport
}

func (d *MemoryDevice) QueryDefaultBPB(
	hint dossys.FileSystemVariant,
) (dossys.GeometryFragment, error) {
	d.GeometryHints = append(d.GeometryHints, hint)
	if d.Geometry == nil {
		return dossys.GeometryFragment{}, dossys.ErrNotSupported.WithMessage(
			"no geometry configured for test device")
	}
	return *d.Geometry, nil
}

// Writes returns the sectors written through WriteSector, in order.
func (d *MemoryDevice) Writes() []string {
	writes := []string{}
	for _, event := range d.Events {
		if len(event) > 6 && event[:6] == "write " {
			writes = append(writes, event)
		}
	}
	return writes
}
