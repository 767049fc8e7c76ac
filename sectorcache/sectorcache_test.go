package sectorcache_test

import (
	"testing"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/sectorcache"
	dstest "github.com/dargueta/dossys/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledSector(value byte) dossys.Sector {
	var sector dossys.Sector
	for i := range sector {
		sector[i] = value
	}
	return sector
}

func newDevice(t *testing.T) *dstest.MemoryDevice {
	device := dstest.NewMemoryDevice(t, 16, 2)
	for i := 0; i < 16; i++ {
		device.PutSector(dossys.LBA(i), filledSector(byte(i)))
	}
	return device
}

func TestSliceLoadsLazily(t *testing.T) {
	device := newDevice(t)
	cache := sectorcache.New(device, 4, 8)
	assert.EqualValues(t, 8, cache.TotalSectors())
	assert.Equal(t, 8*512, cache.Size())
	assert.Empty(t, device.Events, "nothing should be read on creation")

	data, err := cache.Slice(1, 2)
	require.NoError(t, err)
	require.Len(t, data, 1024)
	assert.EqualValues(t, 5, data[0])
	assert.EqualValues(t, 6, data[512])
	assert.Equal(t, []string{"read 5", "read 6"}, device.Events)

	// A second access doesn't hit the device again.
	_, err = cache.Slice(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"read 5", "read 6", "read 4"}, device.Events)
}

func TestSliceOutOfBounds(t *testing.T) {
	cache := sectorcache.New(newDevice(t), 4, 8)

	_, err := cache.Slice(7, 2)
	assert.ErrorIs(t, err, dossys.ErrInvalidArgument)

	_, err = cache.Slice(8, 0)
	assert.NoError(t, err)
}

func TestFlushWritesOnlyDirtySectors(t *testing.T) {
	device := newDevice(t)
	cache := sectorcache.New(device, 4, 8)

	data, err := cache.Data()
	require.NoError(t, err)

	data[3*512] = 0xFF
	data[6*512+10] = 0xEE
	require.NoError(t, cache.MarkDirty(3, 1))
	require.NoError(t, cache.MarkDirty(6, 1))
	assert.True(t, cache.IsDirty(3))
	assert.False(t, cache.IsDirty(4))

	device.Events = nil
	require.NoError(t, cache.Flush())
	assert.Equal(t, []string{"write 7", "write 10"}, device.Events)
	assert.False(t, cache.IsDirty(3))

	written := device.GetSector(7)
	assert.EqualValues(t, 0xFF, written[0])
	assert.EqualValues(t, 7, written[1])
	written = device.GetSector(10)
	assert.EqualValues(t, 0xEE, written[10])

	// Flushing again with nothing dirty writes nothing.
	device.Events = nil
	require.NoError(t, cache.Flush())
	assert.Empty(t, device.Events)
}

func TestMarkDirtyRequiresLoadedSectors(t *testing.T) {
	cache := sectorcache.New(newDevice(t), 0, 4)
	err := cache.MarkDirty(0, 1)
	assert.ErrorIs(t, err, dossys.ErrInvalidArgument)
}

func TestReadFailure(t *testing.T) {
	device := newDevice(t)
	device.FailReads[2] = dossys.ErrDeviceIO.WithMessage("bad sector")
	cache := sectorcache.New(device, 0, 4)

	_, err := cache.Slice(0, 4)
	assert.ErrorIs(t, err, dossys.ErrDeviceIO)
}

func TestWriteFailureKeepsSectorDirty(t *testing.T) {
	device := newDevice(t)
	device.FailWrites[1] = dossys.ErrDeviceIO.WithMessage("write protected")
	cache := sectorcache.New(device, 0, 4)

	_, err := cache.Slice(0, 2)
	require.NoError(t, err)
	require.NoError(t, cache.MarkDirty(0, 2))

	err = cache.Flush()
	assert.ErrorIs(t, err, dossys.ErrDeviceIO)
	assert.False(t, cache.IsDirty(0))
	assert.True(t, cache.IsDirty(1))
}
