// Package sectorcache provides a write-back cache over a contiguous run of
// sectors on a volume, presenting them as a single byte slice.
//
// All sector indices passed to the cache are relative to the first sector of the
// run, and begin at 0.
package sectorcache

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/dossys"
)

type SectorCache struct {
	loadedSectors bitmap.Bitmap
	dirtySectors  bitmap.Bitmap
	device        dossys.SectorReadWriter
	first         dossys.LBA
	totalSectors  uint
	data          []byte
}

// New creates a cache over the sectors [first, first + totalSectors) of
// `device`. Nothing is read until a part of the cache is accessed.
func New(device dossys.SectorReadWriter, first dossys.LBA, totalSectors uint) *SectorCache {
	return &SectorCache{
		loadedSectors: bitmap.NewSlice(int(totalSectors)),
		dirtySectors:  bitmap.NewSlice(int(totalSectors)),
		device:        device,
		first:         first,
		totalSectors:  totalSectors,
		data:          make([]byte, totalSectors*dossys.SectorSize),
	}
}

// TotalSectors returns the size of the cache, in sectors.
func (cache *SectorCache) TotalSectors() uint {
	return cache.totalSectors
}

// Size gives the size of the cache, in bytes (not sectors!).
func (cache *SectorCache) Size() int {
	return len(cache.data)
}

func (cache *SectorCache) checkBounds(start, count uint) error {
	if start+count > cache.totalSectors || start+count < start {
		return dossys.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"can't access %d sectors from sector %d; range not in [0, %d)",
				count,
				start,
				cache.totalSectors))
	}
	return nil
}

// Slice returns a slice pointing to the cache's storage, beginning at sector
// `start` and continuing for `count` sectors. Sectors not yet in the cache are
// read from the device.
//
// If the returned slice is modified, the modified sectors MUST be marked as
// dirty with [SectorCache.MarkDirty].
func (cache *SectorCache) Slice(start, count uint) ([]byte, error) {
	err := cache.load(start, count)
	if err != nil {
		return nil, err
	}
	return cache.data[start*dossys.SectorSize : (start+count)*dossys.SectorSize], nil
}

// Data returns the entire cache, loading every sector not yet read.
func (cache *SectorCache) Data() ([]byte, error) {
	return cache.Slice(0, cache.totalSectors)
}

func (cache *SectorCache) load(start, count uint) error {
	err := cache.checkBounds(start, count)
	if err != nil {
		return err
	}

	for index := start; index < start+count; index++ {
		// Dirty sectors are loaded by definition.
		if cache.loadedSectors.Get(int(index)) {
			continue
		}

		lba := cache.first + dossys.LBA(index)
		sector, err := cache.device.ReadSector(lba)
		if err != nil {
			return dossys.ErrDeviceIO.Wrap(
				fmt.Errorf("failed to read sector %d: %w", lba, err))
		}

		copy(cache.data[index*dossys.SectorSize:], sector[:])
		cache.loadedSectors.Set(int(index), true)
		cache.dirtySectors.Set(int(index), false)
	}
	return nil
}

// MarkDirty marks the sectors [start, start + count) as modified so that the
// next call to [SectorCache.Flush] writes them back. The sectors must already be
// loaded.
func (cache *SectorCache) MarkDirty(start, count uint) error {
	err := cache.checkBounds(start, count)
	if err != nil {
		return err
	}

	for index := start; index < start+count; index++ {
		if !cache.loadedSectors.Get(int(index)) {
			return dossys.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("can't mark sector %d dirty; it isn't loaded", index))
		}
		cache.dirtySectors.Set(int(index), true)
	}
	return nil
}

// IsDirty reports whether the given sector has been modified since it was last
// flushed.
func (cache *SectorCache) IsDirty(index uint) bool {
	if index >= cache.totalSectors {
		return false
	}
	return cache.dirtySectors.Get(int(index))
}

// Flush writes all dirty sectors, and only dirty sectors, back to the device in
// ascending order and marks them clean. It stops at the first failed write.
func (cache *SectorCache) Flush() error {
	for index := uint(0); index < cache.totalSectors; index++ {
		if !cache.dirtySectors.Get(int(index)) {
			continue
		}

		var sector dossys.Sector
		copy(sector[:], cache.data[index*dossys.SectorSize:])

		lba := cache.first + dossys.LBA(index)
		err := cache.device.WriteSector(lba, &sector)
		if err != nil {
			return dossys.ErrDeviceIO.Wrap(
				fmt.Errorf("failed to write sector %d: %w", lba, err))
		}
		cache.dirtySectors.Set(int(index), false)
	}
	return nil
}
