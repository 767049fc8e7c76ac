package sectorio

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/dossys"
)

// ReadSectorFile reads the first 512 bytes of a file. Files shorter than that
// are an error.
func ReadSectorFile(path string) (dossys.Sector, error) {
	var data dossys.Sector

	file, err := os.Open(path)
	if err != nil {
		return data, err
	}
	defer file.Close()

	_, err = io.ReadFull(file, data[:])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return data, fmt.Errorf("%s is shorter than %d bytes", path, dossys.SectorSize)
	}
	return data, err
}

// WriteSectorFile writes 512 bytes to the start of a file, creating it if it
// doesn't exist. The file is never truncated, since it may be a disk image whose
// first sector is being edited in place.
func WriteSectorFile(path string, data *dossys.Sector) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	_, err = file.WriteAt(data[:], 0)
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
