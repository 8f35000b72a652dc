// Package file provides a backend.Storage implementation over a file or
// block device on the local filesystem.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Zargontapel/dito/backend"
)

type fileBackend struct {
	storage  *os.File
	readOnly bool
}

// New creates a backend.Storage from an already-open *os.File.
func New(f *os.File, readOnly bool) backend.Storage {
	return fileBackend{
		storage:  f,
		readOnly: readOnly,
	}
}

// OpenFromPath creates a backend.Storage from a path to a device or image
// file, e.g. /dev/sda or /tmp/disk.img. The target must exist.
func OpenFromPath(pathName string, readOnly bool) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass device or file name")
	}

	if _, err := os.Stat(pathName); os.IsNotExist(err) {
		return nil, fmt.Errorf("provided device/file %s does not exist", pathName)
	}

	openMode := os.O_RDONLY
	if !readOnly {
		openMode |= os.O_RDWR | os.O_EXCL
	}

	f, err := os.OpenFile(pathName, openMode, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open device %s with mode %v: %w", pathName, openMode, err)
	}

	return fileBackend{
		storage:  f,
		readOnly: readOnly,
	}, nil
}

// CreateFromPath creates a backend.Storage as a new image file of the given
// size. The file must not exist yet.
func CreateFromPath(pathName string, size int64) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass image file name")
	}
	if size <= 0 {
		return nil, errors.New("must pass valid image size to create")
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not create image %s: %w", pathName, err)
	}
	if err := os.Truncate(pathName, size); err != nil {
		return nil, fmt.Errorf("could not expand image %s to size %d: %w", pathName, size, err)
	}

	return fileBackend{
		storage:  f,
		readOnly: false,
	}, nil
}

func (f fileBackend) Stat() (fs.FileInfo, error) {
	return f.storage.Stat()
}

func (f fileBackend) Read(b []byte) (int, error) {
	return f.storage.Read(b)
}

func (f fileBackend) ReadAt(b []byte, offset int64) (int, error) {
	return f.storage.ReadAt(b, offset)
}

func (f fileBackend) Seek(offset int64, whence int) (int64, error) {
	return f.storage.Seek(offset, whence)
}

func (f fileBackend) Close() error {
	return f.storage.Close()
}

func (f fileBackend) Sys() (*os.File, error) {
	return f.storage, nil
}

func (f fileBackend) Writable() (backend.WritableFile, error) {
	if f.readOnly {
		return nil, backend.ErrIncorrectOpenMode
	}
	return f.storage, nil
}
