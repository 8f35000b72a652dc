// Package dito implements methods for creating and manipulating disk images
// and the filesystems inside them: raw images or block devices, an MBR
// partition table view, and filesystem drivers dispatched per partition. Only
// the bytes of the image are manipulated; nothing is ever mounted through the
// operating system.
//
// A typical round trip:
//
//	d, err := dito.Create("/tmp/disk.img", 4*1024*1024)
//	fs, err := d.CreateFilesystem(0, filesystem.TypeFat)
//	ino, err := fs.Touch(filesystem.FileStat{Size: 14})
//	err = fs.Link(ino, filesystem.RootInode, "hello.txt")
//	_, err = fs.Write(ino, []byte("Hello, world!\n"), 0)
//	err = fs.Close()
package dito

import (
	"fmt"
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Zargontapel/dito/backend"
	backendfile "github.com/Zargontapel/dito/backend/file"
	"github.com/Zargontapel/dito/backend/raw"
	"github.com/Zargontapel/dito/disk"
	"github.com/Zargontapel/dito/filesystem"
	"github.com/Zargontapel/dito/filesystem/ext2"
	"github.com/Zargontapel/dito/filesystem/fat"
	"github.com/Zargontapel/dito/util"
)

var registerOnce sync.Once

// registerDrivers installs the built-in filesystem drivers into the
// dispatcher. FAT is the only full driver; ext2 participates as a probe-only
// collaborator.
func registerDrivers() {
	registerOnce.Do(func() {
		filesystem.Register(fat.Driver)
		filesystem.Register(ext2.Driver)
	})
}

// Open opens an existing disk image or block device. Compressed images
// (gzip, xz, lz4) are expanded into memory and opened read-only.
func Open(pathName string) (*disk.Disk, error) {
	return OpenWithMode(pathName, false)
}

// OpenWithMode opens an existing disk image or block device, optionally
// read-only.
func OpenWithMode(pathName string, readOnly bool) (*disk.Disk, error) {
	registerDrivers()

	f, err := os.Open(pathName)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", pathName, err)
	}
	header := make([]byte, 8)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		_ = f.Close()
		return nil, fmt.Errorf("could not read %s: %w", pathName, err)
	}

	if c := util.DetectCompression(header[:n]); c != util.CompressionNone {
		// a compressed image cannot be written through; expand it into
		// memory and serve it read-only
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
		data, err := util.Decompress(f, c)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("could not expand compressed image %s: %w", pathName, err)
		}
		log.WithFields(log.Fields{"path": pathName, "size": len(data)}).Debug("opened compressed image read-only")
		return newDisk(raw.NewFromBytes(data, true))
	}
	_ = f.Close()

	b, err := backendfile.OpenFromPath(pathName, readOnly)
	if err != nil {
		return nil, err
	}
	return newDisk(b)
}

// Create creates a new raw disk image file of the given size in bytes. The
// file must not exist yet.
func Create(pathName string, size int64) (*disk.Disk, error) {
	registerDrivers()
	b, err := backendfile.CreateFromPath(pathName, size)
	if err != nil {
		return nil, err
	}
	return newDisk(b)
}

// OpenStorage creates a Disk over an arbitrary backend, e.g. an in-memory
// image.
func OpenStorage(b backend.Storage) (*disk.Disk, error) {
	registerDrivers()
	return newDisk(b)
}

func newDisk(b backend.Storage) (*disk.Disk, error) {
	d, err := disk.New(b)
	if err != nil {
		return nil, err
	}
	info, err := b.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeDevice != 0 {
		d.DeviceType = disk.DeviceTypeBlockDevice
		osFile, err := b.Sys()
		if err != nil {
			return nil, err
		}
		logical, physical, err := getSectorSizes(osFile)
		if err != nil {
			return nil, err
		}
		d.LogicalBlocksize = logical
		d.PhysicalBlocksize = physical
	} else {
		d.DeviceType = disk.DeviceTypeFile
	}
	return d, nil
}
