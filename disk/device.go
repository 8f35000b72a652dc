package disk

import (
	"fmt"

	"github.com/Zargontapel/dito/backend"
	"github.com/Zargontapel/dito/filesystem"
)

// Device exposes a partition of a disk as a filesystem.BlockDevice with
// fixed-size blocks.
type Device struct {
	storage backend.Storage
	size    int64
}

// NewDevice creates a block device directly over a storage, used mostly by
// tests. Callers normally obtain devices from Disk.Device.
func NewDevice(storage backend.Storage, size int64) *Device {
	return &Device{storage: storage, size: size}
}

// Blocks returns the number of blocks in the partition.
func (d *Device) Blocks() uint32 {
	return uint32(d.size / filesystem.BlockSize)
}

// ReadBlocks reads count blocks starting at block start into b.
func (d *Device) ReadBlocks(b []byte, start, count uint32) error {
	if count == 0 {
		return fmt.Errorf("requested zero blocks: %w", filesystem.ErrInvalidArgument)
	}
	length := int(count) * filesystem.BlockSize
	if len(b) < length {
		return fmt.Errorf("buffer of %d bytes too small for %d blocks", len(b), count)
	}
	if start+count > d.Blocks() {
		return fmt.Errorf("read of blocks %d-%d beyond end of partition (%d blocks)", start, start+count-1, d.Blocks())
	}
	if _, err := d.storage.ReadAt(b[:length], int64(start)*filesystem.BlockSize); err != nil {
		return fmt.Errorf("error reading blocks at %d: %w", start, err)
	}
	return nil
}

// WriteBlocks writes count blocks from b starting at block start.
func (d *Device) WriteBlocks(b []byte, start, count uint32) error {
	if count == 0 {
		return fmt.Errorf("requested zero blocks: %w", filesystem.ErrInvalidArgument)
	}
	length := int(count) * filesystem.BlockSize
	if len(b) < length {
		return fmt.Errorf("buffer of %d bytes too small for %d blocks", len(b), count)
	}
	if start+count > d.Blocks() {
		return fmt.Errorf("write of blocks %d-%d beyond end of partition (%d blocks)", start, start+count-1, d.Blocks())
	}
	w, err := d.storage.Writable()
	if err != nil {
		return err
	}
	if _, err := w.WriteAt(b[:length], int64(start)*filesystem.BlockSize); err != nil {
		return fmt.Errorf("error writing blocks at %d: %w", start, err)
	}
	return nil
}
