// Package ext2 registers the ext2 filesystem as a probe-only collaborator:
// the dispatcher can identify ext2 volumes, but mounting and formatting them
// is not implemented.
package ext2

import (
	"encoding/binary"
	"fmt"

	"github.com/Zargontapel/dito/filesystem"
)

const (
	// the superblock lives 1024 bytes into the volume
	superblockOffset = 1024
	superblockSize   = 1024
	// offset of the 16-bit magic within the superblock
	magicOffset = 56
	magic       = 0xef53
)

// Driver is the registration record for the ext2 collaborator.
var Driver = filesystem.Driver{
	Name:    "ext2",
	Type:    filesystem.TypeExt2,
	Present: false,
	Load: func(dev filesystem.BlockDevice) (filesystem.FileSystem, error) {
		return nil, fmt.Errorf("ext2 volumes cannot be mounted: %w", filesystem.ErrUnsupported)
	},
	Create: func(dev filesystem.BlockDevice) (filesystem.FileSystem, error) {
		return nil, fmt.Errorf("ext2 volumes cannot be created: %w", filesystem.ErrUnsupported)
	},
	Probe: Probe,
}

// Probe reports whether the device holds an ext2 superblock.
func Probe(dev filesystem.BlockDevice) bool {
	blocks := uint32((superblockOffset + superblockSize) / filesystem.BlockSize)
	if dev.Blocks() < blocks {
		return false
	}
	b := make([]byte, blocks*filesystem.BlockSize)
	if err := dev.ReadBlocks(b, 0, blocks); err != nil {
		return false
	}
	return binary.LittleEndian.Uint16(b[superblockOffset+magicOffset:superblockOffset+magicOffset+2]) == magic
}
