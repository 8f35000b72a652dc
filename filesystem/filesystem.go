// Package filesystem defines the surface shared by all filesystem drivers:
// inode handles, metadata records, the block-device interface drivers consume,
// and the driver registry. The drivers themselves live in subpackages, e.g.
// github.com/Zargontapel/dito/filesystem/fat
package filesystem

import (
	"os"
	"time"
)

// BlockSize is the fixed size in bytes of a device block.
const BlockSize = 512

// Inode is an opaque handle identifying an inode within a mounted filesystem.
// Handles are positive, assigned in mount order, and never reused for the
// lifetime of a mount.
type Inode uint32

// RootInode is the handle of the root directory of every mount.
const RootInode Inode = 1

// Type represents the type of filesystem
type Type int

const (
	// TypeFat is a FAT12/16/32 compatible filesystem
	TypeFat Type = iota
	// TypeExt2 is an ext2 filesystem
	TypeExt2
)

func (t Type) String() string {
	switch t {
	case TypeFat:
		return "fat"
	case TypeExt2:
		return "ext2"
	default:
		return "unknown"
	}
}

// FileStat is the metadata record exposed for an inode: size, mode with the
// directory bit, and the three timestamps.
type FileStat struct {
	Size  uint32
	Mode  os.FileMode
	Atime time.Time
	Ctime time.Time
	Mtime time.Time
}

// IsDir reports whether the record describes a directory.
func (st FileStat) IsDir() bool {
	return st.Mode&os.ModeDir != 0
}

// Dirent is a single directory entry as returned by ReadDir: the entry name
// and the handle of the inode it refers to.
type Dirent struct {
	Name  string
	Inode Inode
}

// BlockDevice is the block I/O interface drivers consume. It addresses fixed
// BlockSize-byte blocks within a single partition.
type BlockDevice interface {
	// ReadBlocks reads count blocks starting at block start into b.
	ReadBlocks(b []byte, start, count uint32) error
	// WriteBlocks writes count blocks from b starting at block start.
	WriteBlocks(b []byte, start, count uint32) error
	// Blocks returns the total number of blocks on the device.
	Blocks() uint32
}

// A FileSystem is a mounted filesystem exposing the generic operations.
// Index-based operations (ReadDir, Unlink, Rmdir) address directory entries
// by position: 0 and 1 are the synthetic "." and ".." entries, real children
// start at 2.
//
// A FileSystem is owned by a single caller; concurrent calls on the same
// mount require external serialization.
type FileSystem interface {
	// Type returns the type of filesystem
	Type() Type
	// Read reads up to len(p) bytes from the inode starting at offset.
	// Reads are clamped to the inode size; at end of data it returns 0, io.EOF.
	Read(ino Inode, p []byte, offset int64) (int, error)
	// Write writes up to len(p) bytes to the inode starting at offset.
	// Writes never extend the inode; the byte count is clamped to the
	// current size and the clamped count returned.
	Write(ino Inode, p []byte, offset int64) (int, error)
	// Touch allocates a new inode, including cluster/block space for
	// st.Size bytes, and returns its handle. The inode is not reachable
	// from any directory until Link is called.
	Touch(st FileStat) (Inode, error)
	// ReadDir returns the directory entry at the given index, or
	// ErrNotFound past the last entry.
	ReadDir(dir Inode, index int) (*Dirent, error)
	// Link inserts child into dir under the given name.
	Link(child, dir Inode, name string) error
	// Unlink removes the directory entry at the given index (>= 2) and
	// releases the target's space.
	Unlink(dir Inode, index int) error
	// Fstat returns the metadata record for an inode.
	Fstat(ino Inode) (FileStat, error)
	// Mkdir creates a new directory under parent, including its "." and
	// ".." entries.
	Mkdir(parent Inode, name string) error
	// Rmdir removes the directory entry at the given index; the target
	// must be an empty directory.
	Rmdir(dir Inode, index int) error
	// Close flushes any buffered state and releases the mount.
	Close() error
	// Check runs a consistency scan of the mounted volume.
	Check() error
}
