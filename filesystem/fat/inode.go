package fat

import (
	"fmt"
	"time"

	"github.com/Zargontapel/dito/filesystem"
)

// parentUnknown marks an inode created by Touch that has not been linked into
// a directory yet. Handles are positive, so zero is free to act as the
// sentinel.
const parentUnknown filesystem.Inode = 0

// inode is the in-memory snapshot of one directory entry's metadata. FAT
// stores all metadata inside directory entries, so inodes only come into
// existence when ReadDir or Touch materializes them.
type inode struct {
	parent  filesystem.Inode
	attr    byte
	cluster uint32
	size    uint32
	atime   time.Time
	ctime   time.Time
	mtime   time.Time
}

func (in *inode) isDir() bool {
	return in.attr&attrDirectory == attrDirectory
}

// registry is the append-only index of inodes for one mount. Handles are
// 1-based positions in the arena and stay stable until the mount is closed.
type registry struct {
	inodes []*inode
}

func newRegistry(root *inode) *registry {
	return &registry{inodes: []*inode{root}}
}

func (r *registry) get(ino filesystem.Inode) (*inode, error) {
	if ino == 0 {
		return nil, fmt.Errorf("zero inode handle: %w", filesystem.ErrInvalidArgument)
	}
	index := int(ino) - 1
	if index >= len(r.inodes) {
		return nil, fmt.Errorf("no inode for handle %d: %w", ino, filesystem.ErrNotFound)
	}
	return r.inodes[index], nil
}

// add appends an inode and returns its new handle.
func (r *registry) add(in *inode) filesystem.Inode {
	r.inodes = append(r.inodes, in)
	return filesystem.Inode(len(r.inodes))
}
