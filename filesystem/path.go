package filesystem

import (
	"errors"
	"fmt"
	"strings"
)

// Find scans a directory for a child with the given name. It returns the
// entry index (>= 2) and the child's handle, or ErrNotFound.
func Find(fsys FileSystem, dir Inode, name string) (int, Inode, error) {
	for index := 2; ; index++ {
		entry, err := fsys.ReadDir(dir, index)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return 0, 0, fmt.Errorf("no entry %q: %w", name, ErrNotFound)
			}
			return 0, 0, err
		}
		if entry.Name == name {
			return index, entry.Inode, nil
		}
	}
}

// Lookup resolves a slash-separated path to an inode handle, starting at the
// root. An empty path or "/" resolves to the root handle.
func Lookup(fsys FileSystem, path string) (Inode, error) {
	ino := RootInode
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		st, err := fsys.Fstat(ino)
		if err != nil {
			return 0, err
		}
		if !st.IsDir() {
			return 0, fmt.Errorf("%q: %w", path, ErrNotADirectory)
		}
		_, child, err := Find(fsys, ino, part)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", path, err)
		}
		ino = child
	}
	return ino, nil
}
