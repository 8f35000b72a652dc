// Package converter adapts a mounted filesystem to the standard library's
// io/fs interfaces, so tools like fs.WalkDir work against a disk image.
package converter

import (
	"errors"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/Zargontapel/dito/filesystem"
)

type fsCompatible struct {
	fsys filesystem.FileSystem
}

// FS converts a mounted filesystem to an fs.ReadDirFS for compatibility with
// other utilities.
func FS(fsys filesystem.FileSystem) fs.ReadDirFS {
	return &fsCompatible{fsys: fsys}
}

func (f *fsCompatible) Open(name string) (fs.File, error) {
	ino, err := filesystem.Lookup(f.fsys, name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	st, err := f.fsys.Fstat(ino)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFileWrapper{
		File: filesystem.NewFile(f.fsys, ino),
		info: fileInfo{name: path.Base(name), stat: st},
	}, nil
}

func (f *fsCompatible) ReadDir(name string) ([]fs.DirEntry, error) {
	dir, err := filesystem.Lookup(f.fsys, name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	var entries []fs.DirEntry
	for index := 2; ; index++ {
		entry, err := f.fsys.ReadDir(dir, index)
		if err != nil {
			if errors.Is(err, filesystem.ErrNotFound) {
				break
			}
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
		st, err := f.fsys.Fstat(entry.Inode)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
		entries = append(entries, fs.FileInfoToDirEntry(fileInfo{name: entry.Name, stat: st}))
	}
	// ReadDirFS promises entries sorted by name
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

type fsFileWrapper struct {
	*filesystem.File
	info fileInfo
}

func (f *fsFileWrapper) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

type fileInfo struct {
	name string
	stat filesystem.FileStat
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return int64(i.stat.Size) }
func (i fileInfo) Mode() fs.FileMode  { return fs.FileMode(i.stat.Mode) }
func (i fileInfo) ModTime() time.Time { return i.stat.Mtime }
func (i fileInfo) IsDir() bool        { return i.stat.IsDir() }
func (i fileInfo) Sys() any           { return nil }
