package filesystem

import (
	"errors"
	"io"
	"os"
)

// File provides io.Reader / io.Writer / io.Seeker access to a single inode
// of a mounted filesystem, tracking an offset across calls.
//
// Writes cannot grow the inode; writing past the allocated size returns
// io.ErrShortWrite. Size an inode via the FileStat passed to Touch.
type File struct {
	fsys   FileSystem
	ino    Inode
	offset int64
}

// NewFile opens a handle onto an inode of a mounted filesystem.
func NewFile(fsys FileSystem, ino Inode) *File {
	return &File{fsys: fsys, ino: ino}
}

// Read reads up to len(b) bytes from the current offset. At end of file it
// returns 0, io.EOF.
func (f *File) Read(b []byte) (int, error) {
	if f == nil || f.fsys == nil {
		return 0, os.ErrClosed
	}
	n, err := f.fsys.Read(f.ino, b, f.offset)
	f.offset += int64(n)
	return n, err
}

// Write writes len(b) bytes at the current offset.
func (f *File) Write(b []byte) (int, error) {
	if f == nil || f.fsys == nil {
		return 0, os.ErrClosed
	}
	n, err := f.fsys.Write(f.ino, b, f.offset)
	f.offset += int64(n)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	return n, err
}

// Seek sets the offset for the next Read or Write.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f == nil || f.fsys == nil {
		return 0, os.ErrClosed
	}
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = f.offset + offset
	case io.SeekEnd:
		st, err := f.fsys.Fstat(f.ino)
		if err != nil {
			return f.offset, err
		}
		newOffset = int64(st.Size) + offset
	default:
		return f.offset, errors.New("invalid whence")
	}
	if newOffset < 0 {
		return f.offset, errors.New("cannot seek before start of file")
	}
	f.offset = newOffset
	return f.offset, nil
}

// Close releases the handle. The underlying mount stays open.
func (f *File) Close() error {
	f.fsys = nil
	return nil
}
