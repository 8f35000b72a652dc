package backend

import (
	"io"
	"io/fs"
	"os"
)

// SubStorage is a bounded window into an underlying Storage, used to address
// a single partition of a disk image. Offsets are relative to the window and
// accesses outside it are refused rather than passed through.
type SubStorage struct {
	underlying Storage
	offset     int64
	size       int64
}

// Sub returns a Storage view of size bytes of u starting at offset.
func Sub(u Storage, offset, size int64) Storage {
	return SubStorage{
		underlying: u,
		offset:     offset,
		size:       size,
	}
}

// Size returns the size of the window in bytes.
func (s SubStorage) Size() int64 {
	return s.size
}

func (s SubStorage) Stat() (fs.FileInfo, error) {
	return s.underlying.Stat()
}

func (s SubStorage) Read(b []byte) (int, error) {
	return s.underlying.Read(b)
}

func (s SubStorage) Close() error {
	return s.underlying.Close()
}

func (s SubStorage) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off >= s.size {
		return 0, io.EOF
	}
	if off+int64(len(p)) > s.size {
		p = p[:s.size-off]
	}
	return s.underlying.ReadAt(p, s.offset+off)
}

func (s SubStorage) Seek(offset int64, whence int) (int64, error) {
	return subSeek(s.underlying, s.offset, s.size, offset, whence)
}

func (s SubStorage) Sys() (*os.File, error) {
	return s.underlying.Sys()
}

func (s SubStorage) Writable() (WritableFile, error) {
	uw, err := s.underlying.Writable()
	if err != nil {
		return nil, err
	}
	return subWritable{
		underlying: uw,
		offset:     s.offset,
		size:       s.size,
	}, nil
}

type subWritable struct {
	underlying WritableFile
	offset     int64
	size       int64
}

func (sw subWritable) Stat() (fs.FileInfo, error) {
	return sw.underlying.Stat()
}

func (sw subWritable) Read(b []byte) (int, error) {
	return sw.underlying.Read(b)
}

func (sw subWritable) Close() error {
	return sw.underlying.Close()
}

func (sw subWritable) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off >= sw.size {
		return 0, io.EOF
	}
	if off+int64(len(p)) > sw.size {
		p = p[:sw.size-off]
	}
	return sw.underlying.ReadAt(p, sw.offset+off)
}

func (sw subWritable) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off+int64(len(p)) > sw.size {
		return 0, ErrNotSuitable
	}
	return sw.underlying.WriteAt(p, sw.offset+off)
}

func (sw subWritable) Seek(offset int64, whence int) (int64, error) {
	return subSeek(sw.underlying, sw.offset, sw.size, offset, whence)
}

func subSeek(u io.Seeker, base, size, offset int64, whence int) (int64, error) {
	var (
		pos int64
		err error
	)
	switch whence {
	case io.SeekStart:
		pos, err = u.Seek(offset+base, io.SeekStart)
	case io.SeekCurrent:
		pos, err = u.Seek(offset, io.SeekCurrent)
	case io.SeekEnd:
		pos, err = u.Seek(base+size+offset, io.SeekStart)
	default:
		return -1, ErrNotSuitable
	}
	if err != nil {
		return -1, err
	}
	return pos - base, nil
}
