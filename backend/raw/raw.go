// Package raw provides a backend.Storage held entirely in memory. It backs
// scratch images in tests and read-only views of decompressed disk images.
package raw

import (
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/xaionaro-go/bytesextra"

	"github.com/Zargontapel/dito/backend"
)

type rawBackend struct {
	data     []byte
	stream   io.ReadWriteSeeker
	name     string
	readOnly bool
}

// New creates an in-memory backend.Storage of the given size.
func New(size int64, readOnly bool) backend.Storage {
	data := make([]byte, size)
	return &rawBackend{
		data:     data,
		stream:   bytesextra.NewReadWriteSeeker(data),
		name:     "raw",
		readOnly: readOnly,
	}
}

// NewFromBytes creates an in-memory backend.Storage over an existing buffer.
// The buffer is used directly, not copied.
func NewFromBytes(data []byte, readOnly bool) backend.Storage {
	return &rawBackend{
		data:     data,
		stream:   bytesextra.NewReadWriteSeeker(data),
		name:     "raw",
		readOnly: readOnly,
	}
}

// Bytes returns the underlying buffer.
func (r *rawBackend) Bytes() []byte {
	return r.data
}

func (r *rawBackend) Stat() (fs.FileInfo, error) {
	return rawInfo{name: r.name, size: int64(len(r.data))}, nil
}

func (r *rawBackend) Read(b []byte) (int, error) {
	return r.stream.Read(b)
}

func (r *rawBackend) Seek(offset int64, whence int) (int64, error) {
	return r.stream.Seek(offset, whence)
}

func (r *rawBackend) Close() error {
	return nil
}

func (r *rawBackend) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *rawBackend) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(r.data)) {
		return 0, backend.ErrNotSuitable
	}
	return copy(r.data[off:], p), nil
}

func (r *rawBackend) Sys() (*os.File, error) {
	return nil, backend.ErrNotSuitable
}

func (r *rawBackend) Writable() (backend.WritableFile, error) {
	if r.readOnly {
		return nil, backend.ErrIncorrectOpenMode
	}
	return r, nil
}

type rawInfo struct {
	name string
	size int64
}

func (i rawInfo) Name() string       { return i.name }
func (i rawInfo) Size() int64        { return i.size }
func (i rawInfo) Mode() fs.FileMode  { return 0o644 }
func (i rawInfo) ModTime() time.Time { return time.Time{} }
func (i rawInfo) IsDir() bool        { return false }
func (i rawInfo) Sys() any           { return nil }
