// Package util holds small helpers shared across the library.
package util

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"
)

// Compression identifies the compression of a disk image file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionXz
	CompressionLz4
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// DetectCompression sniffs the leading bytes of an image for a known
// compression container magic.
func DetectCompression(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXz
	case bytes.HasPrefix(header, lz4Magic):
		return CompressionLz4
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// Decompress expands a compressed disk image into memory. The reader must be
// positioned at the start of the container.
func Decompress(r io.Reader, c Compression) ([]byte, error) {
	var (
		expanded io.Reader
		err      error
	)
	switch c {
	case CompressionGzip:
		expanded, err = gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not open gzip stream: %w", err)
		}
	case CompressionXz:
		expanded, err = xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not open xz stream: %w", err)
		}
	case CompressionLz4:
		expanded = lz4.NewReader(r)
	case CompressionNone:
		expanded = r
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
	data, err := io.ReadAll(expanded)
	if err != nil {
		return nil, fmt.Errorf("could not expand image: %w", err)
	}
	return data, nil
}
