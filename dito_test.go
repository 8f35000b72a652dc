package dito_test

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zargontapel/dito"
	"github.com/Zargontapel/dito/filesystem"
)

const testImageSize = 4 * 1024 * 1024

func TestCreateFormatReopen(t *testing.T) {
	image := filepath.Join(t.TempDir(), "disk.img")
	content := []byte("end to end\n")

	d, err := dito.Create(image, testImageSize)
	require.NoError(t, err)
	fs, err := d.CreateFilesystem(0, filesystem.TypeFat)
	require.NoError(t, err)

	ino, err := fs.Touch(filesystem.FileStat{Size: uint32(len(content))})
	require.NoError(t, err)
	require.NoError(t, fs.Link(ino, filesystem.RootInode, "hello.txt"))
	_, err = fs.Write(ino, content, 0)
	require.NoError(t, err)
	require.NoError(t, fs.Close())
	require.NoError(t, d.Close())

	d, err = dito.Open(image)
	require.NoError(t, err)
	fs, err = d.Mount(0, filesystem.TypeFat)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, fs.Close())
		require.NoError(t, d.Close())
	}()

	ino, err = filesystem.Lookup(fs, "/hello.txt")
	require.NoError(t, err)
	buf := make([]byte, len(content))
	n, err := fs.Read(ino, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	require.Equal(t, content, buf)
}

func TestProbeFilesystem(t *testing.T) {
	image := filepath.Join(t.TempDir(), "disk.img")
	d, err := dito.Create(image, testImageSize)
	require.NoError(t, err)
	fs, err := d.CreateFilesystem(0, filesystem.TypeFat)
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	drv, err := d.ProbeFilesystem(0)
	require.NoError(t, err)
	require.Equal(t, filesystem.TypeFat, drv.Type)
	require.True(t, drv.Present)
	require.NoError(t, d.Close())
}

func TestOpenCompressedImage(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "disk.img")

	d, err := dito.Create(image, testImageSize)
	require.NoError(t, err)
	fs, err := d.CreateFilesystem(0, filesystem.TypeFat)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir(filesystem.RootInode, "compressed"))
	require.NoError(t, fs.Close())
	require.NoError(t, d.Close())

	// compress the image and open it back read-only
	data, err := os.ReadFile(image)
	require.NoError(t, err)
	compressed := filepath.Join(dir, "disk.img.gz")
	out, err := os.Create(compressed)
	require.NoError(t, err)
	w := gzip.NewWriter(out)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())

	cd, err := dito.Open(compressed)
	require.NoError(t, err)
	cfs, err := cd.Mount(0, filesystem.TypeFat)
	require.NoError(t, err)
	_, err = filesystem.Lookup(cfs, "/compressed")
	require.NoError(t, err)

	// writes must be refused on a compressed image
	_, err = cfs.Touch(filesystem.FileStat{Size: 1})
	require.NoError(t, err) // allocation is in-memory only
	err = cfs.Mkdir(filesystem.RootInode, "nope")
	require.Error(t, err)

	require.NoError(t, cd.Close())
}
