package fat

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"

	"github.com/Zargontapel/dito/backend/raw"
	"github.com/Zargontapel/dito/disk"
	"github.com/Zargontapel/dito/filesystem"
)

const testVolumeSize = 4 * 1024 * 1024

func newTestDevice(t *testing.T, size int64) filesystem.BlockDevice {
	t.Helper()
	return disk.NewDevice(raw.New(size, false), size)
}

func newTestFS(t *testing.T) (*FileSystem, filesystem.BlockDevice) {
	t.Helper()
	dev := newTestDevice(t, testVolumeSize)
	fs, err := Create(dev)
	require.NoError(t, err)
	return fs, dev
}

func reopen(t *testing.T, fs *FileSystem, dev filesystem.BlockDevice) *FileSystem {
	t.Helper()
	require.NoError(t, fs.Close())
	reopened, err := Load(dev)
	require.NoError(t, err)
	return reopened
}

// listNames walks a directory from index 0 until the entries run out.
func listNames(t *testing.T, fs *FileSystem, dir filesystem.Inode) []string {
	t.Helper()
	var names []string
	for index := 0; ; index++ {
		entry, err := fs.ReadDir(dir, index)
		if err != nil {
			require.ErrorIs(t, err, filesystem.ErrNotFound)
			return names
		}
		names = append(names, entry.Name)
	}
}

func touchAndLink(t *testing.T, fs *FileSystem, size uint32, name string) filesystem.Inode {
	t.Helper()
	ino, err := fs.Touch(filesystem.FileStat{Size: size, Mode: 0o644})
	require.NoError(t, err)
	require.NoError(t, fs.Link(ino, filesystem.RootInode, name))
	return ino
}

func TestCreateGeometry(t *testing.T) {
	fs, _ := newTestFS(t)
	require.Equal(t, uint16(240), fs.bpb.rootEntryCount)
	require.Equal(t, byte(0xf0), fs.bpb.mediaDescriptor)
	require.Equal(t, 12, fs.bpb.fatType())
	// the reserved FAT entries carry the media descriptor and an end marker
	require.Equal(t, 0xf00|uint32(fs.bpb.mediaDescriptor), fs.table.entry(0))
	require.True(t, fs.table.isEoc(fs.table.entry(1)))
}

func TestCreateRefusesLargeVolumes(t *testing.T) {
	dev := newTestDevice(t, 64*1024*1024)
	_, err := Create(dev)
	require.ErrorIs(t, err, filesystem.ErrUnsupported)
}

func TestProbe(t *testing.T) {
	fs, dev := newTestFS(t)
	require.NoError(t, fs.Close())
	require.True(t, Probe(dev))

	blank := newTestDevice(t, testVolumeSize)
	require.False(t, Probe(blank))
}

func TestTouchAllocatesAtLeastOneCluster(t *testing.T) {
	fs, _ := newTestFS(t)
	cs := fs.bpb.clusterSize()
	tests := []struct {
		size     uint32
		expected int
	}{
		{0, 1},
		{1, 1},
		{cs - 1, 1},
		{cs, 1},
		{cs + 1, 2},
		{3 * cs, 3},
	}
	for _, tt := range tests {
		ino, err := fs.Touch(filesystem.FileStat{Size: tt.size})
		require.NoError(t, err)
		in, err := fs.reg.get(ino)
		require.NoError(t, err)
		clusters, err := fs.table.chain(in.cluster)
		require.NoError(t, err)
		require.Len(t, clusters, tt.expected, "size %d", tt.size)
	}
}

// the full round trip: format, create, write, close,
// reopen, stat, read.
func TestRoundTrip(t *testing.T) {
	fs, dev := newTestFS(t)
	content := []byte("Hello, world!\n")

	ino := touchAndLink(t, fs, 100, "HELLO.TXT")
	n, err := fs.Write(ino, content, 0)
	require.NoError(t, err)
	require.Equal(t, len(content), n)

	fs = reopen(t, fs, dev)
	entry, err := fs.ReadDir(filesystem.RootInode, 2)
	require.NoError(t, err)
	require.Equal(t, "HELLO.TXT", entry.Name)

	st, err := fs.Fstat(entry.Inode)
	require.NoError(t, err)
	require.Equal(t, uint32(100), st.Size)
	require.False(t, st.IsDir())

	buf := make([]byte, len(content))
	n, err = fs.Read(entry.Inode, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	require.Equal(t, content, buf)
}

func TestReadDirSyntheticDots(t *testing.T) {
	fs, dev := newTestFS(t)
	require.NoError(t, fs.Mkdir(filesystem.RootInode, "lost+found"))

	fs = reopen(t, fs, dev)
	names := listNames(t, fs, filesystem.RootInode)
	if diff := deep.Equal(names, []string{".", "..", "lost+found"}); diff != nil {
		t.Errorf("mismatched root listing: %v", diff)
	}

	dot, err := fs.ReadDir(filesystem.RootInode, 0)
	require.NoError(t, err)
	require.Equal(t, filesystem.RootInode, dot.Inode)
	dotdot, err := fs.ReadDir(filesystem.RootInode, 1)
	require.NoError(t, err)
	require.Equal(t, filesystem.RootInode, dotdot.Inode)
}

// a fresh subdirectory carries "." to itself and ".." to
// its parent, and nothing else.
func TestMkdir(t *testing.T) {
	fs, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir(filesystem.RootInode, "subdir"))

	entry, err := fs.ReadDir(filesystem.RootInode, 2)
	require.NoError(t, err)
	require.Equal(t, "subdir", entry.Name)
	child := entry.Inode

	dot, err := fs.ReadDir(child, 0)
	require.NoError(t, err)
	require.Equal(t, ".", dot.Name)
	require.Equal(t, child, dot.Inode)

	dotdot, err := fs.ReadDir(child, 1)
	require.NoError(t, err)
	require.Equal(t, "..", dotdot.Name)
	require.Equal(t, filesystem.RootInode, dotdot.Inode)

	_, err = fs.ReadDir(child, 2)
	require.ErrorIs(t, err, filesystem.ErrNotFound)

	st, err := fs.Fstat(child)
	require.NoError(t, err)
	require.True(t, st.IsDir())
}

// a 20-character name produces exactly two long-name
// entries before the short entry, in reverse order, stamped with the short
// name's checksum.
func TestLongNamePhysicalLayout(t *testing.T) {
	fs, _ := newTestFS(t)
	touchAndLink(t, fs, 10, "verylongfilename.dat")

	root, err := fs.reg.get(filesystem.RootInode)
	require.NoError(t, err)
	data, err := fs.loadDirectory(filesystem.RootInode, root)
	require.NoError(t, err)
	rd := rawDirectory{data: data}

	first := rd.slot(0)
	second := rd.slot(1)
	short := rd.slot(2)
	require.Equal(t, byte(attrLongName), first[11])
	require.Equal(t, byte(attrLongName), second[11])
	require.Equal(t, byte(2|longNameLastFlag), first[0])
	require.Equal(t, byte(1), second[0])

	var sn [11]byte
	copy(sn[:], short[0:11])
	sum := checksum(sn)
	require.Equal(t, sum, first[13])
	require.Equal(t, sum, second[13])

	entry, err := fs.ReadDir(filesystem.RootInode, 2)
	require.NoError(t, err)
	require.Equal(t, "verylongfilename.dat", entry.Name)
}

func TestWriteBoundarySizes(t *testing.T) {
	fs, dev := newTestFS(t)
	cs := fs.bpb.clusterSize()
	sizes := []uint32{1, cs - 1, cs, cs + 1}
	payloads := make([][]byte, len(sizes))
	for i, size := range sizes {
		payload := bytes.Repeat([]byte{byte('a' + i)}, int(size))
		ino := touchAndLink(t, fs, size, fmt.Sprintf("file%d.bin", i))
		n, err := fs.Write(ino, payload, 0)
		require.NoError(t, err)
		require.Equal(t, int(size), n)
		payloads[i] = payload
	}

	fs = reopen(t, fs, dev)
	for i := range sizes {
		entry, err := fs.ReadDir(filesystem.RootInode, 2+i)
		require.NoError(t, err)
		buf := make([]byte, sizes[i])
		n, err := fs.Read(entry.Inode, buf, 0)
		require.NoError(t, err)
		require.Equal(t, int(sizes[i]), n)
		require.Equal(t, payloads[i], buf)
	}
}

func TestWriteDoesNotExtend(t *testing.T) {
	fs, _ := newTestFS(t)
	ino := touchAndLink(t, fs, 10, "small.txt")

	n, err := fs.Write(ino, bytes.Repeat([]byte{'x'}, 20), 0)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	n, err = fs.Write(ino, []byte("more"), 10)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReadAtOffset(t *testing.T) {
	fs, _ := newTestFS(t)
	cs := fs.bpb.clusterSize()
	payload := make([]byte, cs+100)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	ino := touchAndLink(t, fs, uint32(len(payload)), "spread.bin")
	_, err := fs.Write(ino, payload, 0)
	require.NoError(t, err)

	// a read crossing the cluster boundary
	buf := make([]byte, 200)
	n, err := fs.Read(ino, buf, int64(cs)-100)
	require.NoError(t, err)
	require.Equal(t, 200, n)
	require.Equal(t, payload[cs-100:cs+100], buf)

	// a read past the end of the file
	_, err = fs.Read(ino, buf, int64(len(payload)))
	require.ErrorIs(t, err, io.EOF)
}

func TestUnlink(t *testing.T) {
	tests := []struct {
		name      string
		remove    int
		remaining []string
	}{
		{"first", 2, []string{"beta.txt", "gamma.txt"}},
		{"middle", 3, []string{"alpha.txt", "gamma.txt"}},
		{"last", 4, []string{"alpha.txt", "beta.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, _ := newTestFS(t)
			for _, name := range []string{"alpha.txt", "beta.txt", "gamma.txt"} {
				touchAndLink(t, fs, 10, name)
			}
			require.NoError(t, fs.Unlink(filesystem.RootInode, tt.remove))
			names := listNames(t, fs, filesystem.RootInode)
			expected := append([]string{".", ".."}, tt.remaining...)
			if diff := deep.Equal(names, expected); diff != nil {
				t.Errorf("mismatched listing after unlink: %v", diff)
			}
		})
	}
}

func TestUnlinkInvalidIndex(t *testing.T) {
	fs, _ := newTestFS(t)
	require.ErrorIs(t, fs.Unlink(filesystem.RootInode, 0), filesystem.ErrInvalidArgument)
	require.ErrorIs(t, fs.Unlink(filesystem.RootInode, 1), filesystem.ErrInvalidArgument)
	require.ErrorIs(t, fs.Unlink(filesystem.RootInode, 2), filesystem.ErrNotFound)
}

// freed clusters are reused in ascending order starting at
// the lowest freed index.
func TestUnlinkFreesClustersForReuse(t *testing.T) {
	fs, _ := newTestFS(t)
	cs := fs.bpb.clusterSize()
	size := cs + cs/2 // two clusters each

	var middle filesystem.Inode
	for i, name := range []string{"one.bin", "two.bin", "three.bin"} {
		ino := touchAndLink(t, fs, size, name)
		if i == 1 {
			middle = ino
		}
	}
	in, err := fs.reg.get(middle)
	require.NoError(t, err)
	freed, err := fs.table.chain(in.cluster)
	require.NoError(t, err)

	require.NoError(t, fs.Unlink(filesystem.RootInode, 3))

	replacement, err := fs.Touch(filesystem.FileStat{Size: size})
	require.NoError(t, err)
	rin, err := fs.reg.get(replacement)
	require.NoError(t, err)
	reused, err := fs.table.chain(rin.cluster)
	require.NoError(t, err)
	if diff := deep.Equal(reused, freed); diff != nil {
		t.Errorf("freed clusters not reused in ascending order: %v", diff)
	}
}

func TestDirectoryGrowth(t *testing.T) {
	fs, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir(filesystem.RootInode, "crowded"))
	entry, err := fs.ReadDir(filesystem.RootInode, 2)
	require.NoError(t, err)
	dir := entry.Inode

	din, err := fs.reg.get(dir)
	require.NoError(t, err)
	slotsPerCluster := int(fs.bpb.clusterSize()) / direntSize

	// each file consumes one long-name entry and one short entry behind
	// the two dot entries; fill the first cluster exactly, then overflow
	fill := (slotsPerCluster - 2) / 2
	for i := 0; i < fill; i++ {
		ino, err := fs.Touch(filesystem.FileStat{Size: 1})
		require.NoError(t, err)
		require.NoError(t, fs.Link(ino, dir, fmt.Sprintf("file%03d.txt", i)))
	}
	clusters, err := fs.table.chain(din.cluster)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	ino, err := fs.Touch(filesystem.FileStat{Size: 1})
	require.NoError(t, err)
	require.NoError(t, fs.Link(ino, dir, "straw.txt"))

	clusters, err = fs.table.chain(din.cluster)
	require.NoError(t, err)
	require.Len(t, clusters, 2, "directory should have grown by one cluster")

	names := listNames(t, fs, dir)
	require.Len(t, names, 2+fill+1)
	require.Equal(t, "straw.txt", names[len(names)-1])
}

func TestLinkAfterUnlinkUsesCompactedSpace(t *testing.T) {
	fs, _ := newTestFS(t)
	touchAndLink(t, fs, 10, "first.txt")
	touchAndLink(t, fs, 10, "second.txt")
	touchAndLink(t, fs, 10, "third.txt")
	require.NoError(t, fs.Unlink(filesystem.RootInode, 3))

	root, err := fs.reg.get(filesystem.RootInode)
	require.NoError(t, err)
	data, err := fs.loadDirectory(filesystem.RootInode, root)
	require.NoError(t, err)
	rd := rawDirectory{data: data}
	before := 0
	for i := 0; i < rd.numSlots(); i++ {
		if rd.slot(i)[0] == endOfDirectoryMarker {
			break
		}
		before++
	}

	// the new entry fits in the compacted hole at the end, not past it
	touchAndLink(t, fs, 10, "fourth.txt")
	data, err = fs.loadDirectory(filesystem.RootInode, root)
	require.NoError(t, err)
	rd = rawDirectory{data: data}
	after := 0
	for i := 0; i < rd.numSlots(); i++ {
		if rd.slot(i)[0] == endOfDirectoryMarker {
			break
		}
		after++
	}
	require.Equal(t, before+2, after)
}

func TestRmdir(t *testing.T) {
	fs, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir(filesystem.RootInode, "victim"))
	entry, err := fs.ReadDir(filesystem.RootInode, 2)
	require.NoError(t, err)
	dir := entry.Inode

	ino, err := fs.Touch(filesystem.FileStat{Size: 10})
	require.NoError(t, err)
	require.NoError(t, fs.Link(ino, dir, "blocker.txt"))

	require.ErrorIs(t, fs.Rmdir(filesystem.RootInode, 2), filesystem.ErrNotEmpty)

	require.NoError(t, fs.Unlink(dir, 2))
	require.NoError(t, fs.Rmdir(filesystem.RootInode, 2))

	names := listNames(t, fs, filesystem.RootInode)
	require.Equal(t, []string{".", ".."}, names)
}

func TestRmdirOnFile(t *testing.T) {
	fs, _ := newTestFS(t)
	touchAndLink(t, fs, 10, "plain.txt")
	require.ErrorIs(t, fs.Rmdir(filesystem.RootInode, 2), filesystem.ErrNotADirectory)
}

func TestReadDirOnFile(t *testing.T) {
	fs, _ := newTestFS(t)
	ino := touchAndLink(t, fs, 10, "plain.txt")
	_, err := fs.ReadDir(ino, 0)
	require.ErrorIs(t, err, filesystem.ErrNotADirectory)
}

func TestRootDirectoryFull(t *testing.T) {
	fs, _ := newTestFS(t)
	// every file occupies two slots in the 240-entry root
	limit := int(fs.bpb.rootEntryCount) / 2
	for i := 0; i < limit; i++ {
		ino, err := fs.Touch(filesystem.FileStat{Size: 1})
		require.NoError(t, err)
		require.NoError(t, fs.Link(ino, filesystem.RootInode, fmt.Sprintf("file%04d.txt", i)))
	}
	ino, err := fs.Touch(filesystem.FileStat{Size: 1})
	require.NoError(t, err)
	err = fs.Link(ino, filesystem.RootInode, "toomuch.txt")
	require.ErrorIs(t, err, filesystem.ErrNoSpace)
}

func TestFstatModes(t *testing.T) {
	fs, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir(filesystem.RootInode, "d"))
	touchAndLink(t, fs, 7, "f.txt")

	st, err := fs.Fstat(filesystem.RootInode)
	require.NoError(t, err)
	require.Equal(t, os.ModeDir|0o777, st.Mode)

	entry, err := fs.ReadDir(filesystem.RootInode, 3)
	require.NoError(t, err)
	st, err = fs.Fstat(entry.Inode)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o777), st.Mode)
	require.Equal(t, uint32(7), st.Size)
}

func TestCheck(t *testing.T) {
	t.Run("clean volume", func(t *testing.T) {
		fs, _ := newTestFS(t)
		touchAndLink(t, fs, 100, "ok.txt")
		require.NoError(t, fs.Mkdir(filesystem.RootInode, "dir"))
		require.NoError(t, fs.Check())
	})

	t.Run("truncated chain", func(t *testing.T) {
		fs, _ := newTestFS(t)
		cs := fs.bpb.clusterSize()
		ino := touchAndLink(t, fs, 2*cs, "long.bin")
		in, err := fs.reg.get(ino)
		require.NoError(t, err)
		// cut the chain short behind the first cluster
		fs.table.setEntry(in.cluster, eocMarker)
		err = fs.Check()
		require.Error(t, err)
		require.Contains(t, err.Error(), "clusters")
	})

	t.Run("lost cluster", func(t *testing.T) {
		fs, _ := newTestFS(t)
		fs.table.setEntry(50, eocMarker)
		err := fs.Check()
		require.Error(t, err)
		require.Contains(t, err.Error(), "not reachable")
	})
}

func TestCloseFlushesAllFatCopies(t *testing.T) {
	storage := raw.New(testVolumeSize, false)
	dev := disk.NewDevice(storage, testVolumeSize)
	fs, err := Create(dev)
	require.NoError(t, err)
	touchAndLink(t, fs, 100, "persist.txt")

	reserved := uint32(fs.bpb.reservedSectors)
	spf := uint32(fs.bpb.sectorsPerFat)
	require.NoError(t, fs.Close())

	fatSize := spf * filesystem.BlockSize
	first := make([]byte, fatSize)
	second := make([]byte, fatSize)
	require.NoError(t, dev.ReadBlocks(first, reserved, spf))
	require.NoError(t, dev.ReadBlocks(second, reserved+spf, spf))
	require.Equal(t, first, second)
	require.NotEqual(t, make([]byte, fatSize), first)

	_, err = fs.Read(filesystem.RootInode, make([]byte, 1), 0)
	require.Error(t, err)
}

func TestUnlinkSecondEntryKeepsFirst(t *testing.T) {
	fs, _ := newTestFS(t)
	touchAndLink(t, fs, 10, "keep.txt")
	touchAndLink(t, fs, 10, "drop.txt")
	require.NoError(t, fs.Unlink(filesystem.RootInode, 3))
	names := listNames(t, fs, filesystem.RootInode)
	require.Equal(t, []string{".", "..", "keep.txt"}, names)
}
