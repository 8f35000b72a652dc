// Package fat implements a FAT12 filesystem driver. FAT stores all file
// metadata inside directory entries; the driver bridges that onto the
// inode-handle API by materializing inodes lazily during ReadDir and keeping
// them in an append-only registry for the lifetime of the mount.
//
// The in-memory FAT is updated immediately on every allocation; the on-disk
// copies are written only at Close. Directory and file data writes go to disk
// synchronously per call.
package fat

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/Zargontapel/dito/filesystem"
	"github.com/Zargontapel/dito/util/timestamp"
)

// FileSystem is a mounted FAT12 volume.
type FileSystem struct {
	dev   filesystem.BlockDevice
	bpb   *bpb
	table *table
	reg   *registry
}

// Driver is the registration record for the FAT driver.
var Driver = filesystem.Driver{
	Name:    "fat",
	Type:    filesystem.TypeFat,
	Present: true,
	Load: func(dev filesystem.BlockDevice) (filesystem.FileSystem, error) {
		return Load(dev)
	},
	Create: func(dev filesystem.BlockDevice) (filesystem.FileSystem, error) {
		return Create(dev)
	},
	Probe: Probe,
}

// Load mounts an existing FAT12 volume: it reads the BPB, pulls the first
// FAT copy into memory, and seeds the inode registry with the root
// directory.
func Load(dev filesystem.BlockDevice) (*FileSystem, error) {
	b := make([]byte, filesystem.BlockSize)
	if err := dev.ReadBlocks(b, 0, 1); err != nil {
		return nil, fmt.Errorf("could not read boot sector: %w", err)
	}
	p, err := bpbFromBytes(b)
	if err != nil {
		return nil, err
	}
	if t := p.fatType(); t != 12 {
		return nil, fmt.Errorf("volume has %d clusters and needs FAT%d: %w", p.numClusters(), t, filesystem.ErrUnsupported)
	}

	fatData := make([]byte, uint32(p.sectorsPerFat)*filesystem.BlockSize)
	if err := dev.ReadBlocks(fatData, uint32(p.reservedSectors), uint32(p.sectorsPerFat)); err != nil {
		return nil, fmt.Errorf("could not read FAT: %w", err)
	}

	fs := &FileSystem{
		dev:   dev,
		bpb:   p,
		table: newTable(fatData, p.numClusters()),
		reg:   newRegistry(rootInode()),
	}
	log.WithFields(log.Fields{
		"clusters":    p.numClusters(),
		"clusterSize": p.clusterSize(),
		"rootEntries": p.rootEntryCount,
	}).Debug("mounted fat12 volume")
	return fs, nil
}

// Create formats the device as FAT12 and returns the fresh mount, the
// equivalent of mkfs. Volumes large enough to need FAT16 or FAT32 are
// refused.
func Create(dev filesystem.BlockDevice) (*FileSystem, error) {
	numSectors := dev.Blocks()
	volumeBytes := int64(numSectors) * filesystem.BlockSize

	switch {
	case volumeBytes >= 0x80000000:
		return nil, fmt.Errorf("volume of %d bytes needs FAT32: %w", volumeBytes, filesystem.ErrUnsupported)
	case volumeBytes >= 0x1000000:
		return nil, fmt.Errorf("volume of %d bytes needs FAT16: %w", volumeBytes, filesystem.ErrUnsupported)
	}

	sectorsPerCluster := uint8(8)
	rootEntries := uint16(240)
	media := byte(0xf0)
	if volumeBytes > 0x400000 {
		// larger than a floppy: use the fixed-disk descriptor and a
		// bigger root directory
		rootEntries = 512
		media = 0xf8
	}
	reserved := uint16(4)

	// entries the FAT must cover, at 341 12-bit entries per sector
	fatClusters := numSectors/uint32(sectorsPerCluster) - uint32(reserved)
	entriesPerSector := uint32(filesystem.BlockSize) * 8 / 12
	sectorsPerFat := fatClusters / entriesPerSector
	if fatClusters%entriesPerSector != 0 {
		sectorsPerFat++
	}

	serial := uuid.New()
	p := &bpb{
		oemName:           "mkdosfs ",
		bytesPerSector:    filesystem.BlockSize,
		sectorsPerCluster: sectorsPerCluster,
		reservedSectors:   reserved,
		fatCount:          2,
		rootEntryCount:    rootEntries,
		mediaDescriptor:   media,
		sectorsPerFat:     uint16(sectorsPerFat),
		sectorsPerTrack:   32,
		heads:             64,
		hiddenSectors:     0,
		volumeSerial:      uint32(serial[0]) | uint32(serial[1])<<8 | uint32(serial[2])<<16 | uint32(serial[3])<<24,
		volumeLabel:       "DITO       ",
		fsTypeLabel:       "FAT12   ",
	}
	if numSectors > 65535 {
		p.totalSectorsLarge = numSectors
	} else {
		p.totalSectorsSmall = uint16(numSectors)
	}

	if err := dev.WriteBlocks(p.toBytes(), 0, 1); err != nil {
		return nil, fmt.Errorf("could not write boot sector: %w", err)
	}

	// fresh FAT with the two reserved entries
	fatData := make([]byte, sectorsPerFat*filesystem.BlockSize)
	t := newTable(fatData, p.numClusters())
	t.setEntry(0, 0xf00|uint32(media))
	t.setEntry(1, eocMarker)

	// make sure the root directory region reads as empty even when the
	// device held a filesystem before
	zero := make([]byte, p.rootSectors()*filesystem.BlockSize)
	if err := dev.WriteBlocks(zero, p.firstDataSector(), p.rootSectors()); err != nil {
		return nil, fmt.Errorf("could not clear root directory: %w", err)
	}

	log.WithFields(log.Fields{
		"sectors":       numSectors,
		"sectorsPerFat": sectorsPerFat,
		"rootEntries":   rootEntries,
	}).Debug("formatted fat12 volume")

	return &FileSystem{
		dev:   dev,
		bpb:   p,
		table: t,
		reg:   newRegistry(rootInode()),
	}, nil
}

// Probe reports whether the device holds a FAT12 volume.
func Probe(dev filesystem.BlockDevice) bool {
	b := make([]byte, filesystem.BlockSize)
	if err := dev.ReadBlocks(b, 0, 1); err != nil {
		return false
	}
	p, err := bpbFromBytes(b)
	if err != nil {
		return false
	}
	return p.fatType() == 12
}

// rootInode is the synthetic record behind handle 1. The FAT12 root
// directory is not chained, so its cluster is 0 and its size comes from the
// BPB root entry count.
func rootInode() *inode {
	return &inode{
		parent:  filesystem.RootInode,
		attr:    attrDirectory,
		cluster: 0,
		size:    0,
		atime:   fatEpoch,
		ctime:   fatEpoch,
		mtime:   fatEpoch,
	}
}

// Type returns the type of filesystem
func (fs *FileSystem) Type() filesystem.Type {
	return filesystem.TypeFat
}

// FreeClusters returns the number of unallocated clusters on the volume.
func (fs *FileSystem) FreeClusters() (uint32, error) {
	if err := fs.mounted(); err != nil {
		return 0, err
	}
	return fs.table.countFree(), nil
}

// Geometry returns basic volume geometry, for display purposes.
func (fs *FileSystem) Geometry() (clusterSize, numClusters, rootEntries uint32, err error) {
	if err := fs.mounted(); err != nil {
		return 0, 0, 0, err
	}
	return fs.bpb.clusterSize(), fs.bpb.numClusters(), uint32(fs.bpb.rootEntryCount), nil
}

func (fs *FileSystem) mounted() error {
	if fs.reg == nil {
		return errors.New("filesystem is closed")
	}
	return nil
}

// clusterCount returns the number of clusters behind an inode. The root
// directory is not chained; its count derives from the BPB.
func (fs *FileSystem) clusterCount(ino filesystem.Inode, in *inode) (uint32, error) {
	if ino == filesystem.RootInode {
		return fs.bpb.rootClusters(), nil
	}
	if in.cluster < minDataCluster {
		return 0, nil
	}
	clusters, err := fs.table.chain(in.cluster)
	if err != nil {
		return 0, err
	}
	return uint32(len(clusters)), nil
}

// Read reads up to len(p) bytes from the inode starting at offset. Reads are
// clamped to the inode size; for inodes without a declared size (the root and
// other directories) the cluster chain length bounds the read.
func (fs *FileSystem) Read(ino filesystem.Inode, p []byte, offset int64) (int, error) {
	if err := fs.mounted(); err != nil {
		return 0, err
	}
	in, err := fs.reg.get(ino)
	if err != nil {
		return 0, err
	}
	return fs.readAt(ino, in, p, offset)
}

func (fs *FileSystem) readAt(ino filesystem.Inode, in *inode, p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative offset: %w", filesystem.ErrInvalidArgument)
	}
	cs := int64(fs.bpb.clusterSize())
	count, err := fs.clusterCount(ino, in)
	if err != nil {
		return 0, err
	}
	size := int64(in.size)
	if size == 0 {
		size = int64(count) * cs
	}
	if offset >= size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if offset+length > size {
		length = size - offset
	}
	if length == 0 {
		return 0, nil
	}

	startCluster := offset / cs
	intra := offset % cs
	window := (length + intra + cs - 1) / cs

	if ino == filesystem.RootInode {
		// the root region is not chained and cannot be read from the
		// middle; read from the beginning and slice
		scratch := make([]byte, (startCluster+window)*cs)
		if err := fs.readClusters(scratch, 0, uint32(startCluster+window)); err != nil {
			return 0, err
		}
		copy(p, scratch[offset:offset+length])
		return int(length), nil
	}

	clusters, err := fs.table.chain(in.cluster)
	if err != nil {
		return 0, err
	}
	if startCluster+window > int64(len(clusters)) {
		return 0, fmt.Errorf("inode %d: size %d exceeds cluster chain of %d", ino, size, len(clusters))
	}
	scratch := make([]byte, window*cs)
	for i := int64(0); i < window; i++ {
		if err := fs.readClusters(scratch[i*cs:], clusters[startCluster+i], 1); err != nil {
			return 0, err
		}
	}
	copy(p, scratch[intra:intra+length])
	return int(length), nil
}

// Write writes up to len(p) bytes to the inode starting at offset, reading
// the affected cluster window first and overlaying the new bytes. Writes
// never extend an inode: the count is clamped to the current size and the
// clamped count returned. Extension is the business of Touch and Link.
func (fs *FileSystem) Write(ino filesystem.Inode, p []byte, offset int64) (int, error) {
	if err := fs.mounted(); err != nil {
		return 0, err
	}
	in, err := fs.reg.get(ino)
	if err != nil {
		return 0, err
	}
	return fs.writeAt(ino, in, p, offset)
}

func (fs *FileSystem) writeAt(ino filesystem.Inode, in *inode, p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative offset: %w", filesystem.ErrInvalidArgument)
	}
	cs := int64(fs.bpb.clusterSize())
	count, err := fs.clusterCount(ino, in)
	if err != nil {
		return 0, err
	}
	size := int64(in.size)
	if size == 0 {
		size = int64(count) * cs
	}
	if offset >= size {
		return 0, nil
	}
	length := int64(len(p))
	if offset+length > size {
		length = size - offset
	}
	if length == 0 {
		return 0, nil
	}

	if ino == filesystem.RootInode {
		// read-modify-write the root region from the beginning
		window := (offset + length + cs - 1) / cs
		scratch := make([]byte, window*cs)
		if err := fs.readClusters(scratch, 0, uint32(window)); err != nil {
			return 0, err
		}
		copy(scratch[offset:], p[:length])
		if err := fs.writeClusters(scratch, 0, uint32(window)); err != nil {
			return 0, err
		}
		return int(length), nil
	}

	startCluster := offset / cs
	intra := offset % cs
	window := (length + intra + cs - 1) / cs
	clusters, err := fs.table.chain(in.cluster)
	if err != nil {
		return 0, err
	}
	if startCluster+window > int64(len(clusters)) {
		return 0, fmt.Errorf("inode %d: size %d exceeds cluster chain of %d", ino, size, len(clusters))
	}
	scratch := make([]byte, window*cs)
	for i := int64(0); i < window; i++ {
		if err := fs.readClusters(scratch[i*cs:], clusters[startCluster+i], 1); err != nil {
			return 0, err
		}
	}
	copy(scratch[intra:], p[:length])
	for i := int64(0); i < window; i++ {
		if err := fs.writeClusters(scratch[i*cs:], clusters[startCluster+i], 1); err != nil {
			return 0, err
		}
	}
	return int(length), nil
}

// Touch allocates a new inode and its cluster chain, sized for st.Size. A
// new inode always consumes at least one cluster, even at size zero. The
// inode has no parent and no directory entry until Link is called.
func (fs *FileSystem) Touch(st filesystem.FileStat) (filesystem.Inode, error) {
	if err := fs.mounted(); err != nil {
		return 0, err
	}
	cs := fs.bpb.clusterSize()
	clusters := uint32(1)
	if st.Size > 0 {
		clusters = (st.Size + cs - 1) / cs
	}
	head, err := fs.table.allocateChain(clusters)
	if err != nil {
		return 0, err
	}

	var attr byte
	if st.Mode&os.ModeDir != 0 {
		attr = attrDirectory
	}
	atime, ctime, mtime := st.Atime, st.Ctime, st.Mtime
	if atime.IsZero() && ctime.IsZero() && mtime.IsZero() {
		now := timestamp.GetTime()
		atime, ctime, mtime = now, now, now
	}
	in := &inode{
		parent:  parentUnknown,
		attr:    attr,
		cluster: head,
		size:    st.Size,
		atime:   atime,
		ctime:   ctime,
		mtime:   mtime,
	}
	return fs.reg.add(in), nil
}

// loadDirectory reads the full contents of a directory into memory.
func (fs *FileSystem) loadDirectory(dir filesystem.Inode, din *inode) ([]byte, error) {
	count, err := fs.clusterCount(dir, din)
	if err != nil {
		return nil, err
	}
	data := make([]byte, count*fs.bpb.clusterSize())
	if _, err := fs.readAt(dir, din, data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

// ReadDir returns the directory entry at the given index. Indexes 0 and 1
// are the synthetic "." and ".." entries; real children start at 2. The
// FAT12 root carries no physical dot entries, so for non-root directories
// the scan skips the two physical entries that do. The child inode is
// materialized into the registry and its handle returned with the name.
func (fs *FileSystem) ReadDir(dir filesystem.Inode, index int) (*filesystem.Dirent, error) {
	if err := fs.mounted(); err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, fmt.Errorf("negative directory index: %w", filesystem.ErrInvalidArgument)
	}
	din, err := fs.reg.get(dir)
	if err != nil {
		return nil, err
	}
	if !din.isDir() {
		return nil, fmt.Errorf("inode %d: %w", dir, filesystem.ErrNotADirectory)
	}

	switch index {
	case 0:
		return &filesystem.Dirent{Name: ".", Inode: dir}, nil
	case 1:
		return &filesystem.Dirent{Name: "..", Inode: din.parent}, nil
	}

	n := index
	if dir != filesystem.RootInode {
		// skip the physical "." and ".." entries
		n += 2
	}
	data, err := fs.loadDirectory(dir, din)
	if err != nil {
		return nil, err
	}
	rd := rawDirectory{data: data}
	start, end, err := rd.locate(n - 2)
	if err != nil {
		return nil, err
	}

	de := direntFromBytes(rd.slot(end - 1))
	name := rd.longNameAt(start, end)
	if name == "" {
		name = de.displayName()
	}

	child := &inode{
		parent:  dir,
		attr:    de.attr,
		cluster: de.cluster,
		size:    de.size,
		atime:   de.accessTime,
		ctime:   de.createTime,
		mtime:   de.modifyTime,
	}
	ino := fs.reg.add(child)
	return &filesystem.Dirent{Name: name, Inode: ino}, nil
}

// Link inserts child into dir under the given name, writing the long-name
// chain and the short entry into the first suitable run of free slots. A full
// non-root directory grows cluster by cluster until the new entries fit; the
// fixed-size root region does not grow and returns ErrNoSpace. The literal names of the
// dot entries are written as raw short entries without long names.
func (fs *FileSystem) Link(child, dir filesystem.Inode, name string) error {
	if err := fs.mounted(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("empty name: %w", filesystem.ErrInvalidArgument)
	}
	cin, err := fs.reg.get(child)
	if err != nil {
		return err
	}
	din, err := fs.reg.get(dir)
	if err != nil {
		return err
	}
	if !din.isDir() {
		return fmt.Errorf("inode %d: %w", dir, filesystem.ErrNotADirectory)
	}

	data, err := fs.loadDirectory(dir, din)
	if err != nil {
		return err
	}
	rd := rawDirectory{data: data}

	dotLiteral := name == dotEntryName || name == dotDotEntryName
	var (
		shortName [11]byte
		lfn       []byte
	)
	slots := 1
	if dotLiteral {
		copy(shortName[:], name)
	} else {
		shortName = shortNameFromLong(name, rd.shortNames())
		lfn = encodeLongName(name, shortName)
		slots += len(lfn) / direntSize
	}

	pos, atEnd := rd.freeRun(slots)
	needed := (pos + slots) * direntSize
	if dir == filesystem.RootInode && needed > int(fs.bpb.rootEntryCount)*direntSize {
		// the root directory region is fixed in size
		return fmt.Errorf("root directory is full: %w", filesystem.ErrNoSpace)
	}
	for needed > len(data) {
		if dir == filesystem.RootInode {
			return fmt.Errorf("root directory is full: %w", filesystem.ErrNoSpace)
		}
		if _, err := fs.table.extendChain(din.cluster); err != nil {
			return err
		}
		data = append(data, make([]byte, fs.bpb.clusterSize())...)
	}

	offset := pos * direntSize
	copy(data[offset:], lfn)
	de := &dirent{
		shortName:  shortName,
		attr:       cin.attr,
		cluster:    cin.cluster,
		size:       cin.size,
		createTime: cin.ctime,
		accessTime: cin.atime,
		modifyTime: cin.mtime,
	}
	copy(data[offset+len(lfn):], de.toBytes())
	if atEnd {
		// the new entries replaced the end marker; everything behind
		// them must read as end-of-directory
		for i := offset + slots*direntSize; i < len(data); i++ {
			data[i] = 0
		}
	}
	if !dotLiteral {
		cin.parent = dir
	}
	if _, err := fs.writeAt(dir, din, data, 0); err != nil {
		return err
	}
	return nil
}

// Unlink removes the directory entry at the given index (>= 2), compacting
// the directory over the entry and its long-name run, and releases the
// target's cluster chain.
func (fs *FileSystem) Unlink(dir filesystem.Inode, index int) error {
	if err := fs.mounted(); err != nil {
		return err
	}
	if index < 2 {
		return fmt.Errorf("cannot unlink directory index %d: %w", index, filesystem.ErrInvalidArgument)
	}
	din, err := fs.reg.get(dir)
	if err != nil {
		return err
	}
	if !din.isDir() {
		return fmt.Errorf("inode %d: %w", dir, filesystem.ErrNotADirectory)
	}

	entry, err := fs.ReadDir(dir, index)
	if err != nil {
		return err
	}
	target, err := fs.reg.get(entry.Inode)
	if err != nil {
		return err
	}

	n := index
	if dir != filesystem.RootInode {
		n += 2
	}
	data, err := fs.loadDirectory(dir, din)
	if err != nil {
		return err
	}
	rd := rawDirectory{data: data}
	start, end, err := rd.locate(n - 2)
	if err != nil {
		return err
	}
	rd.compact(start, end)
	if _, err := fs.writeAt(dir, din, data, 0); err != nil {
		return err
	}

	if target.cluster >= minDataCluster {
		if err := fs.table.releaseChain(target.cluster); err != nil {
			return err
		}
	}
	return nil
}

// Fstat returns the metadata record for an inode.
func (fs *FileSystem) Fstat(ino filesystem.Inode) (filesystem.FileStat, error) {
	if err := fs.mounted(); err != nil {
		return filesystem.FileStat{}, err
	}
	in, err := fs.reg.get(ino)
	if err != nil {
		return filesystem.FileStat{}, err
	}
	st := filesystem.FileStat{
		Size:  in.size,
		Mode:  0o777,
		Atime: in.atime,
		Ctime: in.ctime,
		Mtime: in.mtime,
	}
	if in.isDir() {
		st.Mode |= os.ModeDir
	}
	return st, nil
}

// Mkdir creates a new directory under parent: a one-cluster inode, a link
// from the parent, and the "." and ".." entries inside the fresh cluster.
func (fs *FileSystem) Mkdir(parent filesystem.Inode, name string) error {
	if err := fs.mounted(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("empty name: %w", filesystem.ErrInvalidArgument)
	}
	now := timestamp.GetTime()
	st := filesystem.FileStat{
		Size:  0,
		Mode:  os.ModeDir | 0o755,
		Atime: now,
		Ctime: now,
		Mtime: now,
	}
	child, err := fs.Touch(st)
	if err != nil {
		return err
	}
	if err := fs.Link(child, parent, name); err != nil {
		return err
	}

	cin, err := fs.reg.get(child)
	if err != nil {
		return err
	}
	zero := make([]byte, fs.bpb.clusterSize())
	if err := fs.writeClusters(zero, cin.cluster, 1); err != nil {
		return err
	}

	if err := fs.Link(child, child, dotEntryName); err != nil {
		return err
	}
	return fs.Link(parent, child, dotDotEntryName)
}

// Rmdir removes the directory entry at the given index. The target must be
// an empty directory.
func (fs *FileSystem) Rmdir(dir filesystem.Inode, index int) error {
	if err := fs.mounted(); err != nil {
		return err
	}
	if index < 2 {
		return fmt.Errorf("cannot remove directory index %d: %w", index, filesystem.ErrInvalidArgument)
	}
	entry, err := fs.ReadDir(dir, index)
	if err != nil {
		return err
	}
	target, err := fs.reg.get(entry.Inode)
	if err != nil {
		return err
	}
	if !target.isDir() {
		return fmt.Errorf("inode %d: %w", entry.Inode, filesystem.ErrNotADirectory)
	}
	if _, err := fs.ReadDir(entry.Inode, 2); err == nil {
		return fmt.Errorf("directory %q: %w", entry.Name, filesystem.ErrNotEmpty)
	} else if !errors.Is(err, filesystem.ErrNotFound) {
		return err
	}
	return fs.Unlink(dir, index)
}

// Close flushes the in-memory FAT to every on-disk copy and releases the
// mount. Errors flushing individual copies are accumulated; the remaining
// copies are still written.
func (fs *FileSystem) Close() error {
	if fs.reg == nil {
		return nil
	}
	var result *multierror.Error
	spf := uint32(fs.bpb.sectorsPerFat)
	offset := uint32(fs.bpb.reservedSectors)
	for i := 0; i < int(fs.bpb.fatCount); i++ {
		if err := fs.dev.WriteBlocks(fs.table.bytes(), offset, spf); err != nil {
			result = multierror.Append(result, fmt.Errorf("flushing FAT copy %d: %w", i, err))
		}
		offset += spf
	}
	fs.reg = nil
	fs.table = nil
	log.Debug("closed fat12 volume")
	return result.ErrorOrNil()
}
