package fat

import (
	"fmt"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
)

// maxCheckDepth bounds the directory recursion so a cycle through corrupted
// cluster chains cannot hang the scan.
const maxCheckDepth = 128

// Check runs a consistency scan of the mounted volume: the reserved FAT
// entries, every chain reachable from the directory tree, chain length
// against declared file sizes, cross-linked clusters, and allocated clusters
// no chain reaches. All findings are accumulated and returned together.
func (fs *FileSystem) Check() error {
	if err := fs.mounted(); err != nil {
		return err
	}
	var result *multierror.Error

	if want := 0xf00 | uint32(fs.bpb.mediaDescriptor); fs.table.entry(0) != want {
		result = multierror.Append(result, fmt.Errorf("FAT entry 0 is 0x%03x, expected 0x%03x", fs.table.entry(0), want))
	}
	if !fs.table.isEoc(fs.table.entry(1)) {
		result = multierror.Append(result, fmt.Errorf("FAT entry 1 is 0x%03x, expected an end marker", fs.table.entry(1)))
	}

	used := bitmap.New(int(fs.table.maxCluster))
	fs.checkDirectory(true, 0, "/", used, &result, 0)

	for c := uint32(firstAllocatableCluster); c < fs.table.maxCluster; c++ {
		v := fs.table.entry(c)
		if v != fatEntryFree && v != fatEntryBad && !used.Get(int(c)) {
			result = multierror.Append(result, fmt.Errorf("cluster %d is allocated but not reachable from any directory entry", c))
		}
	}
	return result.ErrorOrNil()
}

// directoryData reads a directory's raw contents without going through the
// inode registry, so the scan sees the tree exactly as stored.
func (fs *FileSystem) directoryData(root bool, cluster uint32) ([]byte, error) {
	cs := fs.bpb.clusterSize()
	if root {
		n := fs.bpb.rootClusters()
		b := make([]byte, n*cs)
		if err := fs.readClusters(b, 0, n); err != nil {
			return nil, err
		}
		return b, nil
	}
	clusters, err := fs.table.chain(cluster)
	if err != nil {
		return nil, err
	}
	b := make([]byte, uint32(len(clusters))*cs)
	for i, c := range clusters {
		if err := fs.readClusters(b[uint32(i)*cs:], c, 1); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (fs *FileSystem) checkDirectory(root bool, cluster uint32, path string, used bitmap.Bitmap, result **multierror.Error, depth int) {
	if depth > maxCheckDepth {
		*result = multierror.Append(*result, fmt.Errorf("%s: directory tree deeper than %d, assuming a cycle", path, maxCheckDepth))
		return
	}
	data, err := fs.directoryData(root, cluster)
	if err != nil {
		*result = multierror.Append(*result, fmt.Errorf("%s: %w", path, err))
		return
	}
	cs := fs.bpb.clusterSize()
	rd := rawDirectory{data: data}
	for i := 0; i < rd.numSlots(); i++ {
		e := rd.slot(i)
		if e[0] == endOfDirectoryMarker {
			break
		}
		if e[0] == deletedEntryMarker || e[11] == attrLongName || e[11]&attrVolumeLabel != 0 {
			continue
		}
		de := direntFromBytes(e)
		name := de.displayName()
		if name == "." || name == ".." {
			continue
		}
		childPath := path + name

		if de.cluster < minDataCluster {
			*result = multierror.Append(*result, fmt.Errorf("%s: entry has no valid start cluster", childPath))
			continue
		}
		clusters, err := fs.table.chain(de.cluster)
		if err != nil {
			*result = multierror.Append(*result, fmt.Errorf("%s: %w", childPath, err))
			continue
		}
		crossLinked := false
		for _, c := range clusters {
			if used.Get(int(c)) {
				*result = multierror.Append(*result, fmt.Errorf("%s: cluster %d is cross-linked", childPath, c))
				crossLinked = true
				continue
			}
			used.Set(int(c), true)
		}
		if de.isDir() {
			if !crossLinked {
				fs.checkDirectory(false, de.cluster, childPath+"/", used, result, depth+1)
			}
			continue
		}
		if de.size > 0 {
			expected := (de.size + cs - 1) / cs
			if uint32(len(clusters)) != expected {
				*result = multierror.Append(*result, fmt.Errorf("%s: size %d needs %d clusters but the chain has %d", childPath, de.size, expected, len(clusters)))
			}
		}
	}
}
