package fat

import (
	"fmt"

	"github.com/Zargontapel/dito/filesystem"
)

// readClusters reads count clusters into b. Cluster 0 addresses the start of
// the FAT12/16 root directory region, which is not chained; reads of it are
// contiguous and must start at the beginning. Clusters >= 2 address data
// clusters behind the root region.
func (fs *FileSystem) readClusters(b []byte, cluster, count uint32) error {
	start, err := fs.clusterSector(cluster)
	if err != nil {
		return err
	}
	blocks := count * uint32(fs.bpb.sectorsPerCluster)
	return fs.dev.ReadBlocks(b, start, blocks)
}

// writeClusters writes count clusters from b, with the same addressing rules
// as readClusters.
func (fs *FileSystem) writeClusters(b []byte, cluster, count uint32) error {
	start, err := fs.clusterSector(cluster)
	if err != nil {
		return err
	}
	blocks := count * uint32(fs.bpb.sectorsPerCluster)
	return fs.dev.WriteBlocks(b, start, blocks)
}

func (fs *FileSystem) clusterSector(cluster uint32) (uint32, error) {
	start := fs.bpb.firstDataSector()
	if cluster == 0 {
		return start, nil
	}
	if cluster < minDataCluster {
		return 0, fmt.Errorf("cluster %d is reserved: %w", cluster, filesystem.ErrInvalidArgument)
	}
	start += fs.bpb.rootSectors()
	start += (cluster - minDataCluster) * uint32(fs.bpb.sectorsPerCluster)
	return start, nil
}
