package partition

import (
	"github.com/Zargontapel/dito/backend"
)

// Table is a reference to a partitioning table on disk
type Table interface {
	// Type returns the type of the partition table, e.g. "mbr"
	Type() string
	// Write writes the partition table to the given storage, considering the
	// total disk size in bytes
	Write(f backend.WritableFile, size int64) error
	// GetPartitionSize returns the size in bytes of the given partition,
	// 1-based
	GetPartitionSize(partition int) (int64, error)
	// GetPartitionStart returns the start in bytes of the given partition,
	// 1-based
	GetPartitionStart(partition int) (int64, error)
}
