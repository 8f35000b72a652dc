// Package partition provides the ability to work with individual partitions.
// Implementations are subpackages of this package, e.g.
// github.com/Zargontapel/dito/partition/mbr
package partition

import (
	"fmt"

	"github.com/Zargontapel/dito/backend"
	"github.com/Zargontapel/dito/partition/mbr"
)

// Read reads a partition table from storage
func Read(f backend.File, logicalBlocksize, physicalBlocksize int) (Table, error) {
	mbrTable, err := mbr.Read(f, logicalBlocksize, physicalBlocksize)
	if err == nil {
		return mbrTable, nil
	}
	return nil, fmt.Errorf("unknown disk partition type")
}
