// Package mbr provides an implementation of the Master Boot Record partition
// table as laid out in the first sector of a disk.
package mbr

import (
	"fmt"

	"github.com/Zargontapel/dito/backend"
)

// Table represents an MBR partition table. An MBR carries exactly four
// primary partition entries; unused slots have type Empty.
type Table struct {
	Partitions         []*Partition
	LogicalSectorSize  int
	PhysicalSectorSize int
	initialized        bool
}

const (
	mbrSize             = 512
	partitionEntrySize  = 16
	partitionTableStart = 446
	partitionCount      = 4
	signatureStart      = 510
)

// Type report the type of table, e.g. mbr or gpt
func (t *Table) Type() string {
	return "mbr"
}

func getMbrSignature() []byte {
	return []byte{0x55, 0xaa}
}

// tableFromBytes constructs a Table from the 512 bytes of the first sector
func tableFromBytes(b []byte) (*Table, error) {
	if len(b) < mbrSize {
		return nil, fmt.Errorf("data for partition was %d bytes instead of expected minimum %d", len(b), mbrSize)
	}

	if b[signatureStart] != 0x55 || b[signatureStart+1] != 0xaa {
		return nil, fmt.Errorf("invalid MBR signature %v", b[signatureStart:signatureStart+2])
	}

	parts := make([]*Partition, 0, partitionCount)
	for i := 0; i < partitionCount; i++ {
		start := partitionTableStart + i*partitionEntrySize
		p, err := partitionFromBytes(b[start : start+partitionEntrySize])
		if err != nil {
			return nil, fmt.Errorf("error reading partition entry %d: %w", i, err)
		}
		parts = append(parts, p)
	}

	return &Table{
		Partitions:         parts,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
		initialized:        true,
	}, nil
}

// Read reads a partition table from storage
func Read(f backend.File, logicalBlocksize, physicalBlocksize int) (*Table, error) {
	b := make([]byte, mbrSize)
	read, err := f.ReadAt(b, 0)
	if err != nil {
		return nil, fmt.Errorf("error reading MBR from file: %w", err)
	}
	if read != mbrSize {
		return nil, fmt.Errorf("read only %d bytes of MBR from file instead of expected %d", read, mbrSize)
	}
	table, err := tableFromBytes(b)
	if err != nil {
		return nil, err
	}
	table.LogicalSectorSize = logicalBlocksize
	table.PhysicalSectorSize = physicalBlocksize
	return table, nil
}

// toBytes returns the 512 bytes of the table ready to be written to the first
// sector of a disk. Bytes before the partition entries are left zeroed; any
// boot code there is the caller's concern.
func (t *Table) toBytes() []byte {
	b := make([]byte, mbrSize)

	for i := 0; i < partitionCount; i++ {
		start := partitionTableStart + i*partitionEntrySize
		p := &Partition{Type: Empty}
		if i < len(t.Partitions) && t.Partitions[i] != nil {
			p = t.Partitions[i]
		}
		copy(b[start:start+partitionEntrySize], p.toBytes())
	}
	copy(b[signatureStart:], getMbrSignature())
	return b
}

// Write writes the partition table to disk
func (t *Table) Write(f backend.WritableFile, _ int64) error {
	b := t.toBytes()
	written, err := f.WriteAt(b, 0)
	if err != nil {
		return fmt.Errorf("error writing MBR to file: %w", err)
	}
	if written != len(b) {
		return fmt.Errorf("wrote %d bytes of MBR instead of expected %d", written, len(b))
	}
	t.initialized = true
	return nil
}

func (t *Table) partition(partition int) (*Partition, error) {
	if partition < 1 || partition > len(t.Partitions) {
		return nil, fmt.Errorf("requested partition %d out of range 1-%d", partition, len(t.Partitions))
	}
	p := t.Partitions[partition-1]
	if p == nil || p.Type == Empty {
		return nil, fmt.Errorf("requested partition %d is empty", partition)
	}
	return p, nil
}

// GetPartitionSize returns the size in bytes of a single partition, 1-based
func (t *Table) GetPartitionSize(partition int) (int64, error) {
	p, err := t.partition(partition)
	if err != nil {
		return 0, err
	}
	return int64(p.Size) * int64(t.LogicalSectorSize), nil
}

// GetPartitionStart returns the start in bytes of a single partition, 1-based
func (t *Table) GetPartitionStart(partition int) (int64, error) {
	p, err := t.partition(partition)
	if err != nil {
		return 0, err
	}
	return int64(p.Start) * int64(t.LogicalSectorSize), nil
}
