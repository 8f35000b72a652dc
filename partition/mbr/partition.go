package mbr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Type constants for the GetPartitionType and SetPartitionType calls
type Type byte

// Known partition types
const (
	Empty     Type = 0x00
	Fat12     Type = 0x01
	Fat16     Type = 0x06
	Fat32LBA  Type = 0x0c
	Fat16LBA  Type = 0x0e
	Linux     Type = 0x83
	LinuxLVM  Type = 0x8e
	LinuxSwap Type = 0x82
	EFISystem Type = 0xef
)

// Partition represents the structure of a single partition on the disk.
// Start and Size are in sectors; the CHS fields are carried as-is and not
// kept consistent with the LBA fields.
type Partition struct {
	Bootable      bool
	Type          Type
	Start         uint32
	Size          uint32
	StartHead     byte
	StartSector   byte
	StartCylinder byte
	EndHead       byte
	EndSector     byte
	EndCylinder   byte
}

// PartitionEqualBytes compares if two partitions are equal by comparing their
// on-disk bytes, ignoring CHS geometry
func PartitionEqualBytes(b1, b2 []byte) bool {
	if (b1 == nil && b2 != nil) || (b2 == nil && b1 != nil) {
		return false
	}
	if b1 == nil && b2 == nil {
		return true
	}
	if len(b1) != partitionEntrySize || len(b2) != partitionEntrySize {
		return false
	}
	return b1[0] == b2[0] &&
		b1[4] == b2[4] &&
		bytes.Equal(b1[8:12], b2[8:12]) &&
		bytes.Equal(b1[12:16], b2[12:16])
}

// Equal compares if another partition is equal to this one, ignoring CHS
// geometry
func (p *Partition) Equal(p2 *Partition) bool {
	if p2 == nil {
		return false
	}
	return p.Bootable == p2.Bootable &&
		p.Type == p2.Type &&
		p.Start == p2.Start &&
		p.Size == p2.Size
}

// toBytes returns the 16 bytes of this partition as they appear in the
// partition table
func (p *Partition) toBytes() []byte {
	b := make([]byte, partitionEntrySize)
	if p.Bootable {
		b[0] = 0x80
	}
	b[1] = p.StartHead
	b[2] = p.StartSector
	b[3] = p.StartCylinder
	b[4] = byte(p.Type)
	b[5] = p.EndHead
	b[6] = p.EndSector
	b[7] = p.EndCylinder
	binary.LittleEndian.PutUint32(b[8:12], p.Start)
	binary.LittleEndian.PutUint32(b[12:16], p.Size)
	return b
}

// partitionFromBytes creates a Partition from a 16-byte entry
func partitionFromBytes(b []byte) (*Partition, error) {
	if len(b) != partitionEntrySize {
		return nil, fmt.Errorf("data for partition was %d bytes instead of expected %d", len(b), partitionEntrySize)
	}
	var bootable bool
	switch b[0] {
	case 0x00:
		bootable = false
	case 0x80:
		bootable = true
	default:
		return nil, fmt.Errorf("invalid partition boot flag 0x%02x", b[0])
	}

	return &Partition{
		Bootable:      bootable,
		StartHead:     b[1],
		StartSector:   b[2],
		StartCylinder: b[3],
		Type:          Type(b[4]),
		EndHead:       b[5],
		EndSector:     b[6],
		EndCylinder:   b[7],
		Start:         binary.LittleEndian.Uint32(b[8:12]),
		Size:          binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}
