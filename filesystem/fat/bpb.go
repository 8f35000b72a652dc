package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/Zargontapel/dito/filesystem"
)

// bpb is the BIOS Parameter Block stored in sector 0 of the volume, together
// with the extended boot record fields that follow it.
type bpb struct {
	oemName           string
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	fatCount          uint8
	rootEntryCount    uint16
	totalSectorsSmall uint16
	mediaDescriptor   byte
	sectorsPerFat     uint16
	sectorsPerTrack   uint16
	heads             uint16
	hiddenSectors     uint32
	totalSectorsLarge uint32
	driveNumber       uint8
	volumeSerial      uint32
	volumeLabel       string
	fsTypeLabel       string
}

// bpbFromBytes reads the BPB from the 512 bytes of sector 0.
func bpbFromBytes(b []byte) (*bpb, error) {
	if len(b) != filesystem.BlockSize {
		return nil, fmt.Errorf("cannot read BPB from invalid byte slice, must be precisely %d bytes", filesystem.BlockSize)
	}
	p := &bpb{
		oemName:           string(b[3:11]),
		bytesPerSector:    binary.LittleEndian.Uint16(b[11:13]),
		sectorsPerCluster: b[13],
		reservedSectors:   binary.LittleEndian.Uint16(b[14:16]),
		fatCount:          b[16],
		rootEntryCount:    binary.LittleEndian.Uint16(b[17:19]),
		totalSectorsSmall: binary.LittleEndian.Uint16(b[19:21]),
		mediaDescriptor:   b[21],
		sectorsPerFat:     binary.LittleEndian.Uint16(b[22:24]),
		sectorsPerTrack:   binary.LittleEndian.Uint16(b[24:26]),
		heads:             binary.LittleEndian.Uint16(b[26:28]),
		hiddenSectors:     binary.LittleEndian.Uint32(b[28:32]),
		totalSectorsLarge: binary.LittleEndian.Uint32(b[32:36]),
		driveNumber:       b[36],
	}
	// the serial, label and type fields are only valid behind the extended
	// boot signature
	if b[38] == extendedBootSignature {
		p.volumeSerial = binary.LittleEndian.Uint32(b[39:43])
		p.volumeLabel = string(b[43:54])
		p.fsTypeLabel = string(b[54:62])
	}

	if p.bytesPerSector != filesystem.BlockSize {
		return nil, fmt.Errorf("invalid sector size %d, only %d supported: %w", p.bytesPerSector, filesystem.BlockSize, filesystem.ErrCorruptSuperblock)
	}
	spc := p.sectorsPerCluster
	if spc == 0 || spc > 128 || spc&(spc-1) != 0 {
		return nil, fmt.Errorf("invalid sectors per cluster %d, must be a power of two up to 128: %w", spc, filesystem.ErrCorruptSuperblock)
	}
	if p.fatCount == 0 {
		return nil, fmt.Errorf("invalid FAT count 0: %w", filesystem.ErrCorruptSuperblock)
	}
	return p, nil
}

const extendedBootSignature = 0x29

// toBytes returns the BPB as a full boot sector ready to be written to disk.
func (p *bpb) toBytes() []byte {
	b := make([]byte, filesystem.BlockSize)
	b[0] = 0xeb
	b[1] = 0x3c
	b[2] = 0x90
	copy(b[3:11], padded(p.oemName, 8))
	binary.LittleEndian.PutUint16(b[11:13], p.bytesPerSector)
	b[13] = p.sectorsPerCluster
	binary.LittleEndian.PutUint16(b[14:16], p.reservedSectors)
	b[16] = p.fatCount
	binary.LittleEndian.PutUint16(b[17:19], p.rootEntryCount)
	binary.LittleEndian.PutUint16(b[19:21], p.totalSectorsSmall)
	b[21] = p.mediaDescriptor
	binary.LittleEndian.PutUint16(b[22:24], p.sectorsPerFat)
	binary.LittleEndian.PutUint16(b[24:26], p.sectorsPerTrack)
	binary.LittleEndian.PutUint16(b[26:28], p.heads)
	binary.LittleEndian.PutUint32(b[28:32], p.hiddenSectors)
	binary.LittleEndian.PutUint32(b[32:36], p.totalSectorsLarge)
	b[36] = p.driveNumber
	b[38] = extendedBootSignature
	binary.LittleEndian.PutUint32(b[39:43], p.volumeSerial)
	copy(b[43:54], padded(p.volumeLabel, 11))
	copy(b[54:62], padded(p.fsTypeLabel, 8))
	b[510] = 0x55
	b[511] = 0xaa
	return b
}

func padded(s string, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

// clusterSize returns the size of one cluster in bytes.
func (p *bpb) clusterSize() uint32 {
	return uint32(p.bytesPerSector) * uint32(p.sectorsPerCluster)
}

// rootSectors returns the number of sectors occupied by the FAT12/16 root
// directory region.
func (p *bpb) rootSectors() uint32 {
	bytes := uint32(p.rootEntryCount) * direntSize
	return (bytes + uint32(p.bytesPerSector) - 1) / uint32(p.bytesPerSector)
}

// rootClusters returns the number of cluster-sized units covering the root
// directory region.
func (p *bpb) rootClusters() uint32 {
	bytes := uint32(p.rootEntryCount) * direntSize
	return (bytes + p.clusterSize() - 1) / p.clusterSize()
}

// firstDataSector returns the first sector after the reserved area and the
// FAT copies. The root directory region starts here; data clusters follow it.
func (p *bpb) firstDataSector() uint32 {
	return uint32(p.reservedSectors) + uint32(p.fatCount)*uint32(p.sectorsPerFat)
}

func (p *bpb) totalSectors() uint32 {
	if p.totalSectorsSmall != 0 {
		return uint32(p.totalSectorsSmall)
	}
	return p.totalSectorsLarge
}

// numClusters returns the number of data clusters on the volume.
func (p *bpb) numClusters() uint32 {
	data := p.totalSectors() - p.firstDataSector() - p.rootSectors()
	return data / uint32(p.sectorsPerCluster)
}

// fatType returns the FAT variant for the volume: 12, 16 or 32.
func (p *bpb) fatType() int {
	switch n := p.numClusters(); {
	case n < 4085:
		return 12
	case n < 65525:
		return 16
	default:
		return 32
	}
}
