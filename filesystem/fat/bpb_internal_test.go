package fat

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Zargontapel/dito/filesystem"
)

func getValidBpb() *bpb {
	return &bpb{
		oemName:           "mkdosfs ",
		bytesPerSector:    512,
		sectorsPerCluster: 8,
		reservedSectors:   4,
		fatCount:          2,
		rootEntryCount:    240,
		totalSectorsSmall: 8192,
		mediaDescriptor:   0xf0,
		sectorsPerFat:     3,
		sectorsPerTrack:   32,
		heads:             64,
		hiddenSectors:     0,
		volumeSerial:      0xcafe1234,
		volumeLabel:       "DITO       ",
		fsTypeLabel:       "FAT12   ",
	}
}

func TestBpbFromBytes(t *testing.T) {
	t.Run("mismatched length", func(t *testing.T) {
		b := make([]byte, 511)
		p, err := bpbFromBytes(b)
		if err == nil {
			t.Errorf("did not return expected error")
		}
		if p != nil {
			t.Fatalf("returned bpb was non-nil")
		}
		expected := "cannot read BPB from invalid byte slice"
		if !strings.HasPrefix(err.Error(), expected) {
			t.Errorf("error %q instead of expected %q", err.Error(), expected)
		}
	})
	t.Run("invalid sector size", func(t *testing.T) {
		valid := getValidBpb()
		valid.bytesPerSector = 511
		_, err := bpbFromBytes(valid.toBytes())
		if !errors.Is(err, filesystem.ErrCorruptSuperblock) {
			t.Errorf("expected ErrCorruptSuperblock, got %v", err)
		}
	})
	t.Run("invalid sectors per cluster", func(t *testing.T) {
		for _, spc := range []uint8{0, 3, 255} {
			valid := getValidBpb()
			valid.sectorsPerCluster = spc
			_, err := bpbFromBytes(valid.toBytes())
			if !errors.Is(err, filesystem.ErrCorruptSuperblock) {
				t.Errorf("sectors per cluster %d: expected ErrCorruptSuperblock, got %v", spc, err)
			}
		}
	})
	t.Run("valid data", func(t *testing.T) {
		valid := getValidBpb()
		p, err := bpbFromBytes(valid.toBytes())
		if err != nil {
			t.Fatalf("returned unexpected error: %v", err)
		}
		if diff := cmp.Diff(p, valid, cmp.AllowUnexported(bpb{})); diff != "" {
			t.Errorf("mismatched BPB (-actual +expected):\n%s", diff)
		}
	})
}

func TestBpbToBytes(t *testing.T) {
	b := getValidBpb().toBytes()
	if len(b) != filesystem.BlockSize {
		t.Fatalf("boot sector is %d bytes instead of %d", len(b), filesystem.BlockSize)
	}
	if b[510] != 0x55 || b[511] != 0xaa {
		t.Errorf("missing boot sector signature: %02x %02x", b[510], b[511])
	}
}

func TestBpbDerived(t *testing.T) {
	p := getValidBpb()
	tests := []struct {
		name     string
		actual   uint32
		expected uint32
	}{
		{"clusterSize", p.clusterSize(), 4096},
		{"rootSectors", p.rootSectors(), 15},
		{"rootClusters", p.rootClusters(), 2},
		{"firstDataSector", p.firstDataSector(), 10},
		{"totalSectors", p.totalSectors(), 8192},
		{"numClusters", p.numClusters(), 1020},
	}
	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: actual %d expected %d", tt.name, tt.actual, tt.expected)
		}
	}
	if ft := p.fatType(); ft != 12 {
		t.Errorf("fatType: actual %d expected 12", ft)
	}
}

func TestBpbFatType(t *testing.T) {
	tests := []struct {
		totalSectors uint32
		expected     int
	}{
		{8192, 12},
		{70000, 16},
		{1200000, 32},
	}
	for _, tt := range tests {
		p := getValidBpb()
		p.totalSectorsSmall = 0
		p.totalSectorsLarge = tt.totalSectors
		if ft := p.fatType(); ft != tt.expected {
			t.Errorf("%d sectors: fatType actual %d expected %d", tt.totalSectors, ft, tt.expected)
		}
	}
}
