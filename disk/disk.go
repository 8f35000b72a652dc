// Package disk provides utilities for working directly with a disk image or
// block device: reading and writing the partition table, and exposing block
// devices for individual partitions that filesystem drivers can mount.
package disk

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Zargontapel/dito/backend"
	"github.com/Zargontapel/dito/filesystem"
	"github.com/Zargontapel/dito/partition"
)

// Disk is a reference to a single disk block device or image that has been
// opened or created.
type Disk struct {
	Backend           backend.Storage
	Size              int64
	LogicalBlocksize  int64
	PhysicalBlocksize int64
	DeviceType        DeviceType
	Table             partition.Table
}

// New creates a Disk over the given storage.
func New(b backend.Storage) (*Disk, error) {
	info, err := b.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat disk storage: %w", err)
	}
	if info.Size() <= 0 {
		return nil, fmt.Errorf("could not get size for disk %s", info.Name())
	}
	return &Disk{
		Backend:           b,
		Size:              info.Size(),
		LogicalBlocksize:  filesystem.BlockSize,
		PhysicalBlocksize: filesystem.BlockSize,
	}, nil
}

// GetPartitionTable retrieves the partition table for the Disk. Returns
// NoPartitionTableError when none is recognized.
func (d *Disk) GetPartitionTable() (partition.Table, error) {
	t, err := partition.Read(d.Backend, int(d.LogicalBlocksize), int(d.PhysicalBlocksize))
	if err != nil {
		return nil, &NoPartitionTableError{}
	}
	d.Table = t
	return t, nil
}

// Partition applies a partition.Table implementation to the Disk, writing it
// to storage.
func (d *Disk) Partition(table partition.Table) error {
	w, err := d.Backend.Writable()
	if err != nil {
		return err
	}
	if err := table.Write(w, d.Size); err != nil {
		return fmt.Errorf("failed to write partition table: %w", err)
	}
	d.Table = table
	log.WithField("type", table.Type()).Debug("wrote partition table")
	return nil
}

// Device returns a block device for the given partition, 1-based. Partition 0
// addresses the whole disk.
func (d *Disk) Device(part int) (*Device, error) {
	if part == 0 {
		return &Device{
			storage: d.Backend,
			size:    d.Size,
		}, nil
	}
	if d.Table == nil {
		if _, err := d.GetPartitionTable(); err != nil {
			return nil, err
		}
	}
	start, err := d.Table.GetPartitionStart(part)
	if err != nil {
		return nil, &InvalidPartitionError{requested: part}
	}
	size, err := d.Table.GetPartitionSize(part)
	if err != nil {
		return nil, &InvalidPartitionError{requested: part}
	}
	return &Device{
		storage: backend.Sub(d.Backend, start, size),
		size:    size,
	}, nil
}

// Mount loads the filesystem of the given type from a partition, 0 for the
// whole disk.
func (d *Disk) Mount(part int, t filesystem.Type) (filesystem.FileSystem, error) {
	drv, err := filesystem.LookupDriver(t)
	if err != nil {
		return nil, err
	}
	dev, err := d.Device(part)
	if err != nil {
		return nil, err
	}
	fs, err := drv.Load(dev)
	if err != nil {
		return nil, fmt.Errorf("could not mount %s on partition %d: %w", drv.Name, part, err)
	}
	return fs, nil
}

// CreateFilesystem formats a partition with the given filesystem type, the
// equivalent of mkfs, and returns the fresh mount. Partition 0 formats the
// whole disk.
func (d *Disk) CreateFilesystem(part int, t filesystem.Type) (filesystem.FileSystem, error) {
	drv, err := filesystem.LookupDriver(t)
	if err != nil {
		return nil, err
	}
	dev, err := d.Device(part)
	if err != nil {
		return nil, err
	}
	fs, err := drv.Create(dev)
	if err != nil {
		return nil, fmt.Errorf("could not create %s on partition %d: %w", drv.Name, part, err)
	}
	return fs, nil
}

// ProbeFilesystem identifies the filesystem on a partition using the
// registered drivers. Returns UnknownFilesystemError when none matches.
func (d *Disk) ProbeFilesystem(part int) (filesystem.Driver, error) {
	dev, err := d.Device(part)
	if err != nil {
		return filesystem.Driver{}, err
	}
	drv, err := filesystem.Probe(dev)
	if err != nil {
		return filesystem.Driver{}, NewUnknownFilesystemError(part)
	}
	return drv, nil
}

// Close closes the underlying storage.
func (d *Disk) Close() error {
	if d.Backend == nil {
		return errors.New("disk already closed")
	}
	err := d.Backend.Close()
	d.Backend = nil
	return err
}
