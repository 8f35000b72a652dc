package filesystem

import (
	"fmt"
	"sync"
)

// Driver is the registration record for one filesystem implementation: its
// identity, whether a full implementation is present, and the lifecycle hooks
// that produce a mount. Per-mount operations and the close/check hooks live
// on the FileSystem the hooks return.
type Driver struct {
	Name string
	Type Type
	// Present is true when the driver implements the full operation set,
	// false for probe-only collaborators.
	Present bool
	// Load mounts an existing filesystem found on the device.
	Load func(dev BlockDevice) (FileSystem, error)
	// Create formats the device and returns the fresh mount.
	Create func(dev BlockDevice) (FileSystem, error)
	// Probe reports whether the device plausibly holds this filesystem.
	Probe func(dev BlockDevice) bool
}

var (
	driversMu sync.Mutex
	drivers   = map[Type]Driver{}
)

// Register adds a driver to the registry, replacing any driver previously
// registered for the same type.
func Register(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Type] = d
}

// LookupDriver returns the registered driver for a filesystem type.
func LookupDriver(t Type) (Driver, error) {
	driversMu.Lock()
	defer driversMu.Unlock()
	d, ok := drivers[t]
	if !ok {
		return Driver{}, fmt.Errorf("no driver registered for filesystem type %s", t)
	}
	return d, nil
}

// Probe asks every registered driver to identify the filesystem on the
// device, and returns the first driver that recognizes it.
func Probe(dev BlockDevice) (Driver, error) {
	driversMu.Lock()
	defer driversMu.Unlock()
	for _, d := range drivers {
		if d.Probe != nil && d.Probe(dev) {
			return d, nil
		}
	}
	return Driver{}, fmt.Errorf("no registered driver recognizes the filesystem")
}
