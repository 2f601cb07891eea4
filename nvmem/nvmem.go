package nvmem

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ardnew/softeeprom/pkg"
)

// Registry is the set of storage devices exposed to consumers.
//
// The registry lock only guards the name table. Device reads and writes
// call the provider's entry points without holding it.
type Registry struct {
	mutex   sync.RWMutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Register validates cfg and exposes a new device under cfg.Name.
func (r *Registry) Register(cfg Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dev := &Device{
		id:       uuid.New(),
		config:   cfg,
		registry: r,
		cells:    make(map[string]*Cell, len(cfg.Cells)),
	}
	dev.config.Cells = append([]CellInfo(nil), cfg.Cells...)
	for _, info := range dev.config.Cells {
		dev.cells[info.Name] = &Cell{info: info, dev: dev}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.devices[cfg.Name]; ok {
		return nil, fmt.Errorf("%w: nvmem device %q", pkg.ErrExist, cfg.Name)
	}
	r.devices[cfg.Name] = dev

	pkg.LogInfo(pkg.ComponentNVMEM, "device registered",
		"name", cfg.Name,
		"id", dev.id.String(),
		"owner", cfg.Owner,
		"size", cfg.Size,
		"cells", len(cfg.Cells),
		"readOnly", cfg.ReadOnly)
	return dev, nil
}

// Unregister removes dev. Subsequent I/O on dev fails with ErrDetached.
func (r *Registry) Unregister(dev *Device) error {
	if dev == nil {
		return fmt.Errorf("%w: nil device", pkg.ErrInvalidParameter)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if cur, ok := r.devices[dev.config.Name]; !ok || cur != dev {
		return fmt.Errorf("%w: nvmem device %q", pkg.ErrNotFound, dev.config.Name)
	}
	delete(r.devices, dev.config.Name)
	dev.removed.Store(true)

	pkg.LogInfo(pkg.ComponentNVMEM, "device unregistered", "name", dev.config.Name)
	return nil
}

// Lookup returns the device registered under name.
func (r *Registry) Lookup(name string) (*Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	dev, ok := r.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: nvmem device %q", pkg.ErrNotFound, name)
	}
	return dev, nil
}

// Devices returns the registered devices ordered by name.
func (r *Registry) Devices() []*Device {
	r.mutex.RLock()
	result := make([]*Device, 0, len(r.devices))
	for _, dev := range r.devices {
		result = append(result, dev)
	}
	r.mutex.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].config.Name < result[j].config.Name })
	return result
}

// Device is a registered storage region. It implements io.ReaderAt and
// io.WriterAt on top of the provider's entry points.
type Device struct {
	id       uuid.UUID
	config   Config
	registry *Registry
	cells    map[string]*Cell
	removed  atomic.Bool
}

// ID returns the unique instance identifier assigned at registration.
func (d *Device) ID() uuid.UUID { return d.id }

// Name returns the registered name.
func (d *Device) Name() string { return d.config.Name }

// Owner returns the registering driver's name.
func (d *Device) Owner() string { return d.config.Owner }

// Size returns the capacity in bytes.
func (d *Device) Size() int { return d.config.Size }

// WordSize returns the access granularity in bytes.
func (d *Device) WordSize() int { return d.config.WordSize }

// ReadOnly returns true if writes are rejected.
func (d *Device) ReadOnly() bool { return d.config.ReadOnly }

// check validates an access of n bytes at off and returns how many bytes
// fit before the end of the device.
func (d *Device) check(off int64, n int) (int, error) {
	if d.removed.Load() {
		return 0, pkg.ErrDetached
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", pkg.ErrInvalidParameter, off)
	}
	if off%int64(d.config.Stride) != 0 || n%d.config.WordSize != 0 {
		return 0, fmt.Errorf("%w: access 0x%x+%d not aligned to stride %d, word %d",
			pkg.ErrInvalidParameter, off, n, d.config.Stride, d.config.WordSize)
	}
	if off >= int64(d.config.Size) {
		return 0, nil
	}
	return int(min(int64(n), int64(d.config.Size)-off)), nil
}

// ReadAt reads len(p) bytes at off. A read that runs past the end returns
// the bytes that exist and io.EOF.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.check(off, len(p))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := d.config.Read(uint32(off), p[:n]); err != nil {
			return 0, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes p at off. A write that runs past the end stores the bytes
// that fit and returns ErrOutOfRange.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if d.config.ReadOnly {
		return 0, fmt.Errorf("%w: nvmem device %q", pkg.ErrReadOnly, d.config.Name)
	}
	n, err := d.check(off, len(p))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := d.config.Write(uint32(off), p[:n]); err != nil {
			return 0, err
		}
	}
	if n < len(p) {
		return n, fmt.Errorf("%w: wrote %d of %d bytes at 0x%x", pkg.ErrOutOfRange, n, len(p), off)
	}
	return n, nil
}

// Cells returns the cell layout ordered by offset.
func (d *Device) Cells() []CellInfo {
	cells := append([]CellInfo(nil), d.config.Cells...)
	sort.Slice(cells, func(i, j int) bool { return cells[i].Offset < cells[j].Offset })
	return cells
}

// Cell returns the named cell.
func (d *Device) Cell(name string) (*Cell, error) {
	cell, ok := d.cells[name]
	if !ok {
		return nil, fmt.Errorf("%w: cell %q on %q", pkg.ErrNotFound, name, d.config.Name)
	}
	return cell, nil
}

// Cell is a named sub-range of a device.
type Cell struct {
	info CellInfo
	dev  *Device
}

// Info returns the cell layout.
func (c *Cell) Info() CellInfo {
	return c.info
}

// Read returns the cell contents.
func (c *Cell) Read() ([]byte, error) {
	buf := make([]byte, c.info.Bytes)
	if _, err := c.dev.ReadAt(buf, int64(c.info.Offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write replaces the leading len(data) bytes of the cell.
func (c *Cell) Write(data []byte) error {
	if len(data) > c.info.Bytes {
		return fmt.Errorf("%w: %d bytes into cell %q of %d",
			pkg.ErrOutOfRange, len(data), c.info.Name, c.info.Bytes)
	}
	_, err := c.dev.WriteAt(data, int64(c.info.Offset))
	return err
}
