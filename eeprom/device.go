package eeprom

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ardnew/softeeprom/nvmem"
	"github.com/ardnew/softeeprom/pkg"
)

// Registers is the addressed byte access a Device drives. *regmap.Map
// satisfies it.
type Registers interface {
	BulkRead(reg uint, val []byte) error
	BulkWrite(reg uint, val []byte) error
}

// Provider is the storage subsystem a Device registers with. *nvmem.Registry
// satisfies it.
type Provider interface {
	Register(cfg nvmem.Config) (*nvmem.Device, error)
	Unregister(dev *nvmem.Device) error
}

// Device is one attached 24LC512.
//
// All transfers on a Device are serialized by its mutex, which is held for
// the whole multi-chunk operation including the settle pauses. Distinct
// devices never block each other.
type Device struct {
	name      string
	readOnly  bool
	cells     []nvmem.CellInfo
	settleMin time.Duration
	settleMax time.Duration
	sleep     func(time.Duration)

	mutex     sync.Mutex
	regs      Registers
	provider  Provider
	storage   *nvmem.Device
	detaching bool
}

// Option configures a Device.
type Option func(*Device)

// WithName sets the name the device registers under.
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithSettle overrides the write settle window. Each pause is drawn
// uniformly from [lo, hi].
func WithSettle(lo, hi time.Duration) Option {
	return func(d *Device) {
		d.settleMin = lo
		d.settleMax = hi
	}
}

// WithSleep replaces time.Sleep for settle pauses.
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Device) { d.sleep = sleep }
}

// WithReadOnly rejects writes.
func WithReadOnly(readOnly bool) Option {
	return func(d *Device) { d.readOnly = readOnly }
}

// WithCells declares named cells on the registered storage device.
func WithCells(cells ...nvmem.CellInfo) Option {
	return func(d *Device) { d.cells = append(d.cells, cells...) }
}

// New creates a Device over regs without touching the bus or registering
// storage. Attach is the usual way to obtain a Device.
func New(regs Registers, opts ...Option) *Device {
	d := &Device{
		settleMin: SettleMin,
		settleMax: SettleMax,
		sleep:     time.Sleep,
		regs:      regs,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.name == "" {
		d.name = DriverName
	}
	return d
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Size returns the capacity in bytes.
func (d *Device) Size() int { return Capacity }

// PageSize returns the write page size in bytes.
func (d *Device) PageSize() int { return PageSize }

// ReadOnly returns true if writes are rejected.
func (d *Device) ReadOnly() bool { return d.readOnly }

// Storage returns the registered storage device, or nil if the device was
// not registered or has been detached.
func (d *Device) Storage() *nvmem.Device {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.storage
}

// Settle returns a pause duration drawn from the settle window.
func (d *Device) Settle() time.Duration {
	if d.settleMax <= d.settleMin {
		return d.settleMin
	}
	return d.settleMin + rand.N(d.settleMax-d.settleMin+1)
}

func checkRange(offset uint32, n int) error {
	if uint64(offset)+uint64(n) > Capacity {
		return fmt.Errorf("%w: 0x%x+%d exceeds %d bytes", pkg.ErrOutOfRange, offset, n, Capacity)
	}
	return nil
}

// Read fills buf with the bytes starting at offset.
func (d *Device) Read(offset uint32, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := checkRange(offset, len(buf)); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.regs == nil {
		return pkg.ErrDetached
	}

	trace := pkg.LogEnabled(slog.LevelDebug)
	done := 0
	for _, c := range Split(offset, len(buf)) {
		if trace {
			pkg.LogDebug(pkg.ComponentTransfer, "read chunk",
				"device", d.name, "offset", c.Offset, "length", c.Length)
		}

		if err := d.regs.BulkRead(uint(c.Offset), buf[done:done+c.Length]); err != nil {
			return &TransferError{Op: OpRead, Offset: c.Offset, Length: c.Length, Committed: done, Err: err}
		}
		done += c.Length
	}
	return nil
}

// Write stores data starting at offset, one page-bounded chunk at a time,
// pausing for the write cycle after each chunk. On failure the chunks
// before the failed one remain written.
func (d *Device) Write(offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := checkRange(offset, len(data)); err != nil {
		return err
	}
	if d.readOnly {
		return fmt.Errorf("%w: %s", pkg.ErrReadOnly, d.name)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.regs == nil {
		return pkg.ErrDetached
	}

	trace := pkg.LogEnabled(slog.LevelDebug)
	done := 0
	for _, c := range Split(offset, len(data)) {
		if err := d.regs.BulkWrite(uint(c.Offset), data[done:done+c.Length]); err != nil {
			return &TransferError{Op: OpWrite, Offset: c.Offset, Length: c.Length, Committed: done, Err: err}
		}
		done += c.Length

		settle := d.Settle()
		if trace {
			pkg.LogDebug(pkg.ComponentTransfer, "wrote chunk",
				"device", d.name, "offset", c.Offset, "length", c.Length, "settle", settle)
		}
		d.sleep(settle)
	}
	return nil
}

// ReadAt implements io.ReaderAt.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > Capacity {
		return 0, fmt.Errorf("%w: offset %d", pkg.ErrOutOfRange, off)
	}
	if err := d.Read(uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAt implements io.WriterAt.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > Capacity {
		return 0, fmt.Errorf("%w: offset %d", pkg.ErrOutOfRange, off)
	}
	if err := d.Write(uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Detach unregisters the device from its provider and releases the register
// map. It waits for any transfer in progress. Later transfers fail with
// ErrDetached.
func (d *Device) Detach() error {
	d.mutex.Lock()
	if d.regs == nil || d.detaching {
		d.mutex.Unlock()
		return pkg.ErrDetached
	}
	d.detaching = true
	provider, storage := d.provider, d.storage
	d.mutex.Unlock()

	// The provider may call back into Read or Write, so the device lock is
	// not held while unregistering.
	if provider != nil && storage != nil {
		if err := provider.Unregister(storage); err != nil {
			d.mutex.Lock()
			d.detaching = false
			d.mutex.Unlock()
			return err
		}
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.detaching = false
	d.regs = nil
	d.provider = nil
	d.storage = nil

	pkg.LogInfo(pkg.ComponentEEPROM, "detached", "device", d.name)
	return nil
}
