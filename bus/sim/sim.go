package sim

import (
	"fmt"
	"sync"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/pkg"
)

// DefaultFunctionality is what a simulated adapter reports unless
// overridden: full I2C plus emulated SMBus.
const DefaultFunctionality = bus.FuncI2C | bus.FuncSMBusEmul

// Record is one message observed on the simulated bus.
type Record struct {
	Seq     uint64 // Position in the bus log, starting at 1
	Addr    uint16 // Target address
	Read    bool   // Direction
	Pointer uint16 // Chip address pointer at the start of the data phase
	Len     int    // Data bytes, excluding the two address bytes of a write
	Err     error  // Outcome
}

// FaultFunc decides whether a message fails before it reaches the chip.
// It receives the record that would be logged; a non-nil return fails the
// message with that error.
type FaultFunc func(rec Record) error

// Adapter is an in-process I2C adapter with emulated chips attached.
type Adapter struct {
	name  string
	funcs bus.Functionality

	mutex   sync.Mutex
	chips   map[uint16]*Chip
	fault   FaultFunc
	log     []Record
	logging bool
	seq     uint64
	closed  bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithFunctionality overrides the reported capabilities.
func WithFunctionality(f bus.Functionality) Option {
	return func(a *Adapter) { a.funcs = f }
}

// WithLog enables the message log.
func WithLog() Option {
	return func(a *Adapter) { a.logging = true }
}

// New creates a simulated adapter.
func New(name string, opts ...Option) *Adapter {
	a := &Adapter{
		name:  name,
		funcs: DefaultFunctionality,
		chips: make(map[uint16]*Chip),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return a.name
}

// Functionality returns the reported capabilities.
func (a *Adapter) Functionality() bus.Functionality {
	return a.funcs
}

// Attach places chip at addr.
func (a *Adapter) Attach(addr uint16, chip *Chip) error {
	if err := bus.ValidAddr(addr); err != nil {
		return err
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, ok := a.chips[addr]; ok {
		return fmt.Errorf("%w: chip at 0x%02x", pkg.ErrExist, addr)
	}
	a.chips[addr] = chip
	pkg.LogDebug(pkg.ComponentBus, "sim chip attached", "adapter", a.name, "addr", addr)
	return nil
}

// Remove takes the chip at addr off the bus.
func (a *Adapter) Remove(addr uint16) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.chips, addr)
}

// SetFault installs a fault hook. Pass nil to clear it.
func (a *Adapter) SetFault(fn FaultFunc) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.fault = fn
}

// Log returns a copy of the message log.
func (a *Adapter) Log() []Record {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return append([]Record(nil), a.log...)
}

// ResetLog clears the message log.
func (a *Adapter) ResetLog() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.log = a.log[:0]
}

// Client returns a client for addr. The address need not have a chip; a
// missing chip NACKs every message, just like an empty bus.
func (a *Adapter) Client(addr uint16) (bus.Client, error) {
	if err := bus.ValidAddr(addr); err != nil {
		return nil, err
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.closed {
		return nil, pkg.ErrClosed
	}
	return &client{adapter: a, addr: addr}, nil
}

// Close marks the adapter closed. Further transfers fail with ErrClosed.
func (a *Adapter) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.closed = true
	return nil
}

// transfer runs msgs as one transaction. The adapter lock is held for the
// whole transaction, which is what bus arbitration guarantees on real hardware.
func (a *Adapter) transfer(msgs []bus.Msg) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.closed {
		return pkg.ErrClosed
	}
	for i := range msgs {
		if err := a.message(&msgs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) message(m *bus.Msg) error {
	chip := a.chips[m.Addr]
	rec := Record{Addr: m.Addr, Read: m.IsRead(), Len: len(m.Buf)}
	if chip != nil {
		chip.mutex.Lock()
		rec.Pointer = chip.pointer
		chip.mutex.Unlock()
	}
	if !rec.Read && len(m.Buf) >= 2 {
		rec.Pointer = uint16(m.Buf[0])<<8 | uint16(m.Buf[1])
		rec.Len = len(m.Buf) - 2
	}

	var err error
	if a.fault != nil {
		err = a.fault(rec)
	}
	switch {
	case err != nil:
	case chip == nil:
		err = pkg.ErrNACK
	case rec.Read:
		err = chip.read(m.Buf)
	default:
		err = chip.write(m.Buf)
	}

	if a.logging {
		a.seq++
		rec.Seq = a.seq
		rec.Err = err
		a.log = append(a.log, rec)
	}
	return err
}

// client is a bus.Client bound to one address on a simulated adapter.
type client struct {
	adapter *Adapter
	addr    uint16
}

func (c *client) Name() string                     { return c.adapter.name }
func (c *client) Addr() uint16                     { return c.addr }
func (c *client) Functionality() bus.Functionality { return c.adapter.funcs }

func (c *client) Recv(buf []byte) (int, error) {
	if err := c.adapter.transfer([]bus.Msg{{Addr: c.addr, Flags: bus.MsgRead, Buf: buf}}); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (c *client) Send(data []byte) (int, error) {
	if err := c.adapter.transfer([]bus.Msg{{Addr: c.addr, Buf: data}}); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (c *client) Transfer(msgs ...bus.Msg) error {
	if !c.adapter.funcs.Has(bus.FuncI2C) {
		return fmt.Errorf("%w: combined transfer on %s", pkg.ErrNotSupported, c.adapter.name)
	}
	return c.adapter.transfer(msgs)
}
