package regmap

import (
	"fmt"
	"sync"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/pkg"
)

// Config describes the register layout of a device.
type Config struct {
	// RegBits is the register address width: 8 or 16.
	RegBits int

	// ValBits is the register value width. Only 8 is supported.
	ValBits int

	// DisableLocking turns off the map's internal mutex. The caller then
	// serializes all access itself.
	DisableLocking bool

	// CanSleep declares that callers may block. Maps that cannot sleep are
	// not supported by the bus backends in this module.
	CanSleep bool

	// MaxRawRead and MaxRawWrite bound the payload of a single bulk
	// operation. Zero means unlimited.
	MaxRawRead  int
	MaxRawWrite int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.RegBits {
	case 8, 16:
	default:
		return fmt.Errorf("%w: register width %d bits", pkg.ErrInvalidParameter, c.RegBits)
	}
	if c.ValBits != 8 {
		return fmt.Errorf("%w: value width %d bits", pkg.ErrInvalidParameter, c.ValBits)
	}
	if !c.CanSleep {
		return fmt.Errorf("%w: atomic (non-sleeping) register maps", pkg.ErrNotSupported)
	}
	if c.MaxRawRead < 0 || c.MaxRawWrite < 0 {
		return fmt.Errorf("%w: negative raw limit", pkg.ErrInvalidParameter)
	}
	return nil
}

// regBytes returns the number of address bytes on the wire.
func (c *Config) regBytes() int {
	return c.RegBits / 8
}

// maxReg returns the highest addressable register.
func (c *Config) maxReg() uint {
	return 1<<c.RegBits - 1
}

// Map provides addressed byte access to a device over an I2C client.
type Map struct {
	client bus.Client
	config Config
	mutex  sync.Mutex
}

// NewI2C builds a register map over client. The client's adapter must
// support plain I2C messages, since every access is a combined
// address-then-data transaction.
func NewI2C(client bus.Client, config Config) (*Map, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil client", pkg.ErrInvalidParameter)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !client.Functionality().Has(bus.FuncI2C) {
		return nil, fmt.Errorf("%w: %s reports %v", pkg.ErrUnsupportedBus,
			client.Name(), client.Functionality())
	}

	pkg.LogDebug(pkg.ComponentRegmap, "register map created",
		"bus", client.Name(),
		"addr", client.Addr(),
		"regBits", config.RegBits,
		"valBits", config.ValBits,
		"locking", !config.DisableLocking)

	return &Map{client: client, config: config}, nil
}

// Config returns the map configuration.
func (m *Map) Config() Config {
	return m.config
}

func (m *Map) lock() {
	if !m.config.DisableLocking {
		m.mutex.Lock()
	}
}

func (m *Map) unlock() {
	if !m.config.DisableLocking {
		m.mutex.Unlock()
	}
}

// checkRange validates that n registers starting at reg exist.
func (m *Map) checkRange(reg uint, n int) error {
	if n == 0 {
		return nil
	}
	if reg > m.config.maxReg() || uint(n-1) > m.config.maxReg()-reg {
		return fmt.Errorf("%w: registers 0x%x+%d beyond 0x%x",
			pkg.ErrOutOfRange, reg, n, m.config.maxReg())
	}
	return nil
}

// encodeReg writes reg big-endian into dst.
func (m *Map) encodeReg(dst []byte, reg uint) {
	switch m.config.regBytes() {
	case 2:
		dst[0] = byte(reg >> 8)
		dst[1] = byte(reg)
	default:
		dst[0] = byte(reg)
	}
}

// BulkRead reads len(val) consecutive registers starting at reg.
func (m *Map) BulkRead(reg uint, val []byte) error {
	if len(val) == 0 {
		return nil
	}
	if err := m.checkRange(reg, len(val)); err != nil {
		return err
	}
	if m.config.MaxRawRead > 0 && len(val) > m.config.MaxRawRead {
		return fmt.Errorf("%w: read of %d exceeds %d", pkg.ErrInvalidParameter,
			len(val), m.config.MaxRawRead)
	}

	addr := make([]byte, m.config.regBytes())
	m.encodeReg(addr, reg)

	msgs := []bus.Msg{
		{Addr: m.client.Addr(), Buf: addr},
		{Addr: m.client.Addr(), Flags: bus.MsgRead, Buf: val},
	}

	m.lock()
	defer m.unlock()

	return m.transfer(reg, msgs)
}

// BulkWrite writes val to consecutive registers starting at reg in a single
// bus message.
func (m *Map) BulkWrite(reg uint, val []byte) error {
	if len(val) == 0 {
		return nil
	}
	if err := m.checkRange(reg, len(val)); err != nil {
		return err
	}
	if m.config.MaxRawWrite > 0 && len(val) > m.config.MaxRawWrite {
		return fmt.Errorf("%w: write of %d exceeds %d", pkg.ErrInvalidParameter,
			len(val), m.config.MaxRawWrite)
	}

	buf := make([]byte, m.config.regBytes()+len(val))
	m.encodeReg(buf, reg)
	copy(buf[m.config.regBytes():], val)

	m.lock()
	defer m.unlock()

	return m.transfer(reg, []bus.Msg{{Addr: m.client.Addr(), Buf: buf}})
}

func (m *Map) transfer(reg uint, msgs []bus.Msg) error {
	err := m.client.Transfer(msgs...)
	if err != nil {
		pkg.LogDebug(pkg.ComponentRegmap, "transfer failed",
			"client", m.client.Name(),
			"addr", m.client.Addr(),
			"reg", reg,
			"msgs", bus.Summarize(msgs),
			"error", err)
	}
	return err
}

// Read reads a single register.
func (m *Map) Read(reg uint) (byte, error) {
	var val [1]byte
	if err := m.BulkRead(reg, val[:]); err != nil {
		return 0, err
	}
	return val[0], nil
}

// Write writes a single register.
func (m *Map) Write(reg uint, val byte) error {
	return m.BulkWrite(reg, []byte{val})
}
