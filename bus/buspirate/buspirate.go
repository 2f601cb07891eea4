package buspirate

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/pkg"
)

// Binary-mode command bytes.
const (
	cmdBitbang     = 0x00 // Enter/return to raw bitbang mode, answers "BBIO1"
	cmdI2CMode     = 0x02 // From bitbang mode, answers "I2C1"
	cmdWriteRead   = 0x08 // Write-then-read transaction
	cmdResetBoard  = 0x0F // From bitbang mode, reset to the user terminal
	cmdPeripherals = 0x40 // | power, pullups, aux, cs
	cmdSpeed       = 0x60 // | Speed
)

// Peripheral bits for cmdPeripherals.
const (
	periphPower   = 0x08
	periphPullups = 0x04
)

const (
	respOK   = 0x01
	respFail = 0x00
)

var (
	bannerBitbang = []byte("BBIO1")
	bannerI2C     = []byte("I2C1")
)

// MaxTransfer is the firmware limit on bytes written or read per
// write-then-read command.
const MaxTransfer = 4096

// enterAttempts is how many 0x00 bytes the firmware may need before it
// leaves the user terminal.
const enterAttempts = 20

// Speed selects the I2C clock rate.
type Speed uint8

// Supported clock rates. The zero value selects 100kHz.
const (
	SpeedDefault Speed = iota
	Speed5kHz
	Speed50kHz
	Speed100kHz
	Speed400kHz
)

// String returns the clock rate.
func (s Speed) String() string {
	switch s {
	case SpeedDefault:
		return "default"
	case Speed5kHz:
		return "5kHz"
	case Speed50kHz:
		return "50kHz"
	case Speed100kHz:
		return "100kHz"
	case Speed400kHz:
		return "400kHz"
	default:
		return "unknown"
	}
}

// ParseSpeed converts a rate name such as "100kHz" to a Speed.
// An empty name selects SpeedDefault.
func ParseSpeed(s string) (Speed, error) {
	if s == "" {
		return SpeedDefault, nil
	}
	for sp := Speed5kHz; sp <= Speed400kHz; sp++ {
		if sp.String() == s {
			return sp, nil
		}
	}
	return 0, fmt.Errorf("%w: bus pirate speed %q", pkg.ErrInvalidParameter, s)
}

// Config describes how to reach the Bus Pirate.
type Config struct {
	Port        string        // Serial device, e.g. /dev/ttyUSB0
	Baud        int           // Serial rate, default 115200
	Speed       Speed         // I2C clock
	Power       bool          // Enable the 3.3V/5V supplies
	Pullups     bool          // Enable on-board pull-up resistors
	ReadTimeout time.Duration // Per-read timeout, default 1s
}

// port is the subset of serial.Port the adapter uses.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Adapter drives a Bus Pirate in binary I2C mode.
type Adapter struct {
	name  string
	port  port
	mutex sync.Mutex
	open  bool
}

// Open opens the serial port described by cfg and switches the Bus Pirate
// into binary I2C mode.
func Open(cfg Config) (*Adapter, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second
	}

	p, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("buspirate: open %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("buspirate: set read timeout: %w", err)
	}

	a, err := newAdapter(cfg.Port, p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	return a, nil
}

// newAdapter runs the mode handshake on an already-open port.
func newAdapter(name string, p port, cfg Config) (*Adapter, error) {
	a := &Adapter{name: name, port: p}

	if err := a.enterBitbang(); err != nil {
		return nil, err
	}
	if err := a.command([]byte{cmdI2CMode}, bannerI2C); err != nil {
		return nil, fmt.Errorf("buspirate: enter I2C mode: %w", err)
	}

	speed := cfg.Speed
	if speed == SpeedDefault {
		speed = Speed100kHz
	}
	if speed > Speed400kHz {
		return nil, fmt.Errorf("%w: bus pirate speed %d", pkg.ErrInvalidParameter, speed)
	}
	if err := a.command([]byte{cmdSpeed | byte(speed-Speed5kHz)}, []byte{respOK}); err != nil {
		return nil, fmt.Errorf("buspirate: set speed: %w", err)
	}

	var periph byte
	if cfg.Power {
		periph |= periphPower
	}
	if cfg.Pullups {
		periph |= periphPullups
	}
	if err := a.command([]byte{cmdPeripherals | periph}, []byte{respOK}); err != nil {
		return nil, fmt.Errorf("buspirate: configure peripherals: %w", err)
	}

	a.open = true
	pkg.LogInfo(pkg.ComponentBus, "bus pirate in I2C mode",
		"port", name, "speed", speed.String(), "power", cfg.Power, "pullups", cfg.Pullups)
	return a, nil
}

// enterBitbang sends 0x00 until the firmware answers with its banner.
func (a *Adapter) enterBitbang() error {
	buf := make([]byte, len(bannerBitbang))
	for i := 0; i < enterAttempts; i++ {
		if err := sendAll(a.port, []byte{cmdBitbang}); err != nil {
			return fmt.Errorf("buspirate: enter bitbang: %w", err)
		}
		if err := recvAll(a.port, buf); err == nil && bytes.Equal(buf, bannerBitbang) {
			return a.port.ResetInputBuffer()
		}
	}
	return fmt.Errorf("buspirate: enter bitbang: %w", pkg.ErrTimeout)
}

// command sends cmd and expects exactly want in reply.
func (a *Adapter) command(cmd, want []byte) error {
	if err := sendAll(a.port, cmd); err != nil {
		return err
	}
	got := make([]byte, len(want))
	if err := recvAll(a.port, got); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: got %q, want %q", pkg.ErrProtocol, got, want)
	}
	return nil
}

// writeRead performs one START, writes w, reads len(r) bytes, STOP.
func (a *Adapter) writeRead(w, r []byte) error {
	if len(w) > MaxTransfer || len(r) > MaxTransfer {
		return fmt.Errorf("%w: transfer exceeds %d bytes", pkg.ErrInvalidParameter, MaxTransfer)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()
	if !a.open {
		return pkg.ErrClosed
	}

	frame := make([]byte, 0, 5+len(w))
	frame = append(frame, cmdWriteRead,
		byte(len(w)>>8), byte(len(w)),
		byte(len(r)>>8), byte(len(r)))
	frame = append(frame, w...)
	if err := sendAll(a.port, frame); err != nil {
		return err
	}

	status := []byte{0}
	if err := recvAll(a.port, status); err != nil {
		return err
	}
	switch status[0] {
	case respOK:
	case respFail:
		return pkg.ErrNACK
	default:
		return fmt.Errorf("%w: write-then-read status 0x%02x", pkg.ErrProtocol, status[0])
	}
	return recvAll(a.port, r)
}

// Name returns the serial port name.
func (a *Adapter) Name() string {
	return a.name
}

// Functionality reports plain I2C. Combined transfers are issued as
// consecutive START/STOP transactions, which addressed-pointer devices such
// as serial EEPROMs accept.
func (a *Adapter) Functionality() bus.Functionality {
	return bus.FuncI2C | bus.FuncSMBusEmul
}

// Client returns a handle for addr.
func (a *Adapter) Client(addr uint16) (bus.Client, error) {
	if err := bus.ValidAddr(addr); err != nil {
		return nil, err
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if !a.open {
		return nil, pkg.ErrClosed
	}
	return &client{adapter: a, addr: addr}, nil
}

// Close returns the Bus Pirate to its user terminal and closes the port.
func (a *Adapter) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.open {
		return nil
	}
	a.open = false

	// Best effort: leave I2C mode, then reset the board.
	_ = sendAll(a.port, []byte{cmdBitbang, cmdResetBoard})

	if err := a.port.Close(); err != nil {
		return fmt.Errorf("buspirate: close port: %w", err)
	}
	return nil
}

func sendAll(w io.Writer, buf []byte) error {
	for sent := 0; sent < len(buf); {
		n, err := w.Write(buf[sent:])
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}

// recvAll fills buf. The serial port returns zero bytes on read timeout.
func recvAll(r io.Reader, buf []byte) error {
	for got := 0; got < len(buf); {
		n, err := r.Read(buf[got:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return pkg.ErrTimeout
		}
		got += n
	}
	return nil
}

type client struct {
	adapter *Adapter
	addr    uint16
}

func (c *client) Name() string                     { return c.adapter.name }
func (c *client) Addr() uint16                     { return c.addr }
func (c *client) Functionality() bus.Functionality { return c.adapter.Functionality() }

func (c *client) readAddr() byte  { return byte(c.addr<<1) | 1 }
func (c *client) writeAddr() byte { return byte(c.addr << 1) }

func (c *client) Recv(buf []byte) (int, error) {
	if err := c.adapter.writeRead([]byte{c.readAddr()}, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (c *client) Send(data []byte) (int, error) {
	w := append([]byte{c.writeAddr()}, data...)
	if err := c.adapter.writeRead(w, nil); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (c *client) Transfer(msgs ...bus.Msg) error {
	for i := range msgs {
		if msgs[i].Addr != c.addr {
			return fmt.Errorf("%w: message for 0x%02x on client 0x%02x",
				pkg.ErrInvalidParameter, msgs[i].Addr, c.addr)
		}
		var err error
		if msgs[i].IsRead() {
			_, err = c.Recv(msgs[i].Buf)
		} else {
			_, err = c.Send(msgs[i].Buf)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
