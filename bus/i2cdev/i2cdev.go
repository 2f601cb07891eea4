//go:build linux

package i2cdev

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/pkg"
)

// i2c-dev ioctl requests (linux/i2c-dev.h).
const (
	ioctlI2CRetries = 0x0701
	ioctlI2CTimeout = 0x0702
	ioctlI2CSlave   = 0x0703
	ioctlI2CFuncs   = 0x0705
	ioctlI2CRdwr    = 0x0707
)

// maxRdwrMsgs is I2C_RDWR_IOCTL_MAX_MSGS.
const maxRdwrMsgs = 42

// i2cMsg must match the kernel's struct i2c_msg layout.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   *byte
}

// rdwrData must match the kernel's struct i2c_rdwr_ioctl_data layout.
type rdwrData struct {
	msgs  *i2cMsg
	nmsgs uint32
}

// Adapter is an open /dev/i2c-N character device.
type Adapter struct {
	path  string
	name  string
	fd    int
	funcs bus.Functionality
	slave int // address last bound with I2C_SLAVE, -1 if none
	mutex sync.Mutex
}

// Open opens the adapter with the given bus number.
func Open(number int) (*Adapter, error) {
	return OpenPath(fmt.Sprintf("/dev/i2c-%d", number))
}

// OpenPath opens the i2c-dev character device at path and queries its
// functionality.
func OpenPath(path string) (*Adapter, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var funcs uintptr
	if err := ioctl(fd, ioctlI2CFuncs, uintptr(unsafe.Pointer(&funcs))); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("query functionality of %s: %w", path, err)
	}

	a := &Adapter{
		path:  path,
		name:  baseName(path),
		fd:    fd,
		funcs: bus.Functionality(funcs),
		slave: -1,
	}
	pkg.LogDebug(pkg.ComponentBus, "i2c-dev adapter opened",
		"path", path, "functionality", a.funcs.String())
	return a, nil
}

// Name returns the adapter name, e.g. "i2c-1".
func (a *Adapter) Name() string {
	return a.name
}

// Functionality returns the capabilities reported by the kernel.
func (a *Adapter) Functionality() bus.Functionality {
	return a.funcs
}

// SetTimeout sets the adapter timeout in units of 10 ms.
func (a *Adapter) SetTimeout(tenMillis int) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return ioctl(a.fd, ioctlI2CTimeout, uintptr(tenMillis))
}

// SetRetries sets how many times the adapter retries a NACKed address.
func (a *Adapter) SetRetries(n int) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return ioctl(a.fd, ioctlI2CRetries, uintptr(n))
}

// Client returns a handle for addr.
func (a *Adapter) Client(addr uint16) (bus.Client, error) {
	if err := bus.ValidAddr(addr); err != nil {
		return nil, err
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.fd < 0 {
		return nil, pkg.ErrClosed
	}
	return &client{adapter: a, addr: addr}, nil
}

// Close closes the character device.
func (a *Adapter) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.fd < 0 {
		return nil
	}
	err := unix.Close(a.fd)
	a.fd = -1
	return err
}

// bind points plain read(2)/write(2) at addr. Caller holds the mutex.
func (a *Adapter) bind(addr uint16) error {
	if a.fd < 0 {
		return pkg.ErrClosed
	}
	if a.slave == int(addr) {
		return nil
	}
	if err := ioctl(a.fd, ioctlI2CSlave, uintptr(addr)); err != nil {
		return mapErrno(err)
	}
	a.slave = int(addr)
	return nil
}

func (a *Adapter) recv(addr uint16, buf []byte) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if err := a.bind(addr); err != nil {
		return 0, err
	}
	n, err := unix.Read(a.fd, buf)
	if err != nil {
		return 0, mapErrno(err)
	}
	return n, nil
}

func (a *Adapter) send(addr uint16, data []byte) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if err := a.bind(addr); err != nil {
		return 0, err
	}
	n, err := unix.Write(a.fd, data)
	if err != nil {
		return 0, mapErrno(err)
	}
	return n, nil
}

func (a *Adapter) transfer(msgs []bus.Msg) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > maxRdwrMsgs {
		return fmt.Errorf("%w: %d messages exceeds %d", pkg.ErrInvalidParameter, len(msgs), maxRdwrMsgs)
	}

	raw := make([]i2cMsg, len(msgs))
	for i := range msgs {
		if len(msgs[i].Buf) > 0xFFFF {
			return fmt.Errorf("%w: message length %d", pkg.ErrInvalidParameter, len(msgs[i].Buf))
		}
		raw[i] = i2cMsg{
			addr:  msgs[i].Addr,
			flags: uint16(msgs[i].Flags),
			len:   uint16(len(msgs[i].Buf)),
		}
		if len(msgs[i].Buf) > 0 {
			raw[i].buf = &msgs[i].Buf[0]
		}
	}
	data := rdwrData{msgs: &raw[0], nmsgs: uint32(len(raw))}

	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.fd < 0 {
		return pkg.ErrClosed
	}

	err := ioctl(a.fd, ioctlI2CRdwr, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(raw)
	runtime.KeepAlive(msgs)
	if err != nil {
		return mapErrno(err)
	}
	return nil
}

// ioctl performs a raw ioctl syscall.
func ioctl(fd int, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// mapErrno attaches the matching bus sentinel to kernel errors.
func mapErrno(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case unix.ENXIO, unix.EREMOTEIO:
		return fmt.Errorf("%w: %w", pkg.ErrNACK, errno)
	case unix.ETIMEDOUT:
		return fmt.Errorf("%w: %w", pkg.ErrTimeout, errno)
	case unix.EBUSY, unix.EAGAIN:
		return fmt.Errorf("%w: %w", pkg.ErrBusy, errno)
	case unix.EOPNOTSUPP:
		return fmt.Errorf("%w: %w", pkg.ErrNotSupported, errno)
	default:
		return errno
	}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

type client struct {
	adapter *Adapter
	addr    uint16
}

func (c *client) Name() string                     { return c.adapter.name }
func (c *client) Addr() uint16                     { return c.addr }
func (c *client) Functionality() bus.Functionality { return c.adapter.funcs }

func (c *client) Recv(buf []byte) (int, error)  { return c.adapter.recv(c.addr, buf) }
func (c *client) Send(data []byte) (int, error) { return c.adapter.send(c.addr, data) }

func (c *client) Transfer(msgs ...bus.Msg) error {
	if !c.adapter.funcs.Has(bus.FuncI2C) {
		return fmt.Errorf("%w: combined transfer on %s", pkg.ErrNotSupported, c.adapter.name)
	}
	return c.adapter.transfer(msgs)
}
