package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/softeeprom/pkg"
)

// 24LC512 geometry and timing.
const (
	ChipSize       = 65536
	ChipPageSize   = 128
	ChipWriteCycle = 5 * time.Millisecond
)

// Chip emulates a 24LC512 serial EEPROM.
//
// The chip keeps a 16-bit address pointer. A write message carries two
// address bytes followed by data; data bytes past the end of the current page
// wrap to the start of the same page, as on the real part. After a write the
// chip ignores the bus (NACKs) for the write-cycle time. A read message
// streams bytes from the pointer, wrapping at the end of the array.
type Chip struct {
	store      Store
	size       int
	pageSize   int
	writeCycle time.Duration
	clock      Clock

	mutex     sync.Mutex
	pointer   uint16
	busyUntil time.Time
	writes    int
}

// ChipOption configures a Chip.
type ChipOption func(*Chip)

// WithStore sets the backing store. The default is an erased MemoryStore.
func WithStore(store Store) ChipOption {
	return func(c *Chip) { c.store = store }
}

// WithPageSize overrides the page size.
func WithPageSize(size int) ChipOption {
	return func(c *Chip) { c.pageSize = size }
}

// WithWriteCycle overrides the internal write-cycle time. Zero disables
// busy emulation.
func WithWriteCycle(d time.Duration) ChipOption {
	return func(c *Chip) { c.writeCycle = d }
}

// WithClock sets the time base used for write-cycle emulation.
func WithClock(clock Clock) ChipOption {
	return func(c *Chip) { c.clock = clock }
}

// NewChip creates an emulated chip.
func NewChip(opts ...ChipOption) (*Chip, error) {
	c := &Chip{
		pageSize:   ChipPageSize,
		writeCycle: ChipWriteCycle,
		clock:      RealClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore(ChipSize)
	}
	c.size = c.store.Size()

	if c.size <= 0 || c.size > ChipSize || c.size&(c.size-1) != 0 {
		return nil, fmt.Errorf("%w: chip size %d", pkg.ErrInvalidParameter, c.size)
	}
	if c.pageSize <= 0 || c.pageSize > c.size || c.pageSize&(c.pageSize-1) != 0 {
		return nil, fmt.Errorf("%w: page size %d", pkg.ErrInvalidParameter, c.pageSize)
	}
	return c, nil
}

// Store returns the backing store.
func (c *Chip) Store() Store {
	return c.store
}

// Pointer returns the current address pointer.
func (c *Chip) Pointer() uint16 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pointer
}

// Writes returns the number of page-write cycles started.
func (c *Chip) Writes() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.writes
}

// Busy returns true while an internal write cycle is in progress.
func (c *Chip) Busy() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.busy()
}

func (c *Chip) busy() bool {
	return c.clock.Now().Before(c.busyUntil)
}

// write handles a write message addressed to the chip.
func (c *Chip) write(buf []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.busy() {
		return pkg.ErrNACK
	}
	if len(buf) < 2 {
		// Address-only or empty write (acknowledge polling): no state change.
		return nil
	}

	c.pointer = (uint16(buf[0])<<8 | uint16(buf[1])) & uint16(c.size-1)
	data := buf[2:]
	if len(data) == 0 {
		return nil
	}

	page := int(c.pointer) &^ (c.pageSize - 1)
	col := int(c.pointer) & (c.pageSize - 1)
	for _, b := range data {
		if _, err := c.store.WriteAt([]byte{b}, int64(page+col)); err != nil {
			return err
		}
		col = (col + 1) & (c.pageSize - 1)
	}
	c.pointer = uint16(page + col)
	c.writes++

	if c.writeCycle > 0 {
		c.busyUntil = c.clock.Now().Add(c.writeCycle)
	}
	return nil
}

// read handles a read message addressed to the chip.
func (c *Chip) read(buf []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.busy() {
		return pkg.ErrNACK
	}

	for done := 0; done < len(buf); {
		n := min(len(buf)-done, c.size-int(c.pointer))
		if _, err := c.store.ReadAt(buf[done:done+n], int64(c.pointer)); err != nil {
			return err
		}
		c.pointer = uint16((int(c.pointer) + n) & (c.size - 1))
		done += n
	}
	return nil
}
