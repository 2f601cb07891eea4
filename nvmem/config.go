package nvmem

import (
	"fmt"
	"sort"

	"github.com/ardnew/softeeprom/pkg"
)

// ReadFunc fills buf with the bytes stored at offset. It is the provider's
// read entry point; length is len(buf).
type ReadFunc func(offset uint32, buf []byte) error

// WriteFunc stores data at offset. It is the provider's write entry point.
type WriteFunc func(offset uint32, data []byte) error

// CellInfo names a fixed sub-range of a device, such as a MAC address or a
// calibration block.
type CellInfo struct {
	Name   string `yaml:"name"`
	Offset uint32 `yaml:"offset"`
	Bytes  int    `yaml:"bytes"`
}

// End returns the offset one past the last byte of the cell.
func (c CellInfo) End() uint64 {
	return uint64(c.Offset) + uint64(c.Bytes)
}

// Config declares a storage region to the registry.
type Config struct {
	Name     string    // Unique device name
	Owner    string    // Driver that registered the device
	Size     int       // Capacity in bytes
	WordSize int       // Access granularity in bytes; 0 means 1
	Stride   int       // Offset alignment in bytes; 0 means 1
	ReadOnly bool      // Reject writes
	Read     ReadFunc  // Read entry point (required)
	Write    WriteFunc // Write entry point (required unless ReadOnly)
	Cells    []CellInfo
}

// normalize fills defaults.
func (c *Config) normalize() {
	if c.WordSize == 0 {
		c.WordSize = 1
	}
	if c.Stride == 0 {
		c.Stride = 1
	}
}

// Validate checks the configuration, including cell layout.
func (c *Config) Validate() error {
	c.normalize()

	switch {
	case c.Name == "":
		return fmt.Errorf("%w: empty device name", pkg.ErrInvalidParameter)
	case c.Size <= 0:
		return fmt.Errorf("%w: size %d", pkg.ErrInvalidParameter, c.Size)
	case c.WordSize < 1 || c.Stride < 1:
		return fmt.Errorf("%w: word size %d, stride %d", pkg.ErrInvalidParameter, c.WordSize, c.Stride)
	case c.Size%c.WordSize != 0:
		return fmt.Errorf("%w: size %d not a multiple of word size %d", pkg.ErrInvalidParameter, c.Size, c.WordSize)
	case c.Read == nil:
		return fmt.Errorf("%w: missing read entry point", pkg.ErrInvalidParameter)
	case c.Write == nil && !c.ReadOnly:
		return fmt.Errorf("%w: missing write entry point", pkg.ErrInvalidParameter)
	}
	return validateCells(c.Cells, c.Size, c.Stride, c.WordSize)
}

func validateCells(cells []CellInfo, size, stride, word int) error {
	sorted := append([]CellInfo(nil), cells...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	names := make(map[string]bool, len(sorted))
	for i, cell := range sorted {
		switch {
		case cell.Name == "":
			return fmt.Errorf("%w: unnamed cell at 0x%x", pkg.ErrInvalidParameter, cell.Offset)
		case names[cell.Name]:
			return fmt.Errorf("%w: duplicate cell %q", pkg.ErrInvalidParameter, cell.Name)
		case cell.Bytes <= 0:
			return fmt.Errorf("%w: cell %q has %d bytes", pkg.ErrInvalidParameter, cell.Name, cell.Bytes)
		case cell.End() > uint64(size):
			return fmt.Errorf("%w: cell %q ends at 0x%x past 0x%x", pkg.ErrOutOfRange, cell.Name, cell.End(), size)
		case int(cell.Offset)%stride != 0 || cell.Bytes%word != 0:
			return fmt.Errorf("%w: cell %q misaligned", pkg.ErrInvalidParameter, cell.Name)
		case i > 0 && sorted[i-1].End() > uint64(cell.Offset):
			return fmt.Errorf("%w: cell %q overlaps %q", pkg.ErrInvalidParameter, cell.Name, sorted[i-1].Name)
		}
		names[cell.Name] = true
	}
	return nil
}
