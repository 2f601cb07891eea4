package eeprom

import (
	"strings"
	"time"

	"github.com/ardnew/softeeprom/regmap"
)

// 24LC512 geometry and timing.
const (
	Capacity = 65536 // Bytes
	PageSize = 128   // Bytes per write page

	// SettleMin and SettleMax bound the pause after each page write. The
	// part's maximum internal write cycle is 5 ms.
	SettleMin = 5 * time.Millisecond
	SettleMax = 6 * time.Millisecond
)

// Driver identity.
const (
	DriverName = "24lc512"
	Compatible = "microchip,24lc512"
)

// IDTable lists the device names this driver binds to.
var IDTable = []string{DriverName}

// OFMatchTable lists the compatible strings this driver binds to.
var OFMatchTable = []string{Compatible}

// Match returns true if id names a device this driver handles, either by
// plain name or by compatible string. Comparison ignores case.
func Match(id string) bool {
	id = strings.TrimSpace(id)
	for _, tab := range [][]string{IDTable, OFMatchTable} {
		for _, s := range tab {
			if strings.EqualFold(s, id) {
				return true
			}
		}
	}
	return false
}

// RegmapConfig is the register map layout of the part: 16-bit word
// addresses, 8-bit values. The device lock serializes every access, so the
// map itself does no locking.
var RegmapConfig = regmap.Config{
	RegBits:        16,
	ValBits:        8,
	DisableLocking: true,
	CanSleep:       true,
}

// Chunk is one page-bounded piece of a transfer.
type Chunk struct {
	Offset uint32
	Length int
}

// Split divides a transfer of length bytes at offset into chunks that never
// cross a page boundary. The first chunk runs to the end of its page; every
// later chunk starts on a page boundary.
func Split(offset uint32, length int) []Chunk {
	if length <= 0 {
		return nil
	}
	chunks := make([]Chunk, 0, (int(offset%PageSize)+length+PageSize-1)/PageSize)
	for length > 0 {
		n := min(PageSize-int(offset%PageSize), length)
		chunks = append(chunks, Chunk{Offset: offset, Length: n})
		offset += uint32(n)
		length -= n
	}
	return chunks
}
