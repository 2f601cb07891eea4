package bus

import (
	"fmt"
	"strings"

	"github.com/ardnew/softeeprom/pkg"
)

// Functionality is a bitmask of adapter capabilities. Bit values match the
// Linux I2C_FUNC_* constants so backends can pass them through unchanged.
type Functionality uint32

// Adapter capability bits.
const (
	FuncI2C                Functionality = 0x00000001 // Plain I2C-level messages
	FuncTenBitAddr         Functionality = 0x00000002 // 10-bit target addresses
	FuncProtocolMangling   Functionality = 0x00000004 // MsgIgnoreNAK and friends
	FuncSMBusPEC           Functionality = 0x00000008 // Packet error checking
	FuncNoStart            Functionality = 0x00000010 // MsgNoStart
	FuncSMBusQuick         Functionality = 0x00010000 // Quick command only
	FuncSMBusReadByte      Functionality = 0x00020000
	FuncSMBusWriteByte     Functionality = 0x00040000
	FuncSMBusReadByteData  Functionality = 0x00080000
	FuncSMBusWriteByteData Functionality = 0x00100000
	FuncSMBusReadWordData  Functionality = 0x00200000
	FuncSMBusWriteWordData Functionality = 0x00400000
	FuncSMBusReadI2CBlock  Functionality = 0x04000000
	FuncSMBusWriteI2CBlock Functionality = 0x08000000
)

// FuncSMBusEmul is the set of SMBus operations an adapter with FuncI2C can
// emulate.
const FuncSMBusEmul = FuncSMBusQuick | FuncSMBusReadByte | FuncSMBusWriteByte |
	FuncSMBusReadByteData | FuncSMBusWriteByteData |
	FuncSMBusReadWordData | FuncSMBusWriteWordData |
	FuncSMBusReadI2CBlock | FuncSMBusWriteI2CBlock

var funcNames = []struct {
	bit  Functionality
	name string
}{
	{FuncI2C, "i2c"},
	{FuncTenBitAddr, "10bit-addr"},
	{FuncProtocolMangling, "protocol-mangling"},
	{FuncSMBusPEC, "smbus-pec"},
	{FuncNoStart, "nostart"},
	{FuncSMBusQuick, "smbus-quick"},
	{FuncSMBusReadByte, "smbus-read-byte"},
	{FuncSMBusWriteByte, "smbus-write-byte"},
	{FuncSMBusReadByteData, "smbus-read-byte-data"},
	{FuncSMBusWriteByteData, "smbus-write-byte-data"},
	{FuncSMBusReadWordData, "smbus-read-word-data"},
	{FuncSMBusWriteWordData, "smbus-write-word-data"},
	{FuncSMBusReadI2CBlock, "smbus-read-i2c-block"},
	{FuncSMBusWriteI2CBlock, "smbus-write-i2c-block"},
}

// Has returns true if every bit in want is set in f.
func (f Functionality) Has(want Functionality) bool {
	return f&want == want
}

// String returns the capability names joined with '|'.
func (f Functionality) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	rest := f
	for _, fn := range funcNames {
		if f&fn.bit != 0 {
			names = append(names, fn.name)
			rest &^= fn.bit
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%08x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// MsgFlags modify how a single message is put on the wire.
type MsgFlags uint16

// Message flags (Linux I2C_M_* values).
const (
	MsgRead    MsgFlags = 0x0001 // Read from target
	MsgTen     MsgFlags = 0x0010 // 10-bit target address
	MsgNoStart MsgFlags = 0x4000 // Continue previous message without START
)

// Msg is one segment of a combined transaction. Consecutive messages in one
// Transfer call are joined by repeated START conditions.
type Msg struct {
	Addr  uint16   // Target address
	Flags MsgFlags // Direction and modifiers
	Buf   []byte   // Data to send, or destination for received data
}

// IsRead returns true if the message reads from the target.
func (m *Msg) IsRead() bool {
	return m.Flags&MsgRead != 0
}

// Client is a handle to a single target address on an adapter.
//
// Recv and Send are plain single-message transactions. Transfer issues the
// given messages as one combined transaction. Client implementations are not
// required to be safe for concurrent use; callers serialize access.
type Client interface {
	// Name identifies the client, e.g. "i2c-1" for Linux adapter 1.
	Name() string

	// Addr returns the 7-bit (or 10-bit) target address.
	Addr() uint16

	// Functionality returns the capabilities of the underlying adapter.
	Functionality() Functionality

	// Recv reads len(buf) bytes from the target and returns the count read.
	Recv(buf []byte) (int, error)

	// Send writes data to the target and returns the count written.
	Send(data []byte) (int, error)

	// Transfer executes msgs as a single combined transaction.
	Transfer(msgs ...Msg) error
}

// Adapter is a bus controller that hands out per-address clients.
type Adapter interface {
	// Name identifies the adapter.
	Name() string

	// Functionality returns the adapter capabilities.
	Functionality() Functionality

	// Client returns a handle for the target at addr.
	Client(addr uint16) (Client, error)

	// Close releases the adapter.
	Close() error
}

// Valid 7-bit target address range. 0x00-0x07 and 0x78-0x7F are reserved.
const (
	MinAddr = 0x08
	MaxAddr = 0x77
)

// ValidAddr returns an error if addr is outside the usable 7-bit range.
func ValidAddr(addr uint16) error {
	if addr < MinAddr || addr > MaxAddr {
		return fmt.Errorf("%w: address 0x%02x outside 0x%02x-0x%02x",
			pkg.ErrInvalidParameter, addr, MinAddr, MaxAddr)
	}
	return nil
}

// Summarize returns a short description of msgs for debug logging.
func Summarize(msgs []Msg) string {
	var sb strings.Builder
	for i := range msgs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		dir := 'W'
		if msgs[i].IsRead() {
			dir = 'R'
		}
		fmt.Fprintf(&sb, "%c%d", dir, len(msgs[i].Buf))
	}
	return sb.String()
}
