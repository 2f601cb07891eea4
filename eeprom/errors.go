package eeprom

import (
	"fmt"

	"github.com/ardnew/softeeprom/pkg"
)

// Op identifies the direction of a transfer.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// TransferError reports the chunk on which a transfer stopped.
//
// errors.Is(err, pkg.ErrTransferFailed) holds for every TransferError, and
// Unwrap also exposes the underlying bus error.
type TransferError struct {
	Op        Op
	Offset    uint32 // Start of the failed chunk
	Length    int    // Length of the failed chunk
	Committed int    // Bytes completed before the failed chunk
	Err       error  // Bus error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: %s chunk 0x%04x+%d after %d bytes: %v",
		pkg.ErrTransferFailed, e.Op, e.Offset, e.Length, e.Committed, e.Err)
}

// Unwrap returns the transfer sentinel and the bus error.
func (e *TransferError) Unwrap() []error {
	return []error{pkg.ErrTransferFailed, e.Err}
}
