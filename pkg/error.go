package pkg

import "errors"

// Attach errors.
var (
	// ErrUnsupportedBus indicates the bus adapter lacks full addressed
	// (plain I2C) transfer semantics.
	ErrUnsupportedBus = errors.New("bus lacks full I2C functionality")

	// ErrDeviceNotResponding indicates the presence probe did not return
	// exactly one byte.
	ErrDeviceNotResponding = errors.New("device not responding")

	// ErrRegistrationFailed indicates the storage provider rejected the
	// device registration.
	ErrRegistrationFailed = errors.New("storage registration failed")
)

// Transfer errors.
var (
	// ErrOutOfRange indicates a request extends past the device capacity.
	ErrOutOfRange = errors.New("request out of range")

	// ErrTransferFailed indicates a bus error while moving a chunk.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrDetached indicates the device instance has been detached.
	ErrDetached = errors.New("device detached")

	// ErrReadOnly indicates a write to a read-only region.
	ErrReadOnly = errors.New("read-only")
)

// Bus errors.
var (
	// ErrNACK indicates the target did not acknowledge a byte.
	ErrNACK = errors.New("no acknowledge")

	// ErrBusy indicates the bus or target is busy.
	ErrBusy = errors.New("resource busy")

	// ErrTimeout indicates a bus operation timed out.
	ErrTimeout = errors.New("bus timeout")

	// ErrProtocol indicates an unexpected response from an adapter.
	ErrProtocol = errors.New("protocol error")

	// ErrClosed indicates use of a closed adapter.
	ErrClosed = errors.New("adapter closed")
)

// General errors.
var (
	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrExist indicates a name is already registered.
	ErrExist = errors.New("already registered")

	// ErrNotFound indicates a lookup found nothing.
	ErrNotFound = errors.New("not found")
)

// Status summarizes the outcome of a storage operation for callers that
// report numeric status rather than Go errors.
type Status int

// Status values.
const (
	StatusOK             Status = iota // Operation completed
	StatusError                        // Unclassified failure
	StatusUnsupportedBus               // Bus lacks required functionality
	StatusNotResponding                // Presence probe failed
	StatusOutOfRange                   // Request exceeds capacity
	StatusTransferFailed               // Bus error during a chunk
	StatusRegistration                 // Provider rejected registration
	StatusDetached                     // Device no longer attached
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusUnsupportedBus:
		return "unsupported bus"
	case StatusNotResponding:
		return "not responding"
	case StatusOutOfRange:
		return "out of range"
	case StatusTransferFailed:
		return "transfer failed"
	case StatusRegistration:
		return "registration failed"
	case StatusDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Error returns the sentinel error corresponding to the status.
func (s Status) Error() error {
	switch s {
	case StatusOK:
		return nil
	case StatusUnsupportedBus:
		return ErrUnsupportedBus
	case StatusNotResponding:
		return ErrDeviceNotResponding
	case StatusOutOfRange:
		return ErrOutOfRange
	case StatusTransferFailed:
		return ErrTransferFailed
	case StatusRegistration:
		return ErrRegistrationFailed
	case StatusDetached:
		return ErrDetached
	default:
		return ErrProtocol
	}
}

// StatusOf classifies err into a Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrUnsupportedBus):
		return StatusUnsupportedBus
	case errors.Is(err, ErrDeviceNotResponding):
		return StatusNotResponding
	case errors.Is(err, ErrOutOfRange):
		return StatusOutOfRange
	case errors.Is(err, ErrTransferFailed):
		return StatusTransferFailed
	case errors.Is(err, ErrRegistrationFailed):
		return StatusRegistration
	case errors.Is(err, ErrDetached):
		return StatusDetached
	default:
		return StatusError
	}
}
