// Package pkg provides shared utilities for the softeeprom driver stack.
//
// This package contains common functionality used by the bus backends,
// the register map, the EEPROM core and the storage provider:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for attach, transfer and bus failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with driver-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentAttach, "device present", "addr", 0x50)
//
// # Errors
//
// Errors are defined as sentinel values and wrapped with context:
//
//	if errors.Is(err, pkg.ErrOutOfRange) {
//	    // Caller asked for bytes past the end of the device
//	}
package pkg
