//go:build !linux

package i2cdev

import (
	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/pkg"
)

// Adapter is unavailable on this platform.
type Adapter struct{}

// Open always returns [pkg.ErrNotSupported] on this platform.
func Open(number int) (*Adapter, error) {
	return nil, pkg.ErrNotSupported
}

// OpenPath always returns [pkg.ErrNotSupported] on this platform.
func OpenPath(path string) (*Adapter, error) {
	return nil, pkg.ErrNotSupported
}

// Name returns an empty string.
func (a *Adapter) Name() string { return "" }

// Functionality reports no capabilities.
func (a *Adapter) Functionality() bus.Functionality { return 0 }

// Client always returns [pkg.ErrNotSupported].
func (a *Adapter) Client(addr uint16) (bus.Client, error) { return nil, pkg.ErrNotSupported }

// Close is a no-op.
func (a *Adapter) Close() error { return nil }

// SetTimeout always returns [pkg.ErrNotSupported].
func (a *Adapter) SetTimeout(tenMillis int) error { return pkg.ErrNotSupported }

// SetRetries always returns [pkg.ErrNotSupported].
func (a *Adapter) SetRetries(n int) error { return pkg.ErrNotSupported }
