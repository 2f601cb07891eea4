//go:build !profile

package prof

import (
	"fmt"

	"github.com/ardnew/softeeprom/pkg"
)

// Enabled reports whether profiling is compiled in.
const Enabled = false

// Session is a no-op without the "profile" build tag.
type Session struct{}

// Start accepts only an empty Config without the "profile" build tag.
func Start(cfg Config) (*Session, error) {
	if !cfg.Empty() {
		return nil, fmt.Errorf("%w: profiling requires the \"profile\" build tag", pkg.ErrNotSupported)
	}
	return &Session{}, nil
}

// Stop does nothing.
func (s *Session) Stop() error { return nil }
