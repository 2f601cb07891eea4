//go:build !profile

package prof

import (
	"errors"
	"testing"

	"github.com/ardnew/softeeprom/pkg"
)

func TestStartRequiresTag(t *testing.T) {
	if Enabled {
		t.Fatal("Enabled = true without the profile tag")
	}
	_, err := Start(Config{CPU: "cpu.prof"})
	if !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("Start() error = %v, want %v", err, pkg.ErrNotSupported)
	}
}
