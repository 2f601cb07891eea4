//go:build profile

package prof

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // Registers /debug/pprof/ handlers
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/ardnew/softeeprom/pkg"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

// Session is an active profiling session.
type Session struct {
	config   Config
	cpu      *os.File
	listener net.Listener
}

// Start begins a profiling session.
func Start(cfg Config) (*Session, error) {
	s := &Session{config: cfg}

	if cfg.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if cfg.Block != "" {
		runtime.SetBlockProfileRate(1)
	}

	if cfg.CPU != "" {
		f, err := os.Create(cfg.CPU)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %w", pkg.ErrBusy, err)
		}
		s.cpu = f
	}

	if cfg.HTTP != "" {
		l, err := net.Listen("tcp", cfg.HTTP)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.listener = l
		go http.Serve(l, nil)
	}
	return s, nil
}

// Stop ends the CPU profile, writes the snapshot profiles and shuts down the
// HTTP listener.
func (s *Session) Stop() error {
	var errs []error

	if s.cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, s.cpu.Close())
		s.cpu = nil
	}

	for _, snap := range s.config.snapshots() {
		errs = append(errs, write(snap))
	}
	s.config = Config{}

	if s.listener != nil {
		errs = append(errs, s.listener.Close())
		s.listener = nil
	}

	runtime.SetMutexProfileFraction(0)
	runtime.SetBlockProfileRate(0)
	return errors.Join(errs...)
}

func write(snap snapshot) error {
	p := pprof.Lookup(string(snap.profile))
	if p == nil {
		return fmt.Errorf("%w: profile %q", pkg.ErrNotFound, snap.profile)
	}
	f, err := os.Create(snap.path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
