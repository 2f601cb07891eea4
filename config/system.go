package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/bus/buspirate"
	"github.com/ardnew/softeeprom/bus/i2cdev"
	"github.com/ardnew/softeeprom/bus/sim"
	"github.com/ardnew/softeeprom/eeprom"
	"github.com/ardnew/softeeprom/nvmem"
	"github.com/ardnew/softeeprom/pkg"
)

// System is a board brought up: adapters opened, devices attached and
// registered.
type System struct {
	Board    *Board
	Registry *nvmem.Registry

	adapters map[string]bus.Adapter
	devices  map[string]*eeprom.Device
	closers  []func() error
}

// NewSystem opens every bus on the board without attaching devices.
func NewSystem(b *Board) (*System, error) {
	s := &System{
		Board:    b,
		Registry: nvmem.NewRegistry(),
		adapters: make(map[string]bus.Adapter, len(b.Buses)),
		devices:  make(map[string]*eeprom.Device, len(b.Devices)),
	}
	for i := range b.Buses {
		if err := s.openBus(&b.Buses[i]); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Open opens every bus and attaches every device. Devices that fail to
// attach are reported in the joined error; the rest stay attached.
func Open(b *Board) (*System, error) {
	s, err := NewSystem(b)
	if err != nil {
		return nil, err
	}
	var errs []error
	for i := range b.Devices {
		if _, err := s.Attach(b.Devices[i].Name); err != nil {
			errs = append(errs, err)
		}
	}
	return s, errors.Join(errs...)
}

func (s *System) openBus(bb *Bus) error {
	var adapter bus.Adapter
	switch bb.Driver {
	case DriverSim:
		a, err := s.openSim(bb)
		if err != nil {
			return err
		}
		adapter = a

	case DriverI2CDev:
		a, err := i2cdev.OpenPath(bb.I2CDev.Path)
		if err != nil {
			return fmt.Errorf("bus %q: %w", bb.Name, err)
		}
		if bb.I2CDev.Timeout > 0 {
			if err := a.SetTimeout(int(bb.I2CDev.Timeout / (10 * time.Millisecond))); err != nil {
				a.Close()
				return fmt.Errorf("bus %q: %w", bb.Name, err)
			}
		}
		if bb.I2CDev.Retries > 0 {
			if err := a.SetRetries(bb.I2CDev.Retries); err != nil {
				a.Close()
				return fmt.Errorf("bus %q: %w", bb.Name, err)
			}
		}
		adapter = a

	case DriverBusPirate:
		speed, err := buspirate.ParseSpeed(bb.BusPirate.Speed)
		if err != nil {
			return err
		}
		a, err := buspirate.Open(buspirate.Config{
			Port:    bb.BusPirate.Port,
			Baud:    bb.BusPirate.Baud,
			Speed:   speed,
			Power:   bb.BusPirate.Power,
			Pullups: bb.BusPirate.Pullups,
		})
		if err != nil {
			return fmt.Errorf("bus %q: %w", bb.Name, err)
		}
		adapter = a

	default:
		return fmt.Errorf("%w: bus driver %q", pkg.ErrNotSupported, bb.Driver)
	}

	s.adapters[bb.Name] = adapter
	s.closers = append(s.closers, adapter.Close)
	pkg.LogInfo(pkg.ComponentBus, "bus opened",
		"name", bb.Name, "driver", bb.Driver, "functionality", adapter.Functionality().String())
	return nil
}

// openSim builds an emulated adapter with a chip at each device address on
// the bus.
func (s *System) openSim(bb *Bus) (*sim.Adapter, error) {
	adapter := sim.New(bb.Name)
	for _, d := range s.Board.Devices {
		if d.Bus != bb.Name {
			continue
		}
		opts := []sim.ChipOption{}
		if bb.Sim.WriteCycle > 0 {
			opts = append(opts, sim.WithWriteCycle(bb.Sim.WriteCycle))
		}
		if bb.Sim.Image != "" {
			path := bb.Sim.Image
			if strings.Contains(path, "%s") {
				path = fmt.Sprintf(path, d.Name)
			}
			store, err := sim.NewFileStore(path, eeprom.Capacity)
			if err != nil {
				return nil, fmt.Errorf("bus %q device %q: %w", bb.Name, d.Name, err)
			}
			s.closers = append(s.closers, store.Close)
			opts = append(opts, sim.WithStore(store))
		}
		chip, err := sim.NewChip(opts...)
		if err != nil {
			return nil, err
		}
		if err := adapter.Attach(d.Address, chip); err != nil {
			return nil, err
		}
	}
	return adapter, nil
}

// Adapter returns the opened adapter for the named bus.
func (s *System) Adapter(name string) (bus.Adapter, error) {
	a, ok := s.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: bus %q", pkg.ErrNotFound, name)
	}
	return a, nil
}

// Client returns a bus client for the named device without attaching it.
func (s *System) Client(name string) (bus.Client, error) {
	d, err := s.Board.Device(name)
	if err != nil {
		return nil, err
	}
	a, err := s.Adapter(d.Bus)
	if err != nil {
		return nil, err
	}
	return a.Client(d.Address)
}

// Attach attaches the named device and registers it with the system
// registry.
func (s *System) Attach(name string) (*eeprom.Device, error) {
	if dev, ok := s.devices[name]; ok {
		return dev, nil
	}
	d, err := s.Board.Device(name)
	if err != nil {
		return nil, err
	}
	client, err := s.Client(name)
	if err != nil {
		return nil, err
	}
	dev, err := eeprom.Attach(client, s.Registry, d.Options()...)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", name, err)
	}
	s.devices[name] = dev
	return dev, nil
}

// Device returns an attached device.
func (s *System) Device(name string) (*eeprom.Device, error) {
	dev, ok := s.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: attached device %q", pkg.ErrNotFound, name)
	}
	return dev, nil
}

// Close detaches all devices and closes all adapters and backing stores.
func (s *System) Close() error {
	var errs []error
	for name, dev := range s.devices {
		if err := dev.Detach(); err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", name, err))
		}
		delete(s.devices, name)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
