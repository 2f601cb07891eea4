package eeprom

import (
	"fmt"
	"log/slog"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/nvmem"
	"github.com/ardnew/softeeprom/pkg"
	"github.com/ardnew/softeeprom/regmap"
)

// Probe checks that client supports plain I2C transfers and that a device
// acknowledges a one-byte read at its address. It is the non-mutating part
// of Attach and never writes to the bus.
func Probe(client bus.Client) error {
	if client == nil {
		return fmt.Errorf("%w: nil client", pkg.ErrInvalidParameter)
	}
	return probe(client, probeLogger(client))
}

func probeLogger(client bus.Client) *slog.Logger {
	return pkg.Logger(pkg.ComponentAttach).With("bus", client.Name(), "addr", fmt.Sprintf("0x%02x", client.Addr()))
}

func probe(client bus.Client, log *slog.Logger) error {
	log.Debug("checking I2C functionality")
	if funcs := client.Functionality(); !funcs.Has(bus.FuncI2C) {
		log.Error("bus lacks plain I2C transfers", "functionality", funcs.String())
		return fmt.Errorf("%w: %s reports %v", pkg.ErrUnsupportedBus, client.Name(), funcs)
	}

	log.Debug("checking device presence")
	var b [1]byte
	n, err := client.Recv(b[:])
	if err != nil {
		log.Error("no response to probe read", "received", n, "error", err)
		return fmt.Errorf("%w: probe at 0x%02x: %w", pkg.ErrDeviceNotResponding, client.Addr(), err)
	}
	if n != 1 {
		log.Error("short probe read", "received", n)
		return fmt.Errorf("%w: probe at 0x%02x returned %d bytes", pkg.ErrDeviceNotResponding, client.Addr(), n)
	}
	return nil
}

// Attach verifies that client can drive a 24LC512 and that one answers at
// its address, then registers the device with provider.
//
// Attach never writes to the bus. On failure nothing is registered and no
// Device is returned.
func Attach(client bus.Client, provider Provider, opts ...Option) (*Device, error) {
	if client == nil || provider == nil {
		return nil, fmt.Errorf("%w: nil client or provider", pkg.ErrInvalidParameter)
	}

	log := probeLogger(client)
	log.Info("starting probe")
	if err := probe(client, log); err != nil {
		return nil, err
	}

	log.Debug("preparing register map")
	regs, err := regmap.NewI2C(client, RegmapConfig)
	if err != nil {
		log.Error("register map setup failed", "error", err)
		return nil, err
	}

	name := fmt.Sprintf("%s-%s-%04x", DriverName, client.Name(), client.Addr())
	d := New(regs, append([]Option{WithName(name)}, opts...)...)

	log.Debug("registering storage", "name", d.name)
	cfg := nvmem.Config{
		Name:     d.name,
		Owner:    DriverName,
		Size:     Capacity,
		WordSize: 1,
		Stride:   1,
		ReadOnly: d.readOnly,
		Read:     d.Read,
		Write:    d.Write,
		Cells:    d.cells,
	}
	storage, err := provider.Register(cfg)
	if err != nil {
		log.Error("storage registration failed", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", pkg.ErrRegistrationFailed, d.name, err)
	}

	d.mutex.Lock()
	d.provider = provider
	d.storage = storage
	d.mutex.Unlock()

	log.Info("attached", "name", d.name, "size", Capacity, "page", PageSize)
	return d, nil
}
