package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/bus/buspirate"
	"github.com/ardnew/softeeprom/eeprom"
	"github.com/ardnew/softeeprom/nvmem"
	"github.com/ardnew/softeeprom/pkg"
)

// Bus driver names.
const (
	DriverSim       = "sim"
	DriverI2CDev    = "i2cdev"
	DriverBusPirate = "buspirate"
)

// Board describes the buses and EEPROMs of one system.
type Board struct {
	Log     Log      `yaml:"log"`
	Buses   []Bus    `yaml:"buses"`
	Devices []Device `yaml:"devices"`
}

// Log selects logging level and format.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Bus describes one I2C adapter. Exactly the section matching Driver is
// consulted.
type Bus struct {
	Name      string       `yaml:"name"`
	Driver    string       `yaml:"driver"`
	Sim       SimBus       `yaml:"sim"`
	I2CDev    I2CDevBus    `yaml:"i2cdev"`
	BusPirate BusPirateBus `yaml:"buspirate"`
}

// SimBus configures the emulated adapter. Every device on a sim bus gets an
// emulated chip at its address.
type SimBus struct {
	Image      string        `yaml:"image"`      // Backing file per chip; "%s" expands to the device name
	WriteCycle time.Duration `yaml:"writeCycle"` // Chip write-cycle time
}

// I2CDevBus configures a Linux /dev/i2c-N adapter.
type I2CDevBus struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// BusPirateBus configures a Bus Pirate on a serial port.
type BusPirateBus struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	Speed   string `yaml:"speed"`
	Power   bool   `yaml:"power"`
	Pullups bool   `yaml:"pullups"`
}

// Device describes one EEPROM.
type Device struct {
	Name       string           `yaml:"name"`
	Compatible string           `yaml:"compatible"`
	Bus        string           `yaml:"bus"`
	Address    uint16           `yaml:"address"`
	ReadOnly   bool             `yaml:"readOnly"`
	Settle     *Settle          `yaml:"settle"`
	Cells      []nvmem.CellInfo `yaml:"cells"`
}

// Settle overrides the write settle window.
type Settle struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// LoadError reports a problem with a board description.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes and validates a board description.
func Parse(data []byte) (*Board, error) {
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := b.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid board", Cause: err}
	}
	return &b, nil
}

// Load reads a board description from path.
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	b, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentConfig, "board loaded",
		"file", path, "buses", len(b.Buses), "devices", len(b.Devices))
	return b, nil
}

// Validate checks names, drivers, addresses and cell layouts.
func (b *Board) Validate() error {
	if b.Log.Level != "" {
		if _, err := pkg.ParseLogLevel(b.Log.Level); err != nil {
			return err
		}
	}
	switch b.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", pkg.ErrInvalidParameter, b.Log.Format)
	}

	buses := make(map[string]*Bus, len(b.Buses))
	for i := range b.Buses {
		bb := &b.Buses[i]
		if bb.Name == "" {
			return fmt.Errorf("%w: bus %d has no name", pkg.ErrInvalidParameter, i)
		}
		if _, ok := buses[bb.Name]; ok {
			return fmt.Errorf("%w: bus %q", pkg.ErrExist, bb.Name)
		}
		if err := bb.validate(); err != nil {
			return err
		}
		buses[bb.Name] = bb
	}

	names := make(map[string]bool, len(b.Devices))
	addrs := make(map[string]bool, len(b.Devices))
	for i := range b.Devices {
		d := &b.Devices[i]
		if d.Name == "" {
			return fmt.Errorf("%w: device %d has no name", pkg.ErrInvalidParameter, i)
		}
		if names[d.Name] {
			return fmt.Errorf("%w: device %q", pkg.ErrExist, d.Name)
		}
		names[d.Name] = true

		if !eeprom.Match(d.Compatible) {
			return fmt.Errorf("%w: device %q compatible %q", pkg.ErrNotSupported, d.Name, d.Compatible)
		}
		db, ok := buses[d.Bus]
		if !ok {
			return fmt.Errorf("%w: device %q bus %q", pkg.ErrNotFound, d.Name, d.Bus)
		}
		if err := bus.ValidAddr(d.Address); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
		key := fmt.Sprintf("%s/%02x", d.Bus, d.Address)
		if addrs[key] {
			return fmt.Errorf("%w: device %q shares address 0x%02x on %q",
				pkg.ErrExist, d.Name, d.Address, d.Bus)
		}
		addrs[key] = true

		if err := d.validateSettle(db.Driver); err != nil {
			return err
		}
		if err := d.validateCells(); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
	}
	return nil
}

func (bb *Bus) validate() error {
	switch bb.Driver {
	case DriverSim:
		if bb.Sim.WriteCycle < 0 {
			return fmt.Errorf("%w: bus %q write cycle %v", pkg.ErrInvalidParameter, bb.Name, bb.Sim.WriteCycle)
		}
	case DriverI2CDev:
		if bb.I2CDev.Path == "" {
			return fmt.Errorf("%w: bus %q has no device path", pkg.ErrInvalidParameter, bb.Name)
		}
		if bb.I2CDev.Timeout < 0 || bb.I2CDev.Retries < 0 {
			return fmt.Errorf("%w: bus %q timeout or retries", pkg.ErrInvalidParameter, bb.Name)
		}
	case DriverBusPirate:
		if bb.BusPirate.Port == "" {
			return fmt.Errorf("%w: bus %q has no serial port", pkg.ErrInvalidParameter, bb.Name)
		}
		if _, err := buspirate.ParseSpeed(bb.BusPirate.Speed); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: bus %q driver %q", pkg.ErrNotSupported, bb.Name, bb.Driver)
	}
	return nil
}

// validateSettle checks the settle override. Real hardware needs at least
// the chip's write-cycle time; only the simulator may go lower.
func (d *Device) validateSettle(driver string) error {
	s := d.Settle
	if s == nil {
		return nil
	}
	lo := time.Duration(0)
	if driver != DriverSim {
		lo = eeprom.SettleMin
	}
	if s.Min < lo || s.Max < s.Min {
		return fmt.Errorf("%w: device %q settle [%v, %v] on %s bus, minimum %v",
			pkg.ErrInvalidParameter, d.Name, s.Min, s.Max, driver, lo)
	}
	return nil
}

// validateCells checks the cell layout against the part's geometry using
// the same rules the storage registry applies.
func (d *Device) validateCells() error {
	cfg := nvmem.Config{
		Name:     d.Name,
		Size:     eeprom.Capacity,
		ReadOnly: true,
		Read:     func(uint32, []byte) error { return nil },
		Cells:    d.Cells,
	}
	return cfg.Validate()
}

// Options returns the attach options for the device.
func (d *Device) Options() []eeprom.Option {
	opts := []eeprom.Option{
		eeprom.WithName(d.Name),
		eeprom.WithReadOnly(d.ReadOnly),
	}
	if d.Settle != nil {
		opts = append(opts, eeprom.WithSettle(d.Settle.Min, d.Settle.Max))
	}
	if len(d.Cells) > 0 {
		opts = append(opts, eeprom.WithCells(d.Cells...))
	}
	return opts
}

// Device returns the named device description.
func (b *Board) Device(name string) (*Device, error) {
	for i := range b.Devices {
		if b.Devices[i].Name == name {
			return &b.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: device %q", pkg.ErrNotFound, name)
}

// Bus returns the named bus description.
func (b *Board) Bus(name string) (*Bus, error) {
	for i := range b.Buses {
		if b.Buses[i].Name == name {
			return &b.Buses[i], nil
		}
	}
	return nil, fmt.Errorf("%w: bus %q", pkg.ErrNotFound, name)
}

// ApplyLog configures the package logger from the board's log section.
func (b *Board) ApplyLog() error {
	if b.Log.Level != "" {
		level, err := pkg.ParseLogLevel(b.Log.Level)
		if err != nil {
			return err
		}
		pkg.SetLogLevel(level)
	}
	if b.Log.Format == "json" {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}
	return nil
}
