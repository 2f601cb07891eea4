// Command eeprom24 reads, writes and images 24LC512 serial EEPROMs.
//
// Usage:
//
//	eeprom24 [flags] <command> [args]
//
// Devices come from a YAML board description (-config) or, without one, from
// a single device described by -bus, -dev, -port and -addr. The default bus
// is an emulated one, which is handy for trying commands out:
//
//	eeprom24 -bus sim -image /tmp/eeprom.bin write 0x100 cafe
//	eeprom24 -bus i2cdev -dev /dev/i2c-1 -addr 0x50 read 0 64
//	eeprom24 -config board.yaml probe
//	eeprom24 -config board.yaml -name board-id dump id.img
//
// The exit status is 0 on success, 2 for a malformed command line, 1 for an
// unclassified failure, and 10 plus the pkg.Status code when the failure is
// one of the driver's error classes (12 unsupported bus, 13 not responding,
// 14 out of range, 15 transfer failed, 16 registration, 17 detached).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ardnew/softeeprom/config"
	"github.com/ardnew/softeeprom/eeprom"
	"github.com/ardnew/softeeprom/pkg"
	"github.com/ardnew/softeeprom/pkg/prof"
)

// Component identifier for command logging.
const componentCLI pkg.Component = "eeprom24"

var (
	configPath = flag.String("config", "", "Board description (YAML)")
	busDriver  = flag.String("bus", config.DriverSim, "Bus driver without -config: sim, i2cdev, buspirate")
	devPath    = flag.String("dev", "/dev/i2c-1", "I2C device node for -bus i2cdev")
	portName   = flag.String("port", "/dev/ttyUSB0", "Serial port for -bus buspirate")
	speedName  = flag.String("speed", "", "Bus Pirate I2C clock: 5kHz, 50kHz, 100kHz or 400kHz")
	address    = flag.String("addr", "0x50", "Device address without -config")
	imagePath  = flag.String("image", "", "Backing file for -bus sim")
	deviceName = flag.String("name", "", "Device to operate on (default: first on the board)")
	verbose    = flag.Bool("v", false, "Enable verbose logging")
	jsonOut    = flag.Bool("json", false, "Output logs as JSON")

	cpuProfile   = flag.String("cpuprofile", "", "Write a CPU profile (requires -tags profile)")
	mutexProfile = flag.String("mutexprofile", "", "Write a mutex contention profile (requires -tags profile)")
	pprofAddr    = flag.String("pprof", "", "Serve net/http/pprof on this address (requires -tags profile)")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: %s [flags] <command> [args]\n\ncommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(out, "  %-28s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(out, "  %-28s %s\n", "probe", "check every configured device for a response")
	fmt.Fprintf(out, "  %-28s %s\n", "shell", "interactive session")
	fmt.Fprintln(out, "\nflags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	board, err := loadBoard()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := setupLogging(board); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	session, err := prof.Start(prof.Config{CPU: *cpuProfile, Mutex: *mutexProfile, HTTP: *pprofAddr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, board, *deviceName, flag.Args(), os.Stdout)
	cancel()

	if perr := session.Stop(); perr != nil {
		pkg.LogWarn(componentCLI, "profile not written", "error", perr)
	}
	if err != nil {
		pkg.LogError(componentCLI, "command failed",
			"command", flag.Arg(0), "status", pkg.StatusOf(err), "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// setupLogging applies the board's log section, then the command line flags.
func setupLogging(board *config.Board) error {
	if err := board.ApplyLog(); err != nil {
		return err
	}
	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if *jsonOut {
		pkg.SetLogger(pkg.NewJSONLogger(os.Stderr, &slog.HandlerOptions{
			Level: pkg.GetLogLevel(),
		}))
	}
	return nil
}

// loadBoard reads -config, or describes a single device from flags.
func loadBoard() (*config.Board, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}

	addr, err := strconv.ParseUint(*address, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid -addr %q: %w", *address, err)
	}
	return flagBoard(*busDriver, uint16(addr))
}

// flagBoard builds a one-device board from command line flags.
func flagBoard(driver string, addr uint16) (*config.Board, error) {
	b := &config.Board{
		Buses: []config.Bus{{
			Name:      driver,
			Driver:    driver,
			Sim:       config.SimBus{Image: *imagePath},
			I2CDev:    config.I2CDevBus{Path: *devPath},
			BusPirate: config.BusPirateBus{Port: *portName, Speed: *speedName, Power: true, Pullups: true},
		}},
		Devices: []config.Device{{
			Name:       fmt.Sprintf("%s-%02x", driver, addr),
			Compatible: eeprom.Compatible,
			Bus:        driver,
			Address:    addr,
		}},
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
