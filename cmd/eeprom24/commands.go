package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/ardnew/softeeprom/config"
	"github.com/ardnew/softeeprom/eeprom"
	"github.com/ardnew/softeeprom/image"
	"github.com/ardnew/softeeprom/pkg"
)

// errUsage marks a malformed command line.
var errUsage = errors.New("usage")

// session is one attached device plus the system it lives in.
type session struct {
	sys *config.System
	dev *eeprom.Device
	out io.Writer
}

// command is one session command.
type command struct {
	name  string
	usage string
	help  string
	args  int // Minimum argument count
	run   func(s *session, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"info", "info", "show the device and its storage registration", 0, (*session).info},
		{"read", "read OFFSET LENGTH", "hex dump LENGTH bytes at OFFSET", 2, (*session).read},
		{"write", "write OFFSET HEX", "write hex bytes at OFFSET", 2, (*session).write},
		{"fill", "fill OFFSET LENGTH BYTE", "write LENGTH copies of BYTE at OFFSET", 3, (*session).fill},
		{"dump", "dump FILE", "capture the whole device to an image (- for stdout)", 1, (*session).dump},
		{"restore", "restore FILE", "write an image back, skipping unchanged pages", 1, (*session).restore},
		{"verify", "verify FILE", "list pages that differ from an image", 1, (*session).verify},
		{"cells", "cells", "list named cells", 0, (*session).cells},
		{"cell", "cell NAME [HEX]", "read a cell, or write it when HEX is given", 1, (*session).cell},
	}
}

func lookup(name string) (*command, bool) {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i], true
		}
	}
	return nil, false
}

// run brings the board up and executes one command line.
func run(ctx context.Context, board *config.Board, name string, args []string, out io.Writer) error {
	if args[0] == "probe" {
		return probe(ctx, board, out)
	}

	sys, err := config.NewSystem(board)
	if err != nil {
		return err
	}
	defer sys.Close()

	if name == "" {
		if len(board.Devices) == 0 {
			return fmt.Errorf("%w: board has no devices", pkg.ErrNotFound)
		}
		name = board.Devices[0].Name
	}
	dev, err := sys.Attach(name)
	if err != nil {
		return err
	}

	s := &session{sys: sys, dev: dev, out: out}
	if args[0] == "shell" {
		return s.shell(ctx)
	}
	return s.execute(args)
}

// execute runs one session command.
func (s *session) execute(args []string) error {
	c, ok := lookup(strings.ToLower(args[0]))
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	if len(args)-1 < c.args {
		return fmt.Errorf("%w: %s", errUsage, c.usage)
	}
	return c.run(s, args[1:])
}

// exitCode maps a command's error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errUsage) {
		return 2
	}
	st := pkg.StatusOf(err)
	if st == pkg.StatusError {
		return 1
	}
	return 10 + int(st)
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", pkg.ErrInvalidParameter, s, err)
	}
	return v, nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.NewReplacer(":", "", " ", "", "_", "").Replace(s), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: hex %q: %w", pkg.ErrInvalidParameter, s, err)
	}
	return data, nil
}

// parseSpan parses OFFSET and LENGTH arguments. The span must fit inside
// the device so callers can size buffers from it.
func parseSpan(off, n string) (uint32, int, error) {
	o, err := parseUint(off, 32)
	if err != nil {
		return 0, 0, err
	}
	l, err := parseUint(n, 32)
	if err != nil {
		return 0, 0, err
	}
	if o+l > eeprom.Capacity {
		return 0, 0, fmt.Errorf("%w: 0x%x+%d exceeds %d bytes",
			pkg.ErrOutOfRange, o, l, eeprom.Capacity)
	}
	return uint32(o), int(l), nil
}

// hexdump writes data in the canonical 16-byte-per-line layout, with
// offsets starting at base.
func hexdump(w io.Writer, base uint32, data []byte) {
	for i := 0; i < len(data); i += 16 {
		line := data[i:min(i+16, len(data))]
		text := make([]byte, len(line))
		for j, b := range line {
			if b < 0x20 || b > 0x7e {
				b = '.'
			}
			text[j] = b
		}
		fmt.Fprintf(w, "%04x  %-47s  |%s|\n", base+uint32(i), fmt.Sprintf("% x", line), text)
	}
}

func (s *session) info(args []string) error {
	fmt.Fprintf(s.out, "name:       %s\n", s.dev.Name())
	fmt.Fprintf(s.out, "compatible: %s\n", eeprom.Compatible)
	fmt.Fprintf(s.out, "capacity:   %d bytes\n", s.dev.Size())
	fmt.Fprintf(s.out, "page size:  %d bytes\n", s.dev.PageSize())
	fmt.Fprintf(s.out, "read-only:  %v\n", s.dev.ReadOnly())
	if d, err := s.sys.Board.Device(s.dev.Name()); err == nil {
		fmt.Fprintf(s.out, "bus:        %s @ 0x%02x\n", d.Bus, d.Address)
	}
	if st := s.dev.Storage(); st != nil {
		fmt.Fprintf(s.out, "storage id: %s\n", st.ID())
		fmt.Fprintf(s.out, "cells:      %d\n", len(st.Cells()))
	}
	return nil
}

func (s *session) read(args []string) error {
	off, n, err := parseSpan(args[0], args[1])
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	if err := s.dev.Read(off, buf); err != nil {
		return err
	}
	hexdump(s.out, off, buf)
	return nil
}

func (s *session) write(args []string) error {
	off, err := parseUint(args[0], 32)
	if err != nil {
		return err
	}
	data, err := parseHex(strings.Join(args[1:], ""))
	if err != nil {
		return err
	}
	if err := s.dev.Write(uint32(off), data); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %d bytes at 0x%04x\n", len(data), off)
	return nil
}

func (s *session) fill(args []string) error {
	off, n, err := parseSpan(args[0], args[1])
	if err != nil {
		return err
	}
	b, err := parseUint(args[2], 8)
	if err != nil {
		return err
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(b)
	}
	if err := s.dev.Write(off, data); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "filled %d bytes at 0x%04x with 0x%02x\n", n, off, b)
	return nil
}

func (s *session) dump(args []string) error {
	snap, err := image.Capture(s.dev, eeprom.Compatible, s.dev.Size(), s.dev.PageSize())
	if err != nil {
		return err
	}

	if args[0] == "-" {
		if isTerminal(s.out) {
			return fmt.Errorf("%w: refusing to write a binary image to a terminal", pkg.ErrInvalidParameter)
		}
		return image.Save(s.out, snap)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := image.Save(f, snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "saved %d bytes to %s (sha256 %x)\n", snap.Size, args[0], snap.Digest)
	return nil
}

func (s *session) loadImage(path string) (*image.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := image.Load(f)
	if err != nil {
		return nil, err
	}
	if !eeprom.Match(snap.Compatible) || int(snap.Size) != s.dev.Size() {
		return nil, fmt.Errorf("%w: image for %s (%d bytes)", pkg.ErrNotSupported, snap.Compatible, snap.Size)
	}
	return snap, nil
}

func (s *session) restore(args []string) error {
	snap, err := s.loadImage(args[0])
	if err != nil {
		return err
	}
	pages, err := snap.Restore(s.dev, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "restored %d of %d pages\n", pages, int(snap.Size)/int(snap.PageSize))
	return nil
}

func (s *session) verify(args []string) error {
	snap, err := s.loadImage(args[0])
	if err != nil {
		return err
	}
	diff, err := snap.Diff(s.dev)
	if err != nil {
		return err
	}
	for _, off := range diff {
		fmt.Fprintf(s.out, "page 0x%04x differs\n", off)
	}
	if len(diff) > 0 {
		return fmt.Errorf("%w: %d pages differ", pkg.ErrProtocol, len(diff))
	}
	fmt.Fprintln(s.out, "image matches")
	return nil
}

func (s *session) cells(args []string) error {
	st := s.dev.Storage()
	if st == nil {
		return pkg.ErrDetached
	}
	for _, c := range st.Cells() {
		fmt.Fprintf(s.out, "%-16s 0x%04x %d\n", c.Name, c.Offset, c.Bytes)
	}
	return nil
}

func (s *session) cell(args []string) error {
	st := s.dev.Storage()
	if st == nil {
		return pkg.ErrDetached
	}
	c, err := st.Cell(args[0])
	if err != nil {
		return err
	}
	if len(args) > 1 {
		data, err := parseHex(strings.Join(args[1:], ""))
		if err != nil {
			return err
		}
		return c.Write(data)
	}
	data, err := c.Read()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: %s\n", args[0], hex.EncodeToString(data))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// probeResult is the outcome of probing one device.
type probeResult struct {
	device *config.Device
	err    error
}

// probe runs the attach-time presence check on every device of the board
// concurrently.
func probe(ctx context.Context, board *config.Board, out io.Writer) error {
	sys, err := config.NewSystem(board)
	if err != nil {
		return err
	}
	defer sys.Close()

	results := make([]probeResult, len(board.Devices))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range board.Devices {
		d := &board.Devices[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = probeResult{device: d, err: probeOne(sys, d.Name)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	missing := 0
	for _, r := range results {
		status := "present"
		if r.err != nil {
			status = fmt.Sprintf("absent (%s): %v", pkg.StatusOf(r.err), r.err)
			missing++
		}
		fmt.Fprintf(out, "%-16s %-10s 0x%02x  %s\n", r.device.Name, r.device.Bus, r.device.Address, status)
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d of %d devices", pkg.ErrDeviceNotResponding, missing, len(results))
	}
	return nil
}

func probeOne(sys *config.System, name string) error {
	client, err := sys.Client(name)
	if err != nil {
		return err
	}
	return eeprom.Probe(client)
}
