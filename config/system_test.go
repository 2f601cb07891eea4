package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softeeprom/bus/sim"
	"github.com/ardnew/softeeprom/eeprom"
	"github.com/ardnew/softeeprom/pkg"
)

func simBoard(image string) *Board {
	return &Board{
		Buses: []Bus{{
			Name:   "sim0",
			Driver: DriverSim,
			Sim:    SimBus{Image: image, WriteCycle: 1},
		}},
		Devices: []Device{
			{Name: "id", Compatible: eeprom.Compatible, Bus: "sim0", Address: 0x50,
				Settle: &Settle{Min: 1, Max: 1}},
			{Name: "calib", Compatible: eeprom.DriverName, Bus: "sim0", Address: 0x57,
				ReadOnly: true, Settle: &Settle{Min: 1, Max: 1}},
		},
	}
}

func TestOpenSim(t *testing.T) {
	b := simBoard("")
	require.NoError(t, b.Validate())

	s, err := Open(b)
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, s.Registry.Devices(), 2)

	dev, err := s.Device("id")
	require.NoError(t, err)
	assert.Equal(t, "id", dev.Name())

	again, err := s.Attach("id")
	require.NoError(t, err)
	assert.Same(t, dev, again)

	storage, err := s.Registry.Lookup("id")
	require.NoError(t, err)
	_, err = storage.WriteAt([]byte("softeeprom"), 0x100)
	require.NoError(t, err)

	buf := make([]byte, 10)
	require.NoError(t, dev.Read(0x100, buf))
	assert.Equal(t, "softeeprom", string(buf))

	calib, err := s.Device("calib")
	require.NoError(t, err)
	assert.ErrorIs(t, calib.Write(0, []byte{1}), pkg.ErrReadOnly)

	adapter, err := s.Adapter("sim0")
	require.NoError(t, err)
	assert.Equal(t, "sim0", adapter.Name())
	_, err = s.Adapter("nope")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = s.Device("nope")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	_, err = s.Attach("nope")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	require.NoError(t, s.Close())
	assert.Empty(t, s.Registry.Devices())
	assert.ErrorIs(t, dev.Read(0, buf), pkg.ErrDetached)
}

func TestOpenSimImage(t *testing.T) {
	dir := t.TempDir()
	b := simBoard(filepath.Join(dir, "%s.bin"))

	s, err := Open(b)
	require.NoError(t, err)

	dev, err := s.Device("id")
	require.NoError(t, err)
	require.NoError(t, dev.Write(0, []byte{0xde, 0xad, 0xbe, 0xef}))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "id.bin"))
	require.NoError(t, err)
	require.Len(t, raw, eeprom.Capacity)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, raw[:4])
	assert.Equal(t, byte(sim.ErasedByte), raw[4])

	calib, err := os.ReadFile(filepath.Join(dir, "calib.bin"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{sim.ErasedByte}, eeprom.Capacity), calib)

	// Contents persist across a reopen.
	s, err = Open(b)
	require.NoError(t, err)
	defer s.Close()
	dev, err = s.Device("id")
	require.NoError(t, err)
	buf := make([]byte, 4)
	require.NoError(t, dev.Read(0, buf))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, buf)
}

func TestOpenPartialFailure(t *testing.T) {
	b := simBoard("")
	b.Devices = append(b.Devices, Device{Name: "ghost", Compatible: eeprom.Compatible, Bus: "sim0", Address: 0x52})
	s, err := NewSystem(b)
	require.NoError(t, err)
	defer s.Close()

	// NewSystem places chips for every configured device, so remove one to
	// simulate a part missing from the board.
	adapter, err := s.Adapter("sim0")
	require.NoError(t, err)
	adapter.(*sim.Adapter).Remove(0x52)

	for _, d := range b.Devices {
		_, err := s.Attach(d.Name)
		if d.Name == "ghost" {
			assert.ErrorIs(t, err, pkg.ErrDeviceNotResponding)
			continue
		}
		assert.NoError(t, err)
	}
	assert.Len(t, s.Registry.Devices(), 2)
}

func TestOpenBadImagePath(t *testing.T) {
	b := simBoard(filepath.Join(t.TempDir(), "missing", "%s.bin"))
	_, err := Open(b)
	assert.Error(t, err)
}
