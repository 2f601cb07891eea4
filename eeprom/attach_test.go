package eeprom

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softeeprom/bus"
	"github.com/ardnew/softeeprom/bus/sim"
	"github.com/ardnew/softeeprom/nvmem"
	"github.com/ardnew/softeeprom/pkg"
)

// testBus is a simulated adapter with one chip at 0x50 and a manual clock
// shared by the chip and the settle pauses.
type testBus struct {
	adapter *sim.Adapter
	chip    *sim.Chip
	clock   *sim.ManualClock
}

func newTestBus(t *testing.T, opts ...sim.Option) *testBus {
	t.Helper()
	clock := sim.NewManualClock()
	chip, err := sim.NewChip(sim.WithClock(clock))
	require.NoError(t, err)

	adapter := sim.New("sim0", append([]sim.Option{sim.WithLog()}, opts...)...)
	require.NoError(t, adapter.Attach(0x50, chip))
	return &testBus{adapter: adapter, chip: chip, clock: clock}
}

func (b *testBus) client(t *testing.T, addr uint16) bus.Client {
	t.Helper()
	c, err := b.adapter.Client(addr)
	require.NoError(t, err)
	return c
}

// mockProvider is a testify mock of Provider.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Register(cfg nvmem.Config) (*nvmem.Device, error) {
	args := m.Called(cfg)
	dev, _ := args.Get(0).(*nvmem.Device)
	return dev, args.Error(1)
}

func (m *mockProvider) Unregister(dev *nvmem.Device) error {
	return m.Called(dev).Error(0)
}

// mockClient is a testify mock of bus.Client.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Name() string { return "mock" }
func (m *mockClient) Addr() uint16 { return 0x50 }

func (m *mockClient) Functionality() bus.Functionality {
	return m.Called().Get(0).(bus.Functionality)
}

func (m *mockClient) Recv(buf []byte) (int, error) {
	args := m.Called(buf)
	return args.Int(0), args.Error(1)
}

func (m *mockClient) Send(data []byte) (int, error) {
	args := m.Called(data)
	return args.Int(0), args.Error(1)
}

func (m *mockClient) Transfer(msgs ...bus.Msg) error {
	return m.Called(msgs).Error(0)
}

func TestAttach(t *testing.T) {
	tb := newTestBus(t)
	registry := nvmem.NewRegistry()

	dev, err := Attach(tb.client(t, 0x50), registry, WithSleep(tb.clock.Sleep))
	require.NoError(t, err)
	assert.Equal(t, "24lc512-sim0-0050", dev.Name())
	assert.Equal(t, Capacity, dev.Size())
	assert.Equal(t, PageSize, dev.PageSize())

	log := tb.adapter.Log()
	require.Len(t, log, 1, "attach issues exactly the probe read")
	assert.True(t, log[0].Read)
	assert.Equal(t, 1, log[0].Len)
	assert.Zero(t, tb.chip.Writes())

	storage, err := registry.Lookup(dev.Name())
	require.NoError(t, err)
	assert.Same(t, storage, dev.Storage())
	assert.Equal(t, DriverName, storage.Owner())
	assert.Equal(t, Capacity, storage.Size())
	assert.Equal(t, 1, storage.WordSize())

	// Storage consumers reach the chip through the registered entry points.
	data := pattern(200, 0x40)
	_, err = storage.WriteAt(data, 1024)
	require.NoError(t, err)
	assert.Equal(t, 2, tb.chip.Writes())
	assert.Len(t, tb.clock.Slept(), 2)

	got := make([]byte, 200)
	_, err = storage.ReadAt(got, 1024)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	raw := make([]byte, 200)
	_, err = tb.chip.Store().ReadAt(raw, 1024)
	require.NoError(t, err)
	assert.Equal(t, data, raw)

	require.NoError(t, dev.Detach())
	_, err = registry.Lookup(dev.Name())
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	assert.Nil(t, dev.Storage())
	assert.ErrorIs(t, dev.Read(0, got), pkg.ErrDetached)
	_, err = storage.ReadAt(got, 0)
	assert.ErrorIs(t, err, pkg.ErrDetached)
}

func TestAttachOptions(t *testing.T) {
	tb := newTestBus(t)
	registry := nvmem.NewRegistry()

	dev, err := Attach(tb.client(t, 0x50), registry,
		WithName("board-id"),
		WithReadOnly(true),
		WithCells(nvmem.CellInfo{Name: "serial", Offset: 0, Bytes: 16}),
		WithSleep(tb.clock.Sleep))
	require.NoError(t, err)

	storage, err := registry.Lookup("board-id")
	require.NoError(t, err)
	assert.Same(t, storage, dev.Storage())
	assert.True(t, storage.ReadOnly())

	cell, err := storage.Cell("serial")
	require.NoError(t, err)
	serial, err := cell.Read()
	require.NoError(t, err)
	assert.Equal(t, bytesOf(16, sim.ErasedByte), serial)

	assert.ErrorIs(t, cell.Write([]byte("x")), pkg.ErrReadOnly)
	assert.Zero(t, tb.chip.Writes())
}

func TestAttachUnsupportedBus(t *testing.T) {
	tb := newTestBus(t, sim.WithFunctionality(bus.FuncSMBusQuick|bus.FuncSMBusReadByte))
	registry := nvmem.NewRegistry()

	dev, err := Attach(tb.client(t, 0x50), registry)
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, pkg.ErrUnsupportedBus)
	assert.Equal(t, pkg.StatusUnsupportedBus, pkg.StatusOf(err))
	assert.Empty(t, tb.adapter.Log(), "no bus traffic before the capability check passes")
	assert.Empty(t, registry.Devices())
}

func TestAttachNotResponding(t *testing.T) {
	tb := newTestBus(t)
	registry := nvmem.NewRegistry()

	dev, err := Attach(tb.client(t, 0x51), registry)
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, pkg.ErrDeviceNotResponding)
	assert.ErrorIs(t, err, pkg.ErrNACK)
	assert.Empty(t, registry.Devices())

	log := tb.adapter.Log()
	require.Len(t, log, 1)
	assert.True(t, log[0].Read)
}

func TestProbe(t *testing.T) {
	tb := newTestBus(t)
	smbus := newTestBus(t, sim.WithFunctionality(bus.FuncSMBusQuick|bus.FuncSMBusReadByte))

	tests := []struct {
		name   string
		client bus.Client
		want   error
	}{
		{"present", tb.client(t, 0x50), nil},
		{"absent", tb.client(t, 0x51), pkg.ErrDeviceNotResponding},
		{"smbus only", smbus.client(t, 0x50), pkg.ErrUnsupportedBus},
		{"nil client", nil, pkg.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Probe(tt.client)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, tb.chip.Writes(), "probing never writes")
	assert.Empty(t, smbus.adapter.Log())
}

func TestAttachShortProbe(t *testing.T) {
	client := &mockClient{}
	client.On("Functionality").Return(bus.FuncI2C)
	client.On("Recv", mock.Anything).Return(0, nil)
	provider := &mockProvider{}

	dev, err := Attach(client, provider)
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, pkg.ErrDeviceNotResponding)

	client.AssertExpectations(t)
	client.AssertNotCalled(t, "Send", mock.Anything)
	client.AssertNotCalled(t, "Transfer", mock.Anything)
	provider.AssertNotCalled(t, "Register", mock.Anything)
}

func TestAttachRegistrationRejected(t *testing.T) {
	reject := errors.New("name in use")
	client := &mockClient{}
	client.On("Functionality").Return(bus.FuncI2C)
	client.On("Recv", mock.Anything).Return(1, nil)

	provider := &mockProvider{}
	provider.On("Register", mock.MatchedBy(func(cfg nvmem.Config) bool {
		return cfg.Name == "24lc512-mock-0050" &&
			cfg.Size == Capacity &&
			cfg.WordSize == 1 &&
			cfg.Stride == 1 &&
			cfg.Read != nil &&
			cfg.Write != nil
	})).Return(nil, reject)

	dev, err := Attach(client, provider)
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, pkg.ErrRegistrationFailed)
	assert.ErrorIs(t, err, reject)
	assert.Equal(t, pkg.StatusRegistration, pkg.StatusOf(err))

	provider.AssertExpectations(t)
	client.AssertNotCalled(t, "Send", mock.Anything)
	client.AssertNotCalled(t, "Transfer", mock.Anything)
}

func TestAttachDuplicateName(t *testing.T) {
	tb := newTestBus(t)
	registry := nvmem.NewRegistry()

	first, err := Attach(tb.client(t, 0x50), registry, WithSleep(tb.clock.Sleep))
	require.NoError(t, err)

	second, err := Attach(tb.client(t, 0x50), registry)
	assert.Nil(t, second)
	assert.ErrorIs(t, err, pkg.ErrRegistrationFailed)
	assert.ErrorIs(t, err, pkg.ErrExist)
	require.Len(t, registry.Devices(), 1)
	assert.Same(t, first.Storage(), registry.Devices()[0])
}

func TestAttachInvalidArguments(t *testing.T) {
	tb := newTestBus(t)
	_, err := Attach(nil, nvmem.NewRegistry())
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	_, err = Attach(tb.client(t, 0x50), nil)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestDetachUnregisterFailure(t *testing.T) {
	tb := newTestBus(t)
	fail := errors.New("busy")
	storage := &nvmem.Device{}

	provider := &mockProvider{}
	provider.On("Register", mock.Anything).Return(storage, nil)
	provider.On("Unregister", storage).Return(fail).Once()
	provider.On("Unregister", storage).Return(nil).Once()

	dev, err := Attach(tb.client(t, 0x50), provider, WithSleep(tb.clock.Sleep))
	require.NoError(t, err)

	assert.ErrorIs(t, dev.Detach(), fail)
	assert.NoError(t, dev.Write(0, []byte{1}), "device stays usable after a failed detach")

	require.NoError(t, dev.Detach())
	provider.AssertExpectations(t)
}

func TestConcurrentDetach(t *testing.T) {
	tb := newTestBus(t)
	storage := &nvmem.Device{}
	entered := make(chan struct{})
	release := make(chan struct{})

	provider := &mockProvider{}
	provider.On("Register", mock.Anything).Return(storage, nil)
	provider.On("Unregister", storage).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil).Once()

	dev, err := Attach(tb.client(t, 0x50), provider, WithSleep(tb.clock.Sleep))
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() { first <- dev.Detach() }()

	<-entered
	assert.ErrorIs(t, dev.Detach(), pkg.ErrDetached, "second detach while the first unregisters")
	close(release)

	require.NoError(t, <-first)
	assert.ErrorIs(t, dev.Detach(), pkg.ErrDetached)
	provider.AssertNumberOfCalls(t, "Unregister", 1)
}

func TestWriteRespectsChipWriteCycle(t *testing.T) {
	tb := newTestBus(t)
	registry := nvmem.NewRegistry()

	// No real pause: the chip is still busy when the next chunk arrives.
	dev, err := Attach(tb.client(t, 0x50), registry, WithSleep(func(time.Duration) {}))
	require.NoError(t, err)

	err = dev.Write(0, make([]byte, 200))
	assert.ErrorIs(t, err, pkg.ErrTransferFailed)
	assert.ErrorIs(t, err, pkg.ErrNACK)
	assert.Equal(t, 1, tb.chip.Writes())

	// With settle pauses on the chip's clock every chunk lands.
	tb.clock.Advance(SettleMax)
	dev2 := New(dev.regs, WithSleep(tb.clock.Sleep))
	require.NoError(t, dev2.Write(0, pattern(PageSize*3, 0)))
	assert.Equal(t, 4, tb.chip.Writes())
	for _, d := range tb.clock.Slept() {
		assert.GreaterOrEqual(t, d, SettleMin)
	}
}
