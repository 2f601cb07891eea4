package eeprom

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softeeprom/pkg"
)

// call is one register map operation observed by fakeRegs.
type call struct {
	write  bool
	offset uint32
	length int
	first  byte
}

// fakeRegs is an in-memory Registers that can fail a chosen call.
type fakeRegs struct {
	mutex  sync.Mutex
	mem    [Capacity]byte
	calls  []call
	failAt int // 1-based index of the call to fail; 0 never fails
	err    error
}

func (f *fakeRegs) record(write bool, reg uint, val []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	c := call{write: write, offset: uint32(reg), length: len(val)}
	if len(val) > 0 {
		c.first = val[0]
	}
	f.calls = append(f.calls, c)
	if f.failAt == len(f.calls) {
		return f.err
	}
	return nil
}

func (f *fakeRegs) BulkRead(reg uint, val []byte) error {
	if err := f.record(false, reg, val); err != nil {
		return err
	}
	copy(val, f.mem[reg:])
	return nil
}

func (f *fakeRegs) BulkWrite(reg uint, val []byte) error {
	if err := f.record(true, reg, val); err != nil {
		return err
	}
	copy(f.mem[reg:], val)
	return nil
}

func (f *fakeRegs) log() []call {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]call(nil), f.calls...)
}

// sleeper records settle pauses without sleeping.
type sleeper struct {
	mutex sync.Mutex
	slept []time.Duration
}

func (s *sleeper) sleep(d time.Duration) {
	s.mutex.Lock()
	s.slept = append(s.slept, d)
	s.mutex.Unlock()
	runtime.Gosched()
}

func (s *sleeper) count() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.slept)
}

func newTestDevice(opts ...Option) (*Device, *fakeRegs, *sleeper) {
	regs := &fakeRegs{}
	s := &sleeper{}
	dev := New(regs, append([]Option{WithSleep(s.sleep)}, opts...)...)
	return dev, regs, s
}

func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = seed + byte(i)
	}
	return buf
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		offset uint32
		length int
		want   []Chunk
	}{
		{"empty", 0, 0, nil},
		{"single byte", 5, 1, []Chunk{{5, 1}}},
		{"full page", 0, 128, []Chunk{{0, 128}}},
		{"page plus one", 0, 129, []Chunk{{0, 128}, {128, 1}}},
		{"straddle", 127, 2, []Chunk{{127, 1}, {128, 1}}},
		{"unaligned long", 100, 300, []Chunk{{100, 28}, {128, 128}, {256, 128}, {384, 16}}},
		{"last page", 65408, 128, []Chunk{{65408, 128}}},
		{"tail of array", 65500, 36, []Chunk{{65500, 36}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.offset, tt.length)
			assert.Equal(t, tt.want, got)

			total := 0
			for i, c := range got {
				total += c.Length
				assert.LessOrEqual(t, c.Length, PageSize)
				assert.Equal(t, c.Offset/PageSize, (c.Offset+uint32(c.Length)-1)/PageSize,
					"chunk %d crosses a page", i)
				if i > 0 {
					assert.Zero(t, c.Offset%PageSize, "chunk %d not page aligned", i)
				}
			}
			assert.Equal(t, tt.length, total)
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"24lc512", true},
		{"microchip,24lc512", true},
		{"Microchip,24LC512", true},
		{" 24lc512 ", true},
		{"24lc256", false},
		{"atmel,24c512", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Match(tt.id); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestReadWrite(t *testing.T) {
	dev, regs, s := newTestDevice()

	data := pattern(300, 0x10)
	require.NoError(t, dev.Write(100, data))

	writes := regs.log()
	require.Len(t, writes, 4)
	assert.Equal(t, 4, s.count())
	for i, want := range []Chunk{{100, 28}, {128, 128}, {256, 128}, {384, 16}} {
		assert.True(t, writes[i].write)
		assert.Equal(t, want.Offset, writes[i].offset)
		assert.Equal(t, want.Length, writes[i].length)
	}

	buf := make([]byte, 300)
	require.NoError(t, dev.Read(100, buf))
	assert.Equal(t, data, buf)
	assert.Len(t, regs.log(), 8)
	assert.Equal(t, 4, s.count(), "reads must not settle")
}

func TestWriteSettles(t *testing.T) {
	tests := []struct {
		offset uint32
		length int
	}{
		{0, 1},
		{0, 128},
		{0, 129},
		{64, 128},
		{1, 1000},
		{0, Capacity},
	}

	for _, tt := range tests {
		dev, regs, s := newTestDevice()
		require.NoError(t, dev.Write(tt.offset, make([]byte, tt.length)))

		k := len(Split(tt.offset, tt.length))
		assert.Len(t, regs.log(), k, "writes for %d@%d", tt.length, tt.offset)
		assert.Equal(t, k, s.count(), "settles for %d@%d", tt.length, tt.offset)
		for _, d := range s.slept {
			assert.GreaterOrEqual(t, d, SettleMin)
			assert.LessOrEqual(t, d, SettleMax)
		}
	}
}

func TestZeroLength(t *testing.T) {
	dev, regs, s := newTestDevice()

	// Holding the lock proves zero-length requests never take it.
	dev.mutex.Lock()
	defer dev.mutex.Unlock()

	for _, off := range []uint32{0, 65535, 65536, 1 << 31} {
		assert.NoError(t, dev.Read(off, nil))
		assert.NoError(t, dev.Write(off, []byte{}))
	}
	assert.Empty(t, regs.log())
	assert.Zero(t, s.count())
}

func TestOutOfRange(t *testing.T) {
	tests := []struct {
		offset uint32
		length int
	}{
		{65535, 2},
		{65536, 1},
		{0, Capacity + 1},
		{0xffffffff, 1},
	}

	dev, regs, s := newTestDevice()
	for _, tt := range tests {
		buf := make([]byte, tt.length)
		assert.ErrorIs(t, dev.Read(tt.offset, buf), pkg.ErrOutOfRange)
		assert.ErrorIs(t, dev.Write(tt.offset, buf), pkg.ErrOutOfRange)
	}
	assert.Empty(t, regs.log())
	assert.Zero(t, s.count())

	require.NoError(t, dev.Write(65535, []byte{0x5a}))
	require.NoError(t, dev.Read(0, make([]byte, Capacity)))
}

func TestWriteFailureStopsLoop(t *testing.T) {
	dev, regs, s := newTestDevice()
	regs.failAt = 2
	regs.err = pkg.ErrNACK

	err := dev.Write(0, pattern(300, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkg.ErrTransferFailed)
	assert.ErrorIs(t, err, pkg.ErrNACK)

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, OpWrite, te.Op)
	assert.Equal(t, uint32(128), te.Offset)
	assert.Equal(t, 128, te.Length)
	assert.Equal(t, 128, te.Committed)

	assert.Len(t, regs.log(), 2, "no chunk after the failed one")
	assert.Equal(t, 1, s.count(), "no settle after the failed chunk")
	assert.Equal(t, pattern(128, 1), regs.mem[:128], "first chunk stays committed")
	assert.Equal(t, make([]byte, 172), regs.mem[128:300])

	// The device returns to idle and accepts new work.
	regs.failAt = 0
	assert.NoError(t, dev.Write(0, []byte{1}))
}

func TestReadFailure(t *testing.T) {
	dev, regs, s := newTestDevice()
	regs.failAt = 1
	regs.err = pkg.ErrTimeout

	err := dev.Read(200, make([]byte, 100))
	assert.ErrorIs(t, err, pkg.ErrTransferFailed)
	assert.ErrorIs(t, err, pkg.ErrTimeout)

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, OpRead, te.Op)
	assert.Equal(t, uint32(200), te.Offset)
	assert.Equal(t, 56, te.Length)
	assert.Zero(t, te.Committed)
	assert.Len(t, regs.log(), 1)
	assert.Zero(t, s.count())

	assert.Contains(t, err.Error(), "read chunk 0x00c8+56")
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	dev, regs, _ := newTestDevice()

	var g errgroup.Group
	g.Go(func() error { return dev.Write(0, bytesOf(300, 0xaa)) })
	g.Go(func() error { return dev.Write(1000, bytesOf(300, 0xbb)) })
	g.Go(func() error { return dev.Read(4096, make([]byte, 256)) })
	require.NoError(t, g.Wait())

	calls := regs.log()
	require.Len(t, calls, 3+4+2)

	// Each request's chunks must form one contiguous run.
	seen := map[string]bool{}
	prev := ""
	for _, c := range calls {
		key := "read"
		if c.write {
			key = string(rune(c.first))
		}
		if key != prev {
			assert.False(t, seen[key], "request %q interleaved", key)
			seen[key] = true
			prev = key
		}
	}
	assert.Len(t, seen, 3)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, _, _ := newTestDevice()
	b, regs, _ := newTestDevice()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	done := make(chan error, 1)
	go func() { done <- b.Write(0, []byte{1, 2, 3}) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Len(t, regs.log(), 1)
	case <-time.After(5 * time.Second):
		t.Fatal("write on one device blocked by another")
	}
}

func TestReadOnlyDevice(t *testing.T) {
	dev, regs, _ := newTestDevice(WithReadOnly(true))
	assert.True(t, dev.ReadOnly())
	assert.ErrorIs(t, dev.Write(0, []byte{1}), pkg.ErrReadOnly)
	assert.Empty(t, regs.log())
	assert.NoError(t, dev.Read(0, make([]byte, 4)))
}

func TestSettle(t *testing.T) {
	dev, _, _ := newTestDevice()
	for range 1000 {
		d := dev.Settle()
		if d < SettleMin || d > SettleMax {
			t.Fatalf("Settle() = %v, want within [%v, %v]", d, SettleMin, SettleMax)
		}
	}

	fixed, _, _ := newTestDevice(WithSettle(time.Millisecond, time.Millisecond))
	assert.Equal(t, time.Millisecond, fixed.Settle())
}

func TestReaderAtWriterAt(t *testing.T) {
	dev, _, _ := newTestDevice()

	n, err := dev.WriteAt([]byte("24lc512"), 65529)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	buf := make([]byte, 7)
	n, err = dev.ReadAt(buf, 65529)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "24lc512", string(buf))

	_, err = dev.ReadAt(buf, -1)
	assert.ErrorIs(t, err, pkg.ErrOutOfRange)
	_, err = dev.WriteAt(buf, 1<<40)
	assert.ErrorIs(t, err, pkg.ErrOutOfRange)
}

func TestDetachWithoutProvider(t *testing.T) {
	dev, regs, _ := newTestDevice(WithName("bare"))
	assert.Equal(t, "bare", dev.Name())
	assert.Nil(t, dev.Storage())

	require.NoError(t, dev.Detach())
	assert.ErrorIs(t, dev.Detach(), pkg.ErrDetached)
	assert.ErrorIs(t, dev.Read(0, make([]byte, 1)), pkg.ErrDetached)
	assert.ErrorIs(t, dev.Write(0, []byte{1}), pkg.ErrDetached)
	assert.Empty(t, regs.log())
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.True(t, strings.HasPrefix(Op(7).String(), "Op("))
}

func bytesOf(n int, b byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}
