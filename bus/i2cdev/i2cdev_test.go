//go:build linux

package i2cdev

import (
	"errors"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ardnew/softeeprom/pkg"
)

func TestStructLayout(t *testing.T) {
	ptr := unsafe.Sizeof(uintptr(0))

	// struct i2c_msg: three u16 fields, padding, then the buffer pointer.
	assert.Equal(t, uintptr(8), unsafe.Offsetof(i2cMsg{}.buf))
	assert.Equal(t, 8+ptr, unsafe.Sizeof(i2cMsg{}))

	// struct i2c_rdwr_ioctl_data: pointer then u32 count.
	assert.Equal(t, ptr, unsafe.Offsetof(rdwrData{}.nmsgs))
}

func TestMapErrno(t *testing.T) {
	tests := []struct {
		errno unix.Errno
		want  error
	}{
		{unix.ENXIO, pkg.ErrNACK},
		{unix.EREMOTEIO, pkg.ErrNACK},
		{unix.ETIMEDOUT, pkg.ErrTimeout},
		{unix.EBUSY, pkg.ErrBusy},
		{unix.EOPNOTSUPP, pkg.ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			err := mapErrno(tt.errno)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.errno)
		})
	}

	assert.Equal(t, unix.EIO, mapErrno(unix.EIO))
	other := errors.New("other")
	assert.Equal(t, other, mapErrno(other))
}

func TestOpenPath_Missing(t *testing.T) {
	_, err := OpenPath(filepath.Join(t.TempDir(), "i2c-99"))
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOENT)
}

func TestOpenPath_NotAnAdapter(t *testing.T) {
	// /dev/null opens fine but rejects I2C_FUNCS.
	_, err := OpenPath("/dev/null")
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "i2c-1", baseName("/dev/i2c-1"))
	assert.Equal(t, "i2c-7", baseName("i2c-7"))
}
