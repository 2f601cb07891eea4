// Package i2cdev implements a [bus.Adapter] over the Linux i2c-dev
// interface (/dev/i2c-N).
//
// The adapter queries I2C_FUNCS when opened and reports the result as its
// [bus.Functionality]. Plain receives and sends bind the target with
// I2C_SLAVE and use read(2)/write(2); combined transactions use I2C_RDWR so
// the register address and data phase are joined by a repeated START.
//
// Kernel errors are wrapped with the matching [pkg] sentinel: ENXIO and
// EREMOTEIO become [pkg.ErrNACK], ETIMEDOUT becomes [pkg.ErrTimeout].
//
// On other platforms [Open] returns [pkg.ErrNotSupported].
package i2cdev
