// Package bus defines the transport abstraction between the EEPROM stack and
// the I2C controller that reaches the chip.
//
// The abstraction is capability based. An [Adapter] reports its
// [Functionality] and hands out a [Client] per target address. Drivers query
// the capability bits instead of depending on concrete adapter types:
//
//	if !client.Functionality().Has(bus.FuncI2C) {
//	    return pkg.ErrUnsupportedBus
//	}
//
// # Backends
//
//   - [github.com/ardnew/softeeprom/bus/sim]: in-process emulated bus with
//     24LC512 chips, used for tests and demonstrations
//   - [github.com/ardnew/softeeprom/bus/i2cdev]: Linux /dev/i2c-N adapters
//   - [github.com/ardnew/softeeprom/bus/buspirate]: Bus Pirate USB-serial
//     bridge in binary I2C mode
//
// # Transactions
//
// [Client.Recv] and [Client.Send] issue a single message framed by START and
// STOP. [Client.Transfer] issues several messages joined by repeated START,
// which is how a register read sets the address pointer and then reads.
package bus
