// Package buspirate implements a [bus.Adapter] for the Dangerous Prototypes
// Bus Pirate in binary I2C mode, reached over a USB serial port.
//
// [Open] switches the firmware from its user terminal into raw bitbang mode
// (0x00 until "BBIO1"), then into I2C mode (0x02, "I2C1"), sets the clock and
// the power/pull-up peripherals. Every bus message is sent with the
// write-then-read command (0x08), which frames the target address byte and
// payload between one START and one STOP.
//
// The firmware cannot join messages with a repeated START, so
// [bus.Client.Transfer] issues each message as its own transaction. Serial
// EEPROMs keep their address pointer across a STOP, so a register read
// (address write, then data read) behaves the same as on a native adapter.
package buspirate
