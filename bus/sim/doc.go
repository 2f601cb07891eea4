// Package sim provides an in-process I2C adapter with emulated 24LC512
// serial EEPROMs attached.
//
// The emulation follows the datasheet behavior that matters to a driver:
//
//   - A write message is two address bytes (high, low) followed by data.
//   - Data that runs past the end of the addressed page wraps to the start
//     of that page and overwrites it.
//   - After a page write the chip NACKs everything until its internal write
//     cycle (5 ms by default) has elapsed.
//   - A read streams bytes from the address pointer and wraps at the end of
//     the array.
//
// The adapter can report any [bus.Functionality], inject faults per message,
// and keep a log of every message for assertions:
//
//	clock := sim.NewManualClock()
//	chip, _ := sim.NewChip(sim.WithClock(clock))
//	adapter := sim.New("sim-0", sim.WithLog())
//	adapter.Attach(0x50, chip)
//	client, _ := adapter.Client(0x50)
//
// Chips can persist their contents to disk with [FileStore].
package sim
