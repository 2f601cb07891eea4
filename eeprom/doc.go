// Package eeprom drives a Microchip 24LC512 serial EEPROM (64 KiB, 128-byte
// write pages) on an I2C bus.
//
// [Attach] checks the bus, probes the part with a one-byte read, builds a
// 16-bit register map over the client and registers the device as an
// [nvmem] storage region:
//
//	adapter, _ := i2cdev.Open(1)
//	client, _ := adapter.Client(0x50)
//	registry := nvmem.NewRegistry()
//	dev, err := eeprom.Attach(client, registry)
//
// # Transfers
//
// [Device.Read] and [Device.Write] accept any offset and length inside the
// array. Both split the request with [Split] so no bus transaction crosses a
// page boundary. After each written chunk the device sleeps for a random
// duration in [SettleMin, SettleMax] while the part completes its internal
// write cycle.
//
// A failed chunk ends the transfer with a [*TransferError]. For writes, the
// chunks before it remain committed to the array.
//
// Each Device serializes its own transfers. A write holds the device for its
// entire duration, settle pauses included.
package eeprom
