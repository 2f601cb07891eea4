// Package nvmem exposes non-volatile memory devices as linear, randomly
// addressable storage regions.
//
// A driver registers a device with a [Config] that declares its name,
// capacity, word size and two entry points. The [Registry] assigns each
// registration a unique ID and hands consumers a [Device], which implements
// [io.ReaderAt] and [io.WriterAt] by bounds-checking requests and
// forwarding them to the entry points:
//
//	reg := nvmem.NewRegistry()
//	dev, err := reg.Register(nvmem.Config{
//	    Name:     "24lc512-i2c-1-0050",
//	    Size:     65536,
//	    WordSize: 1,
//	    Read:     eeprom.Read,
//	    Write:    eeprom.Write,
//	})
//
// # Cells
//
// A device may declare named cells, fixed sub-ranges that consumers access
// by name instead of offset:
//
//	mac, _ := dev.Cell("mac-address")
//	addr, err := mac.Read()
package nvmem
