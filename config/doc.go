// Package config loads YAML board descriptions and brings them up.
//
// A board lists I2C buses and the EEPROMs on them:
//
//	buses:
//	  - name: i2c-1
//	    driver: i2cdev
//	    i2cdev:
//	      path: /dev/i2c-1
//	devices:
//	  - name: board-id
//	    compatible: microchip,24lc512
//	    bus: i2c-1
//	    address: 0x50
//	    cells:
//	      - {name: serial, offset: 0, bytes: 16}
//
// [Open] opens every bus, attaches every device and registers it in a
// shared [nvmem.Registry]. The sim driver places an emulated chip at each
// device address, optionally backed by an image file.
package config
