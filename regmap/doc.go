// Package regmap provides addressed register access over an I2C client.
//
// A [Map] turns "read n bytes at register r" into the combined transaction
// a serial memory expects: the register address (one or two bytes,
// big-endian) written to the target, followed by a repeated START and the
// data read. Writes send the address and data in one message.
//
// The map can lock internally, or leave locking to a caller that already
// serializes access with [Config.DisableLocking]:
//
//	m, err := regmap.NewI2C(client, regmap.Config{
//	    RegBits:        16,
//	    ValBits:        8,
//	    DisableLocking: true,
//	    CanSleep:       true,
//	})
package regmap
