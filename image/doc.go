// Package image captures and restores whole-device EEPROM images.
//
// A [Snapshot] holds the raw contents together with the part's compatible
// string, geometry, capture time and a SHA-256 digest. Snapshots are stored
// as deterministic CBOR with integer keys, so capturing identical contents
// twice in the same second produces identical files.
package image
