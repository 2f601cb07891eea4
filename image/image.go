package image

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/ardnew/softeeprom/pkg"
)

// Version is the snapshot format version written by this package.
const Version = 1

// maxDataLen bounds the decoded data field. It is well above any serial
// EEPROM this module drives.
const maxDataLen = 1 << 24

// maxEncodedLen bounds an encoded snapshot: the data field plus room for the
// header fields, digest and CBOR framing.
const maxEncodedLen = maxDataLen + 4096

// Snapshot is a captured EEPROM image.
type Snapshot struct {
	Version    uint16    `cbor:"1,keyasint"`
	Compatible string    `cbor:"2,keyasint"`
	Size       uint32    `cbor:"3,keyasint"`
	PageSize   uint16    `cbor:"4,keyasint"`
	CapturedAt time.Time `cbor:"5,keyasint"`
	Digest     []byte    `cbor:"6,keyasint"`
	Data       []byte    `cbor:"7,keyasint"`
}

// Validate checks the snapshot's structure and digest.
func (s *Snapshot) Validate() error {
	switch {
	case s.Version == 0 || s.Version > Version:
		return fmt.Errorf("%w: snapshot version %d", pkg.ErrNotSupported, s.Version)
	case len(s.Data) > maxDataLen:
		return fmt.Errorf("%w: %d data bytes, limit %d", pkg.ErrOutOfRange, len(s.Data), maxDataLen)
	case s.Compatible == "":
		return fmt.Errorf("%w: missing compatible", pkg.ErrInvalidParameter)
	case int(s.Size) != len(s.Data):
		return fmt.Errorf("%w: size %d with %d data bytes", pkg.ErrInvalidParameter, s.Size, len(s.Data))
	case s.PageSize == 0 || s.Size%uint32(s.PageSize) != 0:
		return fmt.Errorf("%w: page size %d for %d bytes", pkg.ErrInvalidParameter, s.PageSize, s.Size)
	}
	return s.Verify()
}

// Verify checks the digest against the data.
func (s *Snapshot) Verify() error {
	sum := sha256.Sum256(s.Data)
	if !bytes.Equal(sum[:], s.Digest) {
		return fmt.Errorf("%w: digest mismatch", pkg.ErrProtocol)
	}
	return nil
}

// Capture reads size bytes from src, page by page, into a new snapshot.
func Capture(src io.ReaderAt, compatible string, size, pageSize int) (*Snapshot, error) {
	if size <= 0 || pageSize <= 0 || size%pageSize != 0 || size > maxDataLen {
		return nil, fmt.Errorf("%w: size %d, page size %d", pkg.ErrInvalidParameter, size, pageSize)
	}

	data := make([]byte, size)
	for off := 0; off < size; off += pageSize {
		if _, err := src.ReadAt(data[off:off+pageSize], int64(off)); err != nil {
			return nil, fmt.Errorf("capture at 0x%x: %w", off, err)
		}
	}

	sum := sha256.Sum256(data)
	s := &Snapshot{
		Version:    Version,
		Compatible: compatible,
		Size:       uint32(size),
		PageSize:   uint16(pageSize),
		CapturedAt: time.Now().UTC().Truncate(time.Second),
		Digest:     sum[:],
		Data:       data,
	}

	pkg.LogInfo(pkg.ComponentImage, "captured",
		"compatible", compatible, "size", size, "digest", fmt.Sprintf("%x", sum[:8]))
	return s, nil
}

// Restore writes the snapshot to dst one page at a time. Pages whose
// contents already match are skipped when skipEqual is set and dst is also
// an io.ReaderAt. It returns the number of pages written.
func (s *Snapshot) Restore(dst io.WriterAt, skipEqual bool) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}

	reader, canRead := dst.(io.ReaderAt)
	skip := skipEqual && canRead

	page := int(s.PageSize)
	current := make([]byte, page)
	written := 0
	for off := 0; off < len(s.Data); off += page {
		want := s.Data[off : off+page]
		if skip {
			if _, err := reader.ReadAt(current, int64(off)); err != nil {
				return written, fmt.Errorf("restore compare at 0x%x: %w", off, err)
			}
			if bytes.Equal(current, want) {
				continue
			}
		}
		if _, err := dst.WriteAt(want, int64(off)); err != nil {
			return written, fmt.Errorf("restore at 0x%x: %w", off, err)
		}
		written++
	}

	pkg.LogInfo(pkg.ComponentImage, "restored",
		"compatible", s.Compatible, "pages", written, "skipped", len(s.Data)/page-written)
	return written, nil
}

// Diff returns the offsets of pages whose contents differ from src.
func (s *Snapshot) Diff(src io.ReaderAt) ([]uint32, error) {
	page := int(s.PageSize)
	current := make([]byte, page)
	var diff []uint32
	for off := 0; off < len(s.Data); off += page {
		if _, err := src.ReadAt(current, int64(off)); err != nil {
			return diff, fmt.Errorf("diff at 0x%x: %w", off, err)
		}
		if !bytes.Equal(current, s.Data[off:off+page]) {
			diff = append(diff, uint32(off))
		}
	}
	return diff, nil
}
