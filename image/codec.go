package image

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/ardnew/softeeprom/pkg"
)

// encMode produces deterministic snapshot bytes: the same image always
// encodes identically.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes s.
func Marshal(s *Snapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return encMode.Marshal(s)
}

// Unmarshal decodes and validates a snapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	if len(data) > maxEncodedLen {
		return nil, fmt.Errorf("%w: snapshot is %d bytes, limit %d",
			pkg.ErrOutOfRange, len(data), maxEncodedLen)
	}

	var s Snapshot
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &s, nil
}

// Save writes the encoded snapshot to w.
func Save(w io.Writer, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	return encMode.NewEncoder(w).Encode(s)
}

// Load reads one snapshot from r. At most maxEncodedLen bytes are consumed.
func Load(r io.Reader) (*Snapshot, error) {
	lr := &io.LimitedReader{R: r, N: maxEncodedLen + 1}

	var s Snapshot
	if err := decMode.NewDecoder(lr).Decode(&s); err != nil {
		if lr.N == 0 {
			return nil, fmt.Errorf("%w: snapshot exceeds %d bytes",
				pkg.ErrOutOfRange, maxEncodedLen)
		}
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &s, nil
}
