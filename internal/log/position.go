package log

import (
	"encoding/binary"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Position identifies a point in the log.
//
// The zero value is the beginning of every log: it sorts before any position a
// backend assigns.
type Position struct {
	seq uint64
}

// At returns the position with sequence number seq. Only backends should call it.
func At(seq uint64) Position {
	return Position{seq: seq}
}

// Seq returns the sequence number underlying p.
func (p Position) Seq() uint64 {
	return p.seq
}

// Compare returns -1, 0 or +1 as p sorts before, equal to or after other.
func (p Position) Compare(other Position) int {
	switch {
	case p.seq < other.seq:
		return -1
	case p.seq > other.seq:
		return 1
	default:
		return 0
	}
}

// Less reports whether p sorts before other.
func (p Position) Less(other Position) bool {
	return p.seq < other.seq
}

// IsBeginning reports whether p is the beginning sentinel.
func (p Position) IsBeginning() bool {
	return p.seq == 0
}

// Identity returns a stable byte encoding of p suitable for persisting.
// ParsePosition inverts it.
func (p Position) Identity() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], p.seq)
	return b[:]
}

func (p Position) String() string {
	return strconv.FormatUint(p.seq, 10)
}

// ParsePosition decodes an identity produced by Position.Identity.
func ParsePosition(identity []byte) (Position, error) {
	if len(identity) != 8 {
		return Position{}, errors.Wrapf(ErrInvalidPosition, "identity has %d bytes, want 8", len(identity))
	}
	return Position{seq: binary.BigEndian.Uint64(identity)}, nil
}

// Entry is a single record read from the log.
type Entry struct {
	Position Position
	Contents []byte
}
