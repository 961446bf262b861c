// Package id generates and codes the 128-bit identifiers used for every
// node, edge, and vector, and the 4-byte label hashes embedded in adjacency
// keys.
package id

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/google/uuid"
)

// ID is a fixed 16-byte big-endian identifier. It is the internal
// representation of the UUID strings handed to callers at the JSON
// boundary.
type ID [16]byte

// Nil is the zero ID, never assigned by New.
var Nil ID

// New generates a time-ordered v6 UUID. The high bits embed a timestamp so
// successive calls sort monotonically, which the append-optimized write
// paths (internal/kv put_append) rely on.
func New() ID {
	u, err := uuid.NewV6()
	if err != nil {
		// uuid.NewV6 only fails if the system clock/node-id source is
		// unavailable; fall back to a random v4 rather than panic so a
		// single bad syscall doesn't take down a write transaction.
		u = uuid.New()
	}
	return ID(u)
}

// FromBytes interprets b (must be 16 bytes) as an ID.
func FromBytes(b []byte) (ID, bool) {
	if len(b) != 16 {
		return Nil, false
	}
	var out ID
	copy(out[:], b)
	return out, true
}

// Bytes returns the 16-byte big-endian encoding of id.
func (i ID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, i[:])
	return b
}

// String renders id as a canonical UUID string.
func (i ID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether id is the zero value.
func (i ID) IsNil() bool { return i == Nil }

// Parse decodes a canonical UUID string into an ID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, err
	}
	return ID(u), nil
}

// Less reports whether i sorts before j under big-endian byte comparison,
// which for v6 UUIDs is also chronological order.
func (i ID) Less(j ID) bool {
	for k := 0; k < 16; k++ {
		if i[k] != j[k] {
			return i[k] < j[k]
		}
	}
	return false
}

// LabelHash returns the stable 4-byte digest of a schema label used inside
// adjacency keys. FNV-1a is used for its good avalanche behavior on short
// ASCII strings and because it needs no seeding.
func LabelHash(label string) [4]byte {
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	sum := h.Sum32()
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], sum)
	return out
}
