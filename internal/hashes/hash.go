// Package hashes defines the 32-byte hash type shared by headers, MMR
// positions and commitments throughout the node.
package hashes

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// Size is the length in bytes of a Hash.
const Size = 32

// Hash is a 32-byte value with lexicographic ordering. The zero value is
// the reserved zero-hash sentinel used by pruned MMR positions and empty
// accumulators.
type Hash [Size]byte

// Zero is the reserved sentinel hash.
var Zero = Hash{}

// FromSlice copies b into a new Hash. b must be exactly Size bytes.
func FromSlice(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, errors.Errorf("invalid hash length: want %d, got %d", Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// FromHex parses a hex-encoded hash.
func FromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, errors.WithStack(err)
	}
	return FromSlice(b)
}

// IsZero reports whether h is the zero-hash sentinel.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Bytes returns the hash bytes as a slice. Callers must not mutate the
// slice's backing array since it aliases the receiver.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Less reports whether h sorts strictly before other, lexicographically.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// Equal reports whether h and other are the same hash.
func (h Hash) Equal(other Hash) bool {
	return h == other
}

// CloneSlice returns an independent copy of hs.
func CloneSlice(hs []Hash) []Hash {
	out := make([]Hash, len(hs))
	copy(out, hs)
	return out
}
