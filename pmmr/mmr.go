package pmmr

import (
	"encoding/binary"

	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

// MMR is a prunable Merkle Mountain Range: an append-only hash accumulator
// whose leaves can later be removed from their backing HashFile (Prune)
// without disturbing its root or the inclusion proofs of what remains.
type MMR struct {
	hashFile *HashFile
	prune    *PruneList
}

// NewMMR wraps a HashFile and an optional PruneList (nil for an unpruned
// range) into an MMR.
func NewMMR(hashFile *HashFile, prune *PruneList) *MMR {
	if prune == nil {
		prune = NewPruneList()
	}
	return &MMR{hashFile: hashFile, prune: prune}
}

// Size returns the total number of positions -- leaves and internal nodes,
// including pruned ones -- logically present in the range.
func (m *MMR) Size() uint64 {
	return m.hashFile.Size() + m.prune.GetTotalShift()
}

// hashAt returns the hash at logical position pos, or the zero hash if pos
// has been pruned.
func (m *MMR) hashAt(pos uint64) (hashes.Hash, error) {
	if m.prune.IsCompacted(pos) {
		return hashes.Zero, nil
	}
	shift := m.prune.GetShift(pos)
	return m.hashFile.GetHashAt(pos - shift)
}

// GetHashAt exposes hashAt to callers building proofs outside this package.
func (m *MMR) GetHashAt(pos uint64) (hashes.Hash, error) {
	return m.hashAt(pos)
}

func hashLeafWithIndex(leaf []byte, index uint64) hashes.Hash {
	buf := make([]byte, 8+len(leaf))
	binary.BigEndian.PutUint64(buf, index)
	copy(buf[8:], leaf)
	return hashes.Hash(wcrypto.Hash256(buf))
}

func hashParentWithIndex(left, right hashes.Hash, index uint64) hashes.Hash {
	buf := make([]byte, 8+hashes.Size*2)
	binary.BigEndian.PutUint64(buf, index)
	copy(buf[8:], left.Bytes())
	copy(buf[8+hashes.Size:], right.Bytes())
	return hashes.Hash(wcrypto.Hash256(buf))
}

// Append adds a new leaf, folding it with any already-present siblings up
// to its peak, and returns the leaf's own MMR position.
func (m *MMR) Append(leaf []byte) (uint64, error) {
	leafPos := m.Size()
	position := leafPos

	leafHash := hashLeafWithIndex(leaf, position)
	m.hashFile.AddHash(leafHash)

	peak := uint64(1)
	for nodeHeight(position+1) > 0 {
		leftSiblingPos := (position + 1) - 2*peak

		leftHash, err := m.hashAt(leftSiblingPos)
		if err != nil {
			return 0, err
		}
		rightHash, err := m.hashAt(position)
		if err != nil {
			return 0, err
		}

		position++
		peak *= 2

		parentHash := hashParentWithIndex(leftHash, rightHash, position)
		m.hashFile.AddHash(parentHash)
	}

	return leafPos, nil
}

// Root computes the MMR root by bagging peaks right to left: the
// rightmost non-pruned peak seeds the accumulator directly, and every
// peak to its left is folded in as HashParentWithIndex(peak, acc, size).
func (m *MMR) Root() (hashes.Hash, error) {
	size := m.Size()
	if size == 0 {
		return hashes.Zero, nil
	}

	peaks := getPeakIndices(size)
	acc := hashes.Zero
	for i := len(peaks) - 1; i >= 0; i-- {
		peakHash, err := m.hashAt(peaks[i])
		if err != nil {
			return hashes.Zero, err
		}
		if peakHash.IsZero() {
			continue
		}
		if acc.IsZero() {
			acc = peakHash
			continue
		}
		acc = hashParentWithIndex(peakHash, acc, size)
	}
	return acc, nil
}

// Rewind truncates the range back to the state it had when it held
// exactly size positions. It does not reverse any pruning applied since:
// a position pruned after size was reached stays pruned.
func (m *MMR) Rewind(size uint64) error {
	shift := m.prune.GetShift(size)
	return m.hashFile.Rewind(size - shift)
}

// Prune removes pos from future reads of the backing HashFile (logically;
// physical disk reclaiming happens on the next on-disk compaction), and
// bubbles the removal upward through any ancestor whose other child is
// already pruned too. Callers must only prune positions below the current
// set of peaks -- pruning a peak itself is never valid, since a peak has
// no parent within the range to bubble into.
func (m *MMR) Prune(pos uint64) {
	m.prune.Add(pos)
}

// Proof is an inclusion proof for the leaf at LeafPos: the sibling hash at
// each level on the way up to its peak, followed by every other peak
// needed to fold into the final root.
type Proof struct {
	LeafPos    uint64
	Path       []hashes.Hash
	PeakHashes []hashes.Hash
}

// Prove builds an inclusion proof for the leaf at leafPos against the
// range's current size.
func (m *MMR) Prove(leafPos uint64) (*Proof, error) {
	size := m.Size()
	peaks := getPeakIndices(size)
	isPeak := func(p uint64) bool {
		for _, pk := range peaks {
			if pk == p {
				return true
			}
		}
		return false
	}

	proof := &Proof{LeafPos: leafPos}
	pos := leafPos
	for !isPeak(pos) {
		parent, sibling := family(pos)
		siblingHash, err := m.hashAt(sibling)
		if err != nil {
			return nil, err
		}
		proof.Path = append(proof.Path, siblingHash)
		pos = parent
	}

	for _, pk := range peaks {
		if pk == pos {
			continue
		}
		h, err := m.hashAt(pk)
		if err != nil {
			return nil, err
		}
		proof.PeakHashes = append(proof.PeakHashes, h)
	}
	return proof, nil
}

// Discard reverts every unflushed Append/Rewind back to the state as of
// the last Flush. Positions pruned since then stay pruned: the PruneList
// is not reverted.
func (m *MMR) Discard() {
	m.hashFile.Discard()
}

// Flush durably persists every pending append and rewind.
func (m *MMR) Flush() error {
	return m.hashFile.Flush()
}

// Close releases the underlying file descriptor.
func (m *MMR) Close() error {
	return m.hashFile.Close()
}
