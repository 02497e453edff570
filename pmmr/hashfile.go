package pmmr

import (
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/pkg/errors"
)

// hashStride is the fixed on-disk size of a HashFile record: one Hash.
const hashStride = hashes.Size

// HashFile is a fixed-stride, append-only log of 32-byte hashes, one per
// MMR position. It is the backing store for a single MMR's node hashes.
// HashFile is not internally synchronized: callers (the MMR, and above it
// ChainState) are expected to serialize access.
type HashFile struct {
	seg *segmentFile
}

// OpenHashFile opens (creating if necessary) the hash file at path.
func OpenHashFile(path string) (*HashFile, error) {
	seg, err := openSegmentFile(path, 0)
	if err != nil {
		return nil, err
	}
	n, err := statRecordCount(seg.file, hashStride)
	if err != nil {
		seg.close()
		return nil, err
	}
	seg.diskSize = n
	seg.tailStart = n
	return &HashFile{seg: seg}, nil
}

// Size returns the number of hashes currently in the file.
func (hf *HashFile) Size() uint64 {
	return hf.seg.logicalSize()
}

// AddHash appends h and returns the position it was written at.
func (hf *HashFile) AddHash(h hashes.Hash) uint64 {
	return hf.seg.appendRecord(h.Bytes())
}

// GetHashAt returns the hash stored at logical position index.
func (hf *HashFile) GetHashAt(index uint64) (hashes.Hash, error) {
	raw, err := hf.seg.getRecord(index, fixedStrideDisk{stride: hashStride})
	if err != nil {
		return hashes.Hash{}, err
	}
	h, err := hashes.FromSlice(raw)
	if err != nil {
		return hashes.Hash{}, errors.WithStack(err)
	}
	return h, nil
}

// Rewind truncates the logical size to n. Undoable by subsequent AddHash
// calls as long as Flush has not intervened.
func (hf *HashFile) Rewind(n uint64) error {
	return hf.seg.rewind(n)
}

// Discard reverts every unflushed AddHash/Rewind back to the last Flush.
func (hf *HashFile) Discard() {
	hf.seg.discard()
}

// Flush durably persists every pending append and rewind.
func (hf *HashFile) Flush() error {
	return hf.seg.flushFixedStride(hashStride)
}

// Close releases the underlying file descriptor.
func (hf *HashFile) Close() error {
	return hf.seg.close()
}
