package pmmr

import "math/bits"

// nodeHeight returns the height of the node occupying 0-indexed MMR
// position pos, derived from the position/height relationship that the
// append algorithm walks: a position's height is the height of the
// smallest complete binary subtree whose postorder index covers it.
func nodeHeight(pos uint64) uint64 {
	n := pos + 1
	for !allOnes(n) {
		n -= mostSignificantBit(n) - 1
	}
	return uint64(bits.Len64(n)) - 1
}

func allOnes(n uint64) bool {
	return n == (uint64(1)<<bits.Len64(n))-1
}

func mostSignificantBit(n uint64) uint64 {
	return uint64(1) << (bits.Len64(n) - 1)
}

// getPeakIndices returns the 0-indexed positions of every peak in an MMR
// of the given total size, left to right.
func getPeakIndices(size uint64) []uint64 {
	var peaks []uint64
	pos := uint64(0)
	remaining := size
	for remaining > 0 {
		peakHeight := uint64(bits.Len64(remaining+1)) - 1
		peakSize := (uint64(1) << (peakHeight + 1)) - 1
		for peakSize > remaining {
			peakHeight--
			peakSize = (uint64(1) << (peakHeight + 1)) - 1
		}
		peaks = append(peaks, pos+peakSize-1)
		pos += peakSize
		remaining -= peakSize
	}
	return peaks
}

// family returns the parent position and sibling position of pos.
func family(pos uint64) (parent uint64, sibling uint64) {
	posHeight := nodeHeight(pos)
	nextHeight := nodeHeight(pos + 1)
	span := (uint64(1) << (posHeight + 1)) - 1
	if nextHeight > posHeight {
		// pos is the right child: its sibling sits span positions back.
		sibling = pos - span
		parent = pos + 1
	} else {
		// pos is the left child: its sibling sits span positions ahead.
		sibling = pos + span
		parent = sibling + 1
	}
	return parent, sibling
}
