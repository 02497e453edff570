package chain

import "time"

// maxHeaderVersion is the newest header version this build understands.
// A real network varies allowed versions by height (a hard-fork
// schedule); this node has shipped exactly one version so far.
const maxHeaderVersion = 1

// maxFutureDrift bounds how far a header's timestamp may sit ahead of
// this node's own clock, allowing for ordinary clock skew across the
// network without accepting headers claiming to be from the future.
const maxFutureDrift = 2 * time.Hour

// retargetWindow is how many trailing blocks the difficulty retarget
// averages block time over.
const retargetWindow = 10

// targetBlockTimeSeconds is the block interval the retarget tries to
// hold the chain to.
const targetBlockTimeSeconds = 60

// genesisBlockDifficulty is the fixed per-block difficulty attributed to
// genesis, since it has no parent to derive one from.
const genesisBlockDifficulty = 1

func checkHeaderVersion(h *Header) error {
	if h.Version == 0 || h.Version > maxHeaderVersion {
		return NewError(Invalid, "unsupported header version")
	}
	return nil
}

func checkHeaderTimestamp(h, parent *Header) error {
	if h.Timestamp <= parent.Timestamp {
		return NewError(Invalid, "header timestamp does not advance past parent")
	}
	if h.Timestamp > time.Now().Add(maxFutureDrift).Unix() {
		return NewError(Invalid, "header timestamp too far in the future")
	}
	return nil
}

// blockDifficultyOf returns the difficulty node's own proof-of-work
// represents, derived from how much its total difficulty exceeds its
// parent's.
func blockDifficultyOf(cs *ChainState, node *BlockIndex) uint64 {
	if node.Height == 0 {
		return genesisBlockDifficulty
	}
	parent, ok := cs.store.GetBlockIndexByHash(node.Header.PrevHash)
	if !ok {
		return genesisBlockDifficulty
	}
	return node.Header.TotalDifficulty - parent.Header.TotalDifficulty
}

// expectedDifficulty retargets off the average block time over the
// trailing retargetWindow blocks ending at parent: the further the
// actual average strayed from targetBlockTimeSeconds, the more the
// difficulty moves, clamped to a quarter/4x band per step, the same
// single-adjustment bound Bitcoin-family retargets use.
func expectedDifficulty(cs *ChainState, parent *BlockIndex) uint64 {
	parentDifficulty := blockDifficultyOf(cs, parent)
	if parent.Height == 0 {
		return parentDifficulty
	}

	window := parent.Height
	if window > retargetWindow {
		window = retargetWindow
	}
	start, ok := cs.store.AncestorAt(parent, parent.Height-window)
	if !ok || window == 0 {
		return parentDifficulty
	}

	elapsed := parent.Header.Timestamp - start.Header.Timestamp
	if elapsed <= 0 {
		elapsed = 1
	}
	actualAvg := elapsed / int64(window)
	if actualAvg <= 0 {
		actualAvg = 1
	}

	adjusted := parentDifficulty * uint64(targetBlockTimeSeconds) / uint64(actualAvg)

	min := parentDifficulty / 4
	if min == 0 {
		min = 1
	}
	max := parentDifficulty * 4

	switch {
	case adjusted < min:
		return min
	case adjusted > max:
		return max
	default:
		return adjusted
	}
}
