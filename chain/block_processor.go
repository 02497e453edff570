package chain

import "github.com/mw-labs/mwnode/internal/hashes"

// processBlock implements the AddBlock contract. A block that directly
// extends CONFIRMED is applied to the TxHashSet and persisted immediately.
// A block that extends some other known header is persisted as a
// competing-branch candidate without being applied; if its branch's total
// difficulty overtakes CONFIRMED's, the TxHashSet is rewound to the fork
// point and the heavier branch replayed onto it (§8 scenario S3). Either
// way CANDIDATE is only ever moved forward, never pulled back to the block
// just confirmed -- it may legitimately lead CONFIRMED during header sync
// (§3).
func processBlock(cs *ChainState, _ *WriteToken, b *Block) Code {
	hash := b.Header.Hash()

	if has, err := cs.blocks.HasBlock(hash); err != nil {
		return StoreErr
	} else if has {
		return AlreadyExists
	}

	if _, ok := cs.store.GetBlockIndexByHash(b.Header.PrevHash); !ok && b.Header.Height > 0 {
		return Orphaned
	}

	confirmed, hasConfirmed := cs.store.Head(Confirmed)
	if !hasConfirmed || b.Header.PrevHash == confirmed.Hash {
		if err := cs.txHashSet.Apply(b); err != nil {
			// Apply already rolls its own MMR appends back on a root
			// mismatch; nothing further to undo here.
			return Invalid
		}
		if code := persistBlock(cs, hash, b); code != Success {
			return code
		}
		if err := cs.txHashSet.Flush(); err != nil {
			return StoreErr
		}

		cs.store.ReorgChain(Confirmed, hash)
		advanceCandidateToAtLeast(cs, hash, b.Header.Height)

		log.Infof("advanced CONFIRMED to height %d (%s)", b.Header.Height, hash)
		return Success
	}

	// A competing branch: store it unvalidated-against-the-live-TxHashSet
	// for now. It only gets real Apply validation if its branch ever
	// becomes heavy enough to displace CONFIRMED.
	if code := persistBlock(cs, hash, b); code != Success {
		return code
	}
	advanceCandidateToAtLeast(cs, hash, b.Header.Height)

	if b.Header.TotalDifficulty <= confirmed.Header.TotalDifficulty {
		return Success
	}

	newHead, _ := cs.store.GetBlockIndexByHash(hash)
	if err := reorgToBranch(cs, confirmed, newHead); err != nil {
		log.Warnf("reorg onto heavier branch at %s failed: %+v", hash, err)
		return Invalid
	}

	log.Infof("reorganized CONFIRMED to height %d (%s)", b.Header.Height, hash)
	return Success
}

// persistBlock records b's header in the tree and commits it to the block
// store. Callers decide separately whether and when to apply it.
func persistBlock(cs *ChainState, hash hashes.Hash, b *Block) Code {
	cs.store.AddHeader(b.Header, b.Header.PrevHash)
	cs.blocks.Stage(hash, b)
	if err := cs.blocks.Commit(); err != nil {
		return StoreErr
	}
	return Success
}

// advanceCandidateToAtLeast moves CANDIDATE to hash only if that would not
// regress it. CANDIDATE is allowed to lead CONFIRMED during sync (§3), so
// advancing CONFIRMED must never pull CANDIDATE backward to match it.
func advanceCandidateToAtLeast(cs *ChainState, hash hashes.Hash, height uint64) {
	head, ok := cs.store.Head(Candidate)
	if !ok || head.Height < height {
		cs.store.ReorgChain(Candidate, hash)
	}
}

// reorgToBranch rewinds the TxHashSet to the ancestor confirmed and newHead
// share, then replays newHead's branch onto it block by block. CONFIRMED
// only advances once every block in the replay applies cleanly; on any
// failure the TxHashSet is rewound back to confirmed's own state and
// CONFIRMED is left where it was.
func reorgToBranch(cs *ChainState, confirmed, newHead *BlockIndex) error {
	fork, path := cs.store.ForkPath(confirmed, newHead)

	if err := cs.txHashSet.Rewind(fork.Header); err != nil {
		return err
	}

	for _, node := range path {
		block, err := cs.blocks.Block(node.Hash)
		if err != nil {
			cs.txHashSet.Rewind(confirmed.Header)
			return err
		}
		if err := cs.txHashSet.Apply(block); err != nil {
			cs.txHashSet.Rewind(confirmed.Header)
			return err
		}
	}

	if err := cs.txHashSet.Flush(); err != nil {
		cs.txHashSet.Rewind(confirmed.Header)
		return err
	}

	cs.store.ReorgChain(Confirmed, newHead.Hash)
	return nil
}
