package chain

import "github.com/mw-labs/mwnode/internal/hashes"

// processHeader runs the single-header state machine: contextual checks,
// parent lookup, attach to CANDIDATE, then a reorg decision. Called with
// cs's write lock already held (token proves it).
func processHeader(cs *ChainState, token *WriteToken, h *Header) Code {
	if err := checkHeaderContext(cs, h); err != nil {
		return Invalid
	}

	parent, ok := cs.store.GetBlockIndexByHash(h.PrevHash)
	if h.Height > 0 {
		if !ok {
			return Orphaned
		}
		if parent.Height+1 != h.Height {
			return Invalid
		}
	}

	if _, exists := cs.store.GetBlockIndexByHash(h.Hash()); exists {
		return AlreadyExists
	}

	cs.store.AddHeader(h, h.PrevHash)
	attachHeaderIfBetter(cs, h)

	decideReorg(cs, token)
	return Success
}

// processHeaderBatch validates hs as a contiguous chain before attaching
// any of it. A contiguous chain means each header's PrevHash matches the
// previous header's hash (except the first, which must chain off a known
// node), and heights increase by exactly one at each step.
func processHeaderBatch(cs *ChainState, token *WriteToken, hs []*Header) Code {
	if len(hs) == 0 {
		return Success
	}
	for i, h := range hs {
		if err := checkHeaderContext(cs, h); err != nil {
			return Invalid
		}
		if i == 0 {
			if h.Height > 0 {
				if _, ok := cs.store.GetBlockIndexByHash(h.PrevHash); !ok {
					return Orphaned
				}
			}
			continue
		}
		prev := hs[i-1]
		if h.PrevHash != prev.Hash() || h.Height != prev.Height+1 {
			return Invalid
		}
	}

	for _, h := range hs {
		cs.store.AddHeader(h, h.PrevHash)
		attachHeaderIfBetter(cs, h)
	}
	decideReorg(cs, token)
	return Success
}

func attachHeaderIfBetter(cs *ChainState, h *Header) {
	head, ok := cs.store.Head(Candidate)
	if !ok || h.TotalDifficulty > head.Header.TotalDifficulty {
		cs.store.ReorgChain(Candidate, h.Hash())
	}
}

// decideReorg does nothing unless CANDIDATE has diverged from CONFIRMED by
// more than the finality depth; block processing is what actually advances
// CONFIRMED (§4.4/§4.6), so header processing alone never rewrites it.
func decideReorg(cs *ChainState, _ *WriteToken) {
	confirmed, ok := cs.store.Head(Confirmed)
	if !ok {
		return
	}
	candidate, ok := cs.store.Head(Candidate)
	if !ok {
		return
	}
	if candidate.Height > confirmed.Height+cs.finalityDepth {
		log.Warnf("CANDIDATE has diverged from CONFIRMED by more than the finality depth (%d); awaiting block sync", cs.finalityDepth)
	}
}

// checkHeaderContext performs every §4.7 contextual check: a non-zero
// prev-hash on non-genesis headers, an allowed version, a timestamp that
// advances without claiming to be from the future, a difficulty matching
// the retarget of the prior retargetWindow headers, and a proof-of-work
// verification against that difficulty. Genesis (height 0) skips all of
// this; it has no parent to check any of it against.
func checkHeaderContext(cs *ChainState, h *Header) error {
	if h.Height > 0 && h.PrevHash == hashes.Zero {
		return NewError(Invalid, "non-genesis header missing previous-hash")
	}
	if h.Height == 0 {
		return nil
	}

	parent, ok := cs.store.GetBlockIndexByHash(h.PrevHash)
	if !ok {
		// Unknown parent: the caller reports Orphaned, not Invalid: there
		// is nothing here yet to check this header's context against.
		return nil
	}

	if err := checkHeaderVersion(h); err != nil {
		return err
	}
	if err := checkHeaderTimestamp(h, parent.Header); err != nil {
		return err
	}

	if h.TotalDifficulty <= parent.Header.TotalDifficulty {
		return NewError(Invalid, "total difficulty does not exceed parent's")
	}
	blockDifficulty := h.TotalDifficulty - parent.Header.TotalDifficulty
	if blockDifficulty != expectedDifficulty(cs, parent) {
		return NewError(Invalid, "block difficulty does not match the retarget")
	}

	if err := cs.powVerifier.VerifyProofOfWork([32]byte(h.Hash()), blockDifficulty); err != nil {
		return NewError(Invalid, "proof of work rejected")
	}
	return nil
}
