package chain

import "github.com/mw-labs/mwnode/internal/hashes"

// processTxHashSet installs a downloaded TxHashSet snapshot for the header
// at hash and, on success, advances CONFIRMED to hash. archivePath names a
// still-packed tar.gz archive; TxHashSet.Swap extracts it into a staging
// directory, validates the staged set against the target header, and only
// then atomically replaces the live set -- the live set is never touched
// if extraction or validation fails.
func processTxHashSet(cs *ChainState, _ *WriteToken, hash hashes.Hash, archivePath string) Code {
	target, ok := cs.store.GetBlockIndexByHash(hash)
	if !ok {
		return Orphaned
	}

	if err := cs.txHashSet.Swap(archivePath, target.Header); err != nil {
		log.Warnf("rejecting txhashset snapshot for %s: %+v", hash, err)
		return Invalid
	}

	if !cs.store.ReorgChain(Confirmed, hash) {
		return StoreErr
	}
	advanceCandidateToAtLeast(cs, hash, target.Height)

	log.Infof("swapped in txhashset snapshot, CONFIRMED now at height %d (%s)", target.Height, hash)
	return Success
}
