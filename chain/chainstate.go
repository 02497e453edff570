package chain

import (
	"sync"

	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

var log = logs.NopLogger("CHST")

// SetLogger installs the subsystem logger used by the chain package.
func SetLogger(l *logs.Logger) {
	log = l
}

// BlockStore persists full blocks keyed by header hash. Implemented by the
// blockstore package; declared here as the minimal surface ChainState
// needs, so chain does not import its own consumer.
type BlockStore interface {
	Stage(hash hashes.Hash, block *Block)
	Block(hash hashes.Hash) (*Block, error)
	HasBlock(hash hashes.Hash) (bool, error)
	Delete(hash hashes.Hash)
	Commit() error
	Discard()
}

// TxHashSet is the three-parallel-MMR UTXO commitment set that ChainState
// drives on every block application.
type TxHashSet interface {
	Apply(block *Block) error
	Rewind(header *Header) error
	// Swap extracts the archive at archivePath into a staging copy of the
	// set, validates the staged copy against target, and only on success
	// atomically replaces the live set with it. The live set is left
	// untouched on any failure.
	Swap(archivePath string, target *Header) error
	Roots() (outputRoot, proofRoot, kernelRoot hashes.Hash)
	Flush() error
}

// ChainState is the single-writer façade coordinating the header tree, the
// block store, and the TxHashSet under one lock. Its lock is
// non-reentrant: processors that need to call back into ChainState while
// a write is in flight accept a WriteToken proving the caller already
// holds the lock, rather than acquiring it again (design note: reentrant
// write lock replaced by a locked-state token).
type ChainState struct {
	mu sync.RWMutex

	store         *ChainStore
	blocks        BlockStore
	txHashSet     TxHashSet
	finalityDepth uint64
	powVerifier   wcrypto.PoWVerifier
}

// NewChainState wires a ChainState over an already-populated ChainStore,
// BlockStore and TxHashSet. powVerifier is consulted by header contextual
// checks (§4.7); pass wcrypto.NewTargetPoWVerifier() for the default.
func NewChainState(store *ChainStore, blocks BlockStore, txHashSet TxHashSet, finalityDepth uint64, powVerifier wcrypto.PoWVerifier) *ChainState {
	return &ChainState{
		store:         store,
		blocks:        blocks,
		txHashSet:     txHashSet,
		finalityDepth: finalityDepth,
		powVerifier:   powVerifier,
	}
}

// WriteToken proves its holder has exclusive write access to a ChainState.
// It is handed to subcalls instead of them reacquiring the lock.
type WriteToken struct {
	cs *ChainState
}

// Lock acquires exclusive access and returns a token attesting it. Callers
// must Unlock the returned token exactly once.
func (cs *ChainState) Lock() *WriteToken {
	cs.mu.Lock()
	return &WriteToken{cs: cs}
}

// Unlock releases the write lock the token was proof of.
func (t *WriteToken) Unlock() {
	t.cs.mu.Unlock()
}

// ProcessSingleHeader validates and attaches a single inbound header.
func (cs *ChainState) ProcessSingleHeader(h *Header) Code {
	token := cs.Lock()
	defer token.Unlock()
	return processHeader(cs, token, h)
}

// ProcessSyncHeaders validates hs as a contiguous chain before attaching
// any of it; on any failure, none of the batch is attached.
func (cs *ChainState) ProcessSyncHeaders(hs []*Header) Code {
	token := cs.Lock()
	defer token.Unlock()
	return processHeaderBatch(cs, token, hs)
}

// ProcessBlock validates and applies a full block to CONFIRMED.
func (cs *ChainState) ProcessBlock(b *Block) Code {
	token := cs.Lock()
	defer token.Unlock()
	return processBlock(cs, token, b)
}

// ProcessTxHashSet swaps in a downloaded state snapshot for the header at
// hash, given the path to its still-packed tar.gz archive.
func (cs *ChainState) ProcessTxHashSet(hash hashes.Hash, archivePath string) Code {
	token := cs.Lock()
	defer token.Unlock()
	return processTxHashSet(cs, token, hash, archivePath)
}

// GetHeight returns branch's current head height, or 0 if the branch has
// no head yet.
func (cs *ChainState) GetHeight(branch Branch) uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	node, ok := cs.store.Head(branch)
	if !ok {
		return 0
	}
	return node.Height
}

// GetTotalDifficulty returns branch's current head total difficulty.
func (cs *ChainState) GetTotalDifficulty(branch Branch) uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	node, ok := cs.store.Head(branch)
	if !ok {
		return 0
	}
	return node.Header.TotalDifficulty
}

// GetBlockHeaderByHash returns the header for hash, if known to the store.
func (cs *ChainState) GetBlockHeaderByHash(hash hashes.Hash) (*Header, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	node, ok := cs.store.GetBlockIndexByHash(hash)
	if !ok {
		return nil, false
	}
	return node.Header, true
}

// GetBlockHeaderByHeight returns the header at height on branch, if any.
func (cs *ChainState) GetBlockHeaderByHeight(branch Branch, height uint64) (*Header, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	node, ok := cs.store.GetByHeight(branch, height)
	if !ok {
		return nil, false
	}
	return node.Header, true
}
