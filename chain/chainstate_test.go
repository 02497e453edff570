package chain

import (
	"testing"

	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/pkg/errors"
)

// fakeBlockStore is an in-memory chain.BlockStore, letting tests exercise
// ChainState's block path without a real database.
type fakeBlockStore struct {
	blocks  map[hashes.Hash]*Block
	staging map[hashes.Hash]*Block
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{
		blocks:  make(map[hashes.Hash]*Block),
		staging: make(map[hashes.Hash]*Block),
	}
}

func (s *fakeBlockStore) Stage(hash hashes.Hash, block *Block) { s.staging[hash] = block }
func (s *fakeBlockStore) Block(hash hashes.Hash) (*Block, error) {
	if b, ok := s.blocks[hash]; ok {
		return b, nil
	}
	return nil, errors.New("not found")
}
func (s *fakeBlockStore) HasBlock(hash hashes.Hash) (bool, error) {
	_, ok := s.blocks[hash]
	return ok, nil
}
func (s *fakeBlockStore) Delete(hash hashes.Hash) { delete(s.staging, hash) }
func (s *fakeBlockStore) Commit() error {
	for hash, b := range s.staging {
		s.blocks[hash] = b
	}
	s.staging = make(map[hashes.Hash]*Block)
	return nil
}
func (s *fakeBlockStore) Discard() { s.staging = make(map[hashes.Hash]*Block) }

// fakeTxHashSet is a chain.TxHashSet stub: Apply always succeeds unless
// rejectApply is set, letting tests drive ChainState's control flow
// without real MMR/bitmap bookkeeping.
type fakeTxHashSet struct {
	rejectApply bool
	rejectSwap  bool
	applied     []*Block
	swapped     []*Header
}

func (f *fakeTxHashSet) Apply(b *Block) error {
	if f.rejectApply {
		return errors.New("rejected")
	}
	f.applied = append(f.applied, b)
	return nil
}
func (f *fakeTxHashSet) Rewind(*Header) error { return nil }
func (f *fakeTxHashSet) Swap(_ string, target *Header) error {
	if f.rejectSwap {
		return errors.New("rejected")
	}
	f.swapped = append(f.swapped, target)
	return nil
}
func (f *fakeTxHashSet) Roots() (hashes.Hash, hashes.Hash, hashes.Hash) {
	return hashes.Zero, hashes.Zero, hashes.Zero
}
func (f *fakeTxHashSet) Flush() error { return nil }

// fakePoWVerifier is a wcrypto.PoWVerifier stub: it accepts or rejects
// unconditionally, letting tests drive checkHeaderContext's proof-of-work
// branch without grinding a real difficulty-matching hash.
type fakePoWVerifier struct {
	reject bool
}

func (f *fakePoWVerifier) VerifyProofOfWork([32]byte, uint64) error {
	if f.reject {
		return errors.New("proof of work rejected")
	}
	return nil
}

func newTestChainState(t *testing.T, finalityDepth uint64) (*ChainState, *fakeBlockStore, *fakeTxHashSet, *Header) {
	t.Helper()
	store := NewChainStore()
	genesis := &Header{Height: 0}
	store.AddHeader(genesis, hashes.Zero)
	for _, branch := range []Branch{Confirmed, Candidate, Sync} {
		store.ReorgChain(branch, genesis.Hash())
	}

	blocks := newFakeBlockStore()
	txHashSet := &fakeTxHashSet{}
	cs := NewChainState(store, blocks, txHashSet, finalityDepth, wcrypto.NewTargetPoWVerifier())
	return cs, blocks, txHashSet, genesis
}

// nextValidHeader builds the header that legitimately extends parent: one
// height up, one difficulty point up, targetBlockTimeSeconds later. Holding
// the block interval exactly on target keeps expectedDifficulty's retarget
// steady, so a chain built this way satisfies checkHeaderContext at every
// step without needing real proof-of-work (difficulty 1 accepts any hash).
func nextValidHeader(parent *Header) *Header {
	return &Header{
		Version:         1,
		Height:          parent.Height + 1,
		PrevHash:        parent.Hash(),
		Timestamp:       parent.Timestamp + targetBlockTimeSeconds,
		TotalDifficulty: parent.TotalDifficulty + 1,
	}
}

func TestProcessSingleHeaderAttachesToCandidate(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	h1 := nextValidHeader(genesis)
	if code := cs.ProcessSingleHeader(h1); code != Success {
		t.Fatalf("ProcessSingleHeader() = %s, want SUCCESS", code)
	}
	if cs.GetHeight(Candidate) != 1 {
		t.Fatalf("CANDIDATE height = %d, want 1", cs.GetHeight(Candidate))
	}
	if cs.GetHeight(Confirmed) != 0 {
		t.Fatalf("header processing must never advance CONFIRMED, got height %d", cs.GetHeight(Confirmed))
	}
}

func TestProcessSingleHeaderRejectsOrphan(t *testing.T) {
	cs, _, _, _ := newTestChainState(t, 100)

	var unknownParent hashes.Hash
	unknownParent[0] = 0xaa
	orphan := &Header{Height: 5, PrevHash: unknownParent}
	if code := cs.ProcessSingleHeader(orphan); code != Orphaned {
		t.Fatalf("ProcessSingleHeader() = %s, want ORPHANED", code)
	}
}

func TestProcessSingleHeaderRejectsHeightSkip(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	skip := &Header{Version: 1, Height: 2, PrevHash: genesis.Hash(), Timestamp: genesis.Timestamp + targetBlockTimeSeconds, TotalDifficulty: 1}
	if code := cs.ProcessSingleHeader(skip); code != Invalid {
		t.Fatalf("ProcessSingleHeader() = %s, want INVALID", code)
	}
}

func TestProcessSingleHeaderReportsAlreadyExists(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	h1 := nextValidHeader(genesis)
	if code := cs.ProcessSingleHeader(h1); code != Success {
		t.Fatalf("first ProcessSingleHeader() = %s, want SUCCESS", code)
	}
	if code := cs.ProcessSingleHeader(h1); code != AlreadyExists {
		t.Fatalf("second ProcessSingleHeader() = %s, want ALREADY_EXISTS", code)
	}
}

func TestProcessSingleHeaderRejectsNonGenesisMissingPrevHash(t *testing.T) {
	cs, _, _, _ := newTestChainState(t, 100)

	h := &Header{Height: 1, PrevHash: hashes.Zero}
	if code := cs.ProcessSingleHeader(h); code != Invalid {
		t.Fatalf("ProcessSingleHeader() = %s, want INVALID", code)
	}
}

// TestProcessSingleHeaderRejectsInvalidProofOfWork covers scenario S5: a
// peer-sent header with invalid proof-of-work must come back INVALID so
// the protocol layer bans the sender (p2p/protocol's handleHeaders routes
// chain.Invalid to Syncer.NotifySyncFailed, which calls
// ConnectionManager.BanConnection -- see p2p/sync's
// TestSyncerTxHashSetFailureReturnsToWaitingAndBans for that half of the
// wiring).
func TestProcessSingleHeaderRejectsInvalidProofOfWork(t *testing.T) {
	store := NewChainStore()
	genesis := &Header{Height: 0}
	store.AddHeader(genesis, hashes.Zero)
	for _, branch := range []Branch{Confirmed, Candidate, Sync} {
		store.ReorgChain(branch, genesis.Hash())
	}
	cs := NewChainState(store, newFakeBlockStore(), &fakeTxHashSet{}, 100, &fakePoWVerifier{reject: true})

	h1 := nextValidHeader(genesis)
	if code := cs.ProcessSingleHeader(h1); code != Invalid {
		t.Fatalf("ProcessSingleHeader() = %s, want INVALID (bad proof of work)", code)
	}
	if cs.GetHeight(Candidate) != 0 {
		t.Fatalf("an invalid-PoW header must not attach to CANDIDATE, height = %d", cs.GetHeight(Candidate))
	}
}

func TestProcessSyncHeadersRejectsNonContiguousBatch(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	h1 := nextValidHeader(genesis)
	h3 := &Header{Height: 3, PrevHash: h1.Hash()}

	code := cs.ProcessSyncHeaders([]*Header{h1, h3})
	if code != Invalid {
		t.Fatalf("ProcessSyncHeaders() = %s, want INVALID", code)
	}
	if cs.GetHeight(Candidate) != 0 {
		t.Fatalf("a rejected batch must not attach any of its headers, CANDIDATE height = %d", cs.GetHeight(Candidate))
	}
}

func TestProcessSyncHeadersAttachesWholeContiguousBatch(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	h1 := &Header{Version: 1, Height: 1, PrevHash: genesis.Hash(), Timestamp: targetBlockTimeSeconds, TotalDifficulty: 1}
	h2 := &Header{Height: 2, PrevHash: h1.Hash(), TotalDifficulty: 2}
	h3 := &Header{Height: 3, PrevHash: h2.Hash(), TotalDifficulty: 3}

	if code := cs.ProcessSyncHeaders([]*Header{h1, h2, h3}); code != Success {
		t.Fatalf("ProcessSyncHeaders() = %s, want SUCCESS", code)
	}
	if cs.GetHeight(Candidate) != 3 {
		t.Fatalf("CANDIDATE height = %d, want 3", cs.GetHeight(Candidate))
	}
}

func TestProcessBlockAdvancesConfirmedAndCandidate(t *testing.T) {
	cs, blocks, txHashSet, genesis := newTestChainState(t, 100)

	header := &Header{Height: 1, PrevHash: genesis.Hash()}
	block := &Block{Header: header}

	if code := cs.ProcessBlock(block); code != Success {
		t.Fatalf("ProcessBlock() = %s, want SUCCESS", code)
	}
	if cs.GetHeight(Confirmed) != 1 {
		t.Fatalf("CONFIRMED height = %d, want 1", cs.GetHeight(Confirmed))
	}
	if cs.GetHeight(Candidate) != 1 {
		t.Fatalf("CANDIDATE height = %d, want 1", cs.GetHeight(Candidate))
	}
	if len(txHashSet.applied) != 1 {
		t.Fatalf("TxHashSet.Apply called %d times, want 1", len(txHashSet.applied))
	}
	has, err := blocks.HasBlock(header.Hash())
	if err != nil || !has {
		t.Fatalf("block store should have committed the block, HasBlock() = %v, %v", has, err)
	}
}

func TestProcessBlockRejectsWrongParent(t *testing.T) {
	cs, _, _, _ := newTestChainState(t, 100)

	var wrongParent hashes.Hash
	wrongParent[0] = 0xbb
	block := &Block{Header: &Header{Height: 1, PrevHash: wrongParent}}

	if code := cs.ProcessBlock(block); code != Orphaned {
		t.Fatalf("ProcessBlock() = %s, want ORPHANED", code)
	}
}

func TestProcessBlockRejectsWhenTxHashSetApplyFails(t *testing.T) {
	cs, _, txHashSet, genesis := newTestChainState(t, 100)
	txHashSet.rejectApply = true

	block := &Block{Header: &Header{Height: 1, PrevHash: genesis.Hash()}}
	if code := cs.ProcessBlock(block); code != Invalid {
		t.Fatalf("ProcessBlock() = %s, want INVALID", code)
	}
	if cs.GetHeight(Confirmed) != 0 {
		t.Fatalf("a rejected Apply must not advance CONFIRMED, got height %d", cs.GetHeight(Confirmed))
	}
}

func TestProcessBlockReportsAlreadyExists(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	header := &Header{Height: 1, PrevHash: genesis.Hash()}
	block := &Block{Header: header}
	if code := cs.ProcessBlock(block); code != Success {
		t.Fatalf("first ProcessBlock() = %s, want SUCCESS", code)
	}

	block2 := &Block{Header: header}
	if code := cs.ProcessBlock(block2); code != AlreadyExists {
		t.Fatalf("second ProcessBlock() = %s, want ALREADY_EXISTS", code)
	}
}

func TestProcessTxHashSetAdvancesConfirmedOnValidSnapshot(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	target := nextValidHeader(genesis)
	if code := cs.ProcessSingleHeader(target); code != Success {
		t.Fatalf("ProcessSingleHeader(target) = %s, want SUCCESS", code)
	}

	if code := cs.ProcessTxHashSet(target.Hash(), "/does/not/matter"); code != Success {
		t.Fatalf("ProcessTxHashSet() = %s, want SUCCESS", code)
	}
	if cs.GetHeight(Confirmed) != 1 {
		t.Fatalf("CONFIRMED height = %d, want 1", cs.GetHeight(Confirmed))
	}
}

func TestProcessTxHashSetRejectsUnknownHeader(t *testing.T) {
	cs, _, _, _ := newTestChainState(t, 100)

	var unknown hashes.Hash
	unknown[0] = 0xcc
	if code := cs.ProcessTxHashSet(unknown, "/does/not/matter"); code != Orphaned {
		t.Fatalf("ProcessTxHashSet() = %s, want ORPHANED", code)
	}
}

func TestProcessTxHashSetRejectsFailedValidation(t *testing.T) {
	cs, _, txHashSet, genesis := newTestChainState(t, 100)
	txHashSet.rejectSwap = true

	target := nextValidHeader(genesis)
	if code := cs.ProcessSingleHeader(target); code != Success {
		t.Fatalf("ProcessSingleHeader(target) = %s, want SUCCESS", code)
	}

	if code := cs.ProcessTxHashSet(target.Hash(), "/does/not/matter"); code != Invalid {
		t.Fatalf("ProcessTxHashSet() = %s, want INVALID", code)
	}
	if cs.GetHeight(Confirmed) != 0 {
		t.Fatalf("a rejected snapshot must not advance CONFIRMED, got height %d", cs.GetHeight(Confirmed))
	}
}

func TestProcessBlockReorgsConfirmedOntoHeavierBranch(t *testing.T) {
	cs, blocks, txHashSet, genesis := newTestChainState(t, 100)

	h1 := &Header{Height: 1, PrevHash: genesis.Hash(), TotalDifficulty: 1}
	h2 := &Header{Height: 2, PrevHash: h1.Hash(), TotalDifficulty: 2}
	if code := cs.ProcessBlock(&Block{Header: h1}); code != Success {
		t.Fatalf("ProcessBlock(h1) = %s, want SUCCESS", code)
	}
	if code := cs.ProcessBlock(&Block{Header: h2}); code != Success {
		t.Fatalf("ProcessBlock(h2) = %s, want SUCCESS", code)
	}

	fork := &Header{Height: 1, PrevHash: genesis.Hash(), TotalDifficulty: 10}
	forkBlock := &Block{Header: fork}
	if code := cs.ProcessBlock(forkBlock); code != Success {
		t.Fatalf("ProcessBlock(fork) = %s, want SUCCESS", code)
	}

	if cs.GetHeight(Confirmed) != 1 {
		t.Fatalf("CONFIRMED height = %d, want 1 (reorg onto the heavier fork)", cs.GetHeight(Confirmed))
	}
	got, ok := cs.GetBlockHeaderByHash(fork.Hash())
	if !ok || got.Hash() != fork.Hash() {
		t.Fatalf("fork header not retained in store")
	}
	confirmedHead, ok := cs.GetBlockHeaderByHeight(Confirmed, 1)
	if !ok || confirmedHead.Hash() != fork.Hash() {
		t.Fatalf("CONFIRMED head = %+v, want fork header", confirmedHead)
	}

	has, err := blocks.HasBlock(fork.Hash())
	if err != nil || !has {
		t.Fatalf("fork block should have been committed, HasBlock() = %v, %v", has, err)
	}
	if len(txHashSet.applied) != 3 {
		t.Fatalf("TxHashSet.Apply called %d times, want 3 (h1, h2, then replayed fork)", len(txHashSet.applied))
	}
}

func TestProcessBlockLeavesConfirmedOnFailedReorgReplay(t *testing.T) {
	cs, _, txHashSet, genesis := newTestChainState(t, 100)

	h1 := &Header{Height: 1, PrevHash: genesis.Hash(), TotalDifficulty: 1}
	if code := cs.ProcessBlock(&Block{Header: h1}); code != Success {
		t.Fatalf("ProcessBlock(h1) = %s, want SUCCESS", code)
	}

	fork := &Header{Height: 1, PrevHash: genesis.Hash(), TotalDifficulty: 10}
	forkBlock := &Block{Header: fork}

	txHashSet.rejectApply = true
	if code := cs.ProcessBlock(forkBlock); code != Invalid {
		t.Fatalf("ProcessBlock(fork) = %s, want INVALID", code)
	}
	if cs.GetHeight(Confirmed) != 1 {
		t.Fatalf("CONFIRMED height = %d, want 1 (failed replay must not move it)", cs.GetHeight(Confirmed))
	}
	confirmedHead, ok := cs.GetBlockHeaderByHeight(Confirmed, 1)
	if !ok || confirmedHead.Hash() != h1.Hash() {
		t.Fatalf("CONFIRMED head = %+v, want h1 unchanged", confirmedHead)
	}
}

func TestAdvanceCandidateToAtLeastNeverRegresses(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	parent := genesis
	for i := 0; i < 5; i++ {
		next := nextValidHeader(parent)
		if code := cs.ProcessSingleHeader(next); code != Success {
			t.Fatalf("ProcessSingleHeader(height %d) = %s, want SUCCESS", next.Height, code)
		}
		parent = next
	}
	if cs.GetHeight(Candidate) != 5 {
		t.Fatalf("CANDIDATE height = %d, want 5", cs.GetHeight(Candidate))
	}

	confirmedBlock := &Header{Height: 1, PrevHash: genesis.Hash(), TotalDifficulty: 1}
	if code := cs.ProcessBlock(&Block{Header: confirmedBlock}); code != Success {
		t.Fatalf("ProcessBlock(confirmedBlock) = %s, want SUCCESS", code)
	}

	if cs.GetHeight(Candidate) != 5 {
		t.Fatalf("CANDIDATE height = %d, want 5 (must not regress when CONFIRMED advances)", cs.GetHeight(Candidate))
	}
}

func TestGetBlockHeaderByHashAndHeight(t *testing.T) {
	cs, _, _, genesis := newTestChainState(t, 100)

	h1 := nextValidHeader(genesis)
	if code := cs.ProcessSingleHeader(h1); code != Success {
		t.Fatalf("ProcessSingleHeader(h1) = %s, want SUCCESS", code)
	}

	got, ok := cs.GetBlockHeaderByHash(h1.Hash())
	if !ok || got.Height != 1 {
		t.Fatalf("GetBlockHeaderByHash() = %+v, %v", got, ok)
	}

	byHeight, ok := cs.GetBlockHeaderByHeight(Candidate, 1)
	if !ok || byHeight.Hash() != h1.Hash() {
		t.Fatalf("GetBlockHeaderByHeight() did not return h1")
	}
}
