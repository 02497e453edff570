package chain

import "github.com/mw-labs/mwnode/internal/hashes"

// Handle is an opaque reference to a BlockIndex node owned by a ChainStore.
// Using an integer handle instead of a raw pointer for the parent
// back-reference avoids dangling pointers when headers are removed during
// a reorg, and sidesteps any cycle-detection concerns a pointer graph
// would raise (design note: node arena with integer handles).
type Handle int32

// NoHandle is the zero value's sentinel: no parent (genesis).
const NoHandle Handle = -1

// BlockIndex is a node in the header tree.
type BlockIndex struct {
	Hash   hashes.Hash
	Height uint64
	Header *Header
	Parent Handle
}

// Branch names the three named pointers into the header tree.
type Branch int

const (
	// Confirmed is the validated best chain.
	Confirmed Branch = iota
	// Candidate is the header-validated best chain; may lead Confirmed
	// during sync.
	Candidate
	// Sync is the scratch chain used while downloading headers from peers.
	Sync
)

// ChainStore is the in-memory tree of BlockIndex nodes plus the three
// named branch heads. Nodes live in a flat arena indexed by Handle;
// lookup by hash goes through an auxiliary index.
type ChainStore struct {
	nodes   []BlockIndex
	byHash  map[hashes.Hash]Handle
	heads   [3]Handle
}

// NewChainStore returns an empty store. Callers must AddHeader the genesis
// header before anything else.
func NewChainStore() *ChainStore {
	return &ChainStore{
		byHash: make(map[hashes.Hash]Handle),
		heads:  [3]Handle{NoHandle, NoHandle, NoHandle},
	}
}

// AddHeader inserts header as a child of parentHash (ignored for the first,
// genesis header) and returns its handle. The caller is responsible for
// height/parent-link validation before calling this.
func (cs *ChainStore) AddHeader(header *Header, parentHash hashes.Hash) Handle {
	hash := header.Hash()
	if existing, ok := cs.byHash[hash]; ok {
		return existing
	}

	parent := NoHandle
	if h, ok := cs.byHash[parentHash]; ok {
		parent = h
	}

	handle := Handle(len(cs.nodes))
	cs.nodes = append(cs.nodes, BlockIndex{
		Hash:   hash,
		Height: header.Height,
		Header: header,
		Parent: parent,
	})
	cs.byHash[hash] = handle
	return handle
}

// GetBlockIndexByHash returns the node for hash, if known.
func (cs *ChainStore) GetBlockIndexByHash(hash hashes.Hash) (*BlockIndex, bool) {
	h, ok := cs.byHash[hash]
	if !ok {
		return nil, false
	}
	return &cs.nodes[h], true
}

// GetByHeight walks parent pointers back from branch's head until it
// reaches height, returning that node.
func (cs *ChainStore) GetByHeight(branch Branch, height uint64) (*BlockIndex, bool) {
	handle := cs.heads[branch]
	for handle != NoHandle {
		node := &cs.nodes[handle]
		if node.Height == height {
			return node, true
		}
		if node.Height < height {
			return nil, false
		}
		handle = node.Parent
	}
	return nil, false
}

// Head returns the current head node of branch, if any header has been
// attached to it yet.
func (cs *ChainStore) Head(branch Branch) (*BlockIndex, bool) {
	handle := cs.heads[branch]
	if handle == NoHandle {
		return nil, false
	}
	return &cs.nodes[handle], true
}

// ReorgChain atomically repoints branch's head to newHead.
func (cs *ChainStore) ReorgChain(branch Branch, newHead hashes.Hash) bool {
	handle, ok := cs.byHash[newHead]
	if !ok {
		return false
	}
	cs.heads[branch] = handle
	return true
}

// AncestorAt walks parent links back from node until it reaches height,
// returning that ancestor. node must be at or above height.
func (cs *ChainStore) AncestorAt(node *BlockIndex, height uint64) (*BlockIndex, bool) {
	handle, ok := cs.byHash[node.Hash]
	if !ok {
		return nil, false
	}
	for handle != NoHandle {
		n := &cs.nodes[handle]
		if n.Height == height {
			return n, true
		}
		if n.Height < height {
			return nil, false
		}
		handle = n.Parent
	}
	return nil, false
}

// ForkPath finds the common ancestor of a and b by walking parent links
// from whichever is taller until both sides meet, and returns that
// ancestor along with the path from it (exclusive) to b (inclusive), in
// increasing-height order -- the blocks a caller must replay to move a
// chain state built on a's branch onto b's.
func (cs *ChainStore) ForkPath(a, b *BlockIndex) (fork *BlockIndex, path []*BlockIndex) {
	ah, bh := cs.byHash[a.Hash], cs.byHash[b.Hash]

	var descending []Handle
	for ah != bh {
		an, bn := &cs.nodes[ah], &cs.nodes[bh]
		switch {
		case an.Height > bn.Height:
			ah = an.Parent
		case bn.Height > an.Height:
			descending = append(descending, bh)
			bh = bn.Parent
		default:
			descending = append(descending, bh)
			ah = an.Parent
			bh = bn.Parent
		}
	}

	path = make([]*BlockIndex, len(descending))
	for i, h := range descending {
		path[len(descending)-1-i] = &cs.nodes[h]
	}
	return &cs.nodes[ah], path
}

// IsOnBranch reports whether hash's node lies on branch (reachable from
// branch's head by walking parent links).
func (cs *ChainStore) IsOnBranch(branch Branch, hash hashes.Hash) bool {
	target, ok := cs.byHash[hash]
	if !ok {
		return false
	}
	handle := cs.heads[branch]
	for handle != NoHandle {
		if handle == target {
			return true
		}
		handle = cs.nodes[handle].Parent
	}
	return false
}
