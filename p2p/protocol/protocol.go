// Package protocol wires the node's domain logic — ChainState, the
// BlockStore, the TxHashSet, the mempool — to inbound wire messages,
// following kaspad's protocol.Init(netAdapter, addressManager, dag)
// shape: one long-lived value holding every subsystem handle, whose
// constructor registers a handler per message kind onto the pipeline
// instead of kaspad's per-flow goroutines (this node's small, fixed
// message set doesn't need kaspad's flow-negotiation machinery).
package protocol

import (
	"sync"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/blockstore"
	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/mw-labs/mwnode/mempool"
	"github.com/mw-labs/mwnode/p2p/connmgr"
	"github.com/mw-labs/mwnode/p2p/pipeline"
	syncpkg "github.com/mw-labs/mwnode/p2p/sync"
	"github.com/mw-labs/mwnode/txhashset"
)

var log = logs.NopLogger("PROT")

// SetLogger installs the subsystem logger used by the protocol package.
func SetLogger(l *logs.Logger) {
	log = l
}

// Protocol answers and drives every inbound message kind the node's
// wire format defines, against a single node's chain state.
type Protocol struct {
	chainState *chain.ChainState
	blocks     *blockstore.Store
	txHashSet  *txhashset.TxHashSet
	pool       *mempool.Pool
	connMgr    *connmgr.Manager
	syncer     *syncpkg.Syncer
	genesis    hashes.Hash

	txHashSetDir string

	mu       sync.Mutex
	assembly *archiveAssembly
}

// Config bundles the subsystem handles a Protocol dispatches against.
type Config struct {
	ChainState   *chain.ChainState
	Blocks       *blockstore.Store
	TxHashSet    *txhashset.TxHashSet
	Pool         *mempool.Pool
	ConnMgr      *connmgr.Manager
	Syncer       *syncpkg.Syncer
	Genesis      hashes.Hash
	TxHashSetDir string
}

// New returns a Protocol ready to Register against a Pipeline.
func New(cfg Config) *Protocol {
	return &Protocol{
		chainState:   cfg.ChainState,
		blocks:       cfg.Blocks,
		txHashSet:    cfg.TxHashSet,
		pool:         cfg.Pool,
		connMgr:      cfg.ConnMgr,
		syncer:       cfg.Syncer,
		genesis:      cfg.Genesis,
		txHashSetDir: cfg.TxHashSetDir,
	}
}

// Register installs every message handler this Protocol implements onto p.
func (pr *Protocol) Register(p *pipeline.Pipeline) {
	p.Handle(wire.KindPing, pr.handlePing)
	p.Handle(wire.KindPong, pr.handlePong)
	p.Handle(wire.KindGetPeerAddresses, pr.handleGetPeerAddresses)
	p.Handle(wire.KindPeerAddresses, pr.handlePeerAddresses)
	p.Handle(wire.KindGetHeaders, pr.handleGetHeaders)
	p.Handle(wire.KindHeaders, pr.handleHeaders)
	p.Handle(wire.KindGetBlock, pr.handleGetBlock)
	p.Handle(wire.KindBlock, pr.handleBlock)
	p.Handle(wire.KindTransaction, pr.handleTransaction)
	p.Handle(wire.KindTxHashSetRequest, pr.handleTxHashSetRequest)
	p.Handle(wire.KindTxHashSetArchive, pr.handleTxHashSetArchive)
}

// LocalTip reports (height, totalDifficulty) on the Candidate branch,
// the header-validated chain that may lead Confirmed during sync —
// suitable both as a sync.LocalTip and for the Handshake/Ping fields
// this node advertises to peers.
func (pr *Protocol) LocalTip() (height, totalDifficulty uint64) {
	height = pr.chainState.GetHeight(chain.Candidate)
	totalDifficulty = pr.chainState.GetTotalDifficulty(chain.Candidate)
	return height, totalDifficulty
}

func (pr *Protocol) handlePing(source *peer.Peer, msg wire.Message) error {
	ping := msg.(*wire.Ping)
	source.UpdateTip(ping.TotalDifficulty, ping.Height)
	height, totalDifficulty := pr.LocalTip()
	source.Send(&wire.Pong{TotalDifficulty: totalDifficulty, Height: height})
	return nil
}

func (pr *Protocol) handlePong(source *peer.Peer, msg wire.Message) error {
	pong := msg.(*wire.Pong)
	source.UpdateTip(pong.TotalDifficulty, pong.Height)
	return nil
}

// handleGetPeerAddresses always answers with an empty list: this node
// has no address manager, so it only ever knows the peers it is
// directly connected to and its configured seeds, neither of which are
// safe to republish (configured seeds may be private infrastructure,
// and live connections aren't addresses a third party could dial).
func (pr *Protocol) handleGetPeerAddresses(source *peer.Peer, msg wire.Message) error {
	source.Send(&wire.PeerAddresses{})
	return nil
}

func (pr *Protocol) handlePeerAddresses(source *peer.Peer, msg wire.Message) error {
	return nil
}
