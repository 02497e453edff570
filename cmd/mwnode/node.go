// mwnode is the node binary: it parses configuration, opens the
// on-disk stores, wires every subsystem package together, and runs
// until told to shut down — following the teacher's kaspad.go/main.go
// split (a wrapper struct holding subsystem handles, atomic
// started/shutdown guards, a constructor that wires everything, and a
// trivial main that just starts and waits for an interrupt).
package main

import (
	"net"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/blockstore"
	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/config"
	"github.com/mw-labs/mwnode/internal/database"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/mw-labs/mwnode/mempool"
	"github.com/mw-labs/mwnode/p2p/connmgr"
	"github.com/mw-labs/mwnode/p2p/pipeline"
	"github.com/mw-labs/mwnode/p2p/protocol"
	"github.com/mw-labs/mwnode/p2p/seed"
	"github.com/mw-labs/mwnode/p2p/sync"
	"github.com/mw-labs/mwnode/txhashset"
	"github.com/pkg/errors"
)

const txHashSetDirname = "txhashset"

// node is a wrapper for every service mwnode runs, mirroring the
// teacher's kaspad struct.
type node struct {
	cfg *config.Config

	db         *database.LevelDB
	blocks     *blockstore.Store
	txHashSet  *txhashset.TxHashSet
	chainState *chain.ChainState
	pool       *mempool.Pool

	connMgr  *connmgr.Manager
	pipeline *pipeline.Pipeline
	syncer   *sync.Syncer
	seeder   *seed.Seeder
	protocol *protocol.Protocol
	listener net.Listener

	genesis hashes.Hash

	started, shutdown int32
}

// newNode opens every on-disk store and wires every subsystem together
// against cfg. It does not yet accept connections or dial seeds; call
// start for that.
func newNode(cfg *config.Config) (*node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}

	db, err := database.Open(filepath.Join(cfg.DataDir, "chain.db"))
	if err != nil {
		return nil, errors.Wrap(err, "opening chain database")
	}

	blocks, err := blockstore.New(db)
	if err != nil {
		return nil, errors.Wrap(err, "opening block store")
	}

	committer := wcrypto.NewSecp256k1Committer()
	verifier := wcrypto.NewSecp256k1Verifier()
	powVerifier := wcrypto.NewTargetPoWVerifier()

	txHashSetDir := filepath.Join(cfg.DataDir, txHashSetDirname)
	txHashSet, err := txhashset.Open(txHashSetDir, db, committer, verifier)
	if err != nil {
		return nil, errors.Wrap(err, "opening txhashset")
	}

	store := chain.NewChainStore()
	genesis := genesisHeader()
	store.AddHeader(genesis, hashes.Zero)
	for _, branch := range []chain.Branch{chain.Confirmed, chain.Candidate, chain.Sync} {
		store.ReorgChain(branch, genesis.Hash())
	}

	chainState := chain.NewChainState(store, blocks, txHashSet, cfg.Net.FinalityDepth, powVerifier)

	pool := mempool.New(committer, verifier)

	connMgr := connmgr.New()
	connMgr.SetBroadcastFanout(cfg.BroadcastFanout)
	connMgr.SetPruneInterval(cfg.PingInterval)

	localTip := func() (height, totalDifficulty uint64) {
		return chainState.GetHeight(chain.Candidate), chainState.GetTotalDifficulty(chain.Candidate)
	}
	syncer := sync.New(connMgr, localTip)

	p := pipeline.New(cfg.PipelineWorkers)

	prot := protocol.New(protocol.Config{
		ChainState:   chainState,
		Blocks:       blocks,
		TxHashSet:    txHashSet,
		Pool:         pool,
		ConnMgr:      connMgr,
		Syncer:       syncer,
		Genesis:      genesis.Hash(),
		TxHashSetDir: txHashSetDir,
	})
	prot.Register(p)

	handshakeFactory := func() *wire.Handshake {
		height, totalDifficulty := localTip()
		return &wire.Handshake{
			Version:         1,
			TotalDifficulty: totalDifficulty,
			Height:          height,
			Genesis:         genesis.Hash(),
		}
	}
	dialer := func(addr string) (net.Conn, error) {
		return net.Dial("tcp", addr)
	}
	seeder := seed.New(cfg.PeerSeeds, cfg.TargetOutboundPeers, dialer, connMgr, handshakeFactory)

	n := &node{
		cfg:        cfg,
		db:         db,
		blocks:     blocks,
		txHashSet:  txHashSet,
		chainState: chainState,
		pool:       pool,
		connMgr:    connMgr,
		pipeline:   p,
		syncer:     syncer,
		seeder:     seeder,
		protocol:   prot,
		genesis:    genesis.Hash(),
	}
	connMgr.SetOnConnect(func(p *peer.Peer) { go n.serve(p) })
	return n, nil
}

// genesisHeader returns the fixed genesis header every mwnode instance
// bootstraps its ChainStore from. A real deployment would pin this to
// the network's agreed-upon genesis block; this node has a single
// hardcoded genesis since it does not implement a network-specific
// genesis registry (see DESIGN.md's "Genesis bootstrap" entry).
func genesisHeader() *chain.Header {
	return &chain.Header{
		Version: 1,
		Height:  0,
	}
}

// start launches every subsystem and begins accepting connections,
// mirroring kaspad's start(): an atomic guard makes it safe to call at
// most once.
func (n *node) start() error {
	if atomic.AddInt32(&n.started, 1) != 1 {
		return nil
	}
	log.Infof("starting mwnode on %s (%s)", n.cfg.ListenAddress, n.cfg.Net.Name)

	listener, err := net.Listen("tcp", n.cfg.ListenAddress)
	if err != nil {
		return errors.Wrap(err, "listening")
	}
	n.listener = listener

	n.connMgr.Start()
	n.syncer.Start()
	n.seeder.Start()
	go n.acceptLoop()

	return nil
}

// stop gracefully shuts down every subsystem, draining workers before
// releasing the stores they hold handles to, mirroring kaspad's stop()
// and the "construction performs acquisition, destruction drains
// workers and flushes stores" design note.
func (n *node) stop() error {
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		log.Infof("mwnode is already shutting down")
		return nil
	}
	log.Warnf("mwnode shutting down")

	if n.listener != nil {
		n.listener.Close()
	}
	n.seeder.Stop()
	n.syncer.Stop()
	n.pipeline.Stop()
	n.connMgr.Stop()

	if err := n.txHashSet.Flush(); err != nil {
		log.Errorf("flushing txhashset: %+v", err)
	}
	if err := n.db.Close(); err != nil {
		log.Errorf("closing database: %+v", err)
	}
	return nil
}

// acceptLoop accepts inbound connections until the listener closes,
// performing the server side of the handshake exchange and registering
// each accepted peer with the connection manager, symmetric to
// p2p/seed's dial side.
func (n *node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return
		}
		if n.connMgr.Count() >= n.cfg.MaxInboundPeers {
			log.Warnf("rejecting %s: at max inbound peers", conn.RemoteAddr())
			conn.Close()
			continue
		}
		go n.acceptPeer(conn)
	}
}

func (n *node) acceptPeer(conn net.Conn) {
	height, totalDifficulty := n.chainState.GetHeight(chain.Candidate), n.chainState.GetTotalDifficulty(chain.Candidate)
	local := &wire.Handshake{
		Version:         1,
		TotalDifficulty: totalDifficulty,
		Height:          height,
		Genesis:         n.genesis,
	}
	if err := wire.WriteMessage(conn, local); err != nil {
		conn.Close()
		return
	}
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		conn.Close()
		return
	}
	theirs, ok := msg.(*wire.Handshake)
	if !ok {
		conn.Close()
		return
	}
	if theirs.Genesis != n.genesis {
		log.Warnf("rejecting %s: genesis mismatch", conn.RemoteAddr())
		conn.Close()
		return
	}

	p := peer.New(conn, true)
	if err := p.CompleteHandshake(theirs); err != nil {
		p.Disconnect()
		return
	}
	p.Start()
	n.connMgr.AddConnection(p)
	log.Infof("accepted inbound peer %s", p)
}

// serve reads messages from p until it disconnects, submitting each to
// the pipeline for dispatch. One goroutine per connection does the
// blocking read; the pipeline's own worker pool bounds how much
// concurrent handler work that fans out into.
func (n *node) serve(p *peer.Peer) {
	for {
		msg, err := p.ReadMessage()
		if err != nil {
			p.Disconnect()
			return
		}
		if !n.pipeline.Submit(p, msg) {
			return
		}
	}
}
