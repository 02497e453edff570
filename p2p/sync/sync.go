// Package sync implements the periodic controller that advances the
// local chain through sync phases by comparing local height and total
// difficulty against the network's most-work peer, following the
// same ConnectionManager-driven design the p2p/connmgr package was
// grounded on: a single goroutine ticks at a fixed interval and moves
// the state machine forward as progress is reported in by the caller.
package sync

import (
	"sync"
	"time"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/mw-labs/mwnode/p2p/connmgr"
)

var log = logs.NopLogger("SYNC")

// SetLogger installs the subsystem logger used by the sync package.
func SetLogger(l *logs.Logger) {
	log = l
}

// tickInterval is how often the controller re-evaluates whether to
// enter or leave WAITING_FOR_PEERS, or to resume header sync from
// NOT_SYNCING.
const tickInterval = 2 * time.Second

// LocalTip reports the local chain's current height and accumulated
// total difficulty, the two quantities the controller compares
// against each connected peer's advertised tip.
type LocalTip func() (height, totalDifficulty uint64)

// Syncer drives the node through its sync phases. It does not itself
// fetch headers, TxHashSet chunks, or blocks; callers that are doing
// that work report completion or failure through the Notify* methods,
// and the controller's own tick only handles the transitions that
// depend on whether a usable peer currently exists: in and out of
// WAITING_FOR_PEERS, and from NOT_SYNCING back to SYNCING_HEADERS.
type Syncer struct {
	mu    sync.Mutex
	phase Phase

	connMgr  *connmgr.Manager
	localTip LocalTip

	peer *peer.Peer

	quit chan struct{}
	wg   sync.WaitGroup
}

// New returns a Syncer in WAITING_FOR_PEERS, using connMgr to find the
// network's most-work peer and localTip to read the local chain's tip.
func New(connMgr *connmgr.Manager, localTip LocalTip) *Syncer {
	return &Syncer{
		phase:    PhaseWaitingForPeers,
		connMgr:  connMgr,
		localTip: localTip,
		quit:     make(chan struct{}),
	}
}

// Start launches the controller's tick loop.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop terminates the tick loop.
func (s *Syncer) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Syncer) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Syncer) tick() {
	best := s.connMgr.MostWorkPeer()
	_, localDifficulty := s.localTip()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseWaitingForPeers:
		if best != nil && best.TotalDifficulty() > localDifficulty {
			log.Infof("found peer %s ahead by work, beginning header sync", best)
			s.peer = best
			s.phase = PhaseSyncingHeaders
		}
	case PhaseNotSyncing:
		switch {
		case best == nil:
			s.phase = PhaseWaitingForPeers
		case best.TotalDifficulty() > localDifficulty:
			log.Infof("peer %s pulled ahead by work, resuming header sync", best)
			s.peer = best
			s.phase = PhaseSyncingHeaders
		}
	case PhaseSyncingHeaders, PhaseSyncingTxHashSet, PhaseProcessingTxHashSet, PhaseSyncingBlocks:
		if s.peer != nil && s.peer.Disconnected() {
			log.Warnf("sync peer %s disconnected mid-sync, returning to WAITING_FOR_PEERS", s.peer)
			s.peer = nil
			s.phase = PhaseWaitingForPeers
		}
	}
}

// Phase returns the controller's current phase.
func (s *Syncer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Peer returns the peer the controller is currently syncing against,
// or nil when not mid-sync.
func (s *Syncer) Peer() *peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// transition moves the controller from "from" to "to", logging and
// refusing the move if the controller is not currently in "from" —
// a stale completion notification from an old sync attempt should not
// be able to knock the state machine out of whatever phase it has
// since moved on to.
func (s *Syncer) transition(from, to Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != from {
		log.Debugf("ignoring %s->%s transition while in %s", from, to, s.phase)
		return false
	}
	s.phase = to
	log.Infof("sync phase %s -> %s", from, to)
	return true
}

// NotifyHeadersSynced reports that the local header chain has caught
// up to the sync peer's advertised height, advancing from
// SYNCING_HEADERS to SYNCING_TXHASHSET.
func (s *Syncer) NotifyHeadersSynced() {
	s.transition(PhaseSyncingHeaders, PhaseSyncingTxHashSet)
}

// NotifyTxHashSetReceived reports that every chunk of the TxHashSet
// archive has arrived, advancing from SYNCING_TXHASHSET to
// PROCESSING_TXHASHSET.
func (s *Syncer) NotifyTxHashSetReceived() {
	s.transition(PhaseSyncingTxHashSet, PhaseProcessingTxHashSet)
}

// NotifyTxHashSetValidated reports that the received TxHashSet
// rebuilt and validated against the synced header chain, advancing
// from PROCESSING_TXHASHSET to SYNCING_BLOCKS.
func (s *Syncer) NotifyTxHashSetValidated() {
	s.transition(PhaseProcessingTxHashSet, PhaseSyncingBlocks)
}

// NotifySyncFailed reports that the sync peer sent something invalid —
// a bad header, a TxHashSet that fails validation, an unrequested or
// malformed block — at any point during SYNCING_HEADERS,
// SYNCING_TXHASHSET, PROCESSING_TXHASHSET or SYNCING_BLOCKS. It
// unconditionally returns the controller to WAITING_FOR_PEERS and bans
// the offending peer so the next tick looks for a different one.
func (s *Syncer) NotifySyncFailed(offender *peer.Peer) {
	s.mu.Lock()
	s.phase = PhaseWaitingForPeers
	s.peer = nil
	s.mu.Unlock()

	log.Warnf("sync with %s aborted, banning", offender)
	if offender != nil {
		s.connMgr.BanConnection(offender)
	}
}

// NotifyTxHashSetFailed reports that the TxHashSet received from the
// sync peer failed validation. It is an alias for NotifySyncFailed kept
// for call sites specifically reporting TxHashSet validation failure.
func (s *Syncer) NotifyTxHashSetFailed(offender *peer.Peer) {
	s.NotifySyncFailed(offender)
}

// NotifyBlocksSynced reports that every block since the validated
// TxHashSet's height has been fetched and applied, advancing from
// SYNCING_BLOCKS to NOT_SYNCING.
func (s *Syncer) NotifyBlocksSynced() {
	if s.transition(PhaseSyncingBlocks, PhaseNotSyncing) {
		s.mu.Lock()
		s.peer = nil
		s.mu.Unlock()
	}
}
