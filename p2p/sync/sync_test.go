package sync

import (
	"net"
	"testing"
	"time"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/p2p/connmgr"
)

func newTestPeer(t *testing.T, totalDifficulty, height uint64) *peer.Peer {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	p := peer.New(server, true)
	if err := p.CompleteHandshake(&wire.Handshake{}); err != nil {
		t.Fatalf("CompleteHandshake: %v", err)
	}
	p.UpdateTip(totalDifficulty, height)
	return p
}

func TestSyncerEntersHeaderSyncWhenPeerAhead(t *testing.T) {
	m := connmgr.New()
	ahead := newTestPeer(t, 100, 10)
	m.AddConnection(ahead)

	s := New(m, func() (uint64, uint64) { return 0, 10 })
	s.tick()

	if s.Phase() != PhaseSyncingHeaders {
		t.Fatalf("Phase() = %s, want SYNCING_HEADERS", s.Phase())
	}
	if s.Peer() != ahead {
		t.Fatalf("Peer() did not record the most-work peer")
	}
}

func TestSyncerStaysWaitingWithoutAheadPeer(t *testing.T) {
	m := connmgr.New()
	behind := newTestPeer(t, 5, 1)
	m.AddConnection(behind)

	s := New(m, func() (uint64, uint64) { return 1, 50 })
	s.tick()

	if s.Phase() != PhaseWaitingForPeers {
		t.Fatalf("Phase() = %s, want WAITING_FOR_PEERS", s.Phase())
	}
}

func TestSyncerFullHappyPathTransitions(t *testing.T) {
	m := connmgr.New()
	ahead := newTestPeer(t, 100, 10)
	m.AddConnection(ahead)

	s := New(m, func() (uint64, uint64) { return 0, 10 })
	s.tick()
	if s.Phase() != PhaseSyncingHeaders {
		t.Fatalf("Phase() = %s, want SYNCING_HEADERS", s.Phase())
	}

	s.NotifyHeadersSynced()
	if s.Phase() != PhaseSyncingTxHashSet {
		t.Fatalf("Phase() = %s, want SYNCING_TXHASHSET", s.Phase())
	}

	s.NotifyTxHashSetReceived()
	if s.Phase() != PhaseProcessingTxHashSet {
		t.Fatalf("Phase() = %s, want PROCESSING_TXHASHSET", s.Phase())
	}

	s.NotifyTxHashSetValidated()
	if s.Phase() != PhaseSyncingBlocks {
		t.Fatalf("Phase() = %s, want SYNCING_BLOCKS", s.Phase())
	}

	s.NotifyBlocksSynced()
	if s.Phase() != PhaseNotSyncing {
		t.Fatalf("Phase() = %s, want NOT_SYNCING", s.Phase())
	}
	if s.Peer() != nil {
		t.Fatalf("Peer() should be cleared once NOT_SYNCING")
	}
}

func TestSyncerTxHashSetFailureReturnsToWaitingAndBans(t *testing.T) {
	m := connmgr.New()
	offender := newTestPeer(t, 100, 10)
	m.AddConnection(offender)

	s := New(m, func() (uint64, uint64) { return 0, 10 })
	s.tick()
	s.NotifyHeadersSynced()

	s.NotifyTxHashSetFailed(offender)

	if s.Phase() != PhaseWaitingForPeers {
		t.Fatalf("Phase() = %s, want WAITING_FOR_PEERS after a failed txhashset", s.Phase())
	}
	if s.Peer() != nil {
		t.Fatalf("Peer() should be cleared after a failed txhashset")
	}

	m.PruneConnections(true, 0, 0)
	if m.Count() != 0 {
		t.Fatalf("offending peer was not removed by the subsequent prune")
	}
}

func TestSyncerIgnoresStaleNotify(t *testing.T) {
	m := connmgr.New()
	s := New(m, func() (uint64, uint64) { return 0, 0 })

	// Still WAITING_FOR_PEERS: a stale "headers synced" from a previous
	// attempt must not be able to jump the phase forward.
	s.NotifyHeadersSynced()
	if s.Phase() != PhaseWaitingForPeers {
		t.Fatalf("Phase() = %s, want WAITING_FOR_PEERS", s.Phase())
	}
}

func TestSyncerReturnsToWaitingWhenPeerDisconnectsMidSync(t *testing.T) {
	m := connmgr.New()
	ahead := newTestPeer(t, 100, 10)
	m.AddConnection(ahead)

	s := New(m, func() (uint64, uint64) { return 0, 10 })
	s.tick()
	if s.Phase() != PhaseSyncingHeaders {
		t.Fatalf("Phase() = %s, want SYNCING_HEADERS", s.Phase())
	}

	ahead.Disconnect()
	s.tick()

	if s.Phase() != PhaseWaitingForPeers {
		t.Fatalf("Phase() = %s, want WAITING_FOR_PEERS after sync peer disconnect", s.Phase())
	}
}

func TestSyncerStartStop(t *testing.T) {
	m := connmgr.New()
	s := New(m, func() (uint64, uint64) { return 0, 0 })
	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Stop()
}
