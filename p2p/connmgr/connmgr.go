// Package connmgr owns the set of live peer connections: most-work-peer
// selection, targeted and broadcast sends, and periodic pruning of dead
// or banned peers, following the teacher's retrieved ConnectionManager
// design (a reader-writer-locked connection vector plus a dedicated
// broadcast worker draining its own queue).
package connmgr

import (
	"math/rand"
	"sync"
	"time"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/internal/logs"
)

var log = logs.NopLogger("CMGR")

// SetLogger installs the subsystem logger used by the connmgr package.
func SetLogger(l *logs.Logger) {
	log = l
}

// defaultBroadcastFanout caps how many peers (excluding the source) a
// single broadcast reaches, per the component design's "typically 8
// peers". Overridable via SetBroadcastFanout, fed from config.
const defaultBroadcastFanout = 8

// defaultPruneInterval is how often PruneConnections pings live
// connections and drops dead or banned ones. Overridable via
// SetPruneInterval, fed from config.
const defaultPruneInterval = 10 * time.Second

// broadcastRequest is one message queued for fanout to every connection
// but the one that sent it.
type broadcastRequest struct {
	msg    wire.Message
	source *peer.Peer
}

// Manager owns the live connection set, identified by pointer rather
// than address: a peer's remote address is not guaranteed unique (two
// connections behind the same NAT share one), so connection identity is
// the *peer.Peer itself, matching the Connection* pointers the original
// ConnectionManager keeps in its vector.
type Manager struct {
	mu          sync.RWMutex
	connections []*peer.Peer
	banned      map[*peer.Peer]struct{}

	broadcastMu     sync.Mutex
	broadcastCh     chan struct{}
	queue           []broadcastRequest
	broadcastFanout int

	pruneInterval time.Duration
	lastPing      time.Time
	quit          chan struct{}
	wg            sync.WaitGroup

	onConnect func(*peer.Peer)
}

// New returns an empty connection manager. Call Start to launch its
// broadcast worker.
func New() *Manager {
	return &Manager{
		banned:          make(map[*peer.Peer]struct{}),
		broadcastCh:     make(chan struct{}, 1),
		broadcastFanout: defaultBroadcastFanout,
		pruneInterval:   defaultPruneInterval,
		quit:            make(chan struct{}),
	}
}

// SetBroadcastFanout overrides the default broadcast fanout, ignoring
// non-positive values.
func (m *Manager) SetBroadcastFanout(n int) {
	if n > 0 {
		m.broadcastFanout = n
	}
}

// SetPruneInterval overrides the default ping/prune cadence, ignoring
// non-positive values.
func (m *Manager) SetPruneInterval(d time.Duration) {
	if d > 0 {
		m.pruneInterval = d
	}
}

// Start launches the broadcast worker.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.broadcastWorker()
}

// Stop terminates the broadcast worker and disconnects every connection.
func (m *Manager) Stop() {
	close(m.quit)
	m.wg.Wait()
	m.PruneConnections(false, 0, 0)
}

// SetOnConnect installs a callback invoked synchronously, outside the
// manager's lock, every time AddConnection registers a new peer — the
// hook this manager's callers use to launch a per-connection read loop,
// following the shape of the teacher's netadapter.NewConnectionHandler.
func (m *Manager) SetOnConnect(f func(*peer.Peer)) {
	m.onConnect = f
}

// AddConnection registers p as live.
func (m *Manager) AddConnection(p *peer.Peer) {
	m.mu.Lock()
	m.connections = append(m.connections, p)
	m.mu.Unlock()

	if m.onConnect != nil {
		m.onConnect(p)
	}
}

// BanConnection marks p for removal on the next PruneConnections pass.
func (m *Manager) BanConnection(p *peer.Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned[p] = struct{}{}
}

// Count returns the number of currently-tracked connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// SendToPeer sends msg to p if it is still a tracked connection.
func (m *Manager) SendToPeer(p *peer.Peer, msg wire.Message) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.connections {
		if c == p {
			p.Send(msg)
			return true
		}
	}
	return false
}

// SendToMostWorkPeer sends msg to the most-work peer (see
// MostWorkPeer), returning it, or nil if there is no eligible peer.
func (m *Manager) SendToMostWorkPeer(msg wire.Message) *peer.Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := mostWorkPeer(m.connections, rand.Int63)
	if p != nil {
		p.Send(msg)
	}
	return p
}

// Broadcast enqueues msg for delivery to every connection except source
// (nil for messages originating locally).
func (m *Manager) Broadcast(msg wire.Message, source *peer.Peer) {
	m.broadcastMu.Lock()
	m.queue = append(m.queue, broadcastRequest{msg: msg, source: source})
	m.broadcastMu.Unlock()

	select {
	case m.broadcastCh <- struct{}{}:
	default:
	}
}

func (m *Manager) broadcastWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.quit:
			return
		case <-m.broadcastCh:
			m.drainBroadcastQueue()
		}
	}
}

func (m *Manager) drainBroadcastQueue() {
	for {
		m.broadcastMu.Lock()
		if len(m.queue) == 0 {
			m.broadcastMu.Unlock()
			return
		}
		req := m.queue[0]
		m.queue = m.queue[1:]
		m.broadcastMu.Unlock()

		m.fanout(req)
	}
}

func (m *Manager) fanout(req broadcastRequest) {
	m.mu.RLock()
	targets := make([]*peer.Peer, 0, len(m.connections))
	for _, p := range m.connections {
		if p == req.source {
			continue
		}
		targets = append(targets, p)
	}
	m.mu.RUnlock()

	if len(targets) > m.broadcastFanout {
		rand.Shuffle(len(targets), func(i, j int) {
			targets[i], targets[j] = targets[j], targets[i]
		})
		targets = targets[:m.broadcastFanout]
	}
	for _, p := range targets {
		p.Send(req.msg)
	}
}

// MostWorkPeer returns the connection with the highest total difficulty
// among peers with a known (> 0) height, breaking ties by height and
// then uniformly at random, or nil if no connection has a known height.
func (m *Manager) MostWorkPeer() *peer.Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mostWorkPeer(m.connections, rand.Int63)
}

func mostWorkPeer(connections []*peer.Peer, randInt63 func() int64) *peer.Peer {
	var candidates []*peer.Peer
	var bestDifficulty, bestHeight uint64

	for _, p := range connections {
		height := p.Height()
		if height == 0 {
			continue
		}
		difficulty := p.TotalDifficulty()

		switch {
		case difficulty > bestDifficulty:
			bestDifficulty, bestHeight = difficulty, height
			candidates = candidates[:0]
			candidates = append(candidates, p)
		case difficulty == bestDifficulty && height > bestHeight:
			bestHeight = height
			candidates = candidates[:0]
			candidates = append(candidates, p)
		case difficulty == bestDifficulty && height == bestHeight:
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return nil
	}
	return candidates[int(randInt63()%int64(len(candidates)))]
}

// PruneConnections drops every banned or already-disconnected
// connection. When inactiveOnly is false it drops every other
// connection too (used on shutdown, to close out the whole set); when
// true, surviving connections are pinged with the local chain tip
// (totalDifficulty, height) at most once per pruneInterval.
func (m *Manager) PruneConnections(inactiveOnly bool, totalDifficulty, height uint64) {
	m.mu.Lock()
	var toClose []*peer.Peer
	var survivors []*peer.Peer
	ping := false
	if time.Since(m.lastPing) >= m.pruneInterval {
		m.lastPing = time.Now()
		ping = true
	}

	for _, p := range m.connections {
		_, isBanned := m.banned[p]
		if isBanned || p.Disconnected() || !inactiveOnly {
			toClose = append(toClose, p)
			delete(m.banned, p)
			continue
		}
		survivors = append(survivors, p)
		if ping {
			p.Send(&wire.Ping{TotalDifficulty: totalDifficulty, Height: height})
		}
	}
	m.connections = survivors
	m.mu.Unlock()

	for _, p := range toClose {
		log.Infof("pruning connection %s", p)
		p.Disconnect()
	}
}
