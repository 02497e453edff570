// Package seed implements the seeder thread: it dials the configured
// bootstrap peer addresses until the node holds its target number of
// outgoing connections, following the shape of the teacher's
// connmanager package (a ticking loop that reconciles a live-connection
// set against a target count, dialing more when short) but scaled down
// to a flat address list instead of an address-manager-backed pool.
package seed

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/mw-labs/mwnode/p2p/connmgr"
	"github.com/pkg/errors"
)

var log = logs.NopLogger("SEED")

// SetLogger installs the subsystem logger used by the seed package.
func SetLogger(l *logs.Logger) {
	log = l
}

// seedInterval is how often the seeder reconciles its outgoing
// connection count against its target, mirroring the teacher's
// connectionsLoopInterval.
const seedInterval = 30 * time.Second

// Dialer opens a connection to a peer address. Production callers pass
// net.Dial; tests pass something backed by net.Pipe.
type Dialer func(addr string) (net.Conn, error)

// HandshakeFactory builds the local Handshake message sent to a newly
// dialed peer, capturing the current local height/difficulty/genesis
// at the moment of the call.
type HandshakeFactory func() *wire.Handshake

// Seeder owns the set of outgoing connections this node has dialed on
// its own initiative (as opposed to inbound connections accepted by a
// listener), reconciling them against a target count by dialing
// addresses from a fixed seed list.
type Seeder struct {
	seeds            []string
	target           int
	dialer           Dialer
	connMgr          *connmgr.Manager
	handshakeFactory HandshakeFactory

	mu       sync.Mutex
	outbound map[string]*peer.Peer

	quit chan struct{}
	wg   sync.WaitGroup
}

// New returns a Seeder that dials addresses from seeds until it holds
// target outgoing connections, registering each successfully
// handshaken peer with connMgr.
func New(seeds []string, target int, dialer Dialer, connMgr *connmgr.Manager, handshakeFactory HandshakeFactory) *Seeder {
	return &Seeder{
		seeds:            seeds,
		target:           target,
		dialer:           dialer,
		connMgr:          connMgr,
		handshakeFactory: handshakeFactory,
		outbound:         make(map[string]*peer.Peer),
		quit:             make(chan struct{}),
	}
}

// Start launches the seeder's reconciliation loop, running one pass
// immediately rather than waiting for the first tick.
func (s *Seeder) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop terminates the reconciliation loop. It does not disconnect
// connections already handed off to the connection manager.
func (s *Seeder) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Seeder) run() {
	defer s.wg.Done()
	s.reconcile()

	ticker := time.NewTicker(seedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.reconcile()
		}
	}
}

// reconcile drops dead outgoing connections from the tracked set, then
// dials fresh seed addresses until the target is met or every address
// has been tried.
func (s *Seeder) reconcile() {
	s.mu.Lock()
	for addr, p := range s.outbound {
		if p.Disconnected() {
			delete(s.outbound, addr)
		}
	}
	need := s.target - len(s.outbound)
	tried := make(map[string]struct{}, len(s.outbound))
	for addr := range s.outbound {
		tried[addr] = struct{}{}
	}
	s.mu.Unlock()

	if need <= 0 {
		return
	}

	for _, addr := range shuffledAddresses(s.seeds) {
		if need <= 0 {
			return
		}
		if _, alreadyConnected := tried[addr]; alreadyConnected {
			continue
		}
		tried[addr] = struct{}{}

		p, err := s.dialAndHandshake(addr)
		if err != nil {
			log.Debugf("dialing seed %s: %v", addr, err)
			continue
		}

		s.mu.Lock()
		s.outbound[addr] = p
		s.mu.Unlock()
		s.connMgr.AddConnection(p)
		need--
	}

	if need > 0 {
		log.Warnf("no more seed addresses available, %d short of target", need)
	}
}

func (s *Seeder) dialAndHandshake(addr string) (*peer.Peer, error) {
	conn, err := s.dialer(addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	if err := wire.WriteMessage(conn, s.handshakeFactory()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send handshake")
	}
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "read handshake")
	}
	theirs, ok := msg.(*wire.Handshake)
	if !ok {
		conn.Close()
		return nil, errors.Errorf("expected Handshake, got %T", msg)
	}

	p := peer.New(conn, false)
	if err := p.CompleteHandshake(theirs); err != nil {
		p.Disconnect()
		return nil, err
	}
	p.Start()
	log.Infof("connected to seed peer %s", p)
	return p, nil
}

// shuffledAddresses returns a random permutation of addrs so repeated
// reconcile passes don't always retry the same prefix of the list
// first.
func shuffledAddresses(addrs []string) []string {
	shuffled := make([]string, len(addrs))
	copy(shuffled, addrs)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}
