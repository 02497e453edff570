// Package peer wraps one net.Conn with the handshake state, ban score and
// send queue a connected node needs, following the shape of the
// teacher's peer.Peer (atomic counters for wire stats, a flags mutex
// guarding negotiated state, a buffered output queue drained by its own
// goroutine) scaled down to this node's small, fixed message set.
package peer

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/pkg/errors"
)

var log = logs.NopLogger("PEER")

// SetLogger installs the subsystem logger used by the peer package.
func SetLogger(l *logs.Logger) {
	log = l
}

const outputQueueSize = 50

// Peer is one connected, possibly-handshaken remote node.
type Peer struct {
	// Accessed atomically.
	lastRecv     int64 // unix nanoseconds
	lastSend     int64
	banScore     int32
	disconnected int32

	conn    net.Conn
	addr    string
	inbound bool

	flagsMtx        sync.Mutex
	handshakeDone   bool
	version         uint16
	capabilities    uint32
	totalDifficulty uint64
	height          uint64
	genesis         hashes.Hash

	outputQueue chan wire.Message
	quit        chan struct{}
	closeOnce   sync.Once
}

// New wraps conn as a not-yet-handshaken peer. inbound is true for a
// connection this node accepted rather than dialed.
func New(conn net.Conn, inbound bool) *Peer {
	return &Peer{
		conn:        conn,
		addr:        conn.RemoteAddr().String(),
		inbound:     inbound,
		outputQueue: make(chan wire.Message, outputQueueSize),
		quit:        make(chan struct{}),
	}
}

// String returns the peer's address and direction, for logging.
func (p *Peer) String() string {
	direction := "outbound"
	if p.inbound {
		direction = "inbound"
	}
	return fmt.Sprintf("%s (%s)", p.addr, direction)
}

// Addr returns the remote address this peer is connected to.
func (p *Peer) Addr() string { return p.addr }

// Inbound reports whether this node accepted the connection rather than
// dialed it.
func (p *Peer) Inbound() bool { return p.inbound }

// Start launches the peer's output pump, which serializes writes to the
// underlying connection so callers never need to synchronize Send calls
// themselves.
func (p *Peer) Start() {
	go p.outputHandler()
}

func (p *Peer) outputHandler() {
	for {
		select {
		case msg := <-p.outputQueue:
			if err := p.writeMessage(msg); err != nil {
				log.Warnf("%s: write failed, disconnecting: %v", p, err)
				p.Disconnect()
				return
			}
		case <-p.quit:
			return
		}
	}
}

func (p *Peer) writeMessage(msg wire.Message) error {
	if err := wire.WriteMessage(p.conn, msg); err != nil {
		return err
	}
	atomic.StoreInt64(&p.lastSend, time.Now().UnixNano())
	return nil
}

// Send queues msg for delivery. It drops msg if the peer has already
// disconnected; if the output queue is saturated by a slow connection, it
// logs a warning, drops msg and disconnects the peer.
func (p *Peer) Send(msg wire.Message) {
	select {
	case p.outputQueue <- msg:
	case <-p.quit:
	default:
		log.Warnf("%s: output queue full, disconnecting", p)
		p.Disconnect()
	}
}

// ReadMessage blocks for the next framed message from the peer and
// records the read for idle-timeout bookkeeping.
func (p *Peer) ReadMessage() (wire.Message, error) {
	msg, err := wire.ReadMessage(p.conn)
	if err != nil {
		return nil, err
	}
	atomic.StoreInt64(&p.lastRecv, time.Now().UnixNano())
	return msg, nil
}

// LastRecv returns the time of the last successfully read message.
func (p *Peer) LastRecv() time.Time {
	return time.Unix(0, atomic.LoadInt64(&p.lastRecv))
}

// Disconnect closes the underlying connection and stops the output
// pump. Safe to call more than once or concurrently.
func (p *Peer) Disconnect() {
	p.closeOnce.Do(func() {
		atomic.StoreInt32(&p.disconnected, 1)
		close(p.quit)
		_ = p.conn.Close()
	})
}

// Disconnected reports whether Disconnect has been called.
func (p *Peer) Disconnected() bool {
	return atomic.LoadInt32(&p.disconnected) == 1
}

// CompleteHandshake records the fields carried by the remote peer's
// Handshake message. It is an error to call this twice.
func (p *Peer) CompleteHandshake(h *wire.Handshake) error {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	if p.handshakeDone {
		return errors.New("handshake already completed")
	}
	p.handshakeDone = true
	p.version = h.Version
	p.capabilities = h.Capabilities
	p.totalDifficulty = h.TotalDifficulty
	p.height = h.Height
	p.genesis = h.Genesis
	return nil
}

// HandshakeDone reports whether CompleteHandshake has succeeded.
func (p *Peer) HandshakeDone() bool {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.handshakeDone
}

// UpdateTip records a fresher total difficulty and height, as reported
// by a Ping, Pong or Handshake message.
func (p *Peer) UpdateTip(totalDifficulty, height uint64) {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	p.totalDifficulty = totalDifficulty
	p.height = height
}

// TotalDifficulty returns the peer's last-known total difficulty.
func (p *Peer) TotalDifficulty() uint64 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.totalDifficulty
}

// Height returns the peer's last-known height.
func (p *Peer) Height() uint64 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.height
}

// Genesis returns the genesis hash the peer reported during handshake.
func (p *Peer) Genesis() hashes.Hash {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.genesis
}

// AddBanScore increments the peer's ban score by delta and reports
// whether it has now crossed MaxBanScore.
func (p *Peer) AddBanScore(delta int32, reason string) bool {
	score := atomic.AddInt32(&p.banScore, delta)
	log.Debugf("%s: ban score %d (+%d: %s)", p, score, delta, reason)
	return score >= MaxBanScore
}

// BanScore returns the peer's current accumulated ban score.
func (p *Peer) BanScore() int32 {
	return atomic.LoadInt32(&p.banScore)
}
