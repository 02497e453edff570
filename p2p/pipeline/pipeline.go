// Package pipeline implements the inbound message worker pool: decoded
// messages tagged by source connection are dispatched to a handler
// registered for that message's kind, with backpressure enforced per
// connection rather than globally, following the shape of the
// teacher's netadapter/router package (a bounded per-route channel
// with an on-capacity-reached callback) generalized to a small shared
// pool of workers instead of one unbounded goroutine per route.
package pipeline

import (
	"sync"

	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/internal/logs"
)

var log = logs.NopLogger("PIPE")

// SetLogger installs the subsystem logger used by the pipeline package.
func SetLogger(l *logs.Logger) {
	log = l
}

// maxConnectionQueueDepth bounds how many not-yet-processed messages a
// single connection may have queued before it is considered slow,
// matching the teacher's Route.maxMessages bound.
const maxConnectionQueueDepth = 100

// Handler processes one decoded message from source. A returned error
// is logged; it does not by itself disconnect the connection.
type Handler func(source *peer.Peer, msg wire.Message) error

// connQueue is one connection's pending-message FIFO. At most one
// drain goroutine owns a given connQueue at a time (active), which is
// what keeps a single connection's messages processed in arrival
// order even though many connections share the worker pool.
type connQueue struct {
	pending []wire.Message
	active  bool
}

// Pipeline dispatches decoded messages to per-kind handlers across a
// bounded number of concurrently-draining connections.
type Pipeline struct {
	handlersMu sync.RWMutex
	handlers   map[wire.Kind]Handler

	sem chan struct{}

	connsMu sync.Mutex
	conns   map[*peer.Peer]*connQueue

	quit chan struct{}
	wg   sync.WaitGroup
}

// New returns a Pipeline that drains at most workers connections'
// queues concurrently.
func New(workers int) *Pipeline {
	return &Pipeline{
		handlers: make(map[wire.Kind]Handler),
		sem:      make(chan struct{}, workers),
		conns:    make(map[*peer.Peer]*connQueue),
		quit:     make(chan struct{}),
	}
}

// Handle registers h as the handler for messages of kind. Registering
// a second handler for the same kind replaces the first.
func (p *Pipeline) Handle(kind wire.Kind, h Handler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[kind] = h
}

// Stop signals every drain goroutine to finish its in-flight message
// and stop, then waits for them to exit.
func (p *Pipeline) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Submit enqueues msg, tagged by its source connection, for dispatch.
// If source's queue is already at maxConnectionQueueDepth, the
// connection is marked slow and disconnected instead, and Submit
// returns false.
func (p *Pipeline) Submit(source *peer.Peer, msg wire.Message) bool {
	p.connsMu.Lock()
	q, ok := p.conns[source]
	if !ok {
		q = &connQueue{}
		p.conns[source] = q
	}
	if len(q.pending) >= maxConnectionQueueDepth {
		p.connsMu.Unlock()
		log.Warnf("%s: pipeline queue exceeded bound, marking connection slow", source)
		source.Disconnect()
		return false
	}

	q.pending = append(q.pending, msg)
	needsDrainer := !q.active
	if needsDrainer {
		q.active = true
	}
	p.connsMu.Unlock()

	if needsDrainer {
		p.wg.Add(1)
		go p.drain(source, q)
	}
	return true
}

// drain is the sole goroutine processing source's queue while it
// holds a worker slot. It exits, releasing ownership of q, once the
// queue is empty or shutdown has been requested.
func (p *Pipeline) drain(source *peer.Peer, q *connQueue) {
	defer p.wg.Done()

	select {
	case p.sem <- struct{}{}:
	case <-p.quit:
		p.connsMu.Lock()
		q.active = false
		p.connsMu.Unlock()
		return
	}
	defer func() { <-p.sem }()

	for {
		select {
		case <-p.quit:
			p.connsMu.Lock()
			q.active = false
			p.connsMu.Unlock()
			return
		default:
		}

		p.connsMu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			p.connsMu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		p.connsMu.Unlock()

		p.process(source, msg)
	}
}

func (p *Pipeline) process(source *peer.Peer, msg wire.Message) {
	p.handlersMu.RLock()
	h, ok := p.handlers[msg.Kind()]
	p.handlersMu.RUnlock()

	if !ok {
		log.Debugf("%s: no handler registered for %s, dropping", source, msg.Kind())
		return
	}
	if err := h(source, msg); err != nil {
		log.Warnf("%s: handler for %s failed: %v", source, msg.Kind(), err)
	}
}
