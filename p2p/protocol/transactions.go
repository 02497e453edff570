package protocol

import (
	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
)

// handleTransaction inserts a gossiped transaction into the mempool and,
// if accepted, relays it onward (excluding the peer it arrived from).
func (pr *Protocol) handleTransaction(source *peer.Peer, msg wire.Message) error {
	tx := msg.(*wire.Transaction).Tx
	if err := pr.pool.Insert(tx); err != nil {
		log.Debugf("%s: rejecting relayed transaction: %v", source, err)
		return nil
	}
	pr.connMgr.Broadcast(msg, source)
	return nil
}
