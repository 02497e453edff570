package protocol

import (
	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/p2p/sync"
)

func (pr *Protocol) handleGetBlock(source *peer.Peer, msg wire.Message) error {
	req := msg.(*wire.GetBlock)
	block, err := pr.blocks.Block(req.Hash)
	if err != nil {
		source.Send(&wire.Block{Found: false})
		return nil
	}
	source.Send(&wire.Block{Found: true, Block: block})
	return nil
}

// handleBlock processes a Block reply during SYNCING_BLOCKS. A block
// arriving outside that phase, or from a peer other than the tracked
// sync peer, is ignored — unsolicited blocks aren't trusted enough to
// apply speculatively.
func (pr *Protocol) handleBlock(source *peer.Peer, msg wire.Message) error {
	if pr.syncer.Phase() != sync.PhaseSyncingBlocks || pr.syncer.Peer() != source {
		return nil
	}
	reply := msg.(*wire.Block)
	if !reply.Found || reply.Block == nil {
		pr.syncer.NotifySyncFailed(source)
		return nil
	}

	code := pr.chainState.ProcessBlock(reply.Block)
	switch code {
	case chain.Success, chain.AlreadyExists:
		confirmedHeight := pr.chainState.GetHeight(chain.Confirmed)
		if confirmedHeight >= source.Height() {
			pr.syncer.NotifyBlocksSynced()
			return nil
		}
		next, ok := pr.chainState.GetBlockHeaderByHeight(chain.Candidate, confirmedHeight+1)
		if !ok {
			pr.syncer.NotifySyncFailed(source)
			return nil
		}
		source.Send(&wire.GetBlock{Hash: next.Hash()})
	case chain.Orphaned, chain.Invalid:
		pr.syncer.NotifySyncFailed(source)
	default:
		log.Errorf("%s: processing block: %s", source, code)
	}
	return nil
}
