package protocol

import (
	"github.com/mw-labs/mwnode/app/peer"
	"github.com/mw-labs/mwnode/app/wire"
	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/p2p/sync"
)

// maxHeadersPerMessage mirrors wire's own per-message cap; GetHeaders
// responses are built to respect it directly rather than relying on
// Encode to reject an oversized batch.
const maxHeadersPerMessage = 512

// buildLocator returns a sparse set of recent header hashes on branch,
// most recent first, doubling the gap between entries after the first
// ten — the same exponential-backoff shape BIP-type locators use so a
// responder can usually find a common ancestor in a handful of hashes
// even across a deep reorg.
func (pr *Protocol) buildLocator(branch chain.Branch) []hashes.Hash {
	height := pr.chainState.GetHeight(branch)

	var locator []hashes.Hash
	step := uint64(1)
	for h := height; ; {
		header, ok := pr.chainState.GetBlockHeaderByHeight(branch, h)
		if ok {
			locator = append(locator, header.Hash())
		}
		if h == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if h < step {
			h = 0
		} else {
			h -= step
		}
	}
	return locator
}

// handleGetHeaders answers with up to maxHeadersPerMessage headers
// starting just after the most recent locator hash this node
// recognizes on CANDIDATE, or from genesis if none are recognized.
func (pr *Protocol) handleGetHeaders(source *peer.Peer, msg wire.Message) error {
	req := msg.(*wire.GetHeaders)

	start := uint64(0)
	for _, h := range req.Locator {
		if idx, ok := pr.chainState.GetBlockHeaderByHash(h); ok {
			start = idx.Height + 1
			break
		}
	}

	head := pr.chainState.GetHeight(chain.Candidate)
	var headers []*chain.Header
	for height := start; height <= head && uint64(len(headers)) < maxHeadersPerMessage; height++ {
		header, ok := pr.chainState.GetBlockHeaderByHeight(chain.Candidate, height)
		if !ok {
			break
		}
		headers = append(headers, header)
	}

	source.Send(&wire.Headers{Headers: headers})
	return nil
}

// handleHeaders processes a Headers reply from the active sync peer,
// driving the SYNCING_HEADERS phase forward: accepted headers that
// reach the peer's advertised height complete header sync and move on
// to requesting the TxHashSet; anything short of that asks for more
// using a fresh locator; a validation failure aborts the sync attempt
// and bans the peer. Headers arriving outside SYNCING_HEADERS, or from
// a peer other than the one the syncer is tracking, are ignored —
// they're either unsolicited or stale.
func (pr *Protocol) handleHeaders(source *peer.Peer, msg wire.Message) error {
	if pr.syncer.Phase() != sync.PhaseSyncingHeaders || pr.syncer.Peer() != source {
		return nil
	}
	headers := msg.(*wire.Headers).Headers
	if len(headers) == 0 {
		pr.syncer.NotifySyncFailed(source)
		return nil
	}

	code := pr.chainState.ProcessSyncHeaders(headers)
	switch code {
	case chain.Success, chain.AlreadyExists:
		localHeight := pr.chainState.GetHeight(chain.Candidate)
		if localHeight >= source.Height() {
			pr.syncer.NotifyHeadersSynced()
			target, ok := pr.chainState.GetBlockHeaderByHeight(chain.Candidate, localHeight)
			if !ok {
				pr.syncer.NotifySyncFailed(source)
				return nil
			}
			source.Send(&wire.TxHashSetRequest{Hash: target.Hash(), Height: localHeight})
			return nil
		}
		source.Send(&wire.GetHeaders{Locator: pr.buildLocator(chain.Candidate)})
	case chain.Orphaned, chain.Invalid:
		pr.syncer.NotifySyncFailed(source)
	default:
		log.Errorf("%s: processing headers: %s", source, code)
	}
	return nil
}
