// Package mempool holds validated, unconfirmed transactions keyed by
// kernel excess, following the same locked-map shape as the teacher's
// domain/miningmanager/mempool transaction pool.
package mempool

import (
	"sync"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/logs"
	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/pkg/errors"
)

var log = logs.NopLogger("MMPL")

// SetLogger installs the subsystem logger used by the mempool package.
func SetLogger(l *logs.Logger) {
	log = l
}

// Pool is a set of standalone-valid, unconfirmed transactions.
type Pool struct {
	mu sync.RWMutex

	byExcess map[wcrypto.Commitment]*chain.Transaction
	// spentBy maps an input commitment being spent by some pooled
	// transaction to that transaction's primary kernel excess, so a
	// newly-seen transaction spending the same input can find and evict
	// the transaction it conflicts with.
	spentBy map[wcrypto.Commitment]wcrypto.Commitment

	committer wcrypto.Committer
	verifier  wcrypto.Verifier
}

// New returns an empty pool that validates incoming transactions with
// committer and verifier.
func New(committer wcrypto.Committer, verifier wcrypto.Verifier) *Pool {
	return &Pool{
		byExcess:  make(map[wcrypto.Commitment]*chain.Transaction),
		spentBy:   make(map[wcrypto.Commitment]wcrypto.Commitment),
		committer: committer,
		verifier:  verifier,
	}
}

// primaryExcess keys a transaction by its first kernel's excess. A
// transaction with no kernel can never balance and is rejected before
// this is called.
func primaryExcess(tx *chain.Transaction) wcrypto.Commitment {
	return tx.Kernels[0].Excess
}

// Insert validates tx standalone and adds it to the pool, evicting any
// pooled transaction that conflicts with one of its inputs.
func (p *Pool) Insert(tx *chain.Transaction) error {
	if err := p.validate(tx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	excess := primaryExcess(tx)
	if _, exists := p.byExcess[excess]; exists {
		return errors.New("transaction already in pool")
	}

	for _, in := range tx.Inputs {
		if conflicting, ok := p.spentBy[in.Commitment]; ok {
			p.removeLocked(conflicting)
		}
	}

	p.byExcess[excess] = tx
	for _, in := range tx.Inputs {
		p.spentBy[in.Commitment] = excess
	}
	log.Debugf("pooled transaction with %d inputs, %d outputs, %d kernels", len(tx.Inputs), len(tx.Outputs), len(tx.Kernels))
	return nil
}

// validate checks standalone balance and signature/proof validity,
// independent of any particular chain state: sum(outputs) - sum(inputs) -
// sum(excesses) nets to zero, every output's range proof verifies, and
// every kernel's signature verifies. This is the same outputs-positive,
// inputs-and-kernels-negative convention txhashset.Validate uses.
func (p *Pool) validate(tx *chain.Transaction) error {
	if len(tx.Kernels) == 0 {
		return errors.New("transaction has no kernel")
	}

	positives := make([]wcrypto.Commitment, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		if err := p.verifier.VerifyRangeProof(out.Commitment, out.Proof); err != nil {
			return errors.Wrap(err, "invalid range proof")
		}
		positives = append(positives, out.Commitment)
	}
	negatives := make([]wcrypto.Commitment, 0, len(tx.Inputs)+len(tx.Kernels))
	for _, in := range tx.Inputs {
		negatives = append(negatives, in.Commitment)
	}
	for _, k := range tx.Kernels {
		if err := p.verifier.VerifyKernelSignature(k.Excess, chain.KernelSigMessage(k), k.Signature); err != nil {
			return errors.Wrap(err, "invalid kernel signature")
		}
		negatives = append(negatives, k.Excess)
	}

	if err := p.committer.VerifyZeroSum(positives, negatives, wcrypto.Commitment{}); err != nil {
		return errors.Wrap(err, "transaction does not balance")
	}
	return nil
}

// Remove drops the pooled transaction keyed by excess, if any.
func (p *Pool) Remove(excess wcrypto.Commitment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(excess)
}

func (p *Pool) removeLocked(excess wcrypto.Commitment) {
	tx, ok := p.byExcess[excess]
	if !ok {
		return
	}
	delete(p.byExcess, excess)
	for _, in := range tx.Inputs {
		if p.spentBy[in.Commitment] == excess {
			delete(p.spentBy, in.Commitment)
		}
	}
}

// RemoveConfirmed evicts every pooled transaction that block's kernels
// confirm, and every other pooled transaction left spending an input that
// block has now spent (a conflicting transaction superseded on-chain).
func (p *Pool) RemoveConfirmed(block *chain.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range block.Kernels {
		p.removeLocked(k.Excess)
	}
	for _, in := range block.Inputs {
		if conflicting, ok := p.spentBy[in.Commitment]; ok {
			p.removeLocked(conflicting)
		}
	}
}

// Get returns the pooled transaction keyed by excess, if present.
func (p *Pool) Get(excess wcrypto.Commitment) (*chain.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tx, ok := p.byExcess[excess]
	return tx, ok
}

// Len returns the number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byExcess)
}

// Transactions returns every pooled transaction, in no particular order,
// as aggregation candidates for a block builder.
func (p *Pool) Transactions() []*chain.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*chain.Transaction, 0, len(p.byExcess))
	for _, tx := range p.byExcess {
		out = append(out, tx)
	}
	return out
}
