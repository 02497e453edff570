package mempool

import (
	"testing"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

type permissiveVerifier struct{}

func (permissiveVerifier) VerifyRangeProof(wcrypto.Commitment, wcrypto.RangeProof) error { return nil }
func (permissiveVerifier) VerifyKernelSignature(wcrypto.Commitment, [32]byte, wcrypto.Signature) error {
	return nil
}

// nilSumCommitter treats every transaction as balanced without doing real
// curve arithmetic, isolating these tests from secp256k1 specifics so they
// exercise pool bookkeeping rather than cryptography.
type nilSumCommitter struct{}

func (nilSumCommitter) Sum([]wcrypto.Commitment) (wcrypto.Commitment, error) { return wcrypto.Commitment{}, nil }
func (nilSumCommitter) Negate(c wcrypto.Commitment) (wcrypto.Commitment, error) { return c, nil }
func (nilSumCommitter) VerifyZeroSum([]wcrypto.Commitment, []wcrypto.Commitment, wcrypto.Commitment) error {
	return nil
}
func (nilSumCommitter) CommitScalarG([32]byte) (wcrypto.Commitment, error) { return wcrypto.Commitment{}, nil }

func commitmentFrom(b byte) wcrypto.Commitment {
	var c wcrypto.Commitment
	c[32] = b
	return c
}

func txWithInputAndExcess(inCommit, excess byte) *chain.Transaction {
	return &chain.Transaction{
		Inputs:  []chain.Input{{Commitment: commitmentFrom(inCommit)}},
		Kernels: []chain.Kernel{{Excess: commitmentFrom(excess)}},
	}
}

func newTestPool() *Pool {
	return New(nilSumCommitter{}, permissiveVerifier{})
}

func TestInsertAndGet(t *testing.T) {
	p := newTestPool()
	tx := txWithInputAndExcess(1, 2)
	if err := p.Insert(tx); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok := p.Get(commitmentFrom(2))
	if !ok || got != tx {
		t.Fatalf("Get after Insert: ok=%v got=%v", ok, got)
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
}

func TestInsertRejectsTransactionWithNoKernel(t *testing.T) {
	p := newTestPool()
	tx := &chain.Transaction{Inputs: []chain.Input{{Commitment: commitmentFrom(1)}}}
	if err := p.Insert(tx); err == nil {
		t.Fatalf("expected rejection of kernel-less transaction")
	}
}

func TestConflictingInputEvictsEarlierTransaction(t *testing.T) {
	p := newTestPool()
	first := txWithInputAndExcess(1, 2)
	if err := p.Insert(first); err != nil {
		t.Fatalf("Insert first: %v", err)
	}
	second := txWithInputAndExcess(1, 3)
	if err := p.Insert(second); err != nil {
		t.Fatalf("Insert second: %v", err)
	}
	if _, ok := p.Get(commitmentFrom(2)); ok {
		t.Fatalf("first transaction should have been evicted by conflicting second")
	}
	if got, ok := p.Get(commitmentFrom(3)); !ok || got != second {
		t.Fatalf("second transaction should remain pooled")
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after eviction", p.Len())
	}
}

func TestRemoveConfirmedEvictsByKernelAndBySpentInput(t *testing.T) {
	p := newTestPool()
	confirmedByKernel := txWithInputAndExcess(1, 2)
	confirmedBySpend := txWithInputAndExcess(9, 5)
	if err := p.Insert(confirmedByKernel); err != nil {
		t.Fatalf("Insert confirmedByKernel: %v", err)
	}
	if err := p.Insert(confirmedBySpend); err != nil {
		t.Fatalf("Insert confirmedBySpend: %v", err)
	}

	block := &chain.Block{
		Header:  &chain.Header{},
		Inputs:  []chain.Input{{Commitment: commitmentFrom(9)}},
		Kernels: []chain.Kernel{{Excess: commitmentFrom(2)}},
	}
	p.RemoveConfirmed(block)

	if p.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after RemoveConfirmed", p.Len())
	}
}
