package txhashset

import (
	"os"
	"testing"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/database"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

// permissiveVerifier accepts every range proof and signature, letting
// tests focus on the MMR/bitmap bookkeeping Apply performs rather than on
// real bulletproof/schnorr verification.
type permissiveVerifier struct{}

func (permissiveVerifier) VerifyRangeProof(wcrypto.Commitment, wcrypto.RangeProof) error { return nil }
func (permissiveVerifier) VerifyKernelSignature(wcrypto.Commitment, [32]byte, wcrypto.Signature) error {
	return nil
}

func newTestTxHashSet(t *testing.T) (*TxHashSet, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "txhashset-test-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	db, err := database.Open(dir + "/db")
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	ths, err := Open(dir, db, wcrypto.NewSecp256k1Committer(), permissiveVerifier{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ths, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}

func commitmentFrom(b byte) wcrypto.Commitment {
	var c wcrypto.Commitment
	c[0] = 0x02
	c[32] = b
	return c
}

func TestApplyComputesRootsAndSizesThenHeaderAgrees(t *testing.T) {
	ths, cleanup := newTestTxHashSet(t)
	defer cleanup()

	out := chain.Output{Commitment: commitmentFrom(1), Proof: wcrypto.RangeProof("proof-a")}
	k := chain.Kernel{Excess: commitmentFrom(2), Signature: wcrypto.Signature("sig"), Fee: 10, LockHeight: 0}

	// First apply a block whose header still carries zero roots/sizes: it
	// must be rejected and leave the set exactly as it was.
	probe := &chain.Block{
		Header:  &chain.Header{Height: 1},
		Outputs: []chain.Output{out},
		Kernels: []chain.Kernel{k},
	}
	if err := ths.Apply(probe); err == nil {
		t.Fatalf("expected probe apply with zero header roots to fail")
	}

	outRoot, proofRoot, kernRoot := ths.Roots()
	if !outRoot.IsZero() || !proofRoot.IsZero() || !kernRoot.IsZero() {
		t.Fatalf("failed apply must roll back to empty roots, got %v %v %v", outRoot, proofRoot, kernRoot)
	}
	if ths.outputMMR.Size() != 0 || ths.kernelMMR.Size() != 0 {
		t.Fatalf("failed apply must roll back mmr sizes, got output=%d kernel=%d", ths.outputMMR.Size(), ths.kernelMMR.Size())
	}

	// Now apply the real way: mutate a scratch copy to discover the
	// resulting roots, then apply a correctly-sealed block against the
	// pristine state.
	scratch, cleanupScratch := newTestTxHashSet(t)
	defer cleanupScratch()
	if _, err := scratch.outputMMR.Append(out.Commitment[:]); err != nil {
		t.Fatalf("scratch output append: %v", err)
	}
	if _, err := scratch.proofMMR.Append([]byte(out.Proof)); err != nil {
		t.Fatalf("scratch proof append: %v", err)
	}
	if _, err := scratch.kernelMMR.Append(k.Excess[:]); err != nil {
		t.Fatalf("scratch kernel append: %v", err)
	}
	wantOutRoot, wantProofRoot, wantKernRoot := scratch.Roots()

	header := &chain.Header{
		Height:        1,
		OutputRoot:    wantOutRoot,
		ProofRoot:     wantProofRoot,
		KernelRoot:    wantKernRoot,
		OutputMMRSize: scratch.outputMMR.Size(),
		KernelMMRSize: scratch.kernelMMR.Size(),
	}
	block := &chain.Block{Header: header, Outputs: []chain.Output{out}, Kernels: []chain.Kernel{k}}

	if err := ths.Apply(block); err != nil {
		t.Fatalf("Apply with correctly-sealed header: %v", err)
	}

	gotOutRoot, gotProofRoot, gotKernRoot := ths.Roots()
	if gotOutRoot != header.OutputRoot || gotProofRoot != header.ProofRoot || gotKernRoot != header.KernelRoot {
		t.Fatalf("roots after Apply disagree with header")
	}

	if !ths.bitmap.isSet(0) {
		t.Fatalf("output 0 should be marked unspent after Apply")
	}
	pos, ok, err := ths.commits.get(out.Commitment)
	if err != nil || !ok || pos != 0 {
		t.Fatalf("commitment index lookup after Apply: pos=%d ok=%v err=%v", pos, ok, err)
	}
}

func TestApplySpendingClearsBitmapAndRejectsDoubleSpend(t *testing.T) {
	ths, cleanup := newTestTxHashSet(t)
	defer cleanup()

	out := chain.Output{Commitment: commitmentFrom(5), Proof: wcrypto.RangeProof("proof")}
	scratch, cleanupScratch := newTestTxHashSet(t)
	defer cleanupScratch()
	if _, err := scratch.outputMMR.Append(out.Commitment[:]); err != nil {
		t.Fatalf("scratch append: %v", err)
	}
	if _, err := scratch.proofMMR.Append([]byte(out.Proof)); err != nil {
		t.Fatalf("scratch append: %v", err)
	}
	outRoot, proofRoot, kernRoot := scratch.Roots()

	block1 := &chain.Block{
		Header: &chain.Header{
			Height:        1,
			OutputRoot:    outRoot,
			ProofRoot:     proofRoot,
			KernelRoot:    kernRoot,
			OutputMMRSize: scratch.outputMMR.Size(),
		},
		Outputs: []chain.Output{out},
	}
	if err := ths.Apply(block1); err != nil {
		t.Fatalf("Apply block1: %v", err)
	}

	// Spending block: one input consuming out, no new outputs/kernels, so
	// the MMR roots/sizes stay exactly as they were.
	postSpendOutRoot, postSpendProofRoot, postSpendKernRoot := ths.Roots()
	block2 := &chain.Block{
		Header: &chain.Header{
			Height:        2,
			OutputRoot:    postSpendOutRoot,
			ProofRoot:     postSpendProofRoot,
			KernelRoot:    postSpendKernRoot,
			OutputMMRSize: ths.outputMMR.Size(),
		},
		Inputs: []chain.Input{{Commitment: out.Commitment}},
	}
	if err := ths.Apply(block2); err != nil {
		t.Fatalf("Apply block2 (spend): %v", err)
	}
	if ths.bitmap.isSet(0) {
		t.Fatalf("spent output must be cleared from the bitmap")
	}

	// Re-applying the same spend must fail: the bit is already clear.
	block3 := &chain.Block{
		Header:  &chain.Header{Height: 3, OutputRoot: postSpendOutRoot, ProofRoot: postSpendProofRoot, KernelRoot: postSpendKernRoot, OutputMMRSize: ths.outputMMR.Size()},
		Inputs:  []chain.Input{{Commitment: out.Commitment}},
	}
	if err := ths.Apply(block3); err == nil {
		t.Fatalf("expected double-spend to be rejected")
	}
}

func TestRewindRestoresBitmapSnapshot(t *testing.T) {
	ths, cleanup := newTestTxHashSet(t)
	defer cleanup()

	out := chain.Output{Commitment: commitmentFrom(9), Proof: wcrypto.RangeProof("proof")}
	scratch, cleanupScratch := newTestTxHashSet(t)
	defer cleanupScratch()
	if _, err := scratch.outputMMR.Append(out.Commitment[:]); err != nil {
		t.Fatalf("scratch append: %v", err)
	}
	if _, err := scratch.proofMMR.Append([]byte(out.Proof)); err != nil {
		t.Fatalf("scratch append: %v", err)
	}
	outRoot, proofRoot, kernRoot := scratch.Roots()
	header1 := &chain.Header{
		Height:        1,
		OutputRoot:    outRoot,
		ProofRoot:     proofRoot,
		KernelRoot:    kernRoot,
		OutputMMRSize: scratch.outputMMR.Size(),
	}
	if err := ths.Apply(&chain.Block{Header: header1, Outputs: []chain.Output{out}}); err != nil {
		t.Fatalf("Apply header1 block: %v", err)
	}

	spendOutRoot, spendProofRoot, spendKernRoot := ths.Roots()
	header2 := &chain.Header{
		Height:        2,
		OutputRoot:    spendOutRoot,
		ProofRoot:     spendProofRoot,
		KernelRoot:    spendKernRoot,
		OutputMMRSize: ths.outputMMR.Size(),
	}
	if err := ths.Apply(&chain.Block{Header: header2, Inputs: []chain.Input{{Commitment: out.Commitment}}}); err != nil {
		t.Fatalf("Apply spend block: %v", err)
	}
	if ths.bitmap.isSet(0) {
		t.Fatalf("expected output to be spent before rewind")
	}

	if err := ths.Rewind(header1); err != nil {
		t.Fatalf("Rewind to header1: %v", err)
	}
	if !ths.bitmap.isSet(0) {
		t.Fatalf("Rewind to header1 should restore the output as unspent")
	}
	gotOutRoot, gotProofRoot, gotKernRoot := ths.Roots()
	if gotOutRoot != header1.OutputRoot || gotProofRoot != header1.ProofRoot || gotKernRoot != header1.KernelRoot {
		t.Fatalf("roots after Rewind disagree with header1")
	}
}
