// Package txhashset implements the three-parallel-MMR UTXO commitment set:
// an output MMR, a rangeproof MMR and a kernel MMR, backed by pmmr.MMR, plus
// a UTXO bitmap and a commitment index tying spends back to the output that
// created them.
package txhashset

import (
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/database"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/mw-labs/mwnode/pmmr"
	"github.com/pkg/errors"
)

// TxHashSet satisfies chain.TxHashSet.
type TxHashSet struct {
	dir string
	db  database.Database

	outputMMR *pmmr.MMR
	proofMMR  *pmmr.MMR
	kernelMMR *pmmr.MMR

	outputData *pmmr.DataFile
	kernelData *pmmr.DataFile
	bitmap     *utxoBitmap
	commits    *commitmentIndex

	committer wcrypto.Committer
	verifier  wcrypto.Verifier

	// snapshots remembers the UTXO bitmap as of each applied header hash,
	// so Rewind can restore exactly the bitmap that was live at that
	// header instead of only approximating it from MMR size. PruneSnapshots
	// can drop snapshots outside a given set of header hashes; nothing in
	// this repository calls it, so one snapshot per applied block is kept.
	snapshots map[hashes.Hash]*roaring64.Bitmap
}

// Open opens (creating if necessary) a TxHashSet rooted at dir, using db for
// the commitment index.
func Open(dir string, db database.Database, committer wcrypto.Committer, verifier wcrypto.Verifier) (*TxHashSet, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating txhashset directory")
	}
	outputMMR, err := openMMR(filepath.Join(dir, "pmmr_hash_output"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open output mmr")
	}
	proofMMR, err := openMMR(filepath.Join(dir, "pmmr_hash_rangeproof"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open rangeproof mmr")
	}
	kernelMMR, err := openMMR(filepath.Join(dir, "pmmr_hash_kernel"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open kernel mmr")
	}
	outputData, err := pmmr.OpenDataFile(filepath.Join(dir, "pmmr_data"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open output data file")
	}
	kernelData, err := pmmr.OpenDataFile(filepath.Join(dir, "pmmr_data_kernel"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open kernel data file")
	}
	bitmap, err := openUTXOBitmap(filepath.Join(dir, "pmmr_leaf.bin"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open utxo bitmap")
	}

	return &TxHashSet{
		dir:        dir,
		db:         db,
		outputMMR:  outputMMR,
		proofMMR:   proofMMR,
		kernelMMR:  kernelMMR,
		outputData: outputData,
		kernelData: kernelData,
		bitmap:     bitmap,
		commits:    newCommitmentIndex(db),
		committer:  committer,
		verifier:   verifier,
		snapshots:  make(map[hashes.Hash]*roaring64.Bitmap),
	}, nil
}

// close releases every open file handle the set holds, without touching
// anything on disk. The bitmap and commitment index have no file handles
// of their own (the bitmap flushes on demand; the commitment index just
// wraps db), so neither needs closing here.
func (t *TxHashSet) close() error {
	for _, c := range []func() error{t.outputMMR.Close, t.proofMMR.Close, t.kernelMMR.Close, t.outputData.Close, t.kernelData.Close} {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// Swap installs the state snapshot packed in the tar.gz at archivePath as
// the live set, in place of the current one, following §4.8's
// extract-into-staging / open-staged / validate-staged / atomic-swap
// sequence. The live set is left completely untouched unless every step
// through validation succeeds.
func (t *TxHashSet) Swap(archivePath string, target *chain.Header) error {
	stagingDir := t.dir + ".staging"
	if err := os.RemoveAll(stagingDir); err != nil {
		return errors.Wrap(err, "clearing stale txhashset staging directory")
	}
	defer os.RemoveAll(stagingDir)

	if err := extractArchive(archivePath, stagingDir); err != nil {
		return errors.Wrap(err, "extracting txhashset archive")
	}

	staged, err := Open(stagingDir, t.db, t.committer, t.verifier)
	if err != nil {
		return errors.Wrap(err, "opening staged txhashset")
	}
	if err := staged.Validate(target); err != nil {
		_ = staged.close()
		return errors.Wrap(err, "validating staged txhashset")
	}

	if err := t.close(); err != nil {
		_ = staged.close()
		return errors.Wrap(err, "closing live txhashset")
	}
	if err := staged.close(); err != nil {
		return errors.Wrap(err, "closing staged txhashset")
	}

	liveDir := t.dir
	if err := os.RemoveAll(liveDir); err != nil {
		return errors.Wrap(err, "removing superseded txhashset directory")
	}
	if err := os.Rename(stagingDir, liveDir); err != nil {
		return errors.Wrap(err, "installing staged txhashset")
	}

	reopened, err := Open(liveDir, t.db, t.committer, t.verifier)
	if err != nil {
		return errors.Wrap(err, "reopening installed txhashset")
	}
	*t = *reopened
	return nil
}

// checkpoint captures enough state to undo a failed Apply: every MMR and
// data file size beforehand, plus a bitmap clone.
type checkpoint struct {
	outputSize     uint64
	proofSize      uint64
	kernelSize     uint64
	outputDataSize uint64
	kernelDataSize uint64
	bitmap         *roaring64.Bitmap
}

func (t *TxHashSet) checkpoint() checkpoint {
	return checkpoint{
		outputSize:     t.outputMMR.Size(),
		proofSize:      t.proofMMR.Size(),
		kernelSize:     t.kernelMMR.Size(),
		outputDataSize: t.outputData.Size(),
		kernelDataSize: t.kernelData.Size(),
		bitmap:         t.bitmap.snapshot(),
	}
}

func (c checkpoint) restore(t *TxHashSet) {
	_ = t.outputMMR.Rewind(c.outputSize)
	_ = t.proofMMR.Rewind(c.proofSize)
	_ = t.kernelMMR.Rewind(c.kernelSize)
	_ = t.outputData.Rewind(c.outputDataSize)
	_ = t.kernelData.Rewind(c.kernelDataSize)
	t.bitmap.restore(c.bitmap)
}

// Apply applies block's inputs, outputs and kernels to the three MMRs and
// the UTXO bitmap, then checks the resulting roots and sizes against
// block.Header, rolling every change back on disagreement.
func (t *TxHashSet) Apply(block *chain.Block) error {
	before := t.checkpoint()
	var added []wcrypto.Commitment

	rollback := func() {
		before.restore(t)
		for _, c := range added {
			_ = t.commits.delete(c)
		}
	}

	for _, in := range block.Inputs {
		pos, ok, err := t.commits.get(in.Commitment)
		if err != nil {
			rollback()
			return err
		}
		if !ok {
			rollback()
			return errors.New("input spends unknown output commitment")
		}
		if !t.bitmap.isSet(pos) {
			rollback()
			return errors.New("input spends an already-spent output")
		}
		t.bitmap.clear(pos)
	}

	for _, out := range block.Outputs {
		if err := t.verifier.VerifyRangeProof(out.Commitment, out.Proof); err != nil {
			rollback()
			return errors.Wrap(err, "invalid range proof")
		}
		if _, err := t.outputMMR.Append(out.Commitment[:]); err != nil {
			rollback()
			return err
		}
		if _, err := t.proofMMR.Append([]byte(out.Proof)); err != nil {
			rollback()
			return err
		}
		dataPos, err := t.outputData.Append(encodeOutputRecord(outputRecord{
			Commitment: out.Commitment,
			Proof:      out.Proof,
		}))
		if err != nil {
			rollback()
			return err
		}
		if err := t.commits.put(out.Commitment, dataPos); err != nil {
			rollback()
			return err
		}
		added = append(added, out.Commitment)
		t.bitmap.set(dataPos)
	}

	for _, k := range block.Kernels {
		if err := t.verifier.VerifyKernelSignature(k.Excess, chain.KernelSigMessage(k), k.Signature); err != nil {
			rollback()
			return errors.Wrap(err, "invalid kernel signature")
		}
		if _, err := t.kernelMMR.Append(k.Excess[:]); err != nil {
			rollback()
			return err
		}
		if _, err := t.kernelData.Append(k.Excess[:]); err != nil {
			rollback()
			return err
		}
	}

	outRoot, proofRoot, kernRoot := t.Roots()
	if outRoot != block.Header.OutputRoot || proofRoot != block.Header.ProofRoot || kernRoot != block.Header.KernelRoot {
		rollback()
		return errors.New("txhashset roots disagree with header")
	}
	if t.outputMMR.Size() != block.Header.OutputMMRSize || t.kernelMMR.Size() != block.Header.KernelMMRSize {
		rollback()
		return errors.New("txhashset sizes disagree with header")
	}

	t.snapshots[block.Header.Hash()] = t.bitmap.snapshot()
	return nil
}

// Rewind rewinds each MMR to the sizes recorded in header and restores the
// UTXO bitmap snapshot taken when header was applied.
func (t *TxHashSet) Rewind(header *chain.Header) error {
	if err := t.outputMMR.Rewind(header.OutputMMRSize); err != nil {
		return err
	}
	if err := t.proofMMR.Rewind(header.OutputMMRSize); err != nil {
		return err
	}
	if err := t.kernelMMR.Rewind(header.KernelMMRSize); err != nil {
		return err
	}
	outputLeaves := leafCountForMMRSize(header.OutputMMRSize)
	if err := t.outputData.Rewind(outputLeaves); err != nil {
		return err
	}
	if err := t.kernelData.Rewind(leafCountForMMRSize(header.KernelMMRSize)); err != nil {
		return err
	}

	if snap, ok := t.snapshots[header.Hash()]; ok {
		t.bitmap.restore(snap)
		return nil
	}
	// No remembered snapshot (rewinding past the retained window):
	// approximate by dropping every bit at or beyond the output leaf
	// count header recorded. This under-restores outputs spent and never
	// re-created within the discarded range, which can only happen past
	// the finality depth ChainState enforces.
	kept := roaring64.New()
	it := t.bitmap.bm.Iterator()
	for it.HasNext() {
		pos := it.Next()
		if pos < outputLeaves {
			kept.Add(pos)
		}
	}
	t.bitmap.bm = kept
	return nil
}

// Validate checks the three roots, the sum-of-commitments identity over
// every currently-unspent output, and every kernel signature against
// header.
func (t *TxHashSet) Validate(header *chain.Header) error {
	outRoot, proofRoot, kernRoot := t.Roots()
	if outRoot != header.OutputRoot || proofRoot != header.ProofRoot || kernRoot != header.KernelRoot {
		return errors.New("txhashset roots disagree with header")
	}

	var unspent []wcrypto.Commitment
	it := t.bitmap.bm.Iterator()
	for it.HasNext() {
		pos := it.Next()
		raw, err := t.outputData.Get(pos)
		if err != nil {
			return errors.Wrapf(err, "reading output record at %d", pos)
		}
		rec, err := decodeOutputRecord(raw)
		if err != nil {
			return err
		}
		unspent = append(unspent, rec.Commitment)
	}

	kernelExcesses, err := t.allKernelExcesses()
	if err != nil {
		return err
	}

	offsetCommitment, err := t.committer.CommitScalarG(header.TotalKernelOffset)
	if err != nil {
		return errors.Wrap(err, "invalid accumulated kernel offset")
	}
	if err := t.committer.VerifyZeroSum(unspent, kernelExcesses, offsetCommitment); err != nil {
		return errors.Wrap(err, "sum-of-commitments identity failed")
	}

	return nil
}

func (t *TxHashSet) allKernelExcesses() ([]wcrypto.Commitment, error) {
	size := t.kernelData.Size()
	excesses := make([]wcrypto.Commitment, size)
	for i := uint64(0); i < size; i++ {
		raw, err := t.kernelData.Get(i)
		if err != nil {
			return nil, err
		}
		copy(excesses[i][:], raw)
	}
	return excesses, nil
}

// Roots returns the current output, rangeproof and kernel MMR roots.
func (t *TxHashSet) Roots() (outputRoot, proofRoot, kernelRoot hashes.Hash) {
	outputRoot, _ = t.outputMMR.Root()
	proofRoot, _ = t.proofMMR.Root()
	kernelRoot, _ = t.kernelMMR.Root()
	return
}

// Flush durably persists every MMR, both data files and the UTXO bitmap.
func (t *TxHashSet) Flush() error {
	if err := t.outputMMR.Flush(); err != nil {
		return err
	}
	if err := t.proofMMR.Flush(); err != nil {
		return err
	}
	if err := t.kernelMMR.Flush(); err != nil {
		return err
	}
	if err := t.outputData.Flush(); err != nil {
		return err
	}
	if err := t.kernelData.Flush(); err != nil {
		return err
	}
	return t.bitmap.flush()
}

// PruneSnapshots discards remembered bitmap snapshots for every header
// hash not in keep, letting ChainState bound the set to the finality
// window instead of retaining one snapshot per block forever.
func (t *TxHashSet) PruneSnapshots(keep map[hashes.Hash]struct{}) {
	for hash := range t.snapshots {
		if _, ok := keep[hash]; !ok {
			delete(t.snapshots, hash)
		}
	}
}
