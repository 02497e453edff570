package txhashset

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

// buildTestArchive tars and gzips every regular file under srcDir to a
// temporary file, the way p2p/protocol's buildArchive packs a live
// txhashset directory for transfer.
func buildTestArchive(t *testing.T, srcDir string) string {
	t.Helper()
	tmp, err := os.CreateTemp("", "txhashset-test-archive-*.tar.gz")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer tmp.Close()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		t.Fatalf("building test archive: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return tmp.Name()
}

func TestSwapInstallsValidatedStagedSnapshot(t *testing.T) {
	live, cleanupLive := newTestTxHashSet(t)
	defer cleanupLive()

	source, cleanupSource := newTestTxHashSet(t)
	defer cleanupSource()

	// The lone output commits to offset*G, so with TotalKernelOffset set to
	// offset the staged set's sum-of-commitments identity holds and
	// Validate can accept it.
	var offset [32]byte
	offset[31] = 3
	commitment, err := wcrypto.NewSecp256k1Committer().CommitScalarG(offset)
	if err != nil {
		t.Fatalf("CommitScalarG: %v", err)
	}
	out := chain.Output{Commitment: commitment, Proof: wcrypto.RangeProof("proof")}
	if _, err := source.outputMMR.Append(out.Commitment[:]); err != nil {
		t.Fatalf("source output append: %v", err)
	}
	if _, err := source.proofMMR.Append([]byte(out.Proof)); err != nil {
		t.Fatalf("source proof append: %v", err)
	}
	outRoot, proofRoot, kernRoot := source.Roots()
	header := &chain.Header{
		Height:            1,
		OutputRoot:        outRoot,
		ProofRoot:         proofRoot,
		KernelRoot:        kernRoot,
		OutputMMRSize:     source.outputMMR.Size(),
		TotalKernelOffset: offset,
	}
	block := &chain.Block{Header: header, Outputs: []chain.Output{out}}
	// Rebuild source with Apply so the commitment index and bitmap agree
	// with the MMR contents the same way a real node's would.
	source2, cleanupSource2 := newTestTxHashSet(t)
	defer cleanupSource2()
	if err := source2.Apply(block); err != nil {
		t.Fatalf("Apply on source2: %v", err)
	}
	if err := source2.Flush(); err != nil {
		t.Fatalf("Flush source2: %v", err)
	}

	archivePath := buildTestArchive(t, source2.dir)
	defer os.Remove(archivePath)

	if err := live.Swap(archivePath, header); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	gotOutRoot, gotProofRoot, gotKernRoot := live.Roots()
	if gotOutRoot != header.OutputRoot || gotProofRoot != header.ProofRoot || gotKernRoot != header.KernelRoot {
		t.Fatalf("roots after Swap disagree with target header")
	}
	if !live.bitmap.isSet(0) {
		t.Fatalf("output 0 should be unspent in the swapped-in set")
	}
}

func TestSwapLeavesLiveSetUntouchedOnValidationFailure(t *testing.T) {
	live, cleanupLive := newTestTxHashSet(t)
	defer cleanupLive()

	source, cleanupSource := newTestTxHashSet(t)
	defer cleanupSource()
	if err := source.Flush(); err != nil {
		t.Fatalf("Flush source: %v", err)
	}

	archivePath := buildTestArchive(t, source.dir)
	defer os.Remove(archivePath)

	// A header claiming non-zero roots can never validate against an
	// empty staged set.
	var nonZeroRoot hashes.Hash
	nonZeroRoot[0] = 0x01
	badTarget := &chain.Header{Height: 1, OutputRoot: nonZeroRoot}
	if err := live.Swap(archivePath, badTarget); err == nil {
		t.Fatalf("expected Swap to reject a staged set that disagrees with the target header")
	}

	outRoot, proofRoot, kernRoot := live.Roots()
	if !outRoot.IsZero() || !proofRoot.IsZero() || !kernRoot.IsZero() {
		t.Fatalf("live set must be untouched after a failed Swap")
	}
	if _, err := os.Stat(live.dir); err != nil {
		t.Fatalf("live set directory must still exist after a failed Swap: %v", err)
	}
}

func TestSwapLeavesLiveSetUntouchedOnMissingArchive(t *testing.T) {
	live, cleanupLive := newTestTxHashSet(t)
	defer cleanupLive()

	if err := live.Swap("/does/not/exist.tar.gz", &chain.Header{}); err == nil {
		t.Fatalf("expected Swap to fail extracting a missing archive")
	}
	if _, err := os.Stat(live.dir); err != nil {
		t.Fatalf("live set directory must still exist after a failed Swap: %v", err)
	}
}
