package chain

import (
	"bytes"
	"testing"

	"github.com/mw-labs/mwnode/internal/hashes"
)

func TestSerializeDeserializeHeaderRoundTrips(t *testing.T) {
	h := &Header{
		Version:           1,
		Height:            42,
		PrevHash:          hashes.Hash{1, 2, 3},
		Timestamp:         1700000000,
		OutputRoot:        hashes.Hash{4, 5, 6},
		ProofRoot:         hashes.Hash{7, 8, 9},
		KernelRoot:        hashes.Hash{10, 11, 12},
		OutputMMRSize:     7,
		KernelMMRSize:     3,
		TotalDifficulty:   12345,
		TotalKernelOffset: [32]byte{13, 14},
		SecondaryScaling:  1024,
		Nonce:             999,
		ProofOfWork:       []byte{0xde, 0xad, 0xbe, 0xef},
	}

	raw := h.Serialize()
	got, err := DeserializeHeader(raw)
	if err != nil {
		t.Fatalf("DeserializeHeader: %v", err)
	}

	if got.Version != h.Version || got.Height != h.Height || got.Timestamp != h.Timestamp ||
		got.OutputMMRSize != h.OutputMMRSize || got.KernelMMRSize != h.KernelMMRSize ||
		got.TotalDifficulty != h.TotalDifficulty || got.SecondaryScaling != h.SecondaryScaling ||
		got.Nonce != h.Nonce {
		t.Fatalf("round-tripped fields mismatch: got %+v, want %+v", got, h)
	}
	if got.PrevHash != h.PrevHash || got.OutputRoot != h.OutputRoot ||
		got.ProofRoot != h.ProofRoot || got.KernelRoot != h.KernelRoot {
		t.Fatalf("round-tripped hashes mismatch")
	}
	if got.TotalKernelOffset != h.TotalKernelOffset {
		t.Fatalf("round-tripped kernel offset mismatch")
	}
	if !bytes.Equal(got.ProofOfWork, h.ProofOfWork) {
		t.Fatalf("round-tripped proof of work mismatch: got %x, want %x", got.ProofOfWork, h.ProofOfWork)
	}
}

func TestHashIsDeterministicAndFieldSensitive(t *testing.T) {
	a := &Header{Height: 1, Nonce: 1}
	b := &Header{Height: 1, Nonce: 1}
	c := &Header{Height: 1, Nonce: 2}

	if a.Hash() != b.Hash() {
		t.Fatalf("identical headers hashed differently")
	}
	if a.Hash() == c.Hash() {
		t.Fatalf("headers differing only in nonce hashed the same")
	}
}

func TestDeserializeHeaderRejectsEmptyInput(t *testing.T) {
	if _, err := DeserializeHeader(nil); err == nil {
		t.Fatalf("expected an error deserializing empty header bytes")
	}
}
