package wire

import (
	"io"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

// GetCompactBlock requests the compact representation of the block
// identified by hash.
type GetCompactBlock struct {
	Hash hashes.Hash
}

func (m *GetCompactBlock) Kind() Kind { return KindGetCompactBlock }

func (m *GetCompactBlock) Encode(w io.Writer) error {
	return writeHash(w, m.Hash)
}

func (m *GetCompactBlock) Decode(r io.Reader) error {
	var err error
	m.Hash, err = readHash(r)
	return err
}

// CompactBlock carries a block's header and kernel excesses but not its
// outputs' range proofs, so a peer that already holds most of the
// referenced transactions can reconstruct the block without re-fetching
// everything. A peer missing kernels it cannot otherwise resolve falls
// back to GetBlock.
type CompactBlock struct {
	Header         *chain.Header
	KernelExcesses []wcrypto.Commitment
}

func (m *CompactBlock) Kind() Kind { return KindCompactBlock }

func (m *CompactBlock) Encode(w io.Writer) error {
	if err := writeBytes(w, m.Header.Serialize()); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(m.KernelExcesses))); err != nil {
		return err
	}
	for _, c := range m.KernelExcesses {
		if err := writeCommitment(w, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *CompactBlock) Decode(r io.Reader) error {
	headerRaw, err := readBytes(r)
	if err != nil {
		return err
	}
	if m.Header, err = chain.DeserializeHeader(headerRaw); err != nil {
		return err
	}

	count, err := readUint32(r)
	if err != nil {
		return err
	}
	m.KernelExcesses = make([]wcrypto.Commitment, count)
	for i := range m.KernelExcesses {
		if m.KernelExcesses[i], err = readCommitment(r); err != nil {
			return err
		}
	}
	return nil
}
