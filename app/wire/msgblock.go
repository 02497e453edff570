package wire

import (
	"io"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

// GetBlock requests the full block identified by hash.
type GetBlock struct {
	Hash hashes.Hash
}

func (m *GetBlock) Kind() Kind { return KindGetBlock }

func (m *GetBlock) Encode(w io.Writer) error {
	return writeHash(w, m.Hash)
}

func (m *GetBlock) Decode(r io.Reader) error {
	var err error
	m.Hash, err = readHash(r)
	return err
}

// Block answers a GetBlock request. Found is false when the responder
// does not have the requested block, in which case Block.Block is nil.
type Block struct {
	Found bool
	Block *chain.Block
}

func (m *Block) Kind() Kind { return KindBlock }

func (m *Block) Encode(w io.Writer) error {
	if !m.Found {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	if err := writeBytes(w, m.Block.Header.Serialize()); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(m.Block.Inputs))); err != nil {
		return err
	}
	for _, in := range m.Block.Inputs {
		if err := writeCommitment(w, in.Commitment); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(m.Block.Outputs))); err != nil {
		return err
	}
	for _, out := range m.Block.Outputs {
		if err := writeCommitment(w, out.Commitment); err != nil {
			return err
		}
		if err := writeBytes(w, out.Proof); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(m.Block.Kernels))); err != nil {
		return err
	}
	for _, k := range m.Block.Kernels {
		if err := writeKernel(w, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *Block) Decode(r io.Reader) error {
	var flag [1]byte
	if _, err := readFull(r, flag[:]); err != nil {
		return err
	}
	m.Found = flag[0] != 0
	if !m.Found {
		return nil
	}

	headerRaw, err := readBytes(r)
	if err != nil {
		return err
	}
	header, err := chain.DeserializeHeader(headerRaw)
	if err != nil {
		return err
	}

	inputCount, err := readUint32(r)
	if err != nil {
		return err
	}
	inputs := make([]chain.Input, inputCount)
	for i := range inputs {
		if inputs[i].Commitment, err = readCommitment(r); err != nil {
			return err
		}
	}

	outputCount, err := readUint32(r)
	if err != nil {
		return err
	}
	outputs := make([]chain.Output, outputCount)
	for i := range outputs {
		if outputs[i].Commitment, err = readCommitment(r); err != nil {
			return err
		}
		proof, err := readBytes(r)
		if err != nil {
			return err
		}
		outputs[i].Proof = wcrypto.RangeProof(proof)
	}

	kernelCount, err := readUint32(r)
	if err != nil {
		return err
	}
	kernels := make([]chain.Kernel, kernelCount)
	for i := range kernels {
		if kernels[i], err = readKernel(r); err != nil {
			return err
		}
	}

	m.Block = &chain.Block{Header: header, Inputs: inputs, Outputs: outputs, Kernels: kernels}
	return nil
}

func writeKernel(w io.Writer, k chain.Kernel) error {
	if err := writeCommitment(w, k.Excess); err != nil {
		return err
	}
	if err := writeBytes(w, k.Signature); err != nil {
		return err
	}
	if err := writeUint64(w, k.Fee); err != nil {
		return err
	}
	return writeUint64(w, k.LockHeight)
}

func readKernel(r io.Reader) (chain.Kernel, error) {
	var k chain.Kernel
	var err error
	if k.Excess, err = readCommitment(r); err != nil {
		return k, err
	}
	sig, err := readBytes(r)
	if err != nil {
		return k, err
	}
	k.Signature = wcrypto.Signature(sig)
	if k.Fee, err = readUint64(r); err != nil {
		return k, err
	}
	k.LockHeight, err = readUint64(r)
	return k, err
}
