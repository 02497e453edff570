package wire

import (
	"io"

	"github.com/mw-labs/mwnode/chain"
	"github.com/mw-labs/mwnode/internal/wcrypto"
)

// Transaction gossips a standalone transaction. It has no response.
type Transaction struct {
	Tx *chain.Transaction
}

func (m *Transaction) Kind() Kind { return KindTransaction }

func (m *Transaction) Encode(w io.Writer) error {
	if err := writeUint32(w, uint32(len(m.Tx.Inputs))); err != nil {
		return err
	}
	for _, in := range m.Tx.Inputs {
		if err := writeCommitment(w, in.Commitment); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(m.Tx.Outputs))); err != nil {
		return err
	}
	for _, out := range m.Tx.Outputs {
		if err := writeCommitment(w, out.Commitment); err != nil {
			return err
		}
		if err := writeBytes(w, out.Proof); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(m.Tx.Kernels))); err != nil {
		return err
	}
	for _, k := range m.Tx.Kernels {
		if err := writeKernel(w, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *Transaction) Decode(r io.Reader) error {
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

	m.Tx = &chain.Transaction{Inputs: inputs, Outputs: outputs, Kernels: kernels}
	return nil
}
