package blockstore

import (
	"bytes"
	"encoding/binary"

	"github.com/mw-labs/mwnode/chain"
	"github.com/pkg/errors"
)

// serializeBlock encodes a block as its header followed by length-prefixed
// input/output/kernel lists, all big-endian, matching the wire encoding
// conventions used for on-the-wire Block messages so the on-disk and
// on-wire formats stay in lockstep.
func serializeBlock(b *chain.Block) ([]byte, error) {
	var buf bytes.Buffer

	header := b.Header.Serialize()
	if err := writeUint32(&buf, uint32(len(header))); err != nil {
		return nil, err
	}
	buf.Write(header)

	if err := writeUint32(&buf, uint32(len(b.Inputs))); err != nil {
		return nil, err
	}
	for _, in := range b.Inputs {
		buf.Write(in.Commitment[:])
	}

	if err := writeUint32(&buf, uint32(len(b.Outputs))); err != nil {
		return nil, err
	}
	for _, out := range b.Outputs {
		buf.Write(out.Commitment[:])
		if err := writeUint32(&buf, uint32(len(out.Proof))); err != nil {
			return nil, err
		}
		buf.Write(out.Proof)
	}

	if err := writeUint32(&buf, uint32(len(b.Kernels))); err != nil {
		return nil, err
	}
	for _, k := range b.Kernels {
		buf.Write(k.Excess[:])
		if err := writeUint32(&buf, uint32(len(k.Signature))); err != nil {
			return nil, err
		}
		buf.Write(k.Signature)
		if err := writeUint64(&buf, k.Fee); err != nil {
			return nil, err
		}
		if err := writeUint64(&buf, k.LockHeight); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func deserializeBlock(raw []byte) (*chain.Block, error) {
	r := bytes.NewReader(raw)

	headerLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	headerBytes := make([]byte, headerLen)
	if _, err := r.Read(headerBytes); err != nil {
		return nil, errors.WithStack(err)
	}
	header, err := chain.DeserializeHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	inputCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	inputs := make([]chain.Input, inputCount)
	for i := range inputs {
		if _, err := r.Read(inputs[i].Commitment[:]); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	outputCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	outputs := make([]chain.Output, outputCount)
	for i := range outputs {
		if _, err := r.Read(outputs[i].Commitment[:]); err != nil {
			return nil, errors.WithStack(err)
		}
		proofLen, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		proof := make([]byte, proofLen)
		if _, err := r.Read(proof); err != nil {
			return nil, errors.WithStack(err)
		}
		outputs[i].Proof = proof
	}

	kernelCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	kernels := make([]chain.Kernel, kernelCount)
	for i := range kernels {
		if _, err := r.Read(kernels[i].Excess[:]); err != nil {
			return nil, errors.WithStack(err)
		}
		sigLen, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		sig := make([]byte, sigLen)
		if _, err := r.Read(sig); err != nil {
			return nil, errors.WithStack(err)
		}
		kernels[i].Signature = sig
		if kernels[i].Fee, err = readUint64(r); err != nil {
			return nil, err
		}
		if kernels[i].LockHeight, err = readUint64(r); err != nil {
			return nil, err
		}
	}

	return &chain.Block{Header: header, Inputs: inputs, Outputs: outputs, Kernels: kernels}, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

func writeUint64(buf *bytes.Buffer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
