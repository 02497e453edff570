package wire

import (
	"io"

	"github.com/mw-labs/mwnode/internal/hashes"
)

// TxHashSetRequest asks for the full TxHashSet archive as of the header
// identified by Hash/Height.
type TxHashSetRequest struct {
	Hash   hashes.Hash
	Height uint64
}

func (m *TxHashSetRequest) Kind() Kind { return KindTxHashSetRequest }

func (m *TxHashSetRequest) Encode(w io.Writer) error {
	if err := writeHash(w, m.Hash); err != nil {
		return err
	}
	return writeUint64(w, m.Height)
}

func (m *TxHashSetRequest) Decode(r io.Reader) error {
	var err error
	if m.Hash, err = readHash(r); err != nil {
		return err
	}
	m.Height, err = readUint64(r)
	return err
}

// TxHashSetArchive carries one chunk of the streamed TxHashSet archive:
// the request is answered by a sequence of these, ChunkIndex increasing
// from zero, the final chunk identified by ChunkIndex == TotalChunks-1.
type TxHashSetArchive struct {
	Hash        hashes.Hash
	Height      uint64
	ChunkIndex  uint32
	TotalChunks uint32
	Data        []byte
}

func (m *TxHashSetArchive) Kind() Kind { return KindTxHashSetArchive }

func (m *TxHashSetArchive) Encode(w io.Writer) error {
	if err := writeHash(w, m.Hash); err != nil {
		return err
	}
	if err := writeUint64(w, m.Height); err != nil {
		return err
	}
	if err := writeUint32(w, m.ChunkIndex); err != nil {
		return err
	}
	if err := writeUint32(w, m.TotalChunks); err != nil {
		return err
	}
	return writeBytes(w, m.Data)
}

func (m *TxHashSetArchive) Decode(r io.Reader) error {
	var err error
	if m.Hash, err = readHash(r); err != nil {
		return err
	}
	if m.Height, err = readUint64(r); err != nil {
		return err
	}
	if m.ChunkIndex, err = readUint32(r); err != nil {
		return err
	}
	if m.TotalChunks, err = readUint32(r); err != nil {
		return err
	}
	m.Data, err = readBytes(r)
	return err
}
