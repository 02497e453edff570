package chain

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/pkg/errors"
)

// Header is a block header: the fixed-field record that the header tree,
// the header MMR, and TxHashSet validation all key off.
type Header struct {
	Version    uint16
	Height     uint64
	PrevHash   hashes.Hash
	Timestamp  int64
	OutputRoot hashes.Hash
	ProofRoot  hashes.Hash
	KernelRoot hashes.Hash
	OutputMMRSize uint64
	KernelMMRSize uint64
	TotalDifficulty uint64
	TotalKernelOffset [32]byte
	SecondaryScaling uint32
	Nonce      uint64
	ProofOfWork []byte
}

// Serialize encodes the header in fixed field order, matching the on-wire
// header layout: big-endian integers, 32-byte raw hashes.
func (h *Header) Serialize() []byte {
	size := 2 + 8 + hashes.Size + 8 + hashes.Size*3 + 8 + 8 + 8 + 32 + 4 + 8 + 2 + len(h.ProofOfWork)
	buf := make([]byte, 0, size)
	buf = appendUint16(buf, h.Version)
	buf = appendUint64(buf, h.Height)
	buf = append(buf, h.PrevHash.Bytes()...)
	buf = appendUint64(buf, uint64(h.Timestamp))
	buf = append(buf, h.OutputRoot.Bytes()...)
	buf = append(buf, h.ProofRoot.Bytes()...)
	buf = append(buf, h.KernelRoot.Bytes()...)
	buf = appendUint64(buf, h.OutputMMRSize)
	buf = appendUint64(buf, h.KernelMMRSize)
	buf = appendUint64(buf, h.TotalDifficulty)
	buf = append(buf, h.TotalKernelOffset[:]...)
	buf = appendUint32(buf, h.SecondaryScaling)
	buf = appendUint64(buf, h.Nonce)
	buf = appendUint16(buf, uint16(len(h.ProofOfWork)))
	buf = append(buf, h.ProofOfWork...)
	return buf
}

// Hash returns the header's deterministic identity hash: Blake2b-256 over
// its serialized form.
func (h *Header) Hash() hashes.Hash {
	return hashes.Hash(wcrypto.Hash256(h.Serialize()))
}

// DeserializeHeader decodes a header from its Serialize form, shared by the
// block store's on-disk codec and the wire protocol's header codec so
// neither has to keep its own copy of the field layout.
func DeserializeHeader(raw []byte) (*Header, error) {
	r := bytes.NewReader(raw)
	h := &Header{}

	readUint16 := func() (uint16, error) {
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint16(b[:]), nil
	}
	readUint32 := func() (uint32, error) {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint32(b[:]), nil
	}
	readUint64 := func() (uint64, error) {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint64(b[:]), nil
	}
	readHash := func() (hashes.Hash, error) {
		var hsh hashes.Hash
		if _, err := io.ReadFull(r, hsh[:]); err != nil {
			return hashes.Hash{}, err
		}
		return hsh, nil
	}

	var err error
	if h.Version, err = readUint16(); err != nil {
		return nil, errors.Wrap(err, "version")
	}
	if h.Height, err = readUint64(); err != nil {
		return nil, errors.Wrap(err, "height")
	}
	if h.PrevHash, err = readHash(); err != nil {
		return nil, errors.Wrap(err, "prev hash")
	}
	ts, err := readUint64()
	if err != nil {
		return nil, errors.Wrap(err, "timestamp")
	}
	h.Timestamp = int64(ts)
	if h.OutputRoot, err = readHash(); err != nil {
		return nil, errors.Wrap(err, "output root")
	}
	if h.ProofRoot, err = readHash(); err != nil {
		return nil, errors.Wrap(err, "proof root")
	}
	if h.KernelRoot, err = readHash(); err != nil {
		return nil, errors.Wrap(err, "kernel root")
	}
	if h.OutputMMRSize, err = readUint64(); err != nil {
		return nil, errors.Wrap(err, "output mmr size")
	}
	if h.KernelMMRSize, err = readUint64(); err != nil {
		return nil, errors.Wrap(err, "kernel mmr size")
	}
	if h.TotalDifficulty, err = readUint64(); err != nil {
		return nil, errors.Wrap(err, "total difficulty")
	}
	if _, err := io.ReadFull(r, h.TotalKernelOffset[:]); err != nil {
		return nil, errors.Wrap(err, "total kernel offset")
	}
	if h.SecondaryScaling, err = readUint32(); err != nil {
		return nil, errors.Wrap(err, "secondary scaling")
	}
	if h.Nonce, err = readUint64(); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	powLen, err := readUint16()
	if err != nil {
		return nil, errors.Wrap(err, "proof of work length")
	}
	h.ProofOfWork = make([]byte, powLen)
	if _, err := io.ReadFull(r, h.ProofOfWork); err != nil {
		return nil, errors.Wrap(err, "proof of work")
	}

	return h, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
