package wire

import (
	"encoding/binary"
	"io"

	"github.com/mw-labs/mwnode/internal/hashes"
	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/pkg/errors"
)

// The write*/read* helpers below are the shared field-level codec every
// message payload builds on, following the same big-endian,
// length-prefixed-variable-field convention as the block store's codec.

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return errors.WithStack(err)
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return errors.WithStack(err)
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return errors.WithStack(err)
}

func writeHash(w io.Writer, h hashes.Hash) error {
	_, err := w.Write(h.Bytes())
	return errors.WithStack(err)
}

// writeBytes writes a 4-byte big-endian length followed by b.
func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return errors.WithStack(err)
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readHash(r io.Reader) (hashes.Hash, error) {
	var b [hashes.Size]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return hashes.Hash{}, errors.WithStack(err)
	}
	return hashes.FromSlice(b[:])
}

// maxFieldLength bounds any single length-prefixed field read from the
// wire, so a corrupt or hostile peer cannot force an unbounded
// allocation from a forged length prefix.
const maxFieldLength = 32 << 20

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxFieldLength {
		return nil, errors.Errorf("field length %d exceeds maximum %d", n, maxFieldLength)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// readFull wraps io.ReadFull with stack-annotated errors, for payload
// fields too small to warrant their own typed helper.
func readFull(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

func writeCommitment(w io.Writer, c wcrypto.Commitment) error {
	_, err := w.Write(c[:])
	return errors.WithStack(err)
}

func readCommitment(r io.Reader) (wcrypto.Commitment, error) {
	var c wcrypto.Commitment
	if _, err := io.ReadFull(r, c[:]); err != nil {
		return c, errors.WithStack(err)
	}
	return c, nil
}
