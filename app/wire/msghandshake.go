package wire

import (
	"io"

	"github.com/mw-labs/mwnode/internal/hashes"
)

// Handshake is exchanged by both sides immediately after a connection is
// established. The receiver decides accept/ban from its fields — there
// is no separate accept message; a ban simply closes the connection.
type Handshake struct {
	Version         uint16
	Capabilities    uint32
	TotalDifficulty uint64
	Height          uint64
	Genesis         hashes.Hash
}

func (m *Handshake) Kind() Kind { return KindHandshake }

func (m *Handshake) Encode(w io.Writer) error {
	if err := writeUint16(w, m.Version); err != nil {
		return err
	}
	if err := writeUint32(w, m.Capabilities); err != nil {
		return err
	}
	if err := writeUint64(w, m.TotalDifficulty); err != nil {
		return err
	}
	if err := writeUint64(w, m.Height); err != nil {
		return err
	}
	return writeHash(w, m.Genesis)
}

func (m *Handshake) Decode(r io.Reader) error {
	var err error
	if m.Version, err = readUint16(r); err != nil {
		return err
	}
	if m.Capabilities, err = readUint32(r); err != nil {
		return err
	}
	if m.TotalDifficulty, err = readUint64(r); err != nil {
		return err
	}
	if m.Height, err = readUint64(r); err != nil {
		return err
	}
	m.Genesis, err = readHash(r)
	return err
}
