package wire

import "io"

// Ping announces the sender's current chain tip; Pong echoes the same
// fields back.
type Ping struct {
	TotalDifficulty uint64
	Height          uint64
}

func (m *Ping) Kind() Kind { return KindPing }

func (m *Ping) Encode(w io.Writer) error {
	if err := writeUint64(w, m.TotalDifficulty); err != nil {
		return err
	}
	return writeUint64(w, m.Height)
}

func (m *Ping) Decode(r io.Reader) error {
	var err error
	if m.TotalDifficulty, err = readUint64(r); err != nil {
		return err
	}
	m.Height, err = readUint64(r)
	return err
}

// Pong carries the same fields as Ping, in reply.
type Pong struct {
	TotalDifficulty uint64
	Height          uint64
}

func (m *Pong) Kind() Kind { return KindPong }

func (m *Pong) Encode(w io.Writer) error {
	if err := writeUint64(w, m.TotalDifficulty); err != nil {
		return err
	}
	return writeUint64(w, m.Height)
}

func (m *Pong) Decode(r io.Reader) error {
	var err error
	if m.TotalDifficulty, err = readUint64(r); err != nil {
		return err
	}
	m.Height, err = readUint64(r)
	return err
}
