package wire

import "io"

// GetPeerAddresses requests known peer addresses advertising any of the
// requested capabilities (a zero mask matches every peer).
type GetPeerAddresses struct {
	Capabilities uint32
}

func (m *GetPeerAddresses) Kind() Kind { return KindGetPeerAddresses }

func (m *GetPeerAddresses) Encode(w io.Writer) error {
	return writeUint32(w, m.Capabilities)
}

func (m *GetPeerAddresses) Decode(r io.Reader) error {
	var err error
	m.Capabilities, err = readUint32(r)
	return err
}

// PeerAddress is one advertised peer endpoint.
type PeerAddress struct {
	IP           [16]byte
	Port         uint16
	Capabilities uint32
}

// PeerAddresses answers a GetPeerAddresses request.
type PeerAddresses struct {
	Addresses []PeerAddress
}

func (m *PeerAddresses) Kind() Kind { return KindPeerAddresses }

func (m *PeerAddresses) Encode(w io.Writer) error {
	if err := writeUint32(w, uint32(len(m.Addresses))); err != nil {
		return err
	}
	for _, a := range m.Addresses {
		if _, err := w.Write(a.IP[:]); err != nil {
			return err
		}
		if err := writeUint16(w, a.Port); err != nil {
			return err
		}
		if err := writeUint32(w, a.Capabilities); err != nil {
			return err
		}
	}
	return nil
}

func (m *PeerAddresses) Decode(r io.Reader) error {
	count, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Addresses = make([]PeerAddress, count)
	for i := range m.Addresses {
		if _, err := readFull(r, m.Addresses[i].IP[:]); err != nil {
			return err
		}
		if m.Addresses[i].Port, err = readUint16(r); err != nil {
			return err
		}
		if m.Addresses[i].Capabilities, err = readUint32(r); err != nil {
			return err
		}
	}
	return nil
}
