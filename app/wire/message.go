// Package wire implements the node's peer-to-peer message framing: a
// length-prefixed, typed stream over a net.Conn, following the
// teacher's legacy BtcDecode/BtcEncode message idiom rather than its
// newer gRPC transport, since the protocol here is a small, fixed,
// gossip-style message set rather than a service API.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// maxPayloadLength bounds the 4-byte length prefix so a peer cannot
// force an unbounded read by sending a forged length.
const maxPayloadLength = 32 << 20

// Message is a single wire protocol payload: it knows its own kind and
// how to encode and decode itself.
type Message interface {
	Kind() Kind
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

func newMessage(kind Kind) (Message, error) {
	switch kind {
	case KindHandshake:
		return &Handshake{}, nil
	case KindPing:
		return &Ping{}, nil
	case KindPong:
		return &Pong{}, nil
	case KindGetPeerAddresses:
		return &GetPeerAddresses{}, nil
	case KindPeerAddresses:
		return &PeerAddresses{}, nil
	case KindGetHeaders:
		return &GetHeaders{}, nil
	case KindHeaders:
		return &Headers{}, nil
	case KindGetBlock:
		return &GetBlock{}, nil
	case KindBlock:
		return &Block{}, nil
	case KindGetCompactBlock:
		return &GetCompactBlock{}, nil
	case KindCompactBlock:
		return &CompactBlock{}, nil
	case KindTxHashSetRequest:
		return &TxHashSetRequest{}, nil
	case KindTxHashSetArchive:
		return &TxHashSetArchive{}, nil
	case KindTransaction:
		return &Transaction{}, nil
	default:
		return nil, errors.Errorf("unknown message kind %d", byte(kind))
	}
}

// WriteMessage frames msg as a 4-byte big-endian payload length, a
// 1-byte kind, then the encoded payload, and writes it to w.
func WriteMessage(w io.Writer, msg Message) error {
	var payload bytes.Buffer
	if err := msg.Encode(&payload); err != nil {
		return errors.Wrap(err, "encoding payload")
	}

	var lenBuf [4]byte
	// +1 for the kind byte carried inside the length-prefixed frame.
	binary.BigEndian.PutUint32(lenBuf[:], uint32(payload.Len()+1))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.Write([]byte{byte(msg.Kind())}); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// ReadMessage reads one framed message from r and decodes it.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.WithStack(err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, errors.New("empty message frame")
	}
	if length > maxPayloadLength {
		return nil, errors.Errorf("message length %d exceeds maximum %d", length, maxPayloadLength)
	}

	var kindBuf [1]byte
	if _, err := io.ReadFull(r, kindBuf[:]); err != nil {
		return nil, errors.WithStack(err)
	}
	kind := Kind(kindBuf[0])

	msg, err := newMessage(kind)
	if err != nil {
		return nil, err
	}

	body := io.LimitReader(r, int64(length)-1)
	if err := msg.Decode(body); err != nil {
		return nil, errors.Wrapf(err, "decoding %s payload", kind)
	}
	return msg, nil
}
