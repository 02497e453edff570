package wire

import "fmt"

// Kind identifies a message's payload type on the wire. It is the
// single byte following the 4-byte length prefix in every framed
// message.
type Kind byte

const (
	KindHandshake Kind = iota + 1
	KindPing
	KindPong
	KindGetPeerAddresses
	KindPeerAddresses
	KindGetHeaders
	KindHeaders
	KindGetBlock
	KindBlock
	KindGetCompactBlock
	KindCompactBlock
	KindTxHashSetRequest
	KindTxHashSetArchive
	KindTransaction
)

var kindNames = map[Kind]string{
	KindHandshake:         "Handshake",
	KindPing:              "Ping",
	KindPong:              "Pong",
	KindGetPeerAddresses:  "GetPeerAddresses",
	KindPeerAddresses:     "PeerAddresses",
	KindGetHeaders:        "GetHeaders",
	KindHeaders:           "Headers",
	KindGetBlock:          "GetBlock",
	KindBlock:             "Block",
	KindGetCompactBlock:   "GetCompactBlock",
	KindCompactBlock:      "CompactBlock",
	KindTxHashSetRequest:  "TxHashSetRequest",
	KindTxHashSetArchive:  "TxHashSetArchive",
	KindTransaction:       "Transaction",
}

// String returns the message kind's name, or "Unknown(n)" for an
// unrecognized byte value.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", byte(k))
}
