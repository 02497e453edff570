package txhashset

import (
	"bytes"
	"encoding/binary"

	"github.com/mw-labs/mwnode/internal/wcrypto"
	"github.com/pkg/errors"
)

// outputRecord is the payload stored in the output data file for each
// leaf: the commitment the UTXO bitmap and commitment index key on, and
// the range proof a Verifier checks it against.
type outputRecord struct {
	Commitment wcrypto.Commitment
	Proof      wcrypto.RangeProof
}

func encodeOutputRecord(r outputRecord) []byte {
	var buf bytes.Buffer
	buf.Write(r.Commitment[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(r.Proof)))
	buf.Write(lenBuf[:])
	buf.Write(r.Proof)
	return buf.Bytes()
}

func decodeOutputRecord(raw []byte) (outputRecord, error) {
	if len(raw) < len(wcrypto.Commitment{})+4 {
		return outputRecord{}, errors.New("truncated output record")
	}
	var r outputRecord
	copy(r.Commitment[:], raw[:len(r.Commitment)])
	raw = raw[len(r.Commitment):]
	proofLen := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	if uint32(len(raw)) < proofLen {
		return outputRecord{}, errors.New("truncated output record proof")
	}
	r.Proof = append(wcrypto.RangeProof(nil), raw[:proofLen]...)
	return r, nil
}
