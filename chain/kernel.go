package chain

import (
	"encoding/binary"

	"github.com/mw-labs/mwnode/internal/wcrypto"
)

// KernelSigMessage is the fixed-size message a kernel's excess signature
// commits to: its fee and lock height, the two fields a kernel carries
// outside the excess commitment itself.
func KernelSigMessage(k Kernel) [32]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], k.Fee)
	binary.BigEndian.PutUint64(buf[8:], k.LockHeight)
	return wcrypto.Hash256(buf[:])
}
