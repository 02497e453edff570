package wcrypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
)

// minBulletproofLen is the serialized size of a single-value Bulletproof
// range proof over secp256k1 (a fixed set of compressed points and scalars
// regardless of the committed value). Proofs shorter than this cannot be
// well-formed.
const minBulletproofLen = 675

// Secp256k1Verifier is the default Verifier. It uses the same secp256k1
// library as Secp256k1Committer for kernel signature checks, and performs
// a structural length check for range proofs: no Bulletproof verification
// library is available to this node, so range proofs are accepted on shape
// alone rather than cryptographically checked. See the package's adopting
// node binary for the caveats this implies.
type Secp256k1Verifier struct {
	minRangeProofLen int
}

// NewSecp256k1Verifier returns the default Verifier implementation.
func NewSecp256k1Verifier() *Secp256k1Verifier {
	return &Secp256k1Verifier{minRangeProofLen: minBulletproofLen}
}

// VerifyRangeProof implements Verifier. It checks only that proof is
// long enough to be a well-formed Bulletproof; it does not check that the
// committed value actually lies in range, since no Bulletproof verifier is
// available here.
func (v *Secp256k1Verifier) VerifyRangeProof(commitment Commitment, proof RangeProof) error {
	if len(proof) < v.minRangeProofLen {
		return errors.Errorf("range proof too short: got %d bytes, want at least %d", len(proof), v.minRangeProofLen)
	}
	return nil
}

// VerifyKernelSignature implements Verifier, checking sig against excess
// (parsed as the signing public key) and msg.
func (v *Secp256k1Verifier) VerifyKernelSignature(excess Commitment, msg [32]byte, sig Signature) error {
	pub, err := secp256k1.ParsePubKey(excess[:])
	if err != nil {
		return errors.Wrap(err, "invalid kernel excess commitment")
	}

	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return errors.Wrap(err, "malformed kernel signature")
	}

	if !parsedSig.Verify(msg[:], pub) {
		return errors.New("kernel signature verification failed")
	}
	return nil
}
