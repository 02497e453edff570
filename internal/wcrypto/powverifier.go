package wcrypto

import (
	"math/big"

	"github.com/pkg/errors"
)

// maxTarget is the loosest possible proof-of-work target: difficulty 1
// maps to this value, exactly as Bitcoin/kaspad's pow-limit anchors their
// compact-difficulty encoding.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PoWVerifier checks a header's claimed proof-of-work against the
// difficulty it claims to have been mined at.
type PoWVerifier interface {
	// VerifyProofOfWork reports whether headerHash, interpreted as a
	// big-endian integer, is at or below the target difficulty implies.
	// difficulty must be greater than zero.
	VerifyProofOfWork(headerHash [32]byte, difficulty uint64) error
}

// TargetPoWVerifier is the default PoWVerifier: it derives a target from
// the claimed difficulty (target = maxTarget/difficulty, so higher
// difficulty means a smaller, harder-to-hit target) and requires the
// header hash not exceed it, mirroring kaspad's checkProofOfWork
// (block_header_in_isolation.go) adapted from a compact-bits target to a
// difficulty-derived one. It does not verify a Cuckoo-cycle solution
// against the header's ProofOfWork bytes -- no such verifier is available
// to this node, the same gap VerifyRangeProof documents for Bulletproofs.
type TargetPoWVerifier struct{}

// NewTargetPoWVerifier returns the default PoWVerifier implementation.
func NewTargetPoWVerifier() *TargetPoWVerifier {
	return &TargetPoWVerifier{}
}

// VerifyProofOfWork implements PoWVerifier.
func (v *TargetPoWVerifier) VerifyProofOfWork(headerHash [32]byte, difficulty uint64) error {
	target := targetForDifficulty(difficulty)
	hashNum := new(big.Int).SetBytes(headerHash[:])
	if hashNum.Cmp(target) > 0 {
		return errors.Errorf("header hash %x exceeds target %x for claimed difficulty %d", headerHash, target, difficulty)
	}
	return nil
}

func targetForDifficulty(difficulty uint64) *big.Int {
	if difficulty == 0 {
		difficulty = 1
	}
	return new(big.Int).Div(maxTarget, new(big.Int).SetUint64(difficulty))
}
