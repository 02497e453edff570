// Package wcrypto defines the cryptographic primitives the chain consumes
// as external collaborators (spec §1/§6): Blake2b hashing for the MMRs, and
// Pedersen-commitment arithmetic for the sum-of-commitments identity that
// TxHashSet.Validate checks. Range proofs and kernel signature verification
// are defined behind the Verifier interface; the default implementation,
// Secp256k1Verifier (verifier.go), checks kernel signatures as ECDSA over
// secp256k1 and checks range proofs for length only, without Bulletproof
// verification.
package wcrypto

import (
	"golang.org/x/crypto/blake2b"
)

// Hash256 hashes data with Blake2b-256, the primitive the MMR engine and
// header hashing build on throughout the chain.
func Hash256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// Commitment is a serialized Pedersen commitment: a 33-byte compressed
// secp256k1 point, `r*G + v*H`.
type Commitment [33]byte

// RangeProof is an opaque serialized Bulletproof. The node never inspects
// its contents directly; it is only ever handed to a Verifier.
type RangeProof []byte

// Signature is an opaque serialized kernel excess signature.
type Signature []byte

// Committer performs the Pedersen-commitment arithmetic needed to check the
// sum-of-commitments identity: sum(output commitments) - sum(kernel
// excesses) == offset*G.
type Committer interface {
	// Sum adds a set of commitments together, returning their combined
	// commitment.
	Sum(commitments []Commitment) (Commitment, error)
	// Negate returns the additive inverse of a commitment.
	Negate(c Commitment) (Commitment, error)
	// VerifyZeroSum checks that positives summed, minus negatives summed,
	// minus excessOffset (an offset*G commitment, e.g. from CommitScalarG),
	// equals the identity commitment. A zero-value excessOffset means no
	// offset.
	VerifyZeroSum(positives, negatives []Commitment, excessOffset Commitment) error
	// CommitScalarG returns scalar*G as a Commitment, letting a raw
	// accumulated kernel offset be passed to VerifyZeroSum.
	CommitScalarG(scalar [32]byte) (Commitment, error)
}

// Verifier validates range proofs and kernel signatures. A TxHashSet never
// decides tx validity on its own; it delegates to a Verifier so the actual
// secp256k1/bulletproof library stays swappable.
type Verifier interface {
	VerifyRangeProof(commitment Commitment, proof RangeProof) error
	VerifyKernelSignature(excess Commitment, msg [32]byte, sig Signature) error
}
