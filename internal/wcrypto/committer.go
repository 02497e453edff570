package wcrypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// Secp256k1Committer is the default Committer, performing real elliptic
// curve point addition over secp256k1 via decred's field/point arithmetic.
// It is the one piece of cryptography the node does not treat as an opaque
// external collaborator, because the sum-of-commitments identity is
// load-bearing block-validation logic, not merely a display concern.
type Secp256k1Committer struct{}

// NewSecp256k1Committer returns the default Committer implementation.
func NewSecp256k1Committer() *Secp256k1Committer {
	return &Secp256k1Committer{}
}

func parseCommitment(c Commitment) (*secp256k1.JacobianPoint, error) {
	pub, err := secp256k1.ParsePubKey(c[:])
	if err != nil {
		return nil, errors.Wrap(err, "invalid commitment")
	}
	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	return &p, nil
}

func toCommitment(p *secp256k1.JacobianPoint) Commitment {
	p.ToAffine()
	pub := secp256k1.NewPublicKey(&p.X, &p.Y)
	var c Commitment
	copy(c[:], pub.SerializeCompressed())
	return c
}

// Sum implements Committer.
func (Secp256k1Committer) Sum(commitments []Commitment) (Commitment, error) {
	var acc secp256k1.JacobianPoint
	acc.Z.SetInt(0) // point at infinity

	first := true
	for _, c := range commitments {
		p, err := parseCommitment(c)
		if err != nil {
			return Commitment{}, err
		}
		if first {
			acc = *p
			first = false
			continue
		}
		var sum secp256k1.JacobianPoint
		secp256k1.AddNonConst(&acc, p, &sum)
		acc = sum
	}
	if first {
		return Commitment{}, errors.New("cannot sum zero commitments")
	}
	if (acc.X.IsZero() && acc.Y.IsZero()) || acc.Z.IsZero() {
		// The sum collapsed to the point at infinity: the identity element,
		// represented as the all-zero Commitment.
		return Commitment{}, nil
	}
	return toCommitment(&acc), nil
}

// CommitScalarG implements Committer.
func (Secp256k1Committer) CommitScalarG(scalar [32]byte) (Commitment, error) {
	if scalar == ([32]byte{}) {
		// 0*G is the identity element, represented as the all-zero Commitment.
		return Commitment{}, nil
	}
	priv := secp256k1.PrivKeyFromBytes(scalar[:])
	var c Commitment
	copy(c[:], priv.PubKey().SerializeCompressed())
	return c, nil
}

// Negate implements Committer.
func (Secp256k1Committer) Negate(c Commitment) (Commitment, error) {
	p, err := parseCommitment(c)
	if err != nil {
		return Commitment{}, err
	}
	p.ToAffine()
	p.Y.Negate(1).Normalize()
	return toCommitment(p), nil
}

// VerifyZeroSum implements Committer.
func (sc Secp256k1Committer) VerifyZeroSum(positives, negatives []Commitment, excessOffset Commitment) error {
	all := make([]Commitment, 0, len(positives)+len(negatives)+1)
	all = append(all, positives...)

	// A zero-value excessOffset means "no kernel offset", not a degenerate
	// curve point; parsing it as a public key would always fail, so treat
	// it as the identity element and skip negating it into the sum.
	if excessOffset != (Commitment{}) {
		negated, err := sc.Negate(excessOffset)
		if err != nil {
			return err
		}
		all = append(all, negated)
	}

	for _, n := range negatives {
		neg, err := sc.Negate(n)
		if err != nil {
			return err
		}
		all = append(all, neg)
	}

	if len(all) == 0 {
		return nil
	}

	sum, err := sc.Sum(all)
	if err != nil {
		return err
	}
	if sum != (Commitment{}) && !isIdentity(sum) {
		return errors.New("commitment sum does not net to zero")
	}
	return nil
}

// isIdentity reports whether a summed Jacobian point collapsed to the
// point at infinity; callers reaching VerifyZeroSum always expect a
// well-formed curve point, so a zero commitment here is only ever the
// literal identity element, never a parse failure.
func isIdentity(c Commitment) bool {
	for _, b := range c {
		if b != 0 {
			return false
		}
	}
	return true
}
