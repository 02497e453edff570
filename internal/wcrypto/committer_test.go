package wcrypto

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func commitScalar(t *testing.T, c *Secp256k1Committer, scalar byte) Commitment {
	t.Helper()
	var buf [32]byte
	buf[31] = scalar
	commitment, err := c.CommitScalarG(buf)
	if err != nil {
		t.Fatalf("CommitScalarG(%d): %v", scalar, err)
	}
	return commitment
}

func TestCommitScalarGIsDeterministic(t *testing.T) {
	c := NewSecp256k1Committer()
	a := commitScalar(t, c, 7)
	b := commitScalar(t, c, 7)
	if a != b {
		t.Fatalf("CommitScalarG(7) was not deterministic: %x != %x", a, b)
	}
}

func TestNegateRoundTrips(t *testing.T) {
	c := NewSecp256k1Committer()
	commitment := commitScalar(t, c, 3)

	negated, err := c.Negate(commitment)
	if err != nil {
		t.Fatalf("Negate: %v", err)
	}
	if negated == commitment {
		t.Fatalf("Negate returned the same commitment")
	}

	roundTripped, err := c.Negate(negated)
	if err != nil {
		t.Fatalf("Negate(Negate(x)): %v", err)
	}
	if roundTripped != commitment {
		t.Fatalf("Negate(Negate(x)) = %x, want %x", roundTripped, commitment)
	}
}

func TestSumOfCommitmentAndItsNegationIsIdentity(t *testing.T) {
	c := NewSecp256k1Committer()
	commitment := commitScalar(t, c, 5)
	negated, err := c.Negate(commitment)
	if err != nil {
		t.Fatalf("Negate: %v", err)
	}

	if err := c.VerifyZeroSum([]Commitment{commitment, negated}, nil, Commitment{}); err != nil {
		t.Fatalf("VerifyZeroSum: %v", err)
	}
}

func TestVerifyZeroSumRejectsUnbalancedSum(t *testing.T) {
	c := NewSecp256k1Committer()
	commitment := commitScalar(t, c, 5)
	other := commitScalar(t, c, 6)

	if err := c.VerifyZeroSum([]Commitment{commitment}, nil, other); err == nil {
		t.Fatalf("expected VerifyZeroSum to reject an unbalanced sum")
	}
}

func TestSumMatchesDirectPointAddition(t *testing.T) {
	c := NewSecp256k1Committer()
	a := commitScalar(t, c, 2)
	b := commitScalar(t, c, 3)

	summed, err := c.Sum([]Commitment{a, b})
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	expected := commitScalar(t, c, 5)
	if summed != expected {
		t.Fatalf("Sum(2*G, 3*G) = %x, want %x (5*G)", summed, expected)
	}
}

func TestSumRejectsMalformedCommitment(t *testing.T) {
	c := NewSecp256k1Committer()
	var bad Commitment
	bad[0] = 0x04 // not a valid compressed-point prefix

	if _, err := c.Sum([]Commitment{bad}); err == nil {
		t.Fatalf("expected Sum to reject a malformed commitment")
	}
}

func TestSumOfNoCommitmentsErrors(t *testing.T) {
	c := NewSecp256k1Committer()
	if _, err := c.Sum(nil); err == nil {
		t.Fatalf("expected Sum of zero commitments to error")
	}
}

func TestParseCommitmentAcceptsRealCompressedPoint(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	var c Commitment
	copy(c[:], priv.PubKey().SerializeCompressed())

	if _, err := parseCommitment(c); err != nil {
		t.Fatalf("parseCommitment: %v", err)
	}
}
