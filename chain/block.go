package chain

import "github.com/mw-labs/mwnode/internal/wcrypto"

// Input references a prior output by its commitment.
type Input struct {
	Commitment wcrypto.Commitment
}

// Output is a commitment plus the range proof attesting its value is
// non-negative, without revealing it.
type Output struct {
	Commitment wcrypto.Commitment
	Proof      wcrypto.RangeProof
}

// Kernel commits a transaction's balance proof: the excess is a public
// key whose corresponding private key is the blinding-factor difference
// between a transaction's outputs and inputs.
type Kernel struct {
	Excess    wcrypto.Commitment
	Signature wcrypto.Signature
	Fee       uint64
	LockHeight uint64
}

// Transaction bundles the inputs it spends, the outputs it creates, and
// the kernels attesting its balance.
type Transaction struct {
	Inputs  []Input
	Outputs []Output
	Kernels []Kernel
}

// Block is a header plus the transaction data it commits to.
type Block struct {
	Header *Header
	Inputs  []Input
	Outputs []Output
	Kernels []Kernel
}
