package config

// Params holds the per-network constants a node needs at startup,
// following the teacher's NetworkFlags/dagconfig.Params split between
// "which network" and "what that network's constants are" — scaled
// down to the handful of constants this node actually consumes.
type Params struct {
	Name          string
	DefaultPort   string
	FinalityDepth uint64
}

var mainNetParams = Params{
	Name:          "mainnet",
	DefaultPort:   "3414",
	FinalityDepth: 1440,
}

var testNetParams = Params{
	Name:          "testnet",
	DefaultPort:   "13414",
	FinalityDepth: 60,
}

// NetworkFlags selects the active network. Exactly one of its boolean
// fields may be set; TestNet defaulting false means mainnet.
type NetworkFlags struct {
	TestNet bool `long:"testnet" description:"Use the test network"`
}

// resolveNetwork returns the Params for the selected network.
func (f *NetworkFlags) resolveNetwork() *Params {
	if f.TestNet {
		return &testNetParams
	}
	return &mainNetParams
}
