package core

type Config struct {
	// Prover node configuration
	ProverPort     int
	BootstrapPeers []string

	// Settlement RPC configuration, 0 disables the server
	RPCPort int

	// Executor configuration
	ExecutorKey     string // hex secp256k1 key sealing receipts
	TrustedExecutor string // address whose receipts verifiers accept

	// Accumulator configuration
	MerkleTreeDepth int
	RootHistorySize int

	// Verification
	VerifyConcurrency int

	LogLevel string
}

func DefaultConfig() *Config {
	return &Config{
		ProverPort:        9000,
		MerkleTreeDepth:   20, // ~1M notes
		RootHistorySize:   100,
		VerifyConcurrency: 4,
		LogLevel:          "info",
	}
}
