package config

// Dex defines network endpoints for on-chain liquidity changes.
type Dex struct {
	Chain       string `yaml:"chain"` // e.g. "solana"
	RpcURL      string `yaml:"rpc_url"`
	Commitment  string `yaml:"commitment"`   // processed|confirmed|finalized
	BuilderBase string `yaml:"builder_base"` // liquidity transaction builder API
	PriorityFee uint64 `yaml:"priority_fee_lamports"`
}

// Wallet stores env-backed signing material metadata.
type Wallet struct {
	PrivateKeyBase58 string `yaml:"private_key_base58"`
}
