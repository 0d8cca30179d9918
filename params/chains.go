package params

// Supported chains. Every chain is addressed through the unified explorer
// endpoint by its numeric chain id, so adding a chain is a single map entry
// plus an RPC endpoint in the config.
const (
	ChainEthereum = "ethereum"
	ChainPolygon  = "polygon"
	ChainArbitrum = "arbitrum"
	ChainBase     = "base"
	ChainZkSync   = "zksync"
)

// ChainIDs maps a chain name to the numeric id expected by the explorer API.
// The values are wire-level identifiers and must not change.
var ChainIDs = map[string]int{
	ChainEthereum: 1,
	ChainPolygon:  137,
	ChainArbitrum: 42161,
	ChainBase:     8453,
	ChainZkSync:   324,
}

// DefaultRPCEndpoints are the public JSON-RPC endpoints used for direct
// on-chain reads when no endpoint is configured.
var DefaultRPCEndpoints = map[string]string{
	ChainEthereum: "https://eth.llamarpc.com",
	ChainPolygon:  "https://polygon-rpc.com",
	ChainArbitrum: "https://arb1.arbitrum.io/rpc",
	ChainBase:     "https://mainnet.base.org",
	ChainZkSync:   "https://mainnet.era.zksync.io",
}

// SupportedChains returns the chain names in a stable order.
func SupportedChains() []string {
	return []string{ChainEthereum, ChainPolygon, ChainArbitrum, ChainBase, ChainZkSync}
}

// IsSupported reports whether the chain name is known.
func IsSupported(chain string) bool {
	_, ok := ChainIDs[chain]
	return ok
}
