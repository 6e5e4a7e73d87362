package solana

import "strings"

type Environment string

const (
	EnvironmentDev   Environment = "https://api.devnet.solana.com"
	EnvironmentTest  Environment = "https://api.testnet.solana.com"
	EnvironmentProd  Environment = "https://api.mainnet-beta.solana.com"
	EnvironmentLocal Environment = "http://127.0.0.1:8899"
)

// EndpointFor resolves a cluster moniker to its public RPC endpoint. Anything
// that isn't a known moniker is treated as an endpoint URL.
func EndpointFor(cluster string) string {
	switch strings.ToLower(cluster) {
	case "devnet", "":
		return string(EnvironmentDev)
	case "testnet":
		return string(EnvironmentTest)
	case "mainnet", "mainnet-beta":
		return string(EnvironmentProd)
	case "localnet", "localhost":
		return string(EnvironmentLocal)
	}
	return cluster
}
