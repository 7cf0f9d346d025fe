package build

import (
	"sort"

	"github.com/samber/lo"
	"golang.org/x/xerrors"
)

// Network modes.
const (
	Moonbeam  = "moonbeam"
	Moonbase  = "moonbase"
	Localhost = "localhost"
)

// DefaultNetwork is used when no network mode is configured.
const DefaultNetwork = Moonbeam

// NetworkBundle holds the endpoints of one deployment of the marketplace.
// Contract addresses are hex strings; an empty address must be supplied by
// configuration.
type NetworkBundle struct {
	RPCURL  string
	ChainID uint64

	USDC         string
	QueryManager string
	EoaBond      string
	UserRole     string

	// WorkerKey is the hex X25519 public key of the enclave worker.
	WorkerKey string
}

var networks = map[string]NetworkBundle{
	Moonbeam: {
		RPCURL:  "https://rpc.api.moonbeam.network",
		ChainID: 1284,
	},
	Moonbase: {
		RPCURL:  "https://rpc.api.moonbase.moonbeam.network",
		ChainID: 1287,
	},
	// Deterministic addresses of a fresh hardhat node deploying USDC,
	// UserRole, EoaBond and QueryManager in that order.
	Localhost: {
		RPCURL:       "http://127.0.0.1:8545",
		ChainID:      31337,
		USDC:         "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		UserRole:     "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
		EoaBond:      "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0",
		QueryManager: "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9",
	},
}

// Network returns the bundle of a known network mode.
func Network(mode string) (NetworkBundle, error) {
	b, ok := networks[mode]
	if !ok {
		return NetworkBundle{}, xerrors.Errorf("unknown network mode %q, known modes: %v", mode, Networks())
	}
	return b, nil
}

func Networks() []string {
	out := lo.Keys(networks)
	sort.Strings(out)
	return out
}
