// Package contracts holds the ABIs of the marketplace contracts and the
// capability descriptors derived from them.
package contracts

import (
	"embed"
	"sync"

	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/chain/ethabi"
)

// Contract names one of the logical contracts a client talks to.
type Contract string

const (
	USDC         Contract = "usdc"
	QueryManager Contract = "queryManager"
	EoaBond      Contract = "eoaBond"
	UserRole     Contract = "userRole"
)

var All = []Contract{USDC, QueryManager, EoaBond, UserRole}

// ABI artifact names.
const (
	QueryManagerABI  = "QueryManager"
	USDCABI          = "USDC"
	EoaBondABI       = "EoaBond"
	EoaBondLegacyABI = "EoaBondLegacy"
	UserRoleABI      = "UserRole"
)

//go:embed abi/*.json
var abiFS embed.FS

var (
	parsedLk sync.Mutex
	parsed   = map[string]*ethabi.ABI{}
)

// Load returns the embedded ABI with the given artifact name.
func Load(name string) (*ethabi.ABI, error) {
	parsedLk.Lock()
	defer parsedLk.Unlock()

	if a, ok := parsed[name]; ok {
		return a, nil
	}
	raw, err := abiFS.ReadFile("abi/" + name + ".json")
	if err != nil {
		return nil, xerrors.Errorf("unknown contract abi %q: %w", name, err)
	}
	a, err := ethabi.ParseJSON(raw)
	if err != nil {
		return nil, xerrors.Errorf("parsing %s abi: %w", name, err)
	}
	parsed[name] = a
	return a, nil
}

func MustLoad(name string) *ethabi.ABI {
	a, err := Load(name)
	if err != nil {
		panic(err)
	}
	return a
}

// ABIs maps each logical contract to its ABI.
type ABIs map[Contract]*ethabi.ABI

// DefaultABIs returns the ABIs of the current contract generation. With
// legacyBond set, the policy registry uses the older ABI without
// identity-disclosure operations.
func DefaultABIs(legacyBond bool) ABIs {
	bond := EoaBondABI
	if legacyBond {
		bond = EoaBondLegacyABI
	}
	return ABIs{
		USDC:         MustLoad(USDCABI),
		QueryManager: MustLoad(QueryManagerABI),
		EoaBond:      MustLoad(bond),
		UserRole:     MustLoad(UserRoleABI),
	}
}
