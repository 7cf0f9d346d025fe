package ledgersim

import (
	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

type Policy struct {
	ID                   big.Int
	AllowedCategories    []string
	AllowedAddresses     []ethtypes.EthAddress
	AllowedColumns       []string
	ExpDate              uint64
	Price                big.Int
	Owner                ethtypes.EthAddress
	Deactivated          bool
	DisclosureOperations []string
}

type Bucket struct {
	ID            big.Int
	PolicyIDs     []big.Int
	UseAllowlists []bool
	DataFormat    string
	NodeAddress   ethtypes.EthAddress
	Owner         ethtypes.EthAddress
	Deactivated   bool
}

// useAllowlist reports whether the policy at index i restricts access to
// its allowed addresses.
func (b *Bucket) useAllowlist(i int) bool {
	return i < len(b.UseAllowlists) && b.UseAllowlists[i]
}

type Query struct {
	User          ethtypes.EthAddress
	UserIndex     uint64
	Envelope      string
	Result        string
	Price         big.Int
	BucketIDs     []big.Int
	PolicyIndexes []big.Int
}

type allowanceKey struct {
	owner, spender ethtypes.EthAddress
}

type state struct {
	roles      map[ethtypes.EthAddress]string
	balances   map[ethtypes.EthAddress]big.Int
	allowances map[allowanceKey]big.Int

	policies map[string]*Policy
	buckets  map[string]*Bucket
	queries  map[ethtypes.EthAddress][]*Query

	// paid holds queries paid in the current transaction, handed to the
	// worker once it is mined.
	paid []*Query
}

func newState() *state {
	return &state{
		roles:      map[ethtypes.EthAddress]string{},
		balances:   map[ethtypes.EthAddress]big.Int{},
		allowances: map[allowanceKey]big.Int{},
		policies:   map[string]*Policy{},
		buckets:    map[string]*Bucket{},
		queries:    map[ethtypes.EthAddress][]*Query{},
	}
}

func (s *state) balance(addr ethtypes.EthAddress) big.Int {
	if b, ok := s.balances[addr]; ok {
		return b
	}
	return big.Zero()
}

func (s *state) allowance(owner, spender ethtypes.EthAddress) big.Int {
	if a, ok := s.allowances[allowanceKey{owner, spender}]; ok {
		return a
	}
	return big.Zero()
}

func (s *state) takePaid() []*Query {
	p := s.paid
	s.paid = nil
	return p
}
