package ledgersim

import (
	"github.com/samber/lo"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

const (
	roleAnalyst = "DA"
	roleOwner   = "DO"
)

var disclosureOps = []string{"count", "sum", "mean", "min", "max"}

// call is the execution context of one message. Handlers check every
// condition before touching state, and only write when commit is set.
type call struct {
	node   *Node
	from   ethtypes.EthAddress
	commit bool
}

func (c *call) state() *state {
	return c.node.state
}

type handler func(c *call, args []interface{}) ([]interface{}, *revertErr)

var handlers = map[contracts.Contract]map[string]handler{
	contracts.UserRole: {
		"getUserRole":    getUserRole,
		"DA":             roleConst(roleAnalyst),
		"DO":             roleConst(roleOwner),
		"assignUserRole": assignUserRole,
	},
	contracts.USDC: {
		"approve":   approve,
		"allowance": allowance,
		"balanceOf": balanceOf,
		"decimals":  decimals,
	},
	contracts.QueryManager: {
		"getUserIndex":        getUserIndex,
		"payQuery":            payQuery,
		"getQueryByUserIndex": getQueryByUserIndex,
		"setQueryResult":      setQueryResult,
	},
	contracts.EoaBond: {
		"addPolicy":                       addPolicy,
		"getIdentityDisclosureOperations": getDisclosureOperations,
		"setIdentityDisclosureOperations": setDisclosureOperations,
		"policies":                        policies,
		"getAllowedCategories":            policyStrings(func(p *Policy) []string { return p.AllowedCategories }),
		"getAllowedAddresses":             getAllowedAddresses,
		"getAllowedColumns":               policyStrings(func(p *Policy) []string { return p.AllowedColumns }),
		"deactivatePolicy":                deactivatePolicy,
		"addBucket":                       addBucket,
		"buckets":                         buckets,
		"getPolicyIds":                    getPolicyIds,
		"addPolicyToBucket":               addPolicyToBucket,
	},
}

var errBadArgs = revertMsg("invalid arguments")

func ret(vals ...interface{}) ([]interface{}, *revertErr) {
	return vals, nil
}

// UserRole

func getUserRole(c *call, args []interface{}) ([]interface{}, *revertErr) {
	addr, err := ethabi.AsAddress(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	return ret(c.state().roles[addr])
}

func roleConst(role string) handler {
	return func(*call, []interface{}) ([]interface{}, *revertErr) {
		return ret(role)
	}
}

func assignUserRole(c *call, args []interface{}) ([]interface{}, *revertErr) {
	addr, err := ethabi.AsAddress(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	role, err := ethabi.AsString(args[1])
	if err != nil {
		return nil, errBadArgs
	}
	if c.from != c.node.admin {
		return nil, revertMsg("caller is not the admin")
	}
	if role != roleAnalyst && role != roleOwner {
		return nil, revertWith("InvalidRole", role)
	}
	if c.commit {
		c.state().roles[addr] = role
	}
	return ret()
}

// USDC

func approve(c *call, args []interface{}) ([]interface{}, *revertErr) {
	spender, err := ethabi.AsAddress(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	amount, err := ethabi.AsBigInt(args[1])
	if err != nil {
		return nil, errBadArgs
	}
	if c.commit {
		c.state().allowances[allowanceKey{c.from, spender}] = amount
	}
	return ret(true)
}

func allowance(c *call, args []interface{}) ([]interface{}, *revertErr) {
	owner, err := ethabi.AsAddress(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	spender, err := ethabi.AsAddress(args[1])
	if err != nil {
		return nil, errBadArgs
	}
	return ret(c.state().allowance(owner, spender))
}

func balanceOf(c *call, args []interface{}) ([]interface{}, *revertErr) {
	addr, err := ethabi.AsAddress(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	return ret(c.state().balance(addr))
}

func decimals(*call, []interface{}) ([]interface{}, *revertErr) {
	return ret(uint64(6))
}

// QueryManager

func getUserIndex(c *call, args []interface{}) ([]interface{}, *revertErr) {
	addr, err := ethabi.AsAddress(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	return ret(uint64(len(c.state().queries[addr])))
}

func payQuery(c *call, args []interface{}) ([]interface{}, *revertErr) {
	userIndex, err := ethabi.AsUint64(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	query, err := ethabi.AsString(args[1])
	if err != nil {
		return nil, errBadArgs
	}
	price, err := ethabi.AsBigInt(args[2])
	if err != nil {
		return nil, errBadArgs
	}
	bucketIDs, err := ethabi.AsBigInts(args[3])
	if err != nil {
		return nil, errBadArgs
	}
	policyIndexes, err := ethabi.AsBigInts(args[4])
	if err != nil {
		return nil, errBadArgs
	}

	st := c.state()
	next := uint64(len(st.queries[c.from]))
	if userIndex != next {
		return nil, revertWith("InvalidUserIndex", next)
	}
	if len(bucketIDs) != len(policyIndexes) {
		return nil, revertMsg("bucket ids and policy indexes differ in length")
	}

	expected := big.Zero()
	for i, id := range bucketIDs {
		b, ok := st.buckets[id.String()]
		if !ok {
			return nil, revertWith("BucketNotFound", id)
		}
		if len(b.PolicyIDs) == 0 {
			return nil, revertWith("NoPolicyIdsInBucket", id)
		}
		idx := policyIndexes[i]
		if !idx.Int.IsUint64() || idx.Uint64() >= uint64(len(b.PolicyIDs)) {
			return nil, revertMsg("policy index out of range")
		}
		p := st.policies[b.PolicyIDs[idx.Uint64()].String()]
		if p != nil {
			expected = big.Add(expected, p.Price)
		}
	}
	if !price.Equals(expected) {
		return nil, revertWith("PriceMismatch", expected, price)
	}

	qm := c.node.addrs[contracts.QueryManager]
	available := st.allowance(c.from, qm)
	if available.LessThan(price) {
		return nil, revertWith("InsufficientAllowance", price, available)
	}
	if st.balance(c.from).LessThan(price) {
		return nil, revertMsg("transfer amount exceeds balance")
	}

	if c.commit {
		st.allowances[allowanceKey{c.from, qm}] = big.Sub(available, price)
		st.balances[c.from] = big.Sub(st.balance(c.from), price)
		st.balances[qm] = big.Add(st.balance(qm), price)

		q := &Query{
			User:          c.from,
			UserIndex:     userIndex,
			Envelope:      query,
			Price:         price,
			BucketIDs:     bucketIDs,
			PolicyIndexes: policyIndexes,
		}
		st.queries[c.from] = append(st.queries[c.from], q)
		st.paid = append(st.paid, q)
	}
	return ret()
}

func lookupQuery(c *call, userArg, indexArg interface{}) (*Query, *revertErr) {
	user, err := ethabi.AsAddress(userArg)
	if err != nil {
		return nil, errBadArgs
	}
	idx, err := ethabi.AsUint64(indexArg)
	if err != nil {
		return nil, errBadArgs
	}
	qs := c.state().queries[user]
	if idx >= uint64(len(qs)) {
		return nil, revertWith("QueryNotFound", user, idx)
	}
	return qs[idx], nil
}

func getQueryByUserIndex(c *call, args []interface{}) ([]interface{}, *revertErr) {
	q, rerr := lookupQuery(c, args[0], args[1])
	if rerr != nil {
		return nil, rerr
	}
	return ret([]interface{}{q.User, q.Envelope, q.Result, q.Price, q.BucketIDs, q.PolicyIndexes})
}

func setQueryResult(c *call, args []interface{}) ([]interface{}, *revertErr) {
	q, rerr := lookupQuery(c, args[0], args[1])
	if rerr != nil {
		return nil, rerr
	}
	result, err := ethabi.AsString(args[2])
	if err != nil {
		return nil, errBadArgs
	}
	if c.from != c.node.worker.addr {
		return nil, revertMsg("caller is not the worker")
	}
	if c.commit {
		q.Result = result
	}
	return ret()
}

// EoaBond

func (c *call) requireOwner() *revertErr {
	if c.state().roles[c.from] != roleOwner {
		return revertMsg("caller is not a data owner")
	}
	return nil
}

func (c *call) policy(arg interface{}) (*Policy, big.Int, *revertErr) {
	id, err := ethabi.AsBigInt(arg)
	if err != nil {
		return nil, id, errBadArgs
	}
	p, ok := c.state().policies[id.String()]
	if !ok {
		return nil, id, revertWith("PolicyNotFound", id)
	}
	return p, id, nil
}

func (c *call) ownedPolicy(arg interface{}) (*Policy, *revertErr) {
	p, _, rerr := c.policy(arg)
	if rerr != nil {
		return nil, rerr
	}
	if p.Owner != c.from {
		return nil, revertWith("NotOwner", c.from)
	}
	return p, nil
}

func validOps(ops []string) *revertErr {
	for _, op := range ops {
		if !lo.Contains(disclosureOps, op) {
			return revertWith("InvalidDisclosureOperation", op)
		}
	}
	return nil
}

// addPolicy takes six arguments in the legacy registry and seven, with the
// disclosure operations last, in the current one.
func addPolicy(c *call, args []interface{}) ([]interface{}, *revertErr) {
	if rerr := c.requireOwner(); rerr != nil {
		return nil, rerr
	}
	id, err := ethabi.AsBigInt(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	p := &Policy{ID: id, Owner: c.from, DisclosureOperations: []string{}}
	if p.AllowedCategories, err = ethabi.AsStrings(args[1]); err != nil {
		return nil, errBadArgs
	}
	if p.AllowedAddresses, err = ethabi.AsAddresses(args[2]); err != nil {
		return nil, errBadArgs
	}
	if p.AllowedColumns, err = ethabi.AsStrings(args[3]); err != nil {
		return nil, errBadArgs
	}
	if p.ExpDate, err = ethabi.AsUint64(args[4]); err != nil {
		return nil, errBadArgs
	}
	if p.Price, err = ethabi.AsBigInt(args[5]); err != nil {
		return nil, errBadArgs
	}
	if len(args) > 6 {
		if p.DisclosureOperations, err = ethabi.AsStrings(args[6]); err != nil {
			return nil, errBadArgs
		}
		if rerr := validOps(p.DisclosureOperations); rerr != nil {
			return nil, rerr
		}
	}

	if _, exists := c.state().policies[id.String()]; exists {
		return nil, revertWith("PolicyAlreadyExists", id)
	}
	if c.commit {
		c.state().policies[id.String()] = p
	}
	return ret()
}

func getDisclosureOperations(c *call, args []interface{}) ([]interface{}, *revertErr) {
	p, _, rerr := c.policy(args[0])
	if rerr != nil {
		return nil, rerr
	}
	return ret(p.DisclosureOperations)
}

func setDisclosureOperations(c *call, args []interface{}) ([]interface{}, *revertErr) {
	p, rerr := c.ownedPolicy(args[0])
	if rerr != nil {
		return nil, rerr
	}
	ops, err := ethabi.AsStrings(args[1])
	if err != nil {
		return nil, errBadArgs
	}
	if rerr := validOps(ops); rerr != nil {
		return nil, rerr
	}
	if c.commit {
		p.DisclosureOperations = ops
	}
	return ret()
}

// policies reads like a public mapping: unknown ids return zero values.
func policies(c *call, args []interface{}) ([]interface{}, *revertErr) {
	p, _, rerr := c.policy(args[0])
	if rerr != nil {
		return ret(uint64(0), big.Zero(), ethtypes.EthAddress{}, false)
	}
	return ret(p.ExpDate, p.Price, p.Owner, p.Deactivated)
}

func policyStrings(get func(*Policy) []string) handler {
	return func(c *call, args []interface{}) ([]interface{}, *revertErr) {
		p, _, rerr := c.policy(args[0])
		if rerr != nil {
			return nil, rerr
		}
		return ret(get(p))
	}
}

func getAllowedAddresses(c *call, args []interface{}) ([]interface{}, *revertErr) {
	p, _, rerr := c.policy(args[0])
	if rerr != nil {
		return nil, rerr
	}
	return ret(p.AllowedAddresses)
}

func deactivatePolicy(c *call, args []interface{}) ([]interface{}, *revertErr) {
	p, rerr := c.ownedPolicy(args[0])
	if rerr != nil {
		return nil, rerr
	}
	if c.commit {
		p.Deactivated = true
	}
	return ret()
}

// addBucket takes four arguments in the legacy registry and five, with the
// per-policy allowlist flags third, in the current one.
func addBucket(c *call, args []interface{}) ([]interface{}, *revertErr) {
	if rerr := c.requireOwner(); rerr != nil {
		return nil, rerr
	}
	id, err := ethabi.AsBigInt(args[0])
	if err != nil {
		return nil, errBadArgs
	}
	b := &Bucket{ID: id, Owner: c.from}
	if b.PolicyIDs, err = ethabi.AsBigInts(args[1]); err != nil {
		return nil, errBadArgs
	}
	rest := args[2:]
	if len(args) > 4 {
		if b.UseAllowlists, err = ethabi.AsBools(args[2]); err != nil {
			return nil, errBadArgs
		}
		if len(b.UseAllowlists) != len(b.PolicyIDs) {
			return nil, revertMsg("use allowlists and policy ids differ in length")
		}
		rest = args[3:]
	}
	if b.DataFormat, err = ethabi.AsString(rest[0]); err != nil {
		return nil, errBadArgs
	}
	if b.NodeAddress, err = ethabi.AsAddress(rest[1]); err != nil {
		return nil, errBadArgs
	}

	st := c.state()
	if _, exists := st.buckets[id.String()]; exists {
		return nil, revertWith("BucketAlreadyExists", id)
	}
	for _, pid := range b.PolicyIDs {
		if _, ok := st.policies[pid.String()]; !ok {
			return nil, revertWith("PolicyNotFound", pid)
		}
	}
	if c.commit {
		st.buckets[id.String()] = b
	}
	return ret()
}

func (c *call) bucket(arg interface{}) (*Bucket, *revertErr) {
	id, err := ethabi.AsBigInt(arg)
	if err != nil {
		return nil, errBadArgs
	}
	b, ok := c.state().buckets[id.String()]
	if !ok {
		return nil, revertWith("BucketNotFound", id)
	}
	return b, nil
}

func buckets(c *call, args []interface{}) ([]interface{}, *revertErr) {
	b, rerr := c.bucket(args[0])
	if rerr != nil {
		return ret("", ethtypes.EthAddress{}, ethtypes.EthAddress{}, false)
	}
	return ret(b.DataFormat, b.NodeAddress, b.Owner, b.Deactivated)
}

func getPolicyIds(c *call, args []interface{}) ([]interface{}, *revertErr) {
	b, rerr := c.bucket(args[0])
	if rerr != nil {
		return nil, rerr
	}
	return ret(b.PolicyIDs)
}

func addPolicyToBucket(c *call, args []interface{}) ([]interface{}, *revertErr) {
	b, rerr := c.bucket(args[0])
	if rerr != nil {
		return nil, rerr
	}
	if b.Owner != c.from {
		return nil, revertWith("NotOwner", c.from)
	}
	_, pid, rerr := c.policy(args[1])
	if rerr != nil {
		return nil, rerr
	}
	if c.commit {
		b.PolicyIDs = append(b.PolicyIDs, pid)
		if b.UseAllowlists != nil {
			b.UseAllowlists = append(b.UseAllowlists, false)
		}
	}
	return ret()
}
