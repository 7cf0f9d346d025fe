package querymgr

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger"
)

type fakeQuery struct {
	envelope string
	price    big.Int
	result   string
}

// fakeLedger keeps just enough contract state for the query lifecycle.
type fakeLedger struct {
	lk sync.Mutex

	addr ethtypes.EthAddress
	abis contracts.ABIs

	buckets map[string][]big.Int
	prices  map[string]big.Int

	allowance big.Int
	spent     big.Int
	queries   []*fakeQuery

	readErr error
	calls   []string
}

var _ ledger.Ledger = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	var addr ethtypes.EthAddress
	addr[0] = 0xda
	return &fakeLedger{
		addr:      addr,
		abis:      contracts.DefaultABIs(false),
		buckets:   map[string][]big.Int{},
		prices:    map[string]big.Int{},
		allowance: big.Zero(),
		spent:     big.Zero(),
	}
}

func (f *fakeLedger) addPolicy(bucket, policy int64, price int64) {
	f.lk.Lock()
	defer f.lk.Unlock()
	b := big.NewInt(bucket).String()
	f.buckets[b] = append(f.buckets[b], big.NewInt(policy))
	f.prices[big.NewInt(policy).String()] = big.NewInt(price)
}

func (f *fakeLedger) setResult(userIndex uint64, result string) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.queries[userIndex].result = result
}

func (f *fakeLedger) setReadErr(err error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.readErr = err
}

func (f *fakeLedger) called(method string) int {
	f.lk.Lock()
	defer f.lk.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeLedger) Address() ethtypes.EthAddress { return f.addr }

func (f *fakeLedger) ContractAddress(c contracts.Contract) ethtypes.EthAddress {
	var a ethtypes.EthAddress
	copy(a[:], c)
	return a
}

func (f *fakeLedger) ABI(c contracts.Contract) *ethabi.ABI { return f.abis[c] }

func (f *fakeLedger) Call(ctx context.Context, c contracts.Contract, method string, args ...interface{}) ([]interface{}, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.calls = append(f.calls, method)

	switch method {
	case "getPolicyIds":
		id, _ := ethabi.AsBigInt(args[0])
		ids, ok := f.buckets[id.String()]
		if !ok {
			return nil, &api.ErrContractLogic{Method: method, Reason: api.ReasonBucketNotFound + "(" + id.String() + ")"}
		}
		return []interface{}{ids}, nil
	case "policies":
		id, _ := ethabi.AsBigInt(args[0])
		price, ok := f.prices[id.String()]
		if !ok {
			return nil, &api.ErrContractLogic{Method: method, Reason: api.ReasonPolicyNotFound}
		}
		return []interface{}{big.NewInt(0), price, f.addr, false}, nil
	case "allowance":
		return []interface{}{f.allowance}, nil
	case "getUserIndex":
		return []interface{}{uint64(len(f.queries))}, nil
	case "getQueryByUserIndex":
		if f.readErr != nil {
			return nil, f.readErr
		}
		idx, _ := ethabi.AsUint64(args[1])
		if idx >= uint64(len(f.queries)) {
			return nil, &api.ErrContractLogic{Method: method, Reason: "QueryNotFound"}
		}
		q := f.queries[idx]
		return []interface{}{[]interface{}{f.addr, q.envelope, q.result, q.price, []big.Int{}, []big.Int{}}}, nil
	}
	return nil, xerrors.Errorf("fake ledger: unexpected call %s", method)
}

func (f *fakeLedger) Transact(ctx context.Context, c contracts.Contract, method string, args ...interface{}) (*ethtypes.EthTxReceipt, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.calls = append(f.calls, method)

	r := &ethtypes.EthTxReceipt{Status: 1, BlockNumber: ethtypes.EthUint64(len(f.calls))}
	r.TransactionHash[0] = byte(len(f.calls))

	switch method {
	case "approve":
		f.allowance, _ = ethabi.AsBigInt(args[1])
		return r, nil
	case "payQuery":
		price, _ := ethabi.AsBigInt(args[2])
		if big.Cmp(f.allowance, price) < 0 {
			return r, &api.ErrTxReverted{Action: method, TxHash: r.TransactionHash}
		}
		f.allowance = big.Sub(f.allowance, price)
		f.spent = big.Add(f.spent, price)
		env, _ := ethabi.AsString(args[1])
		f.queries = append(f.queries, &fakeQuery{envelope: env, price: price})
		return r, nil
	}
	return nil, xerrors.Errorf("fake ledger: unexpected transaction %s", method)
}
