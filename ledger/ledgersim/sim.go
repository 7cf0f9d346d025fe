// Package ledgersim is an in-memory EVM node hosting the marketplace
// contracts and an enclave worker. It serves the same eth_ API as a real
// node, so clients exercise their full transaction path against it.
package ledgersim

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/build"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

var log = logging.Logger("ledgersim")

const estimatedGas = 250_000

type Params struct {
	// Admin may assign user roles.
	Admin ethtypes.EthAddress
	// LegacyPolicyABI deploys the policy registry without identity
	// disclosure operations.
	LegacyPolicyABI bool
	// Addresses defaults to the localhost network bundle.
	Addresses map[contracts.Contract]ethtypes.EthAddress
	ChainID   uint64
	Clock     clock.Clock
}

// Node is a single-block-per-transaction chain. Transactions are mined as
// soon as they are received.
type Node struct {
	lk sync.Mutex

	chainID uint64
	clock   clock.Clock
	admin   ethtypes.EthAddress

	abis   contracts.ABIs
	addrs  map[contracts.Contract]ethtypes.EthAddress
	byAddr map[ethtypes.EthAddress]contracts.Contract

	block    uint64
	nonces   map[ethtypes.EthAddress]uint64
	receipts map[ethtypes.EthHash]*ethtypes.EthTxReceipt

	state  *state
	worker *Worker
}

var _ api.EthAPI = (*Node)(nil)

func NewNode(p Params) (*Node, error) {
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Addresses == nil {
		b, err := build.Network(build.Localhost)
		if err != nil {
			return nil, err
		}
		p.Addresses = map[contracts.Contract]ethtypes.EthAddress{}
		for c, s := range map[contracts.Contract]string{
			contracts.USDC:         b.USDC,
			contracts.QueryManager: b.QueryManager,
			contracts.EoaBond:      b.EoaBond,
			contracts.UserRole:     b.UserRole,
		} {
			a, err := ethtypes.ParseEthAddress(s)
			if err != nil {
				return nil, xerrors.Errorf("parsing %s address: %w", c, err)
			}
			p.Addresses[c] = a
		}
		if p.ChainID == 0 {
			p.ChainID = b.ChainID
		}
	}
	if p.ChainID == 0 {
		return nil, xerrors.Errorf("no chain id")
	}

	n := &Node{
		chainID:  p.ChainID,
		clock:    p.Clock,
		admin:    p.Admin,
		abis:     contracts.DefaultABIs(p.LegacyPolicyABI),
		addrs:    p.Addresses,
		byAddr:   map[ethtypes.EthAddress]contracts.Contract{},
		nonces:   map[ethtypes.EthAddress]uint64{},
		receipts: map[ethtypes.EthHash]*ethtypes.EthTxReceipt{},
		state:    newState(),
	}
	for c, a := range p.Addresses {
		n.byAddr[a] = c
	}
	w, err := newWorker(n)
	if err != nil {
		return nil, err
	}
	n.worker = w
	return n, nil
}

func (n *Node) Addresses() map[contracts.Contract]ethtypes.EthAddress {
	out := make(map[contracts.Contract]ethtypes.EthAddress, len(n.addrs))
	for c, a := range n.addrs {
		out[c] = a
	}
	return out
}

func (n *Node) Worker() *Worker {
	return n.worker
}

// Fund mints USDC to addr.
func (n *Node) Fund(addr ethtypes.EthAddress, amount big.Int) {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.state.balances[addr] = big.Add(n.state.balance(addr), amount)
}

// SetRole assigns a role without a transaction.
func (n *Node) SetRole(addr ethtypes.EthAddress, role string) {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.state.roles[addr] = role
}

func (n *Node) Balance(addr ethtypes.EthAddress) big.Int {
	n.lk.Lock()
	defer n.lk.Unlock()
	return n.state.balance(addr)
}

// Allowance returns what owner allows the query manager to spend.
func (n *Node) Allowance(owner ethtypes.EthAddress) big.Int {
	n.lk.Lock()
	defer n.lk.Unlock()
	return n.state.allowance(owner, n.addrs[contracts.QueryManager])
}

// Query returns a copy of a paid query.
func (n *Node) Query(user ethtypes.EthAddress, userIndex uint64) (Query, bool) {
	n.lk.Lock()
	defer n.lk.Unlock()
	qs := n.state.queries[user]
	if userIndex >= uint64(len(qs)) {
		return Query{}, false
	}
	return *qs[userIndex], true
}

// SetResult writes the result slot of a query, as the worker would.
func (n *Node) SetResult(user ethtypes.EthAddress, userIndex uint64, result string) error {
	n.lk.Lock()
	defer n.lk.Unlock()
	qs := n.state.queries[user]
	if userIndex >= uint64(len(qs)) {
		return xerrors.Errorf("no query %d of %s", userIndex, user)
	}
	qs[userIndex].Result = result
	return nil
}

func (n *Node) EthChainId(ctx context.Context) (ethtypes.EthUint64, error) {
	return ethtypes.EthUint64(n.chainID), nil
}

func (n *Node) EthGasPrice(ctx context.Context) (ethtypes.EthBigInt, error) {
	return ethtypes.EthBigInt(big.NewInt(1_000_000_000)), nil
}

func (n *Node) EthCall(ctx context.Context, tx ethtypes.EthCall, blkParam string) (ethtypes.EthBytes, error) {
	var from ethtypes.EthAddress
	if tx.From != nil {
		from = *tx.From
	}

	n.lk.Lock()
	defer n.lk.Unlock()
	return n.exec(from, tx.To, tx.Data, false)
}

func (n *Node) EthEstimateGas(ctx context.Context, tx ethtypes.EthCall) (ethtypes.EthUint64, error) {
	var from ethtypes.EthAddress
	if tx.From != nil {
		from = *tx.From
	}

	n.lk.Lock()
	defer n.lk.Unlock()
	if _, err := n.exec(from, tx.To, tx.Data, false); err != nil {
		return 0, err
	}
	return estimatedGas, nil
}

func (n *Node) EthGetTransactionCount(ctx context.Context, sender ethtypes.EthAddress, blkParam string) (ethtypes.EthUint64, error) {
	n.lk.Lock()
	defer n.lk.Unlock()
	return ethtypes.EthUint64(n.nonces[sender]), nil
}

func (n *Node) EthSendRawTransaction(ctx context.Context, rawTx ethtypes.EthBytes) (ethtypes.EthHash, error) {
	tx, err := ethtypes.ParseEthLegacy155Tx(rawTx)
	if err != nil {
		return ethtypes.EthHash{}, err
	}
	if tx.ChainID != n.chainID {
		return ethtypes.EthHash{}, xerrors.Errorf("invalid chain id %d, expected %d", tx.ChainID, n.chainID)
	}
	from, err := tx.Sender()
	if err != nil {
		return ethtypes.EthHash{}, err
	}
	h, err := tx.TxHash()
	if err != nil {
		return ethtypes.EthHash{}, err
	}

	n.lk.Lock()
	if tx.Nonce != n.nonces[from] {
		n.lk.Unlock()
		return ethtypes.EthHash{}, xerrors.Errorf("invalid nonce %d for %s, expected %d", tx.Nonce, from, n.nonces[from])
	}
	n.nonces[from]++
	n.block++

	receipt := &ethtypes.EthTxReceipt{
		TransactionHash: h,
		BlockNumber:     ethtypes.EthUint64(n.block),
		From:            from,
		To:              tx.To,
		Status:          1,
	}
	if _, err := n.exec(from, tx.To, tx.Input, true); err != nil {
		log.Debugw("transaction reverted", "tx", h, "from", from, "error", err)
		receipt.Status = 0
	}
	n.receipts[h] = receipt
	paid := n.state.takePaid()
	n.lk.Unlock()

	for _, q := range paid {
		go n.worker.process(q)
	}
	return h, nil
}

func (n *Node) EthGetTransactionReceipt(ctx context.Context, txHash ethtypes.EthHash) (*ethtypes.EthTxReceipt, error) {
	n.lk.Lock()
	defer n.lk.Unlock()
	return n.receipts[txHash], nil
}

// exec runs calldata against a contract. State is only changed when
// commit is set. Reverts are returned as *api.ErrExecutionReverted.
func (n *Node) exec(from ethtypes.EthAddress, to *ethtypes.EthAddress, data []byte, commit bool) (ethtypes.EthBytes, error) {
	if to == nil {
		return nil, xerrors.Errorf("contract creation is not supported")
	}
	c, ok := n.byAddr[*to]
	if !ok {
		// calls to accounts without code succeed with empty return data
		return ethtypes.EthBytes{}, nil
	}
	if len(data) < 4 {
		return nil, n.revert(c, revertMsg("function selector was not recognized"))
	}
	m, ok := n.abis[c].MethodBySelector([4]byte(data[:4]))
	if !ok {
		return nil, n.revert(c, revertMsg("function selector was not recognized"))
	}
	h, ok := handlers[c][m.Name]
	if !ok {
		return nil, n.revert(c, revertMsg("function selector was not recognized"))
	}
	args, err := m.UnpackInputs(data)
	if err != nil {
		return nil, n.revert(c, revertMsg("invalid calldata"))
	}

	call := &call{node: n, from: from, commit: commit}
	out, rerr := h(call, args)
	if rerr != nil {
		return nil, n.revert(c, rerr)
	}
	ret, err := m.PackOutputs(out...)
	if err != nil {
		return nil, xerrors.Errorf("encoding %s result: %w", m.Name, err)
	}
	return ret, nil
}

func (n *Node) revert(c contracts.Contract, r *revertErr) error {
	data, err := r.encode(n.abis[c])
	if err != nil {
		return xerrors.Errorf("encoding revert: %w", err)
	}
	return &api.ErrExecutionReverted{Message: "execution reverted", Data: ethtypes.EthBytes(data).String()}
}

// revertErr is a contract revert: a custom error, or Error(string) when
// name is empty.
type revertErr struct {
	name string
	args []interface{}
	msg  string
}

func revertWith(name string, args ...interface{}) *revertErr {
	return &revertErr{name: name, args: args}
}

func revertMsg(msg string) *revertErr {
	return &revertErr{msg: msg}
}

var errorStringType = []ethabi.Type{ethabi.MustParseType("string")}

func (r *revertErr) encode(a *ethabi.ABI) ([]byte, error) {
	if r.name != "" {
		if data, err := a.PackError(r.name, r.args...); err == nil {
			return data, nil
		}
		r = revertMsg(r.name)
	}
	enc, err := ethabi.Encode(errorStringType, []interface{}{r.msg})
	if err != nil {
		return nil, err
	}
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, enc...), nil
}

// WorkerKey returns the key requests are sealed to.
func (n *Node) WorkerKey() [32]byte {
	return n.worker.pub
}
