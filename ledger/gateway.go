package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/raulk/clock"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/chain/wallet"
	"github.com/nectarprotocol/nectar-go/metrics"
)

const (
	DefaultReceiptTimeout = 180 * time.Second
	DefaultReceiptPoll    = 5 * time.Second
)

type GatewayParams struct {
	API    api.EthAPI
	Wallet *wallet.Wallet
	From   ethtypes.EthAddress

	// ChainID is read from the node when zero.
	ChainID   uint64
	Addresses map[contracts.Contract]ethtypes.EthAddress
	ABIs      contracts.ABIs

	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
	// GasLimit overrides gas estimation when non-zero.
	GasLimit uint64

	Clock clock.Clock
}

// Gateway implements Ledger over the Ethereum JSON-RPC API.
type Gateway struct {
	api     api.EthAPI
	wallet  *wallet.Wallet
	from    ethtypes.EthAddress
	chainID uint64

	addrs map[contracts.Contract]ethtypes.EthAddress
	abis  contracts.ABIs

	receiptTimeout time.Duration
	receiptPoll    time.Duration
	gasLimit       uint64
	clock          clock.Clock

	// nonceLk is held from nonce read through submission.
	nonceLk sync.Mutex
}

var _ Ledger = (*Gateway)(nil)

func NewGateway(ctx context.Context, p GatewayParams) (*Gateway, error) {
	if p.API == nil {
		return nil, xerrors.Errorf("no eth api")
	}
	if p.Wallet == nil || !p.Wallet.HasKey(p.From) {
		return nil, xerrors.Errorf("no signing key for %s", p.From)
	}
	for _, c := range contracts.All {
		if p.Addresses[c].IsZero() {
			return nil, xerrors.Errorf("no address configured for contract %s", c)
		}
		if p.ABIs[c] == nil {
			return nil, xerrors.Errorf("no abi for contract %s", c)
		}
	}

	g := &Gateway{
		api:            p.API,
		wallet:         p.Wallet,
		from:           p.From,
		chainID:        p.ChainID,
		addrs:          p.Addresses,
		abis:           p.ABIs,
		receiptTimeout: p.ReceiptTimeout,
		receiptPoll:    p.ReceiptPoll,
		gasLimit:       p.GasLimit,
		clock:          p.Clock,
	}
	if g.receiptTimeout <= 0 {
		g.receiptTimeout = DefaultReceiptTimeout
	}
	if g.receiptPoll <= 0 {
		g.receiptPoll = DefaultReceiptPoll
	}
	if g.clock == nil {
		g.clock = clock.New()
	}

	if g.chainID == 0 {
		id, err := g.api.EthChainId(ctx)
		if err != nil {
			return nil, xerrors.Errorf("getting chain id: %w", err)
		}
		g.chainID = uint64(id)
	}

	log.Infow("ledger gateway ready", "account", g.from, "chainId", g.chainID)
	return g, nil
}

func (g *Gateway) Address() ethtypes.EthAddress {
	return g.from
}

func (g *Gateway) ChainID() uint64 {
	return g.chainID
}

func (g *Gateway) ContractAddress(c contracts.Contract) ethtypes.EthAddress {
	return g.addrs[c]
}

func (g *Gateway) ABI(c contracts.Contract) *ethabi.ABI {
	return g.abis[c]
}

func (g *Gateway) method(c contracts.Contract, name string) (*ethabi.Method, error) {
	m, ok := g.abis[c].Method(name)
	if !ok {
		return nil, xerrors.Errorf("contract %s has no method %s", c, name)
	}
	return m, nil
}

func (g *Gateway) Call(ctx context.Context, c contracts.Contract, method string, args ...interface{}) ([]interface{}, error) {
	m, err := g.method(c, method)
	if err != nil {
		return nil, err
	}
	data, err := m.Pack(args...)
	if err != nil {
		return nil, xerrors.Errorf("encoding %s call: %w", method, err)
	}

	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Contract, string(c)), tag.Upsert(metrics.Method, method))
	stop := metrics.Timer(ctx, metrics.LedgerCallDuration)
	defer stop()

	to := g.addrs[c]
	from := g.from
	ret, err := g.api.EthCall(ctx, ethtypes.EthCall{From: &from, To: &to, Data: data}, ethtypes.BlockTagLatest)
	if err != nil {
		metrics.Record(ctx, nil, metrics.LedgerCallFailure.M(1))
		return nil, g.revertError(c, method, err)
	}

	out, err := m.Unpack(ret)
	if err != nil {
		return nil, xerrors.Errorf("decoding %s result: %w", method, err)
	}
	return out, nil
}

func (g *Gateway) Transact(ctx context.Context, c contracts.Contract, method string, args ...interface{}) (*ethtypes.EthTxReceipt, error) {
	m, err := g.method(c, method)
	if err != nil {
		return nil, err
	}
	data, err := m.Pack(args...)
	if err != nil {
		return nil, xerrors.Errorf("encoding %s transaction: %w", method, err)
	}

	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Contract, string(c)), tag.Upsert(metrics.Method, method))

	txHash, err := g.submit(ctx, c, method, data)
	if err != nil {
		return nil, err
	}
	metrics.Record(ctx, nil, metrics.TxSubmitted.M(1))
	log.Infow("transaction submitted", "method", method, "contract", c, "tx", txHash)

	return g.waitReceipt(ctx, method, txHash)
}

func (g *Gateway) submit(ctx context.Context, c contracts.Contract, method string, data []byte) (ethtypes.EthHash, error) {
	g.nonceLk.Lock()
	defer g.nonceLk.Unlock()

	to := g.addrs[c]
	from := g.from

	nonce, err := g.api.EthGetTransactionCount(ctx, from, ethtypes.BlockTagPending)
	if err != nil {
		return ethtypes.EthHash{}, xerrors.Errorf("getting nonce: %w", err)
	}
	gasPrice, err := g.api.EthGasPrice(ctx)
	if err != nil {
		return ethtypes.EthHash{}, xerrors.Errorf("getting gas price: %w", err)
	}

	gasLimit := g.gasLimit
	if gasLimit == 0 {
		est, err := g.api.EthEstimateGas(ctx, ethtypes.EthCall{From: &from, To: &to, Data: data})
		if err != nil {
			return ethtypes.EthHash{}, g.revertError(c, method, err)
		}
		gasLimit = uint64(est)
	}

	tx := &ethtypes.EthLegacy155TxArgs{
		ChainID:  g.chainID,
		Nonce:    uint64(nonce),
		GasPrice: big.Int(gasPrice),
		GasLimit: gasLimit,
		To:       &to,
		Value:    big.Zero(),
		Input:    data,
	}
	if err := g.wallet.SignTx(ctx, from, tx); err != nil {
		return ethtypes.EthHash{}, err
	}
	raw, err := tx.ToRlpSignedMsg()
	if err != nil {
		return ethtypes.EthHash{}, xerrors.Errorf("serializing transaction: %w", err)
	}

	h, err := g.api.EthSendRawTransaction(ctx, raw)
	if err != nil {
		return ethtypes.EthHash{}, xerrors.Errorf("sending %s transaction: %w", method, err)
	}
	return h, nil
}

// waitReceipt polls for the receipt of txHash. The node is asked right away
// and then on every poll interval until the receipt timeout.
func (g *Gateway) waitReceipt(ctx context.Context, action string, txHash ethtypes.EthHash) (*ethtypes.EthTxReceipt, error) {
	start := g.clock.Now()

	timeout := g.clock.Timer(g.receiptTimeout)
	defer timeout.Stop()
	ticker := g.clock.Ticker(g.receiptPoll)
	defer ticker.Stop()

	for {
		r, err := g.api.EthGetTransactionReceipt(ctx, txHash)
		switch {
		case err != nil:
			log.Warnw("fetching receipt", "tx", txHash, "error", err)
		case r != nil:
			elapsed := g.clock.Since(start)
			stats := []tag.Mutator{tag.Upsert(metrics.Method, action)}
			if r.Status != 1 {
				metrics.Record(ctx, append(stats, tag.Upsert(metrics.Outcome, metrics.OutcomeReverted)), metrics.TxConfirmed.M(1))
				return r, &api.ErrTxReverted{Action: action, TxHash: txHash}
			}
			metrics.Record(ctx, append(stats, tag.Upsert(metrics.Outcome, metrics.OutcomeSuccess)),
				metrics.TxConfirmed.M(1), metrics.TxConfirmationTimeMs.M(float64(elapsed.Milliseconds())))
			log.Debugw("transaction mined", "tx", txHash, "block", r.BlockNumber, "elapsed", elapsed)
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, xerrors.Errorf("waiting for %s receipt %s: %w", action, txHash, ctx.Err())
		case <-timeout.C:
			metrics.Record(ctx, []tag.Mutator{tag.Upsert(metrics.Method, action), tag.Upsert(metrics.Outcome, metrics.OutcomeTimeout)}, metrics.TxConfirmed.M(1))
			return nil, &api.ErrMiningTimeout{Action: action, TxHash: txHash, Elapsed: g.clock.Since(start)}
		case <-ticker.C:
		}
	}
}

// revertError maps node revert errors to contract-logic errors. Other
// errors are wrapped unchanged.
func (g *Gateway) revertError(c contracts.Contract, method string, err error) error {
	var rev *api.ErrExecutionReverted
	if errors.As(err, &rev) {
		reason := rev.Message
		if data := rev.RevertData(); len(data) > 0 {
			reason = g.abis[c].DecodeRevert(data)
		}
		return &api.ErrContractLogic{Method: method, Reason: reason}
	}
	if msg := err.Error(); strings.Contains(msg, "execution reverted") {
		return &api.ErrContractLogic{Method: method, Reason: msg}
	}
	return xerrors.Errorf("calling %s.%s: %w", c, method, err)
}
