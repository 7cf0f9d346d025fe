// Package ledger gives typed access to the marketplace contracts: read-only
// calls and signed, awaited transactions.
package ledger

import (
	"context"

	logging "github.com/ipfs/go-log/v2"

	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

var log = logging.Logger("ledger")

//go:generate go run github.com/golang/mock/mockgen -destination=mocks/mock_ledger.go -package=mocks . Ledger

// Ledger is the contract-level view of the chain.
type Ledger interface {
	// Address is the account every transaction is signed by.
	Address() ethtypes.EthAddress
	ContractAddress(c contracts.Contract) ethtypes.EthAddress
	ABI(c contracts.Contract) *ethabi.ABI

	// Call performs a read-only call and returns the decoded outputs. A
	// revert yields *api.ErrContractLogic.
	Call(ctx context.Context, c contracts.Contract, method string, args ...interface{}) ([]interface{}, error)

	// Transact signs and submits a transaction, then blocks until it is
	// mined or the receipt timeout elapses. A failed receipt yields
	// *api.ErrTxReverted, a timeout *api.ErrMiningTimeout. Transactions are
	// never resubmitted.
	Transact(ctx context.Context, c contracts.Contract, method string, args ...interface{}) (*ethtypes.EthTxReceipt, error)
}

// Call1 performs a call expected to return a single value.
func Call1(ctx context.Context, l Ledger, c contracts.Contract, method string, args ...interface{}) (interface{}, error) {
	out, err := l.Call(ctx, c, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}
