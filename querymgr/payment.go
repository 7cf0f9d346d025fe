package querymgr

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger"
)

// Authorize sets the query manager's USDC allowance to exactly amount. The
// allowance is replaced, not increased.
func Authorize(ctx context.Context, l ledger.Ledger, amount big.Int) (*ethtypes.EthTxReceipt, error) {
	if amount.Int == nil || amount.Sign() < 0 {
		return nil, &api.ErrValidation{Problems: []string{"payment amount must be a non-negative integer"}}
	}
	spender := l.ContractAddress(contracts.QueryManager)
	log.Infow("approving query payment", "spender", spender, "amount", amount)

	r, err := l.Transact(ctx, contracts.USDC, "approve", spender, amount)
	if err != nil {
		return r, xerrors.Errorf("approving payment: %w", err)
	}
	return r, nil
}

// Allowance reads how much the query manager may still spend on behalf of
// the account.
func Allowance(ctx context.Context, l ledger.Ledger) (big.Int, error) {
	out, err := ledger.Call1(ctx, l, contracts.USDC, "allowance", l.Address(), l.ContractAddress(contracts.QueryManager))
	if err != nil {
		return big.Int{}, xerrors.Errorf("reading allowance: %w", err)
	}
	return ethabi.AsBigInt(out)
}

// Balance reads the account's USDC balance.
func Balance(ctx context.Context, l ledger.Ledger) (big.Int, error) {
	out, err := ledger.Call1(ctx, l, contracts.USDC, "balanceOf", l.Address())
	if err != nil {
		return big.Int{}, xerrors.Errorf("reading balance: %w", err)
	}
	return ethabi.AsBigInt(out)
}
