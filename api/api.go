package api

import (
	"context"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// EthAPI is the subset of the Ethereum JSON-RPC interface a client needs to
// read contract state and submit signed transactions.
type EthAPI interface {
	EthChainId(ctx context.Context) (ethtypes.EthUint64, error)
	EthGasPrice(ctx context.Context) (ethtypes.EthBigInt, error)

	// EthCall performs a read-only call at the given block tag and returns
	// the raw return data.
	EthCall(ctx context.Context, tx ethtypes.EthCall, blkParam string) (ethtypes.EthBytes, error)
	EthEstimateGas(ctx context.Context, tx ethtypes.EthCall) (ethtypes.EthUint64, error)

	// EthGetTransactionCount returns the nonce of an account at the given
	// block tag. Pass "pending" to include queued transactions.
	EthGetTransactionCount(ctx context.Context, sender ethtypes.EthAddress, blkParam string) (ethtypes.EthUint64, error)
	EthSendRawTransaction(ctx context.Context, rawTx ethtypes.EthBytes) (ethtypes.EthHash, error)

	// EthGetTransactionReceipt returns nil while the transaction is not
	// yet mined.
	EthGetTransactionReceipt(ctx context.Context, txHash ethtypes.EthHash) (*ethtypes.EthTxReceipt, error)
}

// Version provides various build-time information
type Version struct {
	Version string
	Network string
}
