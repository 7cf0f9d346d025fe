package apistruct

import (
	"context"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// EthStruct implements api.EthAPI passing calls to user-provided function
// values. Method names on the wire follow the eth_ namespace.
type EthStruct struct {
	Internal struct {
		EthChainId               func(ctx context.Context) (ethtypes.EthUint64, error)                                                    `rpc_method:"eth_chainId"`
		EthGasPrice              func(ctx context.Context) (ethtypes.EthBigInt, error)                                                    `rpc_method:"eth_gasPrice"`
		EthCall                  func(ctx context.Context, tx ethtypes.EthCall, blkParam string) (ethtypes.EthBytes, error)               `rpc_method:"eth_call"`
		EthEstimateGas           func(ctx context.Context, tx ethtypes.EthCall) (ethtypes.EthUint64, error)                               `rpc_method:"eth_estimateGas"`
		EthGetTransactionCount   func(ctx context.Context, sender ethtypes.EthAddress, blkParam string) (ethtypes.EthUint64, error)       `rpc_method:"eth_getTransactionCount"`
		EthSendRawTransaction    func(ctx context.Context, rawTx ethtypes.EthBytes) (ethtypes.EthHash, error)                             `rpc_method:"eth_sendRawTransaction"`
		EthGetTransactionReceipt func(ctx context.Context, txHash ethtypes.EthHash) (*ethtypes.EthTxReceipt, error)                       `rpc_method:"eth_getTransactionReceipt"`
	}
}

func (c *EthStruct) EthChainId(ctx context.Context) (ethtypes.EthUint64, error) {
	return c.Internal.EthChainId(ctx)
}

func (c *EthStruct) EthGasPrice(ctx context.Context) (ethtypes.EthBigInt, error) {
	return c.Internal.EthGasPrice(ctx)
}

func (c *EthStruct) EthCall(ctx context.Context, tx ethtypes.EthCall, blkParam string) (ethtypes.EthBytes, error) {
	return c.Internal.EthCall(ctx, tx, blkParam)
}

func (c *EthStruct) EthEstimateGas(ctx context.Context, tx ethtypes.EthCall) (ethtypes.EthUint64, error) {
	return c.Internal.EthEstimateGas(ctx, tx)
}

func (c *EthStruct) EthGetTransactionCount(ctx context.Context, sender ethtypes.EthAddress, blkParam string) (ethtypes.EthUint64, error) {
	return c.Internal.EthGetTransactionCount(ctx, sender, blkParam)
}

func (c *EthStruct) EthSendRawTransaction(ctx context.Context, rawTx ethtypes.EthBytes) (ethtypes.EthHash, error) {
	return c.Internal.EthSendRawTransaction(ctx, rawTx)
}

func (c *EthStruct) EthGetTransactionReceipt(ctx context.Context, txHash ethtypes.EthHash) (*ethtypes.EthTxReceipt, error) {
	return c.Internal.EthGetTransactionReceipt(ctx, txHash)
}

var _ api.EthAPI = &EthStruct{}
