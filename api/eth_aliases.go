package api

// Aliaser is implemented by jsonrpc.RPCServer.
type Aliaser interface {
	AliasMethod(alias, original string)
}

// CreateEthRPCAliases maps the standard eth_ method names onto an EthAPI
// handler registered under the "eth" namespace.
func CreateEthRPCAliases(as Aliaser) {
	as.AliasMethod("eth_chainId", "eth.EthChainId")
	as.AliasMethod("eth_gasPrice", "eth.EthGasPrice")
	as.AliasMethod("eth_call", "eth.EthCall")
	as.AliasMethod("eth_estimateGas", "eth.EthEstimateGas")
	as.AliasMethod("eth_getTransactionCount", "eth.EthGetTransactionCount")
	as.AliasMethod("eth_sendRawTransaction", "eth.EthSendRawTransaction")
	as.AliasMethod("eth_getTransactionReceipt", "eth.EthGetTransactionReceipt")
}
