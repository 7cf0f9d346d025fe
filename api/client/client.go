package client

import (
	"context"
	"net/http"
	"time"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/api/apistruct"
)

// NewEthRPC creates a new http jsonrpc client for an EVM node.
func NewEthRPC(ctx context.Context, addr string, requestHeader http.Header, opts ...jsonrpc.Option) (api.EthAPI, jsonrpc.ClientCloser, error) {
	var res apistruct.EthStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, "eth",
		[]interface{}{
			&res.Internal,
		},
		requestHeader,
		append([]jsonrpc.Option{
			jsonrpc.WithErrors(api.RPCErrors),
			jsonrpc.WithTimeout(30 * time.Second),
		}, opts...)...,
	)

	return &res, closer, err
}
