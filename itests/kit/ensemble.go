package kit

import (
	"context"
	"encoding/hex"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/build"
	"github.com/nectarprotocol/nectar-go/chain/wallet"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/ledger/ledgersim"
	"github.com/nectarprotocol/nectar-go/node"
	"github.com/nectarprotocol/nectar-go/node/config"
	"github.com/nectarprotocol/nectar-go/policymgr"
)

// Ensemble is a simulated ledger with its worker, served over JSON-RPC the
// way a real node is, and the clients connected to it.
//
// Create one with NewEnsemble, then add clients with Owner and Analyst.
type Ensemble struct {
	t    *testing.T
	opts ensembleOpts

	Sim   *ledgersim.Node
	URL   string
	Admin *wallet.Key
}

func NewEnsemble(t *testing.T, opts ...EnsembleOpt) *Ensemble {
	options := DefaultEnsembleOpts
	for _, o := range opts {
		require.NoError(t, o(&options))
	}

	admin, err := wallet.GenerateKey()
	require.NoError(t, err)

	sim, err := ledgersim.NewNode(ledgersim.Params{
		Admin:           admin.Address,
		LegacyPolicyABI: options.legacyPolicyABI,
	})
	require.NoError(t, err)

	rpcServer := jsonrpc.NewServer(jsonrpc.WithServerErrors(api.RPCErrors))
	rpcServer.Register("eth", ethHandler{sim})
	api.CreateEthRPCAliases(rpcServer)
	srv := httptest.NewServer(rpcServer)
	t.Cleanup(srv.Close)

	return &Ensemble{
		t:     t,
		opts:  options,
		Sim:   sim,
		URL:   "http://" + srv.Listener.Addr().String(),
		Admin: admin,
	}
}

// ethHandler exposes only the eth_ methods of the simulator.
type ethHandler struct {
	api.EthAPI
}

// TestClient is a node.Client with the key it signs with.
type TestClient struct {
	*node.Client

	Key    *wallet.Key
	Config *config.Client
}

// Config returns a localhost client config for k pointed at the ensemble.
func (e *Ensemble) Config(k *wallet.Key) *config.Client {
	cfg := config.DefaultClient()
	cfg.Network = build.Localhost
	cfg.RPCURL = e.URL
	cfg.APISecret = hex.EncodeToString(k.PrivateKey)
	wk := e.Sim.WorkerKey()
	cfg.WorkerKey = hex.EncodeToString(wk[:])
	cfg.Addresses.LegacyPolicyABI = e.opts.legacyPolicyABI
	cfg.Tx.ReceiptPoll = config.Duration(e.opts.receiptPoll)
	cfg.Results.PollInterval = config.Duration(e.opts.pollInterval)
	cfg.Journal.Path = ""
	return cfg
}

// Connect starts a client from cfg and closes it with the test.
func (e *Ensemble) Connect(k *wallet.Key, cfg *config.Client) *TestClient {
	c, err := node.New(context.Background(), cfg)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = c.Close() })
	return &TestClient{Client: c, Key: k, Config: cfg}
}

func (e *Ensemble) account(role string) *wallet.Key {
	k, err := wallet.GenerateKey()
	require.NoError(e.t, err)
	e.Sim.SetRole(k.Address, role)
	return k
}

// Owner adds a data owner client.
func (e *Ensemble) Owner() *TestClient {
	k := e.account(ledger.RoleOwner)
	return e.Connect(k, e.Config(k))
}

// Analyst adds a data analyst client funded with the given USDC micro-units.
func (e *Ensemble) Analyst(funds big.Int) *TestClient {
	k := e.account(ledger.RoleAnalyst)
	e.Sim.Fund(k.Address, funds)
	return e.Connect(k, e.Config(k))
}

// Bucket registers policies and a bucket holding them, and loads rows into
// the worker's copy of the bucket.
func (e *Ensemble) Bucket(ctx context.Context, owner *TestClient, rows []ledgersim.Row, policies ...policymgr.PolicySpec) big.Int {
	var ids []big.Int
	for _, p := range policies {
		id, err := owner.Registry.AddPolicy(ctx, p)
		require.NoError(e.t, err)
		ids = append(ids, id)
	}
	bid, err := owner.Registry.AddBucket(ctx, policymgr.BucketSpec{
		PolicyIDs:   ids,
		DataFormat:  "std1",
		NodeAddress: e.Sim.Worker().Address(),
	})
	require.NoError(e.t, err)
	e.Sim.Worker().Load(bid, rows...)
	return bid
}

// WaitProcessed blocks until the worker answered n more queries.
func (e *Ensemble) WaitProcessed(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		select {
		case <-e.Sim.Worker().Processed():
		case <-ctx.Done():
			require.NoError(e.t, ctx.Err())
		}
	}
}

// Context returns a context canceled at test end or after the test timeout.
func (e *Ensemble) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.timeout)
	e.t.Cleanup(cancel)
	return ctx
}

// Policy is a policy open to every analyst for a day.
func Policy(usd float64, columns ...string) policymgr.PolicySpec {
	return policymgr.PolicySpec{
		AllowedCategories: []string{"*"},
		AllowedColumns:    columns,
		ValidDays:         1,
		USDPrice:          usd,
	}
}
