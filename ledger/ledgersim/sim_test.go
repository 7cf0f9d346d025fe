package ledgersim_test

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/chain/wallet"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/ledger/ledgersim"
	"github.com/nectarprotocol/nectar-go/policymgr"
	"github.com/nectarprotocol/nectar-go/querymgr"
)

type simEnv struct {
	node *ledgersim.Node

	admin, owner, analyst *wallet.Key
	ownerGw, analystGw    *ledger.Gateway

	registry *policymgr.Registry
	queries  *querymgr.Manager
}

func newKey(t *testing.T) *wallet.Key {
	k, err := wallet.GenerateKey()
	require.NoError(t, err)
	return k
}

func newGateway(t *testing.T, n *ledgersim.Node, k *wallet.Key, legacy bool) *ledger.Gateway {
	gw, err := ledger.NewGateway(context.Background(), ledger.GatewayParams{
		API:         n,
		Wallet:      wallet.KeyWallet(k),
		From:        k.Address,
		Addresses:   n.Addresses(),
		ABIs:        contracts.DefaultABIs(legacy),
		ReceiptPoll: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return gw
}

func setupSim(t *testing.T, legacy bool) *simEnv {
	e := &simEnv{
		admin:   newKey(t),
		owner:   newKey(t),
		analyst: newKey(t),
	}
	n, err := ledgersim.NewNode(ledgersim.Params{Admin: e.admin.Address, LegacyPolicyABI: legacy})
	require.NoError(t, err)
	e.node = n

	n.SetRole(e.owner.Address, ledger.RoleOwner)
	n.SetRole(e.analyst.Address, ledger.RoleAnalyst)
	n.Fund(e.analyst.Address, big.NewInt(1_000_000))

	e.ownerGw = newGateway(t, n, e.owner, legacy)
	e.analystGw = newGateway(t, n, e.analyst, legacy)

	e.registry, err = policymgr.NewRegistry(e.ownerGw, nil)
	require.NoError(t, err)

	replyPriv, replyPub, err := e.analyst.ReplyKey()
	require.NoError(t, err)
	e.queries, err = querymgr.NewManager(context.Background(), querymgr.ManagerParams{
		Ledger:       e.analystGw,
		Store:        querymgr.NewStore(dssync.MutexWrap(datastore.NewMapDatastore())),
		WorkerKey:    n.WorkerKey(),
		ReplyPriv:    replyPriv,
		ReplyPub:     replyPub,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.queries.Stop() })
	return e
}

func (e *simEnv) bucket(t *testing.T, ctx context.Context, rows []ledgersim.Row, policies ...policymgr.PolicySpec) big.Int {
	var ids []big.Int
	for _, p := range policies {
		id, err := e.registry.AddPolicy(ctx, p)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	bid, err := e.registry.AddBucket(ctx, policymgr.BucketSpec{
		PolicyIDs:   ids,
		DataFormat:  "std1",
		NodeAddress: e.node.Worker().Address(),
	})
	require.NoError(t, err)
	e.node.Worker().Load(bid, rows...)
	return bid
}

var people = []ledgersim.Row{
	{"age": 30, "income": 1000},
	{"age": 40, "income": 3000},
	{"age": 50, "income": 2000},
}

func openPolicy(price float64, columns ...string) policymgr.PolicySpec {
	return policymgr.PolicySpec{
		AllowedCategories: []string{"*"},
		AllowedColumns:    columns,
		ValidDays:         1,
		USDPrice:          price,
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestAssignRole(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)
	newcomer := newKey(t)

	_, err := ledger.AssignRole(ctx, e.ownerGw, newcomer.Address, ledger.RoleAnalyst)
	var cl *api.ErrContractLogic
	require.ErrorAs(t, err, &cl)
	require.Contains(t, cl.Reason, "caller is not the admin")

	adminGw := newGateway(t, e.node, e.admin, false)
	_, err = ledger.AssignRole(ctx, adminGw, newcomer.Address, "XX")
	var verr *api.ErrValidation
	require.ErrorAs(t, err, &verr)

	_, err = adminGw.Transact(ctx, contracts.UserRole, "assignUserRole", newcomer.Address, "XX")
	require.ErrorAs(t, err, &cl)
	require.Contains(t, cl.Reason, "InvalidRole")

	_, err = ledger.AssignRole(ctx, adminGw, newcomer.Address, ledger.RoleAnalyst)
	require.NoError(t, err)

	role, err := ledger.GetRole(ctx, e.ownerGw, newcomer.Address)
	require.NoError(t, err)
	require.Equal(t, ledger.RoleAnalyst, role)
}

func TestPayQueryChecks(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)
	bid := e.bucket(t, ctx, nil, openPolicy(0.00001, "age"))
	idx := []big.Int{big.NewInt(0)}

	var cl *api.ErrContractLogic
	_, err := e.analystGw.Transact(ctx, contracts.QueryManager, "payQuery", uint64(0), "{}", big.NewInt(5), []big.Int{bid}, idx)
	require.ErrorAs(t, err, &cl)
	require.Contains(t, cl.Reason, "PriceMismatch")

	_, err = e.analystGw.Transact(ctx, contracts.QueryManager, "payQuery", uint64(0), "{}", big.NewInt(10), []big.Int{bid}, idx)
	require.ErrorAs(t, err, &cl)
	require.Contains(t, cl.Reason, "InsufficientAllowance")

	_, err = e.analystGw.Transact(ctx, contracts.QueryManager, "payQuery", uint64(3), "{}", big.NewInt(10), []big.Int{bid}, idx)
	require.ErrorAs(t, err, &cl)
	require.Contains(t, cl.Reason, "InvalidUserIndex")

	_, err = e.analystGw.Call(ctx, contracts.QueryManager, "getQueryByUserIndex", e.analyst.Address, uint64(0))
	require.ErrorAs(t, err, &cl)
	require.Contains(t, cl.Reason, "QueryNotFound")
}

func TestAggregateQuery(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)
	bid := e.bucket(t, ctx, people, openPolicy(0.00001, "age", "income"))
	target := querymgr.Target{BucketIDs: []big.Int{bid}, PolicyIndexes: []uint64{0}}

	price, err := e.queries.ResolvePrice(ctx, target.BucketIDs, target.PolicyIndexes)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), price)

	count, err := e.queries.Query(ctx, querymgr.AggregateQuery{Type: "count", Column: "age"}, target)
	require.NoError(t, err)
	require.Equal(t, 3.0, count)

	mean, err := e.queries.Query(ctx, querymgr.AggregateQuery{
		Type:    "mean",
		Column:  "income",
		Filters: querymgr.Where("age", querymgr.OpGte, 40),
	}, target)
	require.NoError(t, err)
	require.Equal(t, 2500.0, mean)

	qm := e.node.Addresses()[contracts.QueryManager]
	require.Equal(t, big.NewInt(20), e.node.Balance(qm))
	require.Equal(t, big.NewInt(1_000_000-20), e.node.Balance(e.analyst.Address))
	allowance := e.node.Allowance(e.analyst.Address)
	require.True(t, allowance.IsZero())
}

func TestColumnNotAllowed(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)
	bid := e.bucket(t, ctx, people, openPolicy(0, "age"))

	_, err := e.queries.Query(ctx, querymgr.AggregateQuery{Type: "sum", Column: "income"},
		querymgr.Target{BucketIDs: []big.Int{bid}, PolicyIndexes: []uint64{0}})
	var qerr *api.ErrQueryFailed
	require.ErrorAs(t, err, &qerr)
	require.Contains(t, qerr.Marker, "column income is not allowed")
}

func TestAllowlist(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)

	stranger := openPolicy(0, "*")
	stranger.AllowedAddresses = []ethtypes.EthAddress{e.owner.Address}
	pid, err := e.registry.AddPolicy(ctx, stranger)
	require.NoError(t, err)
	bid, err := e.registry.AddBucket(ctx, policymgr.BucketSpec{
		PolicyIDs:     []big.Int{pid},
		UseAllowlists: []bool{true},
		DataFormat:    "std1",
		NodeAddress:   e.node.Worker().Address(),
	})
	require.NoError(t, err)
	e.node.Worker().Load(bid, people...)

	_, err = e.queries.Query(ctx, querymgr.AggregateQuery{Type: "count"},
		querymgr.Target{BucketIDs: []big.Int{bid}, PolicyIndexes: []uint64{0}})
	var qerr *api.ErrQueryFailed
	require.ErrorAs(t, err, &qerr)
	require.Contains(t, qerr.Marker, "Unauthorized access to bucket "+bid.String())
}

func TestCategorizedPartial(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)

	consenting := openPolicy(0, "*")
	consenting.DisclosureOperations = []string{"sum"}
	b1 := e.bucket(t, ctx, people[:2], consenting)
	b2 := e.bucket(t, ctx, people[2:], openPolicy(0, "*"))

	out, err := e.queries.Compute(ctx, querymgr.ComputationRequest{
		PreCompute: querymgr.ExpressionStep("sum", "income", nil),
		Main:       querymgr.ExpressionStep("sum", "income", nil),
	}, querymgr.Target{
		BucketIDs:      []big.Int{b1, b2},
		PolicyIndexes:  []uint64{0, 0},
		CategorizeByDO: true,
		AggregateType:  "sum",
	})
	require.NoError(t, err)

	c, ok, err := querymgr.ParseCategorized(out)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, c.Partial)
	require.Equal(t, []string{querymgr.BucketKey(b2)}, c.NonConsenting)
	require.Equal(t, map[string]interface{}{"sum": 4000.0}, c.Results[querymgr.BucketKey(b1)])

	total, err := c.Total()
	require.NoError(t, err)
	require.Equal(t, 6000.0, total)
}

func TestTraining(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)
	bid := e.bucket(t, ctx, []ledgersim.Row{
		{"x": 1, "y": 3}, {"x": 2, "y": 5}, {"x": 3, "y": 7},
	}, openPolicy(0, "x", "y"))

	model, err := e.queries.TrainModel(ctx, querymgr.TrainingRequest{
		Operation:  "linear-regression",
		Parameters: map[string]interface{}{"x": "x", "y": "y"},
	}, querymgr.Target{BucketIDs: []big.Int{bid}, PolicyIndexes: []uint64{0}})
	require.NoError(t, err)

	coef, ok := model["coefficients"].([]interface{})
	require.True(t, ok)
	require.Len(t, coef, 2)
	require.InDelta(t, 1.0, coef[0], 1e-9)
	require.InDelta(t, 2.0, coef[1], 1e-9)
}

func TestPickledResult(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, false)
	e.node.Worker().SetPickle(true)
	bid := e.bucket(t, ctx, people, openPolicy(0, "*"))

	v, err := e.queries.Query(ctx, querymgr.AggregateQuery{Type: "max", Column: "income"},
		querymgr.Target{BucketIDs: []big.Int{bid}, PolicyIndexes: []uint64{0}})
	require.NoError(t, err)
	require.Equal(t, 3000.0, v)
}

func TestLegacyRegistry(t *testing.T) {
	ctx := testCtx(t)
	e := setupSim(t, true)
	require.Equal(t, contracts.LegacyPolicyAPI, e.registry.Capabilities().Policy)

	bid := e.bucket(t, ctx, people, openPolicy(0.00001, "age"))
	b, err := e.registry.ReadBucket(ctx, bid)
	require.NoError(t, err)
	require.Len(t, b.PolicyIDs, 1)

	p, err := e.registry.ReadPolicy(ctx, b.PolicyIDs[0])
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), p.Price)
	require.Empty(t, p.DisclosureOperations)

	count, err := e.queries.Query(ctx, querymgr.AggregateQuery{Type: "count", Column: "age"},
		querymgr.Target{BucketIDs: []big.Int{bid}, PolicyIndexes: []uint64{0}})
	require.NoError(t, err)
	require.Equal(t, 3.0, count)
}
