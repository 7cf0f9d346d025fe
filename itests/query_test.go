package itests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/itests/kit"
	"github.com/nectarprotocol/nectar-go/ledger/ledgersim"
	"github.com/nectarprotocol/nectar-go/policymgr"
	"github.com/nectarprotocol/nectar-go/querymgr"
)

const startingFunds = 1_000_000

var patients = []ledgersim.Row{
	{"age": 34, "weight": 81, "site": "north"},
	{"age": 51, "weight": 77, "site": "south"},
	{"age": 29, "weight": 64, "site": "north"},
	{"age": 62, "weight": 90, "site": "south"},
}

func single(bucketID big.Int, policyIndex uint64) querymgr.Target {
	return querymgr.Target{BucketIDs: []big.Int{bucketID}, PolicyIndexes: []uint64{policyIndex}}
}

func TestCountQueryPaysPolicyPrice(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	bid := ens.Bucket(ctx, owner, patients, kit.Policy(0.00001, "age"))

	price, err := analyst.Queries.ResolvePrice(ctx, []big.Int{bid}, []uint64{0})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), price)

	count, err := analyst.Queries.Query(ctx, querymgr.AggregateQuery{Type: "count", Column: "age"}, single(bid, 0))
	require.NoError(t, err)
	require.Equal(t, 4.0, count)

	require.Equal(t, big.NewInt(startingFunds-10), ens.Sim.Balance(analyst.Key.Address))
	require.Equal(t, big.NewInt(10), ens.Sim.Balance(ens.Sim.Addresses()[contracts.QueryManager]))
	allowance := ens.Sim.Allowance(analyst.Key.Address)
	require.True(t, allowance.IsZero())

	infos, err := analyst.Queries.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, querymgr.KindAggregate, infos[0].Kind)
	require.Equal(t, big.NewInt(10), infos[0].Price)
}

func TestPriceChangeIsPickedUp(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	bid := ens.Bucket(ctx, owner, patients, kit.Policy(0.00001, "age"), kit.Policy(0.5, "*"))

	price, err := analyst.Queries.ResolvePrice(ctx, []big.Int{bid, bid}, []uint64{0, 1})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500_010), price)

	pid, err := owner.Registry.AddPolicy(ctx, kit.Policy(0.25, "*"))
	require.NoError(t, err)
	require.NoError(t, owner.Registry.AddPolicyToBucket(ctx, bid, pid))

	price, err = analyst.Queries.ResolvePrice(ctx, []big.Int{bid}, []uint64{2})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(250_000), price)
}

func TestWorkerFailureMarker(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	bid := ens.Bucket(ctx, owner, patients, kit.Policy(0, "age"))

	ens.Sim.Worker().Hold()
	h, err := analyst.Queries.SubmitAsync(ctx, &querymgr.AggregateQuery{Type: "count", Column: "age"}, single(bid, 0))
	require.NoError(t, err)
	require.NoError(t, ens.Sim.SetResult(analyst.Key.Address, h.UserIndex(), `"Something went wrong: enclave restarted"`))

	_, err = analyst.Queries.Await(ctx, h)
	var qerr *api.ErrQueryFailed
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, "Something went wrong: enclave restarted", qerr.Marker)
	require.Equal(t, querymgr.StateFailed, h.State())
}

func TestPoliciesDifferingInColumns(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	bid := ens.Bucket(ctx, owner, patients, kit.Policy(0, "age"), kit.Policy(0, "age", "weight"))

	q := querymgr.AggregateQuery{Type: "max", Column: "weight"}

	_, err := analyst.Queries.Query(ctx, q, single(bid, 0))
	var qerr *api.ErrQueryFailed
	require.ErrorAs(t, err, &qerr)
	require.Contains(t, qerr.Marker, "column weight is not allowed")

	max, err := analyst.Queries.Query(ctx, q, single(bid, 1))
	require.NoError(t, err)
	require.Equal(t, 90.0, max)
}

func TestFilteredQuery(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	bid := ens.Bucket(ctx, owner, patients, kit.Policy(0, "*"))

	mean, err := analyst.Queries.Query(ctx, querymgr.AggregateQuery{
		Type:   "mean",
		Column: "weight",
		Filters: querymgr.And(
			querymgr.Where("site", querymgr.OpEq, "south"),
			querymgr.Where("age", querymgr.OpGt, 50),
		),
	}, single(bid, 0))
	require.NoError(t, err)
	require.Equal(t, 83.5, mean)
}

func TestCategorizedByDataOwner(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	consenting := kit.Policy(0, "*")
	consenting.DisclosureOperations = []string{"count", "sum"}

	owner := ens.Owner()
	other := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	b1 := ens.Bucket(ctx, owner, patients[:3], consenting)
	b2 := ens.Bucket(ctx, other, patients[3:], consenting)
	b3 := ens.Bucket(ctx, other, patients, kit.Policy(0, "*"))

	req := querymgr.ComputationRequest{
		PreCompute: querymgr.ExpressionStep("count", "age", nil),
		Main:       querymgr.ExpressionStep("count", "age", nil),
	}

	t.Run("full consent", func(t *testing.T) {
		out, err := analyst.Queries.Compute(ctx, req, querymgr.Target{
			BucketIDs:      []big.Int{b1, b2},
			PolicyIndexes:  []uint64{0, 0},
			CategorizeByDO: true,
			AggregateType:  "count",
		})
		require.NoError(t, err)

		c, ok, err := querymgr.ParseCategorized(out)
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, c.Partial)
		require.Empty(t, c.NonConsenting)
		require.Equal(t, 3.0, c.Results[querymgr.BucketKey(b1)]["count"])
		require.Equal(t, 1.0, c.Results[querymgr.BucketKey(b2)]["count"])

		total, err := c.Total()
		require.NoError(t, err)
		require.Equal(t, 4.0, total)
	})

	t.Run("partial consent", func(t *testing.T) {
		out, err := analyst.Queries.Compute(ctx, req, querymgr.Target{
			BucketIDs:      []big.Int{b1, b3},
			PolicyIndexes:  []uint64{0, 0},
			CategorizeByDO: true,
			AggregateType:  "count",
		})
		require.NoError(t, err)

		c, ok, err := querymgr.ParseCategorized(out)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, c.Partial)
		require.Equal(t, []string{querymgr.BucketKey(b3)}, c.NonConsenting)

		buckets, err := c.Buckets()
		require.NoError(t, err)
		require.Len(t, buckets, 1)
		require.Equal(t, b1.String(), buckets[0].String())

		total, err := c.Total()
		require.NoError(t, err)
		require.Equal(t, 7.0, total)
	})
}

func TestAllowlistedBucket(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	outsider := ens.Analyst(big.NewInt(startingFunds))

	p := kit.Policy(0, "*")
	p.AllowedAddresses = append(p.AllowedAddresses, analyst.Key.Address)
	pid, err := owner.Registry.AddPolicy(ctx, p)
	require.NoError(t, err)
	bid, err := owner.Registry.AddBucket(ctx, policymgr.BucketSpec{
		PolicyIDs:     []big.Int{pid},
		UseAllowlists: []bool{true},
		DataFormat:    "std1",
		NodeAddress:   ens.Sim.Worker().Address(),
	})
	require.NoError(t, err)
	ens.Sim.Worker().Load(bid, patients...)

	count, err := analyst.Queries.Query(ctx, querymgr.AggregateQuery{Type: "count"}, single(bid, 0))
	require.NoError(t, err)
	require.Equal(t, 4.0, count)

	_, err = outsider.Queries.Query(ctx, querymgr.AggregateQuery{Type: "count"}, single(bid, 0))
	var qerr *api.ErrQueryFailed
	require.ErrorAs(t, err, &qerr)
	require.Contains(t, qerr.Marker, "Unauthorized access")
}

func TestTrainingAndComputation(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	b1 := ens.Bucket(ctx, owner, patients[:2], kit.Policy(0, "age", "weight"))
	b2 := ens.Bucket(ctx, owner, patients[2:], kit.Policy(0, "age", "weight"))

	model, err := analyst.Queries.TrainModel(ctx, querymgr.TrainingRequest{
		Operation:  "linear-regression",
		Parameters: map[string]interface{}{"x": "age", "y": "weight"},
	}, single(b1, 0))
	require.NoError(t, err)
	require.Len(t, model["coefficients"], 2)

	out, err := analyst.Queries.Compute(ctx, querymgr.ComputationRequest{
		PreCompute: querymgr.ExpressionStep("max", "weight", nil),
		Main:       querymgr.ExpressionStep("min", "weight", nil),
	}, querymgr.Target{BucketIDs: []big.Int{b1, b2}, PolicyIndexes: []uint64{0, 0}})
	require.NoError(t, err)
	require.Equal(t, 81.0, out)

	_, err = analyst.Queries.Compute(ctx, querymgr.ComputationRequest{
		PreCompute: querymgr.ExpressionStep("max", "weight", nil),
	}, querymgr.Target{BucketIDs: []big.Int{b1, b2}, PolicyIndexes: []uint64{0, 0}})
	var verr *api.ErrValidation
	require.ErrorAs(t, err, &verr)
}
