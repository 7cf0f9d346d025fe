package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

func TestRecordTagsOutcome(t *testing.T) {
	require.NoError(t, view.Register(QueryResultsView, QueryWaitTimeView))
	defer view.Unregister(QueryResultsView, QueryWaitTimeView)

	ctx := context.Background()
	Record(ctx, []tag.Mutator{tag.Upsert(Outcome, OutcomeSuccess)}, QueryResults.M(1))
	Record(ctx, []tag.Mutator{tag.Upsert(Outcome, OutcomeFailed)}, QueryResults.M(1))
	Record(ctx, []tag.Mutator{tag.Upsert(Outcome, OutcomeSuccess)}, QueryResults.M(1))

	rows, err := view.RetrieveData(QueryResultsView.Name)
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, r := range rows {
		require.Len(t, r.Tags, 1)
		counts[r.Tags[0].Value] = r.Data.(*view.CountData).Value
	}
	require.Equal(t, map[string]int64{OutcomeSuccess: 2, OutcomeFailed: 1}, counts)

	stop := Timer(ctx, QueryWaitTimeMs)
	require.GreaterOrEqual(t, stop().Milliseconds(), int64(0))
	rows, err = view.RetrieveData(QueryWaitTimeView.Name)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, rows[0].Data.(*view.DistributionData).Count)
}
