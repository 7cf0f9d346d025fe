package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	rpcmetrics "github.com/filecoin-project/go-jsonrpc/metrics"
)

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	1, 2, 5, 10, 20, 50, 100, 200, 500, // fast reads
	1000, 2000, 5000, 10_000, 20_000, 30_000, 60_000, // block times
	120_000, 180_000, 300_000, 600_000, 1_800_000, 3_600_000, // slow confirmations and long running queries
)

// Tags
var (
	Version, _ = tag.NewKey("version")
	Commit, _  = tag.NewKey("commit")
	Network, _ = tag.NewKey("network")

	Contract, _ = tag.NewKey("contract")
	Method, _   = tag.NewKey("method")
	Outcome, _  = tag.NewKey("outcome")
	Kind, _     = tag.NewKey("kind")
)

// Outcome tag values
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeReverted = "reverted"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Measures
var (
	NectarInfo = stats.Int64("info", "Arbitrary counter to tag nectar info to", stats.UnitDimensionless)

	LedgerCallDuration   = stats.Float64("ledger/call_ms", "Duration of read-only contract calls", stats.UnitMilliseconds)
	LedgerCallFailure    = stats.Int64("ledger/call_failure", "Counter for failed contract calls", stats.UnitDimensionless)
	TxSubmitted          = stats.Int64("ledger/tx_submitted", "Counter for submitted transactions", stats.UnitDimensionless)
	TxConfirmed          = stats.Int64("ledger/tx_confirmed", "Counter for transactions by confirmation outcome", stats.UnitDimensionless)
	TxConfirmationTimeMs = stats.Float64("ledger/tx_confirmation_ms", "Time from submission to receipt", stats.UnitMilliseconds)

	QueriesSubmitted = stats.Int64("query/submitted", "Counter for submitted queries", stats.UnitDimensionless)
	QueryResults     = stats.Int64("query/results", "Counter for query results by outcome", stats.UnitDimensionless)
	QueryWaitTimeMs  = stats.Float64("query/wait_ms", "Time from submission to result", stats.UnitMilliseconds)
	PollTicks        = stats.Int64("query/poll_ticks", "Counter for result poll reads", stats.UnitDimensionless)
	ActivePolls      = stats.Int64("query/active_polls", "Number of running result polls", stats.UnitDimensionless)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "Nectar client information",
		Measure:     NectarInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit, Network},
	}
	LedgerCallDurationView = &view.View{
		Measure:     LedgerCallDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Contract, Method},
	}
	LedgerCallFailureView = &view.View{
		Measure:     LedgerCallFailure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Contract, Method},
	}
	TxSubmittedView = &view.View{
		Measure:     TxSubmitted,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Contract, Method},
	}
	TxConfirmedView = &view.View{
		Measure:     TxConfirmed,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Method, Outcome},
	}
	TxConfirmationTimeView = &view.View{
		Measure:     TxConfirmationTimeMs,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Method},
	}
	QueriesSubmittedView = &view.View{
		Measure:     QueriesSubmitted,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Kind},
	}
	QueryResultsView = &view.View{
		Measure:     QueryResults,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Outcome},
	}
	QueryWaitTimeView = &view.View{
		Measure:     QueryWaitTimeMs,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Outcome},
	}
	PollTicksView = &view.View{
		Measure:     PollTicks,
		Aggregation: view.Count(),
	}
	ActivePollsView = &view.View{
		Measure:     ActivePolls,
		Aggregation: view.LastValue(),
	}
)

var views = []*view.View{
	InfoView,
	LedgerCallDurationView,
	LedgerCallFailureView,
	TxSubmittedView,
	TxConfirmedView,
	TxConfirmationTimeView,
	QueriesSubmittedView,
	QueryResultsView,
	QueryWaitTimeView,
	PollTicksView,
	ActivePollsView,
}

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = func() []*view.View {
	return views
}()

// RegisterViews adds views to the default list without modifying this file.
func RegisterViews(v ...*view.View) {
	views = append(views, v...)
	DefaultViews = views
}

func init() {
	RegisterViews(rpcmetrics.DefaultViews...)
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Milliseconds())
}

// Timer is a function stopwatch, calling it starts the timer,
// calling the returned function will record the duration.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}

// Record records measurements under the given tag mutators. Tagging errors
// are ignored.
func Record(ctx context.Context, mutators []tag.Mutator, ms ...stats.Measurement) {
	_ = stats.RecordWithTags(ctx, mutators, ms...)
}
