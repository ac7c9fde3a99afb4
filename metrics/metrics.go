package metrics

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var log = logging.Logger("metrics")

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, // Very short intervals for fast operations
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100, // 10 ms intervals up to 100 ms
	150, 200, 250, 300, 350, 400, 450, 500, // 50 ms intervals from 100 to 500 ms
	600, 700, 800, 900, 1000, // 100 ms intervals from 500 to 1000 ms
	2000, 3000, 4000, 5000, 10000, 20000, 30000, 60000,
)

var rowCountDistribution = view.Distribution(0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000, 100000)

// Tags
var (
	DBName, _    = tag.NewKey("db_name")
	Member, _    = tag.NewKey("member")
	Outcome, _   = tag.NewKey("outcome")
	ErrorKind, _ = tag.NewKey("error_kind")
)

// Measures
var (
	DBHits            = stats.Int64("sqldir/hits", "Total number of statements executed", stats.UnitDimensionless)
	DBTotalWait       = stats.Float64("sqldir/statement_ms", "Duration of statement execution", stats.UnitMilliseconds)
	DBErrors          = stats.Int64("sqldir/errors", "Total statement errors", stats.UnitDimensionless)
	DBRows            = stats.Int64("sqldir/rows", "Rows returned per statement", stats.UnitDimensionless)
	DBAcquires        = stats.Int64("sqldir/acquires", "Connections checked out of the pool", stats.UnitDimensionless)
	DBAcquireWait     = stats.Float64("sqldir/acquire_ms", "Time spent waiting for a pooled connection", stats.UnitMilliseconds)
	DBAcquireErrors   = stats.Int64("sqldir/acquire_errors", "Failed connection checkouts", stats.UnitDimensionless)
	DBOpenConnections = stats.Int64("sqldir/open_connections", "Total connection count", stats.UnitDimensionless)
	TxOutcomes        = stats.Int64("sqldir/tx", "Finished transactions", stats.UnitDimensionless)
)

// Waits mirrors DBTotalWait as a native prometheus histogram.
var Waits = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "sqldir_waits",
	Buckets: []float64{0, 10, 20, 30, 50, 80, 130, 210, 340, 550, 890},
	Help:    "The histogram of waits for query completions.",
})

var (
	DBHitsView = &view.View{
		Measure:     DBHits,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{DBName, Member},
	}
	DBTotalWaitView = &view.View{
		Measure:     DBTotalWait,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{DBName, Member},
	}
	DBErrorsView = &view.View{
		Measure:     DBErrors,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{DBName, Member, ErrorKind},
	}
	DBRowsView = &view.View{
		Measure:     DBRows,
		Aggregation: rowCountDistribution,
		TagKeys:     []tag.Key{DBName, Member},
	}
	DBAcquiresView = &view.View{
		Measure:     DBAcquires,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{DBName},
	}
	DBAcquireWaitView = &view.View{
		Measure:     DBAcquireWait,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{DBName},
	}
	DBAcquireErrorsView = &view.View{
		Measure:     DBAcquireErrors,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{DBName},
	}
	DBOpenConnectionsView = &view.View{
		Measure:     DBOpenConnections,
		Aggregation: view.LastValue(),
	}
	TxOutcomesView = &view.View{
		Measure:     TxOutcomes,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{DBName, Outcome},
	}
)

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = []*view.View{
	DBHitsView,
	DBTotalWaitView,
	DBErrorsView,
	DBRowsView,
	DBAcquiresView,
	DBAcquireWaitView,
	DBAcquireErrorsView,
	DBOpenConnectionsView,
	TxOutcomesView,
}

func init() {
	if err := prometheus.Register(Waits); err != nil {
		log.Errorf("registering waits histogram: %v", err)
	}
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Microseconds()) / 1000
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

// WithDB tags ctx with the database name when one is set.
func WithDB(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	ctx, _ = tag.New(ctx, tag.Upsert(DBName, name))
	return ctx
}
