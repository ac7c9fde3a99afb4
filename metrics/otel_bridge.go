package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

func init() {
	// Set up otel to prometheus reporting so that otel instruments end up next
	// to the opencensus views on the same prometheus registry.
	if bridge, err := prometheus.New(); err != nil {
		log.Errorf("could not create the otel prometheus exporter: %v", err)
	} else {
		provider := metric.NewMeterProvider(metric.WithReader(bridge))
		otel.SetMeterProvider(provider)
	}
}

var (
	txCounterOnce sync.Once
	txCounter     otelmetric.Int64Counter
)

// CountTx records a finished transaction through the otel meter. The
// counter is created lazily so the bridge above is installed first.
func CountTx(ctx context.Context, db, outcome string) {
	txCounterOnce.Do(func() {
		c, err := otel.Meter("sqldir").Int64Counter("sqldir_transactions",
			otelmetric.WithDescription("Finished transactions by outcome"))
		if err != nil {
			log.Errorf("creating transaction counter: %v", err)
		}
		txCounter = c
	})
	if txCounter == nil {
		return
	}
	txCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("db_name", db),
		attribute.String("outcome", outcome),
	))
}
