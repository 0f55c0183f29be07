package publisher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type syncMetrics struct {
	runs     metric.Int64Counter
	failures metric.Int64Counter
	ingested metric.Int64Counter
	duration metric.Float64Histogram
}

func newSyncMetrics(meter metric.Meter) (*syncMetrics, error) {
	runs, err := meter.Int64Counter("sync.runs",
		metric.WithDescription("Sync cycles started, by outcome"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("sync.publisher.failures",
		metric.WithDescription("Publisher manifests or files that failed to sync"))
	if err != nil {
		return nil, err
	}
	ingested, err := meter.Int64Counter("sync.resources.ingested",
		metric.WithDescription("Resources upserted, by type"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("sync.duration",
		metric.WithDescription("Sync cycle duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &syncMetrics{runs: runs, failures: failures, ingested: ingested, duration: duration}, nil
}

func (m *syncMetrics) recordRun(ctx context.Context, outcome string, d time.Duration) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome != "skipped" {
		m.duration.Record(ctx, d.Seconds())
	}
}

func (m *syncMetrics) recordFailure(ctx context.Context, publisher, stage string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("publisher", publisher),
		attribute.String("stage", stage),
	))
}

func (m *syncMetrics) recordIngested(ctx context.Context, resourceType string, n int) {
	m.ingested.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", resourceType)))
}
