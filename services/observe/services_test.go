package observe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListServices(t *testing.T) {
	f := newFixture(t, TopologyConfig{})
	failed := span("T1", "b", "a", "db", SpanKindServer, ago(time.Minute), 30*time.Millisecond)
	failed.Status = SpanStatusError
	old := span("T0", "z", "", "legacy", SpanKindServer, ago(48*time.Hour), time.Second)
	f.spans(t,
		span("T1", "a", "", "api", SpanKindServer, ago(time.Minute), 100*time.Millisecond),
		span("T2", "c", "", "api", SpanKindServer, ago(2*time.Minute), 50*time.Millisecond),
		failed,
		span("T3", "d", "", "db", SpanKindServer, ago(3*time.Minute), 10*time.Millisecond),
		old,
	)

	services, err := f.service.ListServices(context.Background(), ServicesQuery{})
	require.NoError(t, err)
	require.Len(t, services, 3)
	assert.Equal(t, "api", services[0].Name)
	assert.Equal(t, int64(2), services[0].RequestCount)
	assert.InDelta(t, 75.0, services[0].AvgLatencyMillis, 1e-9)
	assert.Zero(t, services[0].ErrorRate)
	assert.Equal(t, "db", services[1].Name)
	assert.InDelta(t, 0.5, services[1].ErrorRate, 1e-9)
	assert.InDelta(t, 20.0, services[1].AvgLatencyMillis, 1e-9)
	assert.Equal(t, "legacy", services[2].Name)

	services, err = f.service.ListServices(context.Background(), ServicesQuery{TimeRange: TimeRange{LastMinutes: 60}})
	require.NoError(t, err)
	assert.Len(t, services, 2)
}

func TestListServices_Empty(t *testing.T) {
	f := newFixture(t, TopologyConfig{})

	services, err := f.service.ListServices(context.Background(), ServicesQuery{})
	require.NoError(t, err)
	assert.Empty(t, services)
	assert.NotNil(t, services)
}

func TestQueryMetrics(t *testing.T) {
	f := newFixture(t, TopologyConfig{})
	point := func(service, name string, bucket time.Time, avg float64) MetricPoint {
		return MetricPoint{ServiceName: service, MetricName: name, Unit: "ms", Bucket: bucket, Avg: avg, Min: avg / 2, Max: avg * 2, Count: 10}
	}
	f.metrics(t,
		point("api", "latency", ago(3*time.Minute), 12),
		point("api", "latency", ago(time.Minute), 10),
		point("api", "errors", ago(time.Minute), 1),
		point("db", "latency", ago(2*time.Minute), 3),
		point("api", "latency", ago(2*time.Hour), 99),
	)

	points, err := f.service.QueryMetrics(context.Background(), MetricQuery{})
	require.NoError(t, err)
	require.Len(t, points, 4, "default window is the last hour")
	assert.Equal(t, "errors", points[0].MetricName, "ties ordered by metric name")
	assert.Equal(t, "latency", points[1].MetricName)
	assert.Equal(t, ago(2*time.Minute), points[2].Bucket)

	points, err = f.service.QueryMetrics(context.Background(), MetricQuery{Service: "api", MetricName: "latency"})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, MetricPoint{ServiceName: "api", MetricName: "latency", Unit: "ms", Bucket: ago(time.Minute), Avg: 10, Min: 5, Max: 20, Count: 10}, points[0])

	points, err = f.service.QueryMetrics(context.Background(), MetricQuery{TimeRange: TimeRange{LastMinutes: 180}})
	require.NoError(t, err)
	assert.Len(t, points, 5)

	_, err = f.service.QueryMetrics(context.Background(), MetricQuery{TimeRange: TimeRange{LastMinutes: -1}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIngest(t *testing.T) {
	f := newFixture(t, TopologyConfig{})
	ctx := context.Background()

	res, err := f.service.IngestSpans(ctx, []Span{
		span("T1", "a", "", "api", SpanKindServer, ago(time.Minute), time.Millisecond),
		span("T1", "b", "a", "api", SpanKindInternal, ago(time.Minute), time.Millisecond),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 2, f.engine.Len(SpanSchema.Table))

	res, err = f.service.IngestLogs(ctx, []LogRecord{logRecord("api", SeverityWarn, ago(time.Second), "slow")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)

	res, err = f.service.IngestMetrics(ctx, []MetricPoint{{ServiceName: "api", MetricName: "rps", Bucket: ago(time.Minute), Count: 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)

	page, err := f.service.ListLogs(ctx, LogQuery{Page: DefaultPageRequest()})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, SeverityWarn, page.Records[0].Severity)
}

func TestIngest_Rejected(t *testing.T) {
	f := newFixture(t, TopologyConfig{})
	ctx := context.Background()
	now := ago(0)

	tooMany := make([]MetricPoint, MaxIngestBatch+1)
	for i := range tooMany {
		tooMany[i] = MetricPoint{ServiceName: "api", MetricName: fmt.Sprintf("m%d", i), Bucket: now}
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"empty spans", func() error { _, err := f.service.IngestSpans(ctx, nil); return err }},
		{"span without ids", func() error {
			_, err := f.service.IngestSpans(ctx, []Span{{ServiceName: "api"}})
			return err
		}},
		{"span without service", func() error {
			_, err := f.service.IngestSpans(ctx, []Span{{TraceID: "t", SpanID: "s"}})
			return err
		}},
		{"negative duration", func() error {
			_, err := f.service.IngestSpans(ctx, []Span{span("t", "s", "", "api", SpanKindServer, now, -time.Second)})
			return err
		}},
		{"empty logs", func() error { _, err := f.service.IngestLogs(ctx, []LogRecord{}); return err }},
		{"log severity", func() error {
			_, err := f.service.IngestLogs(ctx, []LogRecord{logRecord("api", Severity(3), now, "x")})
			return err
		}},
		{"log timestamp", func() error {
			_, err := f.service.IngestLogs(ctx, []LogRecord{logRecord("api", SeverityInfo, time.Time{}, "x")})
			return err
		}},
		{"metric name", func() error {
			_, err := f.service.IngestMetrics(ctx, []MetricPoint{{ServiceName: "api", Bucket: now}})
			return err
		}},
		{"metric count", func() error {
			_, err := f.service.IngestMetrics(ctx, []MetricPoint{{ServiceName: "api", MetricName: "m", Bucket: now, Count: -1}})
			return err
		}},
		{"batch too large", func() error { _, err := f.service.IngestMetrics(ctx, tooMany); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), ErrInvalidInput)
		})
	}
	assert.Zero(t, f.engine.Len(SpanSchema.Table))
	assert.Zero(t, f.engine.Len(LogSchema.Table))
	assert.Zero(t, f.engine.Len(MetricSchema.Table))
}

func TestPing(t *testing.T) {
	f := newFixture(t, TopologyConfig{})
	require.NoError(t, f.service.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(f.service.Ping(ctx), context.Canceled))
}
