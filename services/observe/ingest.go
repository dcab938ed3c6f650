package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/instantcocoa/periscope/pkg/query"
)

// MaxIngestBatch bounds the records of one ingest request.
const MaxIngestBatch = 10000

// IngestResult reports how many records were stored.
type IngestResult struct {
	Accepted int `json:"accepted"`
}

// IngestSpans stores a batch of spans.
func (s *Service) IngestSpans(ctx context.Context, spans []Span) (res *IngestResult, err error) {
	ctx, op := s.begin(ctx, "IngestSpans", attribute.Int("batch.size", len(spans)))
	defer func() { op.end(ctx, err) }()

	if err := checkBatch(len(spans)); err != nil {
		return nil, err
	}
	rows := make([]query.Row, 0, len(spans))
	for i, span := range spans {
		if span.TraceID == "" || span.SpanID == "" {
			return nil, invalidf("span %d: trace id and span id are required", i)
		}
		if span.ServiceName == "" {
			return nil, invalidf("span %d: service name is required", i)
		}
		if span.Duration < 0 {
			return nil, invalidf("span %d: negative duration", i)
		}
		rows = append(rows, spanToRow(span))
	}
	return s.insert(ctx, SpanSchema, rows)
}

// IngestLogs stores a batch of log records.
func (s *Service) IngestLogs(ctx context.Context, logs []LogRecord) (res *IngestResult, err error) {
	ctx, op := s.begin(ctx, "IngestLogs", attribute.Int("batch.size", len(logs)))
	defer func() { op.end(ctx, err) }()

	if err := checkBatch(len(logs)); err != nil {
		return nil, err
	}
	rows := make([]query.Row, 0, len(logs))
	for i, l := range logs {
		if l.ServiceName == "" {
			return nil, invalidf("log %d: service name is required", i)
		}
		if !l.Severity.Valid() {
			return nil, invalidf("log %d: invalid severity %d", i, int(l.Severity))
		}
		if l.Timestamp.IsZero() {
			return nil, invalidf("log %d: timestamp is required", i)
		}
		rows = append(rows, logToRow(l))
	}
	return s.insert(ctx, LogSchema, rows)
}

// IngestMetrics stores a batch of pre-aggregated metric buckets.
func (s *Service) IngestMetrics(ctx context.Context, points []MetricPoint) (res *IngestResult, err error) {
	ctx, op := s.begin(ctx, "IngestMetrics", attribute.Int("batch.size", len(points)))
	defer func() { op.end(ctx, err) }()

	if err := checkBatch(len(points)); err != nil {
		return nil, err
	}
	rows := make([]query.Row, 0, len(points))
	for i, p := range points {
		if p.ServiceName == "" || p.MetricName == "" {
			return nil, invalidf("metric %d: service and metric name are required", i)
		}
		if p.Bucket.IsZero() {
			return nil, invalidf("metric %d: bucket is required", i)
		}
		if p.Count < 0 {
			return nil, invalidf("metric %d: negative count", i)
		}
		rows = append(rows, metricToRow(p))
	}
	return s.insert(ctx, MetricSchema, rows)
}

func checkBatch(n int) error {
	if n == 0 {
		return invalidf("empty batch")
	}
	if n > MaxIngestBatch {
		return invalidf("batch of %d exceeds the limit of %d", n, MaxIngestBatch)
	}
	return nil
}

func (s *Service) insert(ctx context.Context, schema *query.Schema, rows []query.Row) (*IngestResult, error) {
	if err := s.backend.Insert(ctx, schema, rows); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", schema.Table, err)
	}
	s.logger.InfoContext(ctx, "records ingested", "table", schema.Table, "count", len(rows))
	return &IngestResult{Accepted: len(rows)}, nil
}
