package observe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/storage"
	"github.com/instantcocoa/periscope/pkg/testutil"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ago returns a time d before testNow.
func ago(d time.Duration) time.Time { return testNow.Add(-d) }

type fixture struct {
	engine  *storage.MemoryEngine
	service *Service
}

func newFixture(t *testing.T, topology TopologyConfig) *fixture {
	t.Helper()
	engine := storage.NewMemoryEngine()
	svc, err := NewService(engine, Config{
		Topology: topology,
		Now:      func() time.Time { return testNow },
	}, testutil.DiscardLogger())
	require.NoError(t, err)
	return &fixture{engine: engine, service: svc}
}

func (f *fixture) spans(t *testing.T, spans ...Span) {
	t.Helper()
	rows := make([]query.Row, 0, len(spans))
	for _, s := range spans {
		rows = append(rows, spanToRow(s))
	}
	require.NoError(t, f.engine.Insert(context.Background(), SpanSchema, rows))
}

func (f *fixture) logs(t *testing.T, logs ...LogRecord) {
	t.Helper()
	rows := make([]query.Row, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, logToRow(l))
	}
	require.NoError(t, f.engine.Insert(context.Background(), LogSchema, rows))
}

func (f *fixture) metrics(t *testing.T, points ...MetricPoint) {
	t.Helper()
	rows := make([]query.Row, 0, len(points))
	for _, p := range points {
		rows = append(rows, metricToRow(p))
	}
	require.NoError(t, f.engine.Insert(context.Background(), MetricSchema, rows))
}

// span builds a span starting at start. parent "" marks a root.
func span(traceID, spanID, parent, service string, kind SpanKind, start time.Time, d time.Duration) Span {
	return Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parent,
		Name:         fmt.Sprintf("%s %s", service, kind),
		ServiceName:  service,
		Kind:         kind,
		StartTime:    start,
		Duration:     d,
		Status:       SpanStatusOK,
	}
}

func logRecord(service string, sev Severity, at time.Time, body string) LogRecord {
	return LogRecord{
		Timestamp:   at,
		Severity:    sev,
		ServiceName: service,
		Body:        body,
	}
}

// graphServices counts how often each service appears in a graph.
func graphServices(g *TopologyGraph) map[string]int {
	seen := make(map[string]int)
	endpoints := make(map[string]bool)
	for _, e := range g.Edges {
		endpoints[e.Source] = true
		endpoints[e.Target] = true
	}
	for name := range endpoints {
		seen[name]++
	}
	for _, name := range g.IsolatedServices {
		seen[name]++
	}
	return seen
}
