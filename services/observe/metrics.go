package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/instantcocoa/periscope/pkg/query"
)

// maxMetricPoints bounds one metrics response.
const maxMetricPoints = 5000

// QueryMetrics returns pre-aggregated metric buckets, newest first. The time
// range defaults to the last DefaultMetricsWindow.
func (s *Service) QueryMetrics(ctx context.Context, q MetricQuery) (points []MetricPoint, err error) {
	ctx, op := s.begin(ctx, "QueryMetrics",
		attribute.String("filter.service", q.Service),
		attribute.String("filter.metric", q.MetricName),
	)
	defer func() { op.end(ctx, err) }()

	window, err := q.TimeRange.Window(s.now(), DefaultMetricsWindow)
	if err != nil {
		return nil, err
	}

	var conditions []query.Condition
	if q.Service != "" {
		conditions = append(conditions, eqCondition(colServiceName, q.Service))
	}
	if q.MetricName != "" {
		conditions = append(conditions, eqCondition(colMetricName, q.MetricName))
	}
	where, err := query.Build(MetricSchema, query.Filter{Conditions: conditions, Window: window})
	if err != nil {
		return nil, err
	}

	rows, err := s.backend.Execute(ctx, query.Query{
		Schema: MetricSchema,
		Where:  where,
		OrderBy: []query.Order{
			{Column: colBucket, Desc: true},
			{Column: colMetricName},
		},
		Limit: maxMetricPoints,
	})
	if err != nil {
		return nil, err
	}

	points = make([]MetricPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, metricFromRow(row))
	}
	return points, nil
}
