package observe

import (
	"context"
	"sort"
	"time"

	"github.com/instantcocoa/periscope/pkg/query"
)

// ListServices summarizes the spans of every service in the window. An
// empty time range covers all stored spans.
func (s *Service) ListServices(ctx context.Context, q ServicesQuery) (services []ServiceSummary, err error) {
	ctx, op := s.begin(ctx, "ListServices")
	defer func() { op.end(ctx, err) }()

	window, err := q.TimeRange.Window(s.now(), 0)
	if err != nil {
		return nil, err
	}

	rows, err := s.backend.Execute(ctx, query.Query{
		Schema:  SpanSchema,
		Columns: []string{colServiceName, colDuration, colStatusCode, colSpanAttributes},
		Where:   window.Expr(colTimestamp),
	})
	if err != nil {
		return nil, err
	}

	acc := make(map[string]*accumulator)
	for _, row := range rows {
		name := row.String(colServiceName)
		if name == "" {
			continue
		}
		a, ok := acc[name]
		if !ok {
			a = &accumulator{}
			acc[name] = a
		}
		a.add(time.Duration(row.Int64(colDuration)),
			deriveStatus(row.String(colStatusCode), row.Map(colSpanAttributes)) == SpanStatusError)
	}

	services = make([]ServiceSummary, 0, len(acc))
	for name, a := range acc {
		stats := a.stats()
		services = append(services, ServiceSummary{
			Name:             name,
			RequestCount:     stats.Count,
			AvgLatencyMillis: stats.AvgLatencyMillis,
			ErrorRate:        stats.ErrorRate,
		})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}
