package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/instantcocoa/periscope/pkg/query"
)

// Facet names of log listings.
const (
	FacetServices   = "services"
	FacetSeverities = "severities"
)

var defaultLogOrder = query.Order{Column: colTimestamp, Desc: true}

// ListLogs returns one page of log records with the services and severities
// facets. The services facet ignores every filter but the time range; the
// severities facet is narrowed by service only.
func (s *Service) ListLogs(ctx context.Context, q LogQuery) (page *Page[LogRecord], err error) {
	ctx, op := s.begin(ctx, "ListLogs",
		attribute.String("filter.service", q.Service),
		attribute.Int("page", q.Page.Page),
	)
	defer func() { op.end(ctx, err) }()

	if err := validatePage(q.Page); err != nil {
		return nil, err
	}
	order, err := query.ParseOrder(LogSchema, q.Page.SortBy, q.Page.SortOrder, defaultLogOrder)
	if err != nil {
		return nil, err
	}
	window, err := q.TimeRange.Window(s.now(), 0)
	if err != nil {
		return nil, err
	}

	var service []query.Condition
	if q.Service != "" {
		service = append(service, eqCondition(colServiceName, q.Service))
	}

	conditions := append([]query.Condition(nil), service...)
	if q.TraceID != "" {
		conditions = append(conditions, eqCondition(colTraceID, q.TraceID))
	}
	if q.Severity != "" {
		sev, err := ParseSeverity(q.Severity)
		if err != nil {
			return nil, err
		}
		lo, hi := sev.numberRange()
		conditions = append(conditions,
			query.Condition{Column: colSeverityNumber, Op: query.OpGte, Value: query.Int(lo)},
			query.Condition{Column: colSeverityNumber, Op: query.OpLte, Value: query.Int(hi)},
		)
	}
	if q.MinSeverity != "" {
		sev, err := ParseSeverity(q.MinSeverity)
		if err != nil {
			return nil, err
		}
		lo, _ := sev.numberRange()
		conditions = append(conditions,
			query.Condition{Column: colSeverityNumber, Op: query.OpGte, Value: query.Int(lo)})
	}

	where, err := query.Build(LogSchema, query.Filter{Conditions: conditions, Search: q.Search, Window: window})
	if err != nil {
		return nil, err
	}
	servicesScope, err := query.Build(LogSchema, query.Filter{Window: window})
	if err != nil {
		return nil, err
	}
	severityScope, err := query.Build(LogSchema, query.Filter{Conditions: service, Window: window})
	if err != nil {
		return nil, err
	}

	return s.logs.Fetch(ctx, where, q.Page, order, []FacetSpec{
		{Name: FacetServices, Column: colServiceName, Where: servicesScope},
		{Name: FacetSeverities, Column: colSeverityNumber, Where: severityScope, Label: severityLabel},
	})
}

func severityLabel(row query.Row) string {
	return SeverityFromNumber(row.Int64(colSeverityNumber)).String()
}

func eqCondition(column, value string) query.Condition {
	return query.Condition{Column: column, Op: query.OpEq, Value: query.String(value)}
}
