package observe

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/instantcocoa/periscope/pkg/query"
)

// Facet names of span listings. FacetServices is shared with logs.
const (
	FacetSpanKinds       = "spanKinds"
	FacetSpanNames       = "spanNames"
	FacetStatusCodes     = "statusCodes"
	FacetHTTPStatusCodes = "httpStatusCodes"
)

// Stored forms of the ok and error statuses. Spans written by the
// OpenTelemetry collector carry the STATUS_CODE_ prefix.
var (
	okStatusForms    = []query.Value{query.String("Ok"), query.String("STATUS_CODE_OK")}
	errorStatusForms = []query.Value{query.String("Error"), query.String("STATUS_CODE_ERROR")}
)

// httpStatusColumns project the HTTP status attributes for facets.
var httpStatusColumns = []query.KeyColumn{
	{Column: colSpanAttributes, Key: attrHTTPStatusCode, As: "http_status_code"},
	{Column: colSpanAttributes, Key: attrHTTPResponseStatusCode, As: "http_response_status_code"},
}

// maxTraceSpans bounds the spans returned for one trace.
const maxTraceSpans = 10000

var defaultSpanOrder = query.Order{Column: colTimestamp, Desc: true}

// ListSpans returns one page of spans. The services facet ignores every
// filter but the time range; the span kind, name and status facets are
// narrowed by service only, so a selected value never hides its siblings.
// Status filters and facets use the derived status, so a span with a 4xx
// or 5xx HTTP response counts as an error whatever its stored status.
func (s *Service) ListSpans(ctx context.Context, q SpanQuery) (page *Page[Span], err error) {
	ctx, op := s.begin(ctx, "ListSpans",
		attribute.String("filter.service", q.Service),
		attribute.Int("page", q.Page.Page),
	)
	defer func() { op.end(ctx, err) }()

	if err := validatePage(q.Page); err != nil {
		return nil, err
	}
	order, err := query.ParseOrder(SpanSchema, q.Page.SortBy, q.Page.SortOrder, defaultSpanOrder)
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
	if q.Kind != "" {
		kind, err := ParseSpanKind(q.Kind)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, eqCondition(colSpanKind, kind.String()))
	}
	if q.Name != "" {
		conditions = append(conditions, eqCondition(colSpanName, q.Name))
	}
	if q.TraceID != "" {
		conditions = append(conditions, eqCondition(colTraceID, q.TraceID))
	}
	var exprs []query.Expr
	if q.StatusCode != "" {
		e, err := statusExpr(q.StatusCode)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}

	where, err := query.Build(SpanSchema, query.Filter{Conditions: conditions, Exprs: exprs, Search: q.Search, Window: window})
	if err != nil {
		return nil, err
	}
	servicesScope, err := query.Build(SpanSchema, query.Filter{Window: window})
	if err != nil {
		return nil, err
	}
	serviceScope, err := query.Build(SpanSchema, query.Filter{Conditions: service, Window: window})
	if err != nil {
		return nil, err
	}

	return s.spans.Fetch(ctx, where, q.Page, order, []FacetSpec{
		{Name: FacetServices, Column: colServiceName, Where: servicesScope},
		{Name: FacetSpanKinds, Column: colSpanKind, Where: serviceScope},
		{Name: FacetSpanNames, Column: colSpanName, Where: serviceScope},
		{Name: FacetStatusCodes, Column: colStatusCode, Keys: httpStatusColumns, Where: serviceScope, Label: statusLabel},
		{Name: FacetHTTPStatusCodes, Keys: httpStatusColumns, Where: serviceScope, Label: httpStatusLabel},
	})
}

func statusLabel(row query.Row) string {
	attrs := make(map[string]string, len(httpStatusColumns))
	for _, k := range httpStatusColumns {
		attrs[k.Key] = row.String(k.As)
	}
	return deriveStatus(row.String(colStatusCode), attrs).String()
}

// httpStatusLabel returns the first valid HTTP status code of the row.
func httpStatusLabel(row query.Row) string {
	for _, k := range httpStatusColumns {
		if n, err := strconv.Atoi(strings.TrimSpace(row.String(k.As))); err == nil && n >= 100 && n <= 599 {
			return strconv.Itoa(n)
		}
	}
	return ""
}

// statusExpr matches either the derived span status or, for a numeric
// code, any HTTP response status attribute.
func statusExpr(code string) (query.Expr, error) {
	code = strings.TrimSpace(code)
	if n, err := strconv.Atoi(code); err == nil {
		if n < 100 || n > 599 {
			return query.Expr{}, invalidf("http status code %d out of range", n)
		}
		alts := make([]query.Expr, 0, len(httpStatusKeys))
		for _, key := range httpStatusKeys {
			alts = append(alts, query.Eq(query.MapNumber(colSpanAttributes, key), query.Int(int64(n))))
		}
		return query.Or(alts...), nil
	}

	status, err := ParseSpanStatus(code)
	if err != nil {
		return query.Expr{}, err
	}
	stored := query.Col(colStatusCode)
	switch status {
	case SpanStatusError:
		return query.Or(query.In(stored, errorStatusForms...), httpErrorExpr()), nil
	case SpanStatusOK:
		return query.And(query.In(stored, okStatusForms...), query.Not(httpErrorExpr())), nil
	default:
		return query.And(
			query.Not(query.In(stored, append(append([]query.Value(nil), okStatusForms...), errorStatusForms...)...)),
			query.Not(httpErrorExpr()),
		), nil
	}
}

// httpErrorExpr matches spans whose HTTP status attributes hold a 4xx or
// 5xx code. It agrees with isHTTPError.
func httpErrorExpr() query.Expr {
	alts := make([]query.Expr, 0, len(httpStatusKeys))
	for _, key := range httpStatusKeys {
		code := query.MapNumber(colSpanAttributes, key)
		alts = append(alts, query.And(query.Gte(code, query.Int(400)), query.Lt(code, query.Int(600))))
	}
	return query.Or(alts...)
}

// GetTrace returns every span of a trace ordered by start time. An unknown
// trace yields an empty trace, not an error.
func (s *Service) GetTrace(ctx context.Context, q TraceQuery) (tr *Trace, err error) {
	ctx, op := s.begin(ctx, "GetTrace", attribute.String("trace_id", q.TraceID))
	defer func() { op.end(ctx, err) }()

	traceID := strings.TrimSpace(q.TraceID)
	if traceID == "" {
		return nil, invalidf("trace id is required")
	}
	if err := query.ValidateLiteral(traceID); err != nil {
		return nil, err
	}

	rows, err := s.backend.Execute(ctx, query.Query{
		Schema:  SpanSchema,
		Where:   query.Eq(query.Col(colTraceID), query.String(traceID)),
		OrderBy: []query.Order{{Column: colTimestamp}},
		Limit:   maxTraceSpans,
	})
	if err != nil {
		return nil, err
	}

	spans := make([]Span, 0, len(rows))
	for _, row := range rows {
		spans = append(spans, spanFromRow(row))
	}
	return buildTrace(traceID, spans), nil
}

// buildTrace derives the trace envelope from its spans: the earliest start,
// the latest end, and the root span's service and operation.
func buildTrace(traceID string, spans []Span) *Trace {
	tr := &Trace{TraceID: traceID, Spans: spans}
	if len(spans) == 0 {
		return tr
	}

	var root *Span
	var minStart, maxEnd time.Time
	for i := range spans {
		span := &spans[i]
		if span.ParentSpanID == "" && root == nil {
			root = span
		}
		if minStart.IsZero() || span.StartTime.Before(minStart) {
			minStart = span.StartTime
		}
		if end := span.StartTime.Add(span.Duration); maxEnd.IsZero() || end.After(maxEnd) {
			maxEnd = end
		}
	}

	tr.StartTime = minStart
	tr.Duration = maxEnd.Sub(minStart)
	if root != nil {
		tr.RootService = root.ServiceName
		tr.RootOperation = root.Name
	}
	return tr
}
