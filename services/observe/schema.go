package observe

import (
	"strconv"
	"time"

	"github.com/instantcocoa/periscope/pkg/query"
)

// Logical column names shared by every backend.
const (
	colTimestamp          = "timestamp"
	colTraceID            = "trace_id"
	colSpanID             = "span_id"
	colParentSpanID       = "parent_span_id"
	colSpanName           = "span_name"
	colSpanKind           = "span_kind"
	colServiceName        = "service_name"
	colStatusCode         = "status_code"
	colDuration           = "duration_ns"
	colSpanAttributes     = "span_attributes"
	colResourceAttributes = "resource_attributes"
	colSeverityText       = "severity_text"
	colSeverityNumber     = "severity_number"
	colBody               = "body"
	colLogAttributes      = "log_attributes"
	colBucket             = "bucket"
	colMetricName         = "metric_name"
	colMetricUnit         = "metric_unit"
	colAvgValue           = "avg_value"
	colMinValue           = "min_value"
	colMaxValue           = "max_value"
	colTotalCount         = "total_count"
)

// Attribute keys carrying the HTTP response status of a span.
const (
	attrHTTPStatusCode         = "http.status_code"
	attrHTTPResponseStatusCode = "http.response.status_code"
)

// SpanSchema is the allow-list for span queries.
var SpanSchema = &query.Schema{
	Table: "spans",
	Columns: []query.Column{
		{Name: colTimestamp, Type: query.TypeTime},
		{Name: colTraceID, Type: query.TypeString},
		{Name: colSpanID, Type: query.TypeString},
		{Name: colParentSpanID, Type: query.TypeString},
		{Name: colSpanName, Type: query.TypeString},
		{Name: colSpanKind, Type: query.TypeString},
		{Name: colServiceName, Type: query.TypeString},
		{Name: colStatusCode, Type: query.TypeString},
		{Name: colDuration, Type: query.TypeInt},
		{Name: colSpanAttributes, Type: query.TypeMap},
		{Name: colResourceAttributes, Type: query.TypeMap},
	},
	TimeColumn: colTimestamp,
	Searchable: []string{colSpanName, colTraceID, colSpanID, colSpanAttributes, colResourceAttributes},
	Sortable:   []string{colTimestamp, colDuration, colSpanName, colServiceName},
}

// LogSchema is the allow-list for log queries.
var LogSchema = &query.Schema{
	Table: "logs",
	Columns: []query.Column{
		{Name: colTimestamp, Type: query.TypeTime},
		{Name: colTraceID, Type: query.TypeString},
		{Name: colSpanID, Type: query.TypeString},
		{Name: colSeverityText, Type: query.TypeString},
		{Name: colSeverityNumber, Type: query.TypeInt},
		{Name: colServiceName, Type: query.TypeString},
		{Name: colBody, Type: query.TypeString},
		{Name: colResourceAttributes, Type: query.TypeMap},
		{Name: colLogAttributes, Type: query.TypeMap},
	},
	TimeColumn: colTimestamp,
	Searchable: []string{colBody, colTraceID, colSpanID, colLogAttributes, colResourceAttributes},
	Sortable:   []string{colTimestamp, colSeverityNumber, colServiceName},
}

// MetricSchema is the allow-list for pre-aggregated metric buckets.
var MetricSchema = &query.Schema{
	Table: "metrics",
	Columns: []query.Column{
		{Name: colBucket, Type: query.TypeTime},
		{Name: colServiceName, Type: query.TypeString},
		{Name: colMetricName, Type: query.TypeString},
		{Name: colMetricUnit, Type: query.TypeString},
		{Name: colAvgValue, Type: query.TypeFloat},
		{Name: colMinValue, Type: query.TypeFloat},
		{Name: colMaxValue, Type: query.TypeFloat},
		{Name: colTotalCount, Type: query.TypeInt},
	},
	TimeColumn: colBucket,
	Searchable: []string{colMetricName},
	Sortable:   []string{colBucket, colMetricName},
}

// ClickHouseDialect maps the logical tables onto the schema written by the
// OpenTelemetry Collector ClickHouse exporter. Metric buckets are read from
// a one-minute rollup of otel_metrics_histogram.
func ClickHouseDialect() query.ClickHouse {
	return query.ClickHouse{
		Tables: map[string]string{
			SpanSchema.Table:   "otel_traces",
			LogSchema.Table:    "otel_logs",
			MetricSchema.Table: "otel_metrics_1m",
		},
		Columns: map[string]string{
			colTimestamp:          "Timestamp",
			colTraceID:            "TraceId",
			colSpanID:             "SpanId",
			colParentSpanID:       "ParentSpanId",
			colSpanName:           "SpanName",
			colSpanKind:           "SpanKind",
			colServiceName:        "ServiceName",
			colStatusCode:         "StatusCode",
			colDuration:           "Duration",
			colSpanAttributes:     "SpanAttributes",
			colResourceAttributes: "ResourceAttributes",
			colSeverityText:       "SeverityText",
			colSeverityNumber:     "SeverityNumber",
			colBody:               "Body",
			colLogAttributes:      "LogAttributes",
			colBucket:             "Bucket",
			colMetricName:         "MetricName",
			colMetricUnit:         "MetricUnit",
			colAvgValue:           "AvgValue",
			colMinValue:           "MinValue",
			colMaxValue:           "MaxValue",
			colTotalCount:         "TotalCount",
		},
	}
}

// deriveStatus folds the stored status code and the HTTP response status
// attribute into a span status. Any 4xx or 5xx response is an error.
func deriveStatus(code string, attrs map[string]string) SpanStatus {
	status, err := ParseSpanStatus(code)
	if err != nil {
		status = SpanStatusUnset
	}
	if status == SpanStatusError || isHTTPError(attrs) {
		return SpanStatusError
	}
	return status
}

// httpStatusKeys are the attributes carrying the HTTP response status, old
// semantic conventions first.
var httpStatusKeys = []string{attrHTTPStatusCode, attrHTTPResponseStatusCode}

// isHTTPError reports whether any HTTP status attribute holds a 4xx or 5xx
// code. It agrees with httpErrorExpr.
func isHTTPError(attrs map[string]string) bool {
	for _, key := range httpStatusKeys {
		code, err := strconv.ParseFloat(attrs[key], 64)
		if err == nil && code >= 400 && code < 600 {
			return true
		}
	}
	return false
}

func spanFromRow(row query.Row) Span {
	kind, err := ParseSpanKind(row.String(colSpanKind))
	if err != nil {
		kind = SpanKindUnspecified
	}
	attrs := row.Map(colSpanAttributes)
	return Span{
		TraceID:            row.String(colTraceID),
		SpanID:             row.String(colSpanID),
		ParentSpanID:       row.String(colParentSpanID),
		Name:               row.String(colSpanName),
		ServiceName:        row.String(colServiceName),
		Kind:               kind,
		StartTime:          row.Time(colTimestamp),
		Duration:           time.Duration(row.Int64(colDuration)),
		Status:             deriveStatus(row.String(colStatusCode), attrs),
		Attributes:         attrs,
		ResourceAttributes: row.Map(colResourceAttributes),
	}
}

func spanToRow(s Span) query.Row {
	return query.Row{
		colTimestamp:          s.StartTime.UTC(),
		colTraceID:            s.TraceID,
		colSpanID:             s.SpanID,
		colParentSpanID:       s.ParentSpanID,
		colSpanName:           s.Name,
		colSpanKind:           s.Kind.String(),
		colServiceName:        s.ServiceName,
		colStatusCode:         s.Status.String(),
		colDuration:           int64(s.Duration),
		colSpanAttributes:     nonNilMap(s.Attributes),
		colResourceAttributes: nonNilMap(s.ResourceAttributes),
	}
}

func logFromRow(row query.Row) LogRecord {
	severity, err := ParseSeverity(row.String(colSeverityText))
	if err != nil {
		severity = SeverityFromNumber(row.Int64(colSeverityNumber))
	}
	return LogRecord{
		Timestamp:          row.Time(colTimestamp),
		TraceID:            row.String(colTraceID),
		SpanID:             row.String(colSpanID),
		Severity:           severity,
		ServiceName:        row.String(colServiceName),
		Body:               row.String(colBody),
		ResourceAttributes: row.Map(colResourceAttributes),
		LogAttributes:      row.Map(colLogAttributes),
	}
}

func logToRow(l LogRecord) query.Row {
	return query.Row{
		colTimestamp:          l.Timestamp.UTC(),
		colTraceID:            l.TraceID,
		colSpanID:             l.SpanID,
		colSeverityText:       l.Severity.String(),
		colSeverityNumber:     int64(l.Severity),
		colServiceName:        l.ServiceName,
		colBody:               l.Body,
		colResourceAttributes: nonNilMap(l.ResourceAttributes),
		colLogAttributes:      nonNilMap(l.LogAttributes),
	}
}

func metricFromRow(row query.Row) MetricPoint {
	return MetricPoint{
		ServiceName: row.String(colServiceName),
		MetricName:  row.String(colMetricName),
		Unit:        row.String(colMetricUnit),
		Bucket:      row.Time(colBucket),
		Avg:         row.Float64(colAvgValue),
		Min:         row.Float64(colMinValue),
		Max:         row.Float64(colMaxValue),
		Count:       row.Int64(colTotalCount),
	}
}

func metricToRow(m MetricPoint) query.Row {
	return query.Row{
		colBucket:      m.Bucket.UTC(),
		colServiceName: m.ServiceName,
		colMetricName:  m.MetricName,
		colMetricUnit:  m.Unit,
		colAvgValue:    m.Avg,
		colMinValue:    m.Min,
		colMaxValue:    m.Max,
		colTotalCount:  m.Count,
	}
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
