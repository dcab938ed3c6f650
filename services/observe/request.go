package observe

import (
	"time"

	"github.com/instantcocoa/periscope/pkg/query"
)

// Default look-back windows for operations whose time range was omitted.
const (
	DefaultServiceMapWindow = 10 * time.Minute
	DefaultMetricsWindow    = 60 * time.Minute
)

// TimeRange selects records either by explicit bounds or by a look-back
// from now. Setting both forms is invalid. An empty range means "use the
// operation's default".
type TimeRange struct {
	Start       time.Time `json:"start,omitzero"`
	End         time.Time `json:"end,omitzero"`
	LastMinutes int       `json:"lastMinutes,omitempty"`
}

// IsZero reports whether no bound was given.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero() && r.LastMinutes == 0
}

// Window resolves r against now, falling back to def when r is empty. A
// zero def leaves the window unbounded.
func (r TimeRange) Window(now time.Time, def time.Duration) (query.Window, error) {
	if r.LastMinutes < 0 {
		return query.Window{}, invalidf("lastMinutes must not be negative")
	}
	if r.LastMinutes > 0 {
		if !r.Start.IsZero() || !r.End.IsZero() {
			return query.Window{}, invalidf("lastMinutes cannot be combined with start or end")
		}
		return query.Last(time.Duration(r.LastMinutes)*time.Minute, now), nil
	}
	if r.Start.IsZero() && r.End.IsZero() {
		if def <= 0 {
			return query.Window{}, nil
		}
		return query.Last(def, now), nil
	}
	w := query.Window{Start: r.Start, End: r.End}
	if err := w.Validate(); err != nil {
		return query.Window{}, err
	}
	return w, nil
}

// PageRequest selects one page of a listing and its order. Zero values are
// invalid; transports fill defaults only for parameters that were absent.
type PageRequest struct {
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize"`
	SortBy    string `json:"sortBy,omitempty"`
	SortOrder string `json:"sortOrder,omitempty"`
}

// DefaultPageRequest returns page 1 of 20 in the default order.
func DefaultPageRequest() PageRequest {
	return PageRequest{Page: DefaultPage, PageSize: DefaultPageSize}
}

// LogQuery filters log records.
type LogQuery struct {
	Service     string      `json:"service,omitempty"`
	Severity    string      `json:"severity,omitempty"`
	MinSeverity string      `json:"minSeverity,omitempty"`
	TraceID     string      `json:"traceId,omitempty"`
	Search      string      `json:"search,omitempty"`
	TimeRange   TimeRange   `json:"timeRange"`
	Page        PageRequest `json:"page"`
}

// SpanQuery filters spans.
type SpanQuery struct {
	Service string `json:"service,omitempty"`
	Kind    string `json:"spanKind,omitempty"`
	Name    string `json:"spanName,omitempty"`
	// StatusCode is either a span status ("Ok", "Error", "Unset") or an HTTP
	// response status ("404").
	StatusCode string      `json:"statusCode,omitempty"`
	TraceID    string      `json:"traceId,omitempty"`
	Search     string      `json:"search,omitempty"`
	TimeRange  TimeRange   `json:"timeRange"`
	Page       PageRequest `json:"page"`
}

// MetricQuery filters metric buckets.
type MetricQuery struct {
	Service    string    `json:"service,omitempty"`
	MetricName string    `json:"metricName,omitempty"`
	TimeRange  TimeRange `json:"timeRange"`
}

// ServicesQuery selects the window for service summaries.
type ServicesQuery struct {
	TimeRange TimeRange `json:"timeRange"`
}

// ServiceMapQuery selects the window for the dependency graph.
type ServiceMapQuery struct {
	TimeRange TimeRange `json:"timeRange"`
}

// TraceQuery selects one trace.
type TraceQuery struct {
	TraceID string `json:"traceId"`
}
