// Package observe answers operator questions over stored spans, logs and
// metrics: faceted, paginated record listings and the service dependency
// graph inferred from parent/child span relationships.
package observe

import (
	"strings"
	"time"
)

// SpanKind is the role of a span in a call. Client marks an outbound call.
type SpanKind int

const (
	SpanKindUnspecified SpanKind = iota
	SpanKindInternal
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

var spanKindNames = [...]string{"Unspecified", "Internal", "Server", "Client", "Producer", "Consumer"}

func (k SpanKind) String() string {
	if k < 0 || int(k) >= len(spanKindNames) {
		return spanKindNames[0]
	}
	return spanKindNames[k]
}

// ParseSpanKind accepts the short form ("Client") and the OTLP enum form
// ("SPAN_KIND_CLIENT"), case-insensitively.
func ParseSpanKind(s string) (SpanKind, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "span_kind_")
	for i, n := range spanKindNames {
		if strings.ToLower(n) == name {
			return SpanKind(i), nil
		}
	}
	return 0, invalidf("unknown span kind %q", s)
}

func (k SpanKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *SpanKind) UnmarshalText(b []byte) error {
	v, err := ParseSpanKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// SpanStatus represents the status of a span.
type SpanStatus int

const (
	SpanStatusUnset SpanStatus = iota
	SpanStatusOK
	SpanStatusError
)

func (s SpanStatus) String() string {
	switch s {
	case SpanStatusOK:
		return "Ok"
	case SpanStatusError:
		return "Error"
	default:
		return "Unset"
	}
}

// ParseSpanStatus parses "Unset", "Ok" or "Error", case-insensitively, with
// or without the STATUS_CODE_ prefix.
func ParseSpanStatus(s string) (SpanStatus, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "status_code_") {
	case "unset", "":
		return SpanStatusUnset, nil
	case "ok":
		return SpanStatusOK, nil
	case "error":
		return SpanStatusError, nil
	default:
		return 0, invalidf("unknown span status %q", s)
	}
}

func (s SpanStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SpanStatus) UnmarshalText(b []byte) error {
	v, err := ParseSpanStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Severity is the closed set of log levels. Values are the OpenTelemetry
// severity numbers of each level, so comparisons order by severity.
type Severity int

const (
	SeverityDebug Severity = 5
	SeverityInfo  Severity = 9
	SeverityWarn  Severity = 13
	SeverityError Severity = 17
)

// Severities lists every level, most severe first.
func Severities() []Severity {
	return []Severity{SeverityError, SeverityWarn, SeverityInfo, SeverityDebug}
}

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarn:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the declared levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeverityWarn, SeverityError:
		return true
	}
	return false
}

// numberRange returns the OpenTelemetry severity numbers folded into s.
func (s Severity) numberRange() (lo, hi int64) {
	switch s {
	case SeverityDebug:
		return 1, 8
	case SeverityInfo:
		return 9, 12
	case SeverityWarn:
		return 13, 16
	default:
		return 17, 24
	}
}

// ParseSeverity parses a level name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return SeverityDebug, nil
	case "INFO":
		return SeverityInfo, nil
	case "WARN", "WARNING":
		return SeverityWarn, nil
	case "ERROR":
		return SeverityError, nil
	default:
		return 0, invalidf("unknown severity %q", s)
	}
}

// SeverityFromNumber folds an OpenTelemetry severity number into the closed
// set. TRACE and unspecified fold into DEBUG, FATAL into ERROR.
func SeverityFromNumber(n int64) Severity {
	switch {
	case n >= 17:
		return SeverityError
	case n >= 13:
		return SeverityWarn
	case n >= 9:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Span represents a single operation in a distributed trace.
type Span struct {
	TraceID            string            `json:"traceId"`
	SpanID             string            `json:"spanId"`
	ParentSpanID       string            `json:"parentSpanId,omitempty"`
	Name               string            `json:"spanName"`
	ServiceName        string            `json:"serviceName"`
	Kind               SpanKind          `json:"spanKind"`
	StartTime          time.Time         `json:"timestamp"`
	Duration           time.Duration     `json:"durationNs"`
	Status             SpanStatus        `json:"status"`
	Attributes         map[string]string `json:"spanAttributes,omitempty"`
	ResourceAttributes map[string]string `json:"resourceAttributes,omitempty"`
}

// IsError reports whether the span failed.
func (s Span) IsError() bool { return s.Status == SpanStatusError }

// Trace represents a complete distributed trace.
type Trace struct {
	TraceID       string        `json:"traceId"`
	Spans         []Span        `json:"spans"`
	StartTime     time.Time     `json:"startTime"`
	Duration      time.Duration `json:"durationNs"`
	RootService   string        `json:"rootService,omitempty"`
	RootOperation string        `json:"rootOperation,omitempty"`
}

// LogRecord is one structured log entry.
type LogRecord struct {
	Timestamp          time.Time         `json:"timestamp"`
	TraceID            string            `json:"traceId,omitempty"`
	SpanID             string            `json:"spanId,omitempty"`
	Severity           Severity          `json:"severity"`
	ServiceName        string            `json:"serviceName"`
	Body               string            `json:"body"`
	ResourceAttributes map[string]string `json:"resourceAttributes,omitempty"`
	LogAttributes      map[string]string `json:"logAttributes,omitempty"`
}

// MetricPoint is one pre-aggregated metric bucket.
type MetricPoint struct {
	ServiceName string    `json:"serviceName"`
	MetricName  string    `json:"metricName"`
	Unit        string    `json:"unit,omitempty"`
	Bucket      time.Time `json:"bucket"`
	Avg         float64   `json:"avg"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Count       int64     `json:"count"`
}

// ServiceEdge is one directed, weighted dependency between two services.
type ServiceEdge struct {
	Source           string  `json:"source"`
	Target           string  `json:"target"`
	CallCount        int64   `json:"count"`
	AvgLatencyMillis float64 `json:"avgLatencyMillis"`
	ErrorRate        float64 `json:"errorRate"`
}

// TopologyGraph is the service dependency graph for a time window.
type TopologyGraph struct {
	Edges            []ServiceEdge `json:"edges"`
	IsolatedServices []string      `json:"isolatedServices"`
}

// ServiceSummary is the request volume and health of one service.
type ServiceSummary struct {
	Name             string  `json:"name"`
	RequestCount     int64   `json:"requestCount"`
	AvgLatencyMillis float64 `json:"avgLatencyMillis"`
	ErrorRate        float64 `json:"errorRate"`
}
