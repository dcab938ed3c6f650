package observe

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "periscope.observe.v1.ObserveService"

// gRPC messages that wrap non-struct payloads.
type (
	ListServicesResponse struct {
		Services []ServiceSummary `json:"services"`
	}
	QueryMetricsResponse struct {
		Points []MetricPoint `json:"points"`
	}
	IngestSpansRequest struct {
		Spans []Span `json:"spans"`
	}
	IngestLogsRequest struct {
		Logs []LogRecord `json:"logs"`
	}
	IngestMetricsRequest struct {
		Points []MetricPoint `json:"points"`
	}
)

// Handler serves an API over gRPC with JSON-encoded messages.
type Handler struct {
	api    API
	logger *slog.Logger
}

// NewHandler creates a gRPC handler for api.
func NewHandler(api API, logger *slog.Logger) *Handler {
	return &Handler{
		api:    api,
		logger: logger.With("component", "observe_grpc"),
	}
}

// Register registers the handler with a gRPC server.
func (h *Handler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, h)
}

// unary builds a method whose request is decoded into the value newReq
// returns. Fields absent from the message keep newReq's defaults.
func unary[Req, Resp any](name string, newReq func() *Req, call func(*Handler, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(*Handler)
			if interceptor == nil {
				return call(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(h, ctx, req.(*Req))
			})
		},
	}
}

func newValue[T any]() *T { return new(T) }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListLogs", func() *LogQuery { return &LogQuery{Page: DefaultPageRequest()} },
			func(h *Handler, ctx context.Context, q *LogQuery) (*Page[LogRecord], error) {
				return h.api.ListLogs(ctx, *q)
			}),
		unary("ListSpans", func() *SpanQuery { return &SpanQuery{Page: DefaultPageRequest()} },
			func(h *Handler, ctx context.Context, q *SpanQuery) (*Page[Span], error) {
				return h.api.ListSpans(ctx, *q)
			}),
		unary("GetTrace", newValue[TraceQuery],
			func(h *Handler, ctx context.Context, q *TraceQuery) (*Trace, error) {
				return h.api.GetTrace(ctx, *q)
			}),
		unary("ListServices", newValue[ServicesQuery],
			func(h *Handler, ctx context.Context, q *ServicesQuery) (*ListServicesResponse, error) {
				services, err := h.api.ListServices(ctx, *q)
				if err != nil {
					return nil, err
				}
				return &ListServicesResponse{Services: services}, nil
			}),
		unary("QueryMetrics", newValue[MetricQuery],
			func(h *Handler, ctx context.Context, q *MetricQuery) (*QueryMetricsResponse, error) {
				points, err := h.api.QueryMetrics(ctx, *q)
				if err != nil {
					return nil, err
				}
				return &QueryMetricsResponse{Points: points}, nil
			}),
		unary("GetServiceMap", newValue[ServiceMapQuery],
			func(h *Handler, ctx context.Context, q *ServiceMapQuery) (*TopologyGraph, error) {
				return h.api.GetServiceMap(ctx, *q)
			}),
		unary("IngestSpans", newValue[IngestSpansRequest],
			func(h *Handler, ctx context.Context, r *IngestSpansRequest) (*IngestResult, error) {
				return h.api.IngestSpans(ctx, r.Spans)
			}),
		unary("IngestLogs", newValue[IngestLogsRequest],
			func(h *Handler, ctx context.Context, r *IngestLogsRequest) (*IngestResult, error) {
				return h.api.IngestLogs(ctx, r.Logs)
			}),
		unary("IngestMetrics", newValue[IngestMetricsRequest],
			func(h *Handler, ctx context.Context, r *IngestMetricsRequest) (*IngestResult, error) {
				return h.api.IngestMetrics(ctx, r.Points)
			}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "periscope/observe/v1/observe.json",
}
