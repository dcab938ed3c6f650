package observe

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/instantcocoa/periscope/pkg/grpcutil"
)

// Client calls a remote observe service over gRPC.
type Client struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	owned  bool
}

var _ API = (*Client)(nil)

// Dial connects to the observe service at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c := NewClient(conn)
	c.owned = true
	return c, nil
}

// NewClient wraps an existing connection. Close does not close conn.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, health: grpc_health_v1.NewHealthClient(conn)}
}

// Close closes the connection if the client opened it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpcutil.JSONCallOption())
	return grpcutil.FromStatus(err)
}

// ListLogs implements API.
func (c *Client) ListLogs(ctx context.Context, q LogQuery) (*Page[LogRecord], error) {
	var resp Page[LogRecord]
	if err := c.invoke(ctx, "ListLogs", &q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSpans implements API.
func (c *Client) ListSpans(ctx context.Context, q SpanQuery) (*Page[Span], error) {
	var resp Page[Span]
	if err := c.invoke(ctx, "ListSpans", &q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTrace implements API.
func (c *Client) GetTrace(ctx context.Context, q TraceQuery) (*Trace, error) {
	var resp Trace
	if err := c.invoke(ctx, "GetTrace", &q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListServices implements API.
func (c *Client) ListServices(ctx context.Context, q ServicesQuery) ([]ServiceSummary, error) {
	var resp ListServicesResponse
	if err := c.invoke(ctx, "ListServices", &q, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

// QueryMetrics implements API.
func (c *Client) QueryMetrics(ctx context.Context, q MetricQuery) ([]MetricPoint, error) {
	var resp QueryMetricsResponse
	if err := c.invoke(ctx, "QueryMetrics", &q, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}

// GetServiceMap implements API.
func (c *Client) GetServiceMap(ctx context.Context, q ServiceMapQuery) (*TopologyGraph, error) {
	var resp TopologyGraph
	if err := c.invoke(ctx, "GetServiceMap", &q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestSpans implements API.
func (c *Client) IngestSpans(ctx context.Context, spans []Span) (*IngestResult, error) {
	var resp IngestResult
	if err := c.invoke(ctx, "IngestSpans", &IngestSpansRequest{Spans: spans}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestLogs implements API.
func (c *Client) IngestLogs(ctx context.Context, logs []LogRecord) (*IngestResult, error) {
	var resp IngestResult
	if err := c.invoke(ctx, "IngestLogs", &IngestLogsRequest{Logs: logs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestMetrics implements API.
func (c *Client) IngestMetrics(ctx context.Context, points []MetricPoint) (*IngestResult, error) {
	var resp IngestResult
	if err := c.invoke(ctx, "IngestMetrics", &IngestMetricsRequest{Points: points}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks the server's health service.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return grpcutil.FromStatus(err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: server reports %s", ErrUpstreamUnavailable, resp.GetStatus())
	}
	return nil
}
