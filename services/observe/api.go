package observe

import (
	"context"
	"log/slog"
	"time"

	"github.com/instantcocoa/periscope/pkg/cache"
)

// API is the surface served over HTTP and gRPC. *Service implements it
// directly; *Client implements it over gRPC.
type API interface {
	ListLogs(ctx context.Context, q LogQuery) (*Page[LogRecord], error)
	ListSpans(ctx context.Context, q SpanQuery) (*Page[Span], error)
	GetTrace(ctx context.Context, q TraceQuery) (*Trace, error)
	ListServices(ctx context.Context, q ServicesQuery) ([]ServiceSummary, error)
	QueryMetrics(ctx context.Context, q MetricQuery) ([]MetricPoint, error)
	GetServiceMap(ctx context.Context, q ServiceMapQuery) (*TopologyGraph, error)
	IngestSpans(ctx context.Context, spans []Span) (*IngestResult, error)
	IngestLogs(ctx context.Context, logs []LogRecord) (*IngestResult, error)
	IngestMetrics(ctx context.Context, points []MetricPoint) (*IngestResult, error)
	Ping(ctx context.Context) error
}

var (
	_ API = (*Service)(nil)
	_ API = (*CachedAPI)(nil)
)

// CachedAPI serves service maps through a short-lived cache in front of
// another API. Every other call passes through.
type CachedAPI struct {
	API
	serviceMaps *cache.CacheAside[TopologyGraph]
	logger      *slog.Logger
}

// NewCachedAPI wraps api with a service map cache on store.
func NewCachedAPI(api API, store cache.Store, ttl time.Duration, logger *slog.Logger) *CachedAPI {
	logger = logger.With("component", "observe_cache")
	return &CachedAPI{
		API:         api,
		serviceMaps: cache.NewCacheAside[TopologyGraph](store, "servicemap", ttl, logger),
		logger:      logger,
	}
}

// GetServiceMap returns a cached graph for an identical query when one is
// fresh. Relative windows are keyed by their length, so a cached graph may
// trail the clock by up to the cache TTL.
func (c *CachedAPI) GetServiceMap(ctx context.Context, q ServiceMapQuery) (*TopologyGraph, error) {
	key, err := cache.Key(q)
	if err != nil {
		return c.API.GetServiceMap(ctx, q)
	}
	graph, err := c.serviceMaps.Get(ctx, key, func(ctx context.Context) (TopologyGraph, error) {
		g, err := c.API.GetServiceMap(ctx, q)
		if err != nil {
			return TopologyGraph{}, err
		}
		return *g, nil
	})
	if err != nil {
		return nil, err
	}
	return &graph, nil
}
