package observe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instantcocoa/periscope/pkg/cache"
	"github.com/instantcocoa/periscope/pkg/testutil"
)

func TestCachedAPI_ServiceMap(t *testing.T) {
	stub := &stubAPI{graph: TopologyGraph{
		Edges:            []ServiceEdge{{Source: "a", Target: "b", CallCount: 2, AvgLatencyMillis: 1.5}},
		IsolatedServices: []string{"c"},
	}}
	api := NewCachedAPI(stub, cache.NewMemoryStore(), time.Minute, testutil.DiscardLogger())
	ctx := context.Background()

	first, err := api.GetServiceMap(ctx, ServiceMapQuery{})
	require.NoError(t, err)
	second, err := api.GetServiceMap(ctx, ServiceMapQuery{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, &stub.graph, first)
	assert.Equal(t, 1, stub.mapCalls)

	_, err = api.GetServiceMap(ctx, ServiceMapQuery{TimeRange: TimeRange{LastMinutes: 30}})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.mapCalls, "a different window is a different entry")
}

func TestCachedAPI_ErrorsNotCached(t *testing.T) {
	stub := &stubAPI{err: ErrUpstreamUnavailable}
	api := NewCachedAPI(stub, cache.NewMemoryStore(), time.Minute, testutil.DiscardLogger())
	ctx := context.Background()

	_, err := api.GetServiceMap(ctx, ServiceMapQuery{})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	stub.err = nil
	graph, err := api.GetServiceMap(ctx, ServiceMapQuery{})
	require.NoError(t, err)
	assert.NotNil(t, graph)
	assert.Equal(t, 2, stub.mapCalls)
}

func TestCachedAPI_PassesOtherCallsThrough(t *testing.T) {
	stub := &stubAPI{}
	api := NewCachedAPI(stub, cache.NewMemoryStore(), time.Minute, testutil.DiscardLogger())

	_, err := api.ListLogs(context.Background(), LogQuery{Service: "x", Page: DefaultPageRequest()})
	require.NoError(t, err)
	_, err = api.ListLogs(context.Background(), LogQuery{Service: "y", Page: DefaultPageRequest()})
	require.NoError(t, err)
	assert.Equal(t, "y", stub.lastLogQuery.Service)
	require.NoError(t, api.Ping(context.Background()))
}
