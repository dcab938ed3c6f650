package storage

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/testutil"
)

func newTestClickHouse(t *testing.T) (*ClickHouseEngine, *testutil.MockTransport) {
	t.Helper()
	mock := testutil.NewMockTransport()
	e := NewClickHouseEngine(ClickHouseConfig{
		URL:      "http://clickhouse:8123/",
		Database: "otel",
		Dialect: query.ClickHouse{
			Tables:  map[string]string{"events": "otel_events"},
			Columns: map[string]string{"timestamp": "Timestamp", "service_name": "ServiceName", "attrs": "Attributes"},
		},
	}, testutil.DiscardLogger()).WithTransport(mock)
	return e, mock
}

func TestClickHouseEngine_Execute(t *testing.T) {
	e, mock := newTestClickHouse(t)
	mock.AddResponse(testutil.MockJSONEachRow(
		map[string]any{"timestamp": "2024-05-01 10:00:00.123000000", "service_name": "api", "level": "13", "attrs": map[string]any{"k": "v", "n": 1}},
		map[string]any{"timestamp": "2024-05-01 10:01:00.000000000", "service_name": "db", "level": 9, "attrs": map[string]any{}},
	))

	rows, err := e.Execute(context.Background(), query.Query{
		Schema: eventSchema,
		Where:  query.Eq(query.Col("service_name"), query.String("it's")),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC), rows[0].Time("timestamp"))
	assert.Equal(t, int64(13), rows[0].Int64("level"))
	assert.Equal(t, map[string]string{"k": "v", "n": "1"}, rows[0].Map("attrs"))
	assert.Equal(t, int64(9), rows[1].Int64("level"))

	req := mock.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "otel", req.URL.Query().Get("database"))
	assert.Equal(t, `it\'s`, req.URL.Query().Get("param_p1"))

	assert.Equal(t,
		"SELECT `Timestamp` AS timestamp, `ServiceName` AS service_name, level, `Attributes` AS attrs FROM `otel_events` WHERE `ServiceName` = {p1:String} FORMAT JSONEachRow",
		string(mock.LastRequestBody()))
}

func TestClickHouseEngine_KeyProjection(t *testing.T) {
	e, mock := newTestClickHouse(t)
	mock.AddResponse(testutil.MockJSONEachRow(
		map[string]any{"service_name": "api", "attr_k": "v"},
	))

	rows, err := e.Execute(context.Background(), query.Query{
		Schema:   eventSchema,
		Columns:  []string{"service_name"},
		Keys:     []query.KeyColumn{{Column: "attrs", Key: "k", As: "attr_k"}},
		Distinct: true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "v", rows[0]["attr_k"])

	assert.Equal(t,
		"SELECT DISTINCT `ServiceName` AS service_name, `Attributes`[{p1:String}] AS attr_k FROM `otel_events` FORMAT JSONEachRow",
		string(mock.LastRequestBody()))
}

func TestClickHouseEngine_Count(t *testing.T) {
	e, mock := newTestClickHouse(t)
	mock.AddResponse(testutil.MockJSONEachRow(map[string]any{"count": "42"}))

	rows, err := e.Execute(context.Background(), query.Query{Schema: eventSchema, Count: true})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rows[0].Int64(query.CountColumn))
}

func TestClickHouseEngine_Failures(t *testing.T) {
	tests := []struct {
		name        string
		resp        testutil.MockResponse
		unavailable bool
	}{
		{"server error", testutil.MockErrorResponse(http.StatusServiceUnavailable, "overloaded"), true},
		{"connection refused", testutil.MockConnectionError(), true},
		{"bad statement", testutil.MockErrorResponse(http.StatusBadRequest, "Code: 62. Syntax error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, mock := newTestClickHouse(t)
			mock.AddResponse(tt.resp)

			_, err := e.Execute(context.Background(), query.Query{Schema: eventSchema})
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUnavailable), err)
		})
	}
}

func TestClickHouseEngine_InvalidQueryNeverSent(t *testing.T) {
	e, mock := newTestClickHouse(t)
	_, err := e.Execute(context.Background(), query.Query{
		Schema: eventSchema,
		Where:  query.Eq(query.Col("service_name"), query.String("a\x00")),
	})
	assert.ErrorIs(t, err, query.ErrInvalidInput)
	assert.Empty(t, mock.Requests())
}

func TestClickHouseEngine_Cancelled(t *testing.T) {
	e, mock := newTestClickHouse(t)
	mock.SetDefaultResponse(testutil.MockJSONEachRow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, query.Query{Schema: eventSchema})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestClickHouseEngine_Insert(t *testing.T) {
	e, mock := newTestClickHouse(t)
	mock.AddResponse(testutil.MockResponse{StatusCode: http.StatusOK})

	err := e.Insert(context.Background(), eventSchema, []query.Row{
		{"timestamp": time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), "service_name": "api", "level": int64(9)},
	})
	require.NoError(t, err)

	req := mock.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t,
		"INSERT INTO `otel_events` (`Timestamp`, `ServiceName`, level, `Attributes`) FORMAT JSONEachRow",
		req.URL.Query().Get("query"))
	assert.JSONEq(t,
		`{"Timestamp":"2024-05-01 10:00:00.000000000","ServiceName":"api","level":9,"Attributes":{}}`,
		string(mock.LastRequestBody()))
}
