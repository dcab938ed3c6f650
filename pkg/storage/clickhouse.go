package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/instantcocoa/periscope/pkg/query"
)

// ClickHouseConfig configures the HTTP connection to ClickHouse.
type ClickHouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration

	// Dialect maps logical table and column names onto the deployed schema.
	Dialect query.ClickHouse
}

// ClickHouseEngine runs queries over the ClickHouse HTTP interface with
// bound query parameters and FORMAT JSONEachRow results.
type ClickHouseEngine struct {
	client  *resty.Client
	dialect query.ClickHouse
	logger  *slog.Logger
}

var _ Backend = (*ClickHouseEngine)(nil)

// NewClickHouseEngine creates an engine for the configured server.
func NewClickHouseEngine(cfg ClickHouseConfig, logger *slog.Logger) *ClickHouseEngine {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.URL, "/"))
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.Database != "" {
		client.SetQueryParam("database", cfg.Database)
	}
	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}

	return &ClickHouseEngine{
		client:  client,
		dialect: cfg.Dialect,
		logger:  logger.With("component", "clickhouse_engine"),
	}
}

// WithTransport replaces the HTTP transport.
func (e *ClickHouseEngine) WithTransport(rt http.RoundTripper) *ClickHouseEngine {
	e.client.SetTransport(rt)
	return e
}

func (e *ClickHouseEngine) Execute(ctx context.Context, q query.Query) ([]query.Row, error) {
	stmt, err := query.Render(e.dialect, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.client.R().
		SetContext(ctx).
		SetQueryParams(e.dialect.Params(stmt)).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody(stmt.SQL + " FORMAT JSONEachRow").
		Post("/")
	if err != nil {
		return nil, unavailable(ctx, "query "+q.Schema.Table, err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	results, err := decodeJSONEachRow(q, resp.Body())
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "query executed",
		"table", q.Schema.Table,
		"rows", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

func decodeJSONEachRow(q query.Query, body []byte) ([]query.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var results []query.Row
	for {
		var raw map[string]any
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", q.Schema.Table, err)
		}
		row := query.Row(raw)
		if err := normalizeRow(q, row); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", q.Schema.Table, err)
		}
		results = append(results, row)
	}
	return results, nil
}

func (e *ClickHouseEngine) Insert(ctx context.Context, schema *query.Schema, rows []query.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := checkRows(schema, rows); err != nil {
		return err
	}

	cols := schema.ColumnNames()
	physical := make([]string, len(cols))
	for i, c := range cols {
		physical[i] = e.dialect.Column(c)
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, row := range rows {
		out := make(map[string]any, len(cols))
		for i, c := range cols {
			v := row[c]
			if v == nil {
				t, _ := schema.Lookup(c)
				v, _ = Normalize(t, nil)
			}
			out[strings.Trim(physical[i], "`")] = clickHouseValue(v)
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode %s row: %w", schema.Table, err)
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) FORMAT JSONEachRow",
		e.dialect.Table(schema.Table), strings.Join(physical, ", "))

	resp, err := e.client.R().
		SetContext(ctx).
		SetQueryParam("query", insert).
		SetBody(body.Bytes()).
		Post("/")
	if err != nil {
		return unavailable(ctx, "insert "+schema.Table, err)
	}
	return checkResponse(resp)
}

func clickHouseValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(query.ClickHouseTimeLayout)
	}
	return v
}

func (e *ClickHouseEngine) Ping(ctx context.Context) error {
	resp, err := e.client.R().SetContext(ctx).Get("/ping")
	if err != nil {
		return unavailable(ctx, "ping", err)
	}
	return checkResponse(resp)
}

// checkResponse maps server-side failures onto ErrUnavailable. Client
// errors mean the statement itself was rejected and are reported as is.
func checkResponse(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	msg := strings.TrimSpace(resp.String())
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%w: clickhouse status %d: %s", ErrUnavailable, resp.StatusCode(), msg)
	}
	return fmt.Errorf("clickhouse rejected statement (status %d): %s", resp.StatusCode(), msg)
}
