package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instantcocoa/periscope/pkg/testutil"
)

var logSchema = &Schema{
	Table: "logs",
	Columns: []Column{
		{Name: "timestamp", Type: TypeTime},
		{Name: "service_name", Type: TypeString},
		{Name: "severity_number", Type: TypeInt},
		{Name: "body", Type: TypeString},
		{Name: "log_attributes", Type: TypeMap},
	},
	TimeColumn: "timestamp",
	Searchable: []string{"body", "log_attributes"},
	Sortable:   []string{"timestamp", "severity_number"},
}

var testClickHouse = ClickHouse{
	Tables: map[string]string{"logs": "otel_logs"},
	Columns: map[string]string{
		"timestamp":      "Timestamp",
		"service_name":   "ServiceName",
		"body":           "Body",
		"log_attributes": "LogAttributes",
	},
}

func TestRenderPostgres(t *testing.T) {
	q := Query{
		Schema:  logSchema,
		Columns: []string{"timestamp", "body"},
		Where: And(
			Eq(Col("service_name"), String("api")),
			Contains(Col("body"), "50%_off"),
		),
		OrderBy: []Order{{Column: "timestamp", Desc: true}},
		Limit:   20,
		Offset:  40,
	}

	stmt, err := Render(Postgres{}, q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT timestamp, body FROM logs WHERE (service_name = $1 AND body ILIKE $2 ESCAPE '\') ORDER BY timestamp DESC LIMIT 20 OFFSET 40`,
		stmt.SQL)
	assert.Equal(t, []any{"api", `%50\%\_off%`}, stmt.ArgValues())
}

func TestRenderPostgresMapKeyAndText(t *testing.T) {
	q := Query{
		Schema:  logSchema,
		Columns: []string{"body"},
		Where: Or(
			Eq(MapKey("log_attributes", "http.method"), String("GET")),
			Contains(MapText("log_attributes"), "retry"),
		),
	}

	stmt, err := Render(Postgres{}, q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT body FROM logs WHERE ((log_attributes->>$1) = $2 OR log_attributes::text ILIKE $3 ESCAPE '\')`,
		stmt.SQL)
	assert.Equal(t, []any{"http.method", "GET", "%retry%"}, stmt.ArgValues())
}

func TestRenderPostgresMapNumberAndKeys(t *testing.T) {
	q := Query{
		Schema:   logSchema,
		Columns:  []string{"service_name"},
		Keys:     []KeyColumn{{Column: "log_attributes", Key: "http.status_code", As: "http_status"}},
		Distinct: true,
		Where:    Not(Gte(MapNumber("log_attributes", "http.status_code"), Int(400))),
	}

	stmt, err := Render(Postgres{}, q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT DISTINCT service_name, (log_attributes->>$1) AS http_status FROM logs WHERE NOT COALESCE(((CASE WHEN (log_attributes->>$2) ~ '^-?[0-9]+(\.[0-9]+)?$' THEN (log_attributes->>$2)::double precision END) >= $3), FALSE)`,
		stmt.SQL)
	assert.Equal(t, []any{"http.status_code", "http.status_code", int64(400)}, stmt.ArgValues())
}

func TestRenderClickHouseMapNumberAndKeys(t *testing.T) {
	q := Query{
		Schema:   logSchema,
		Keys:     []KeyColumn{{Column: "log_attributes", Key: "http.status_code", As: "http_status"}},
		Distinct: true,
		Where:    Lt(MapNumber("log_attributes", "http.status_code"), Int(600)),
	}

	stmt, err := Render(testClickHouse, q)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT DISTINCT `LogAttributes`[{p1:String}] AS http_status FROM `otel_logs` WHERE toFloat64OrNull(`LogAttributes`[{p2:String}]) < {p3:Int64}",
		stmt.SQL)
}

func TestRenderClickHouseCount(t *testing.T) {
	q := Query{
		Schema: logSchema,
		Count:  true,
		Where: And(
			Eq(MapKey("log_attributes", "http.method"), String("GET")),
			Gte(Col("severity_number"), Int(9)),
		),
		OrderBy: []Order{{Column: "timestamp"}},
		Limit:   10,
	}

	stmt, err := Render(testClickHouse, q)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT count() AS count FROM `otel_logs` WHERE (`LogAttributes`[{p1:String}] = {p2:String} AND severity_number >= {p3:Int64})",
		stmt.SQL)
	assert.Equal(t, map[string]string{
		"param_p1": "http.method",
		"param_p2": "GET",
		"param_p3": "9",
	}, testClickHouse.Params(stmt))
}

func TestRenderClickHouseDistinctWindow(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	q := Query{
		Schema:   logSchema,
		Columns:  []string{"service_name"},
		Distinct: true,
		Where:    Window{Start: start, End: start.Add(time.Hour)}.Expr("timestamp"),
		OrderBy:  []Order{{Column: "service_name"}},
	}

	stmt, err := Render(testClickHouse, q)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT DISTINCT `ServiceName` AS service_name FROM `otel_logs` WHERE (`Timestamp` >= {p1:DateTime64(9, 'UTC')} AND `Timestamp` < {p2:DateTime64(9, 'UTC')}) ORDER BY `ServiceName` ASC",
		stmt.SQL)
	assert.Equal(t, map[string]string{
		"param_p1": "2024-05-01 10:00:00.000000000",
		"param_p2": "2024-05-01 11:00:00.000000000",
	}, testClickHouse.Params(stmt))
}

func TestRenderClickHouseContains(t *testing.T) {
	stmt, err := Render(testClickHouse, Query{
		Schema:  logSchema,
		Columns: []string{"body"},
		Where:   SearchExpr(logSchema, "Timeout"),
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `Body` AS body FROM `otel_logs` WHERE (positionCaseInsensitiveUTF8(`Body`, {p1:String}) > 0 OR positionCaseInsensitiveUTF8(toString(`LogAttributes`), {p2:String}) > 0)",
		stmt.SQL)
}

func TestClickHouseParamsEscaping(t *testing.T) {
	stmt := Statement{Args: []Value{String("a'b\\c\nd\te")}}
	assert.Equal(t, `a\'b\\c\nd\te`, ClickHouse{}.Params(stmt)["param_p1"])
}

// Hostile literals only ever change the bound arguments, never the text.
func TestRenderHostileLiteralsAreBound(t *testing.T) {
	render := func(d Dialect, s string) Statement {
		t.Helper()
		stmt, err := Render(d, Query{
			Schema:  logSchema,
			Columns: []string{"body"},
			Where: And(
				Eq(Col("service_name"), String(s)),
				Contains(Col("body"), s),
				Eq(MapKey("log_attributes", s), String(s)),
			),
		})
		require.NoError(t, err, "input %q", s)
		return stmt
	}

	for _, d := range []Dialect{Postgres{}, testClickHouse} {
		baseline := render(d, "x").SQL
		for _, s := range testutil.HostileInputs() {
			stmt := render(d, s)
			assert.Equal(t, baseline, stmt.SQL, "input %q", s)
			assert.Equal(t, s, stmt.Args[0].String())
		}
	}
}

func TestRenderRejectsUnsafeLiterals(t *testing.T) {
	for _, s := range append(testutil.UnsafeInputs, strings.Repeat("a", MaxLiteralLength+1)) {
		_, err := Render(Postgres{}, Query{
			Schema: logSchema,
			Where:  Eq(Col("service_name"), String(s)),
		})
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", s)

		_, err = Render(testClickHouse, Query{
			Schema: logSchema,
			Where:  Contains(Col("body"), s),
		})
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", s)
	}
}

func TestRenderValidation(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{"no schema", Query{}},
		{"unknown projection", Query{Schema: logSchema, Columns: []string{"password"}}},
		{"unknown where column", Query{Schema: logSchema, Where: Eq(Col("password"), String("x"))}},
		{"unknown sort column", Query{Schema: logSchema, OrderBy: []Order{{Column: "nope"}}}},
		{"sort by map", Query{Schema: logSchema, OrderBy: []Order{{Column: "log_attributes"}}}},
		{"negative limit", Query{Schema: logSchema, Limit: -1}},
		{"key on plain column", Query{Schema: logSchema, Where: Eq(MapKey("body", "k"), String("x"))}},
		{"map without key", Query{Schema: logSchema, Where: Eq(Col("log_attributes"), String("x"))}},
		{"empty map key", Query{Schema: logSchema, Where: Eq(MapKey("log_attributes", ""), String("x"))}},
		{"contains on int", Query{Schema: logSchema, Where: Contains(Col("severity_number"), "9")}},
		{"type mismatch", Query{Schema: logSchema, Where: Eq(Col("timestamp"), String("yesterday"))}},
		{"number on plain column", Query{Schema: logSchema, Where: Eq(MapNumber("body", "k"), Int(1))}},
		{"number against string", Query{Schema: logSchema, Where: Eq(MapNumber("log_attributes", "k"), String("1"))}},
		{"key projection on plain column", Query{Schema: logSchema, Keys: []KeyColumn{{Column: "body", Key: "k", As: "k"}}}},
		{"key projection bad alias", Query{Schema: logSchema, Keys: []KeyColumn{{Column: "log_attributes", Key: "k", As: "k; DROP"}}}},
		{"key projection shadows column", Query{Schema: logSchema, Keys: []KeyColumn{{Column: "log_attributes", Key: "k", As: "body"}}}},
		{"key projection duplicate alias", Query{Schema: logSchema, Keys: []KeyColumn{
			{Column: "log_attributes", Key: "a", As: "k"},
			{Column: "log_attributes", Key: "b", As: "k"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(Postgres{}, tt.query)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRenderEmptyWhere(t *testing.T) {
	stmt, err := Render(Postgres{}, Query{Schema: logSchema, Count: true})
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) AS count FROM logs", stmt.SQL)
	assert.Empty(t, stmt.Args)

	stmt, err = Render(Postgres{}, Query{Schema: logSchema, Columns: []string{"body"}, Where: In(Col("service_name"))})
	require.NoError(t, err)
	assert.Equal(t, "SELECT body FROM logs WHERE 1 = 0", stmt.SQL)
}
