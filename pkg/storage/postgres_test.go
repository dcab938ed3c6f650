package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instantcocoa/periscope/pkg/query"
)

func TestInsertStatement(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := []query.Row{
		{"timestamp": ts, "service_name": "api", "level": int64(9), "attrs": map[string]string{"k": "v"}},
		{"timestamp": ts, "service_name": "db"},
	}

	stmt, args, err := insertStatement(eventSchema, eventSchema.ColumnNames(), rows)
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO events (timestamp, service_name, level, attrs) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)",
		stmt)
	require.Len(t, args, 8)
	assert.Equal(t, `{"k":"v"}`, args[3])
	assert.Equal(t, int64(0), args[6])
	assert.Equal(t, "{}", args[7])
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		typ  query.ColumnType
		in   any
		want any
	}{
		{"string bytes", query.TypeString, []byte("abc"), "abc"},
		{"string nil", query.TypeString, nil, ""},
		{"int from quoted", query.TypeInt, "9223372036854775807", int64(9223372036854775807)},
		{"int from json number", query.TypeInt, json.Number("42"), int64(42)},
		{"float from json number", query.TypeFloat, json.Number("1.5"), 1.5},
		{"float from int", query.TypeFloat, int64(3), 3.0},
		{"time clickhouse", query.TypeTime, "2024-05-01 10:00:00.500000000", time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
		{"time rfc3339", query.TypeTime, "2024-05-01T12:00:00+02:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"map jsonb", query.TypeMap, []byte(`{"a":"b","n":2}`), map[string]string{"a": "b", "n": "2"}},
		{"map nil", query.TypeMap, nil, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.typ, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	_, err := Normalize(query.TypeInt, "twelve")
	assert.Error(t, err)
	_, err = Normalize(query.TypeTime, "yesterday")
	assert.Error(t, err)
	_, err = Normalize(query.TypeMap, []byte("[1,2]"))
	assert.Error(t, err)
}
