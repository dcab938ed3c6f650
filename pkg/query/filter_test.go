package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmptyFilter(t *testing.T) {
	e, err := Build(logSchema, Filter{})
	require.NoError(t, err)
	assert.True(t, e.IsTrue())

	e, err = Build(logSchema, Filter{Search: "   "})
	require.NoError(t, err)
	assert.True(t, e.IsTrue())
}

func TestBuildFilter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := Filter{
		Conditions: []Condition{
			{Column: "service_name", Op: OpEq, Value: String("api")},
			{Column: "log_attributes", Key: "region", Op: OpEq, Value: String("eu")},
		},
		Search: "deadline",
		Window: Last(10*time.Minute, now),
	}

	e, err := Build(logSchema, f)
	require.NoError(t, err)

	match := Row{
		"timestamp":      now.Add(-time.Minute),
		"service_name":   "api",
		"body":           "Deadline exceeded",
		"log_attributes": map[string]string{"region": "eu"},
	}
	assert.True(t, e.Match(match))

	tooOld := Row{
		"timestamp":      now.Add(-time.Hour),
		"service_name":   "api",
		"body":           "Deadline exceeded",
		"log_attributes": map[string]string{"region": "eu"},
	}
	assert.False(t, e.Match(tooOld))

	searchInAttrs := Row{
		"timestamp":      now.Add(-time.Minute),
		"service_name":   "api",
		"body":           "ok",
		"log_attributes": map[string]string{"region": "eu", "error": "deadline"},
	}
	assert.True(t, e.Match(searchInAttrs))
}

func TestBuildRejects(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		filter Filter
	}{
		{"unknown column", Filter{Conditions: []Condition{{Column: "nope", Op: OpEq, Value: String("x")}}}},
		{"inverted window", Filter{Window: Window{Start: now, End: now.Add(-time.Minute)}}},
		{"empty window", Filter{Window: Window{Start: now, End: now}}},
		{"nul in search", Filter{Search: "a\x00b"}},
		{"invalid utf8 value", Filter{Conditions: []Condition{{Column: "service_name", Op: OpEq, Value: String("\xff")}}}},
		{"invalid utf8 key", Filter{Conditions: []Condition{{Column: "log_attributes", Key: "\xff", Op: OpEq, Value: String("x")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(logSchema, tt.filter)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestBuildWindowNeedsTimeColumn(t *testing.T) {
	s := &Schema{Table: "static", Columns: []Column{{Name: "name", Type: TypeString}}}
	_, err := Build(s, Filter{Window: Last(time.Minute, time.Now())})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		desc    bool
		wantErr bool
	}{
		{"asc", false, false},
		{"ASC", false, false},
		{"desc", true, false},
		{" Desc ", true, false},
		{"descending", false, true},
		{"", false, true},
		{"asc; DROP TABLE logs", false, true},
	}

	for _, tt := range tests {
		desc, err := ParseDirection(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidInput, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.desc, desc, tt.in)
	}
}

func TestParseOrder(t *testing.T) {
	def := Order{Column: "timestamp", Desc: true}

	o, err := ParseOrder(logSchema, "", "", def)
	require.NoError(t, err)
	assert.Equal(t, def, o)

	o, err = ParseOrder(logSchema, "severity_number", "asc", def)
	require.NoError(t, err)
	assert.Equal(t, Order{Column: "severity_number"}, o)

	_, err = ParseOrder(logSchema, "body", "", def)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseOrder(logSchema, "", "sideways", def)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
