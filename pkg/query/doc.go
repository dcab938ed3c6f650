// Package query composes filter predicates over allow-listed columns and
// renders them into parameterized statements.
//
// Expressions are built from typed operands and literals, validated against
// a Schema, and either rendered for a SQL Dialect (Postgres or ClickHouse)
// or evaluated in memory with Expr.Match. Literals are never spliced into
// statement text: every value travels as a bound parameter, and values no
// backend can carry safely are rejected with ErrInvalidInput.
//
//	where, err := query.Build(schema, query.Filter{
//		Conditions: []query.Condition{{Column: "service_name", Op: query.OpEq, Value: query.String("api")}},
//		Search:     "timeout",
//	})
//	stmt, err := query.Render(query.Postgres{}, query.Query{Schema: schema, Where: where, Limit: 20})
package query
