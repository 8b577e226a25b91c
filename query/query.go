// Package query implements attrdb's parameterized SQL passthrough: the
// escape hatch for callers who need a read the typed CRUD surface doesn't
// cover, without bypassing the schema or type validator for anything the
// typed API does handle.
package query

import (
	"context"
	"database/sql"
	"fmt"

	"attrdb/value"
)

// Query executes ad-hoc SQL with positional Value binds.
type Query struct {
	db *sql.DB
}

// New returns a Query bound to db.
func New(db *sql.DB) *Query {
	return &Query{db: db}
}

func bind(params []value.Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.AsAny()
	}
	return args
}

// String executes sql with params and returns the first column of the
// first result row as text, or false if the query produced no rows or the
// value was null.
func (q *Query) String(ctx context.Context, sqlText string, params []value.Value) (string, bool, error) {
	var s sql.NullString
	row := q.db.QueryRowContext(ctx, sqlText, bind(params)...)
	if err := row.Scan(&s); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query: %w", err)
	}
	if !s.Valid {
		return "", false, nil
	}
	return s.String, true, nil
}

// Integer executes sql with params and returns the first column of the
// first result row as an integer, or false if the query produced no rows
// or the value was null.
func (q *Query) Integer(ctx context.Context, sqlText string, params []value.Value) (int64, bool, error) {
	var n sql.NullInt64
	row := q.db.QueryRowContext(ctx, sqlText, bind(params)...)
	if err := row.Scan(&n); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query: %w", err)
	}
	if !n.Valid {
		return 0, false, nil
	}
	return n.Int64, true, nil
}

// Float executes sql with params and returns the first column of the first
// result row as a float, or false if the query produced no rows or the
// value was null.
func (q *Query) Float(ctx context.Context, sqlText string, params []value.Value) (float64, bool, error) {
	var f sql.NullFloat64
	row := q.db.QueryRowContext(ctx, sqlText, bind(params)...)
	if err := row.Scan(&f); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query: %w", err)
	}
	if !f.Valid {
		return 0, false, nil
	}
	return f.Float64, true, nil
}
