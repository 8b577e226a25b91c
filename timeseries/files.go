// Package timeseries implements attrdb's time-series-files support: the
// singleton file-path registry row each collection may carry in its
// "<Collection>_time_series_files" table, used to record where a
// collection's out-of-band time-series payloads live on disk. The core
// treats every value in that table as an opaque string path; it never
// reads or writes the files themselves.
package timeseries

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"attrdb/schema"
	"attrdb/txn"
)

// Files performs time-series-files operations against one Schema/connection
// pair.
type Files struct {
	schema *schema.Schema
	conn   *txn.Conn
}

// New returns a Files bound to s and conn.
func New(s *schema.Schema, conn *txn.Conn) *Files {
	return &Files{schema: s, conn: conn}
}

// Has reports whether collection has a time-series-files table at all.
func (f *Files) Has(collection string) bool {
	_, err := f.schema.FindTimeSeriesFilesTable(collection)
	return err == nil
}

// Columns returns the names of every column in collection's time-series-
// files table, excluding "id".
func (f *Files) Columns(collection string) ([]string, error) {
	t, err := f.schema.FindTimeSeriesFilesTable(collection)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, c := range t.Columns {
		if c.Name != "id" {
			cols = append(cols, c.Name)
		}
	}
	return cols, nil
}

// Read returns the singleton row's columns as a map to their string value.
// Every non-id column has an entry; its pointer is nil when the table has no
// row or the column is itself null, and the two cases are not distinguished.
func (f *Files) Read(ctx context.Context, collection string) (map[string]*string, error) {
	t, err := f.schema.FindTimeSeriesFilesTable(collection)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, c := range t.Columns {
		if c.Name != "id" {
			cols = append(cols, c.Name)
		}
	}

	out := make(map[string]*string, len(cols))
	for _, c := range cols {
		out[c] = nil
	}
	if len(cols) == 0 {
		return out, nil
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	row := f.conn.DB().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %q LIMIT 1`, strings.Join(quoted, ", "), t.Name))

	raws := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raws {
		ptrs[i] = &raws[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		if err == sql.ErrNoRows {
			return out, nil
		}
		return nil, fmt.Errorf("timeseries: read files row for %q: %w", collection, err)
	}
	for i, c := range cols {
		if raws[i].Valid {
			v := raws[i].String
			out[c] = &v
		}
	}
	return out, nil
}

// Update replaces collection's singleton time-series-files row with values
// in one transaction: the existing row (if any) is deleted and a new one
// inserted from values, a nil entry meaning an explicit SQL NULL.
func (f *Files) Update(ctx context.Context, collection string, values map[string]*string) error {
	t, err := f.schema.FindTimeSeriesFilesTable(collection)
	if err != nil {
		return err
	}
	for name := range values {
		if name != "id" && t.GetColumn(name) == nil {
			return fmt.Errorf("timeseries: %q has no files column %q", t.Name, name)
		}
	}

	guard, err := txn.Begin(ctx, f.conn)
	if err != nil {
		return err
	}
	defer guard.Rollback()

	if _, err := guard.Tx().ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, t.Name)); err != nil {
		return fmt.Errorf("timeseries: clear %q: %w", t.Name, err)
	}

	var cols []string
	var args []any
	for _, c := range t.Columns {
		if c.Name == "id" {
			continue
		}
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.Name)
		if v == nil {
			args = append(args, nil)
		} else {
			args = append(args, *v)
		}
	}
	if len(cols) > 0 {
		quoted := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = fmt.Sprintf("%q", c)
			placeholders[i] = "?"
		}
		stmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
			t.Name, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		if _, err := guard.Tx().ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("timeseries: insert into %q: %w", t.Name, err)
		}
	}

	return guard.Commit()
}
