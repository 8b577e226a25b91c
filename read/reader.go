// Package read implements attrdb's element reader: scalar, vector, set and
// time-series reads against a Schema-classified database, the inverse of
// package write's routing — resolve a logical attribute to its backing
// table, issue an ordered SELECT, and reconstruct flat or grouped values.
package read

import (
	"context"
	"database/sql"
	"fmt"

	"attrdb/schema"
	"attrdb/value"
)

// Reader performs element reads against one Schema/connection pair. Unlike
// Writer it never opens a transaction: every read is a single SELECT.
type Reader struct {
	schema *schema.Schema
	db     *sql.DB
}

// New returns a Reader bound to s and db.
func New(s *schema.Schema, db *sql.DB) *Reader {
	return &Reader{schema: s, db: db}
}

func (r *Reader) requireCollection(name string) (*schema.Table, error) {
	t := r.schema.GetTable(name)
	if t == nil || t.Kind != schema.KindCollection {
		return nil, fmt.Errorf("read: %q is not a known collection", name)
	}
	return t, nil
}

func (r *Reader) requireScalarColumn(collection, attribute string) (*schema.Table, *schema.Column, error) {
	t, err := r.requireCollection(collection)
	if err != nil {
		return nil, nil, err
	}
	c := t.GetColumn(attribute)
	if c == nil {
		return nil, nil, fmt.Errorf("read: %q has no scalar attribute %q", collection, attribute)
	}
	return t, c, nil
}

// ReadScalarValues returns every non-null value of attribute across
// collection, in the collection table's row order.
func (r *Reader) ReadScalarValues(ctx context.Context, collection, attribute string) ([]value.Value, error) {
	_, col, err := r.requireScalarColumn(collection, attribute)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %q FROM %q ORDER BY rowid`, attribute, collection))
	if err != nil {
		return nil, fmt.Errorf("read: scalar %q.%q: %w", collection, attribute, err)
	}
	defer rows.Close()

	var out []value.Value
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := value.FromScan(col.Type, raw)
		if err != nil {
			return nil, err
		}
		if v.Null {
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ReadScalarValueByID returns the value of attribute for collection row id.
// The second return is false when either the row does not exist or its
// value is null — the two are deliberately indistinguishable, matching
// attrdb's read-by-id contract.
func (r *Reader) ReadScalarValueByID(ctx context.Context, collection, attribute string, id int64) (value.Value, bool, error) {
	_, col, err := r.requireScalarColumn(collection, attribute)
	if err != nil {
		return value.Value{}, false, err
	}

	var raw any
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %q FROM %q WHERE id = ?`, attribute, collection), id)
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return value.Value{}, false, nil
		}
		return value.Value{}, false, fmt.Errorf("read: scalar %q.%q by id: %w", collection, attribute, err)
	}
	v, err := value.FromScan(col.Type, raw)
	if err != nil {
		return value.Value{}, false, err
	}
	if v.Null {
		return value.Value{}, false, nil
	}
	return v, true, nil
}

// ReadScalarStrings, ReadScalarIntegers, ReadScalarFloats and
// ReadScalarDateTimes are the typed conveniences spec.md names
// read_scalar_string / read_scalar_integer / read_scalar_float /
// read_scalar_date_time as; they share ReadScalarValues' semantics.

func (r *Reader) ReadScalarStrings(ctx context.Context, collection, attribute string) ([]string, error) {
	vs, err := r.ReadScalarValues(ctx, collection, attribute)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Text
	}
	return out, nil
}

func (r *Reader) ReadScalarIntegers(ctx context.Context, collection, attribute string) ([]int64, error) {
	vs, err := r.ReadScalarValues(ctx, collection, attribute)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = v.Int
	}
	return out, nil
}

func (r *Reader) ReadScalarFloats(ctx context.Context, collection, attribute string) ([]float64, error) {
	vs, err := r.ReadScalarValues(ctx, collection, attribute)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Real
	}
	return out, nil
}

func (r *Reader) ReadScalarDateTimes(ctx context.Context, collection, attribute string) ([]string, error) {
	return r.ReadScalarStrings(ctx, collection, attribute)
}

// groupTable resolves attribute's backing vector, set or time-series table.
func (r *Reader) groupTable(collection, attribute string) (*schema.Table, schema.Kind, error) {
	if t, err := r.schema.FindVectorTable(collection, attribute); err == nil {
		return t, schema.KindVector, nil
	}
	if t, err := r.schema.FindSetTable(collection, attribute); err == nil {
		return t, schema.KindSet, nil
	}
	if t, err := r.schema.FindTimeSeriesTable(collection, attribute); err == nil {
		return t, schema.KindTimeSeries, nil
	}
	return nil, schema.KindUnknown, fmt.Errorf("read: array attribute %q has no backing table in collection %q", attribute, collection)
}

// ReadVectorValues returns, for every id that has rows in attribute's vector
// table, in id order, the sequence of attribute's values ordered by
// vector_index. Collection rows with no vector rows get no entry.
func (r *Reader) ReadVectorValues(ctx context.Context, collection, attribute string) ([][]value.Value, error) {
	t, kind, err := r.groupTable(collection, attribute)
	if err != nil {
		return nil, err
	}
	if kind != schema.KindVector {
		return nil, fmt.Errorf("read: %q is not a vector attribute of %q", attribute, collection)
	}
	col := t.GetColumn(attribute)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, %q FROM %q ORDER BY id, vector_index`, attribute, t.Name))
	if err != nil {
		return nil, fmt.Errorf("read: vector %q.%q: %w", collection, attribute, err)
	}
	defer rows.Close()
	return groupByID(rows, col.Type)
}

// ReadVectorValuesByID returns the single id's sequence of attribute's
// values, ordered by vector_index (the contiguous integers 1..n).
func (r *Reader) ReadVectorValuesByID(ctx context.Context, collection, attribute string, id int64) ([]value.Value, error) {
	t, kind, err := r.groupTable(collection, attribute)
	if err != nil {
		return nil, err
	}
	if kind != schema.KindVector {
		return nil, fmt.Errorf("read: %q is not a vector attribute of %q", attribute, collection)
	}
	col := t.GetColumn(attribute)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %q FROM %q WHERE id = ? ORDER BY vector_index`, attribute, t.Name), id)
	if err != nil {
		return nil, fmt.Errorf("read: vector %q.%q by id: %w", collection, attribute, err)
	}
	defer rows.Close()
	return scanValues(rows, col.Type)
}

// ReadSetValues returns, for every id that has rows in attribute's set
// table, in id order, the set of attribute's values for that id. Collection
// rows with no set rows get no entry. Inner order is stable but
// implementation-defined, matching spec's unspecified set ordering.
func (r *Reader) ReadSetValues(ctx context.Context, collection, attribute string) ([][]value.Value, error) {
	t, kind, err := r.groupTable(collection, attribute)
	if err != nil {
		return nil, err
	}
	if kind != schema.KindSet {
		return nil, fmt.Errorf("read: %q is not a set attribute of %q", attribute, collection)
	}
	col := t.GetColumn(attribute)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, %q FROM %q ORDER BY id, rowid`, attribute, t.Name))
	if err != nil {
		return nil, fmt.Errorf("read: set %q.%q: %w", collection, attribute, err)
	}
	defer rows.Close()
	return groupByID(rows, col.Type)
}

// ReadSetValuesByID returns the single id's set of attribute's values.
func (r *Reader) ReadSetValuesByID(ctx context.Context, collection, attribute string, id int64) ([]value.Value, error) {
	t, kind, err := r.groupTable(collection, attribute)
	if err != nil {
		return nil, err
	}
	if kind != schema.KindSet {
		return nil, fmt.Errorf("read: %q is not a set attribute of %q", attribute, collection)
	}
	col := t.GetColumn(attribute)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %q FROM %q WHERE id = ? ORDER BY rowid`, attribute, t.Name), id)
	if err != nil {
		return nil, fmt.Errorf("read: set %q.%q by id: %w", collection, attribute, err)
	}
	defer rows.Close()
	return scanValues(rows, col.Type)
}

// ReadTimeSeriesGroup returns every row of collection's time-series table
// named group for the given id, ordered by that table's dimension column.
// Each row is a map from column name (excluding id) to Value.
func (r *Reader) ReadTimeSeriesGroup(ctx context.Context, collection, group string, id int64) ([]map[string]value.Value, error) {
	t, err := r.schema.FindTimeSeriesTable(collection, group)
	if err != nil {
		return nil, err
	}
	dim := t.DimensionColumn()
	if dim == nil {
		return nil, fmt.Errorf("read: time series table %q has no dimension column", t.Name)
	}

	var cols []string
	for _, c := range t.Columns {
		if c.Name != "id" {
			cols = append(cols, c.Name)
		}
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %q WHERE id = ? ORDER BY %q`, joinQuoted(quoted), t.Name, dim.Name), id)
	if err != nil {
		return nil, fmt.Errorf("read: time series %q.%q: %w", collection, group, err)
	}
	defer rows.Close()

	var out []map[string]value.Value
	for rows.Next() {
		raws := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raws {
			ptrs[i] = &raws[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]value.Value, len(cols))
		for i, c := range cols {
			colDef := t.GetColumn(c)
			v, err := value.FromScan(colDef.Type, raws[i])
			if err != nil {
				return nil, err
			}
			row[c] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReadScalarRelation returns, for every row of collection in row order, the
// label of the row attribute's foreign key points at, or "" when the FK is
// unset (null), via a LEFT JOIN against the FK's target table.
func (r *Reader) ReadScalarRelation(ctx context.Context, collection, attribute string) ([]string, error) {
	t, err := r.requireCollection(collection)
	if err != nil {
		return nil, err
	}
	fk := t.ForeignKeyFor(attribute)
	if fk == nil {
		return nil, fmt.Errorf("read: %q has no foreign key attribute %q", collection, attribute)
	}

	query := fmt.Sprintf(
		`SELECT T.label FROM %q C LEFT JOIN %q T ON C.%q = T.id ORDER BY C.rowid`,
		collection, fk.ToTable, attribute)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read: scalar relation %q.%q: %w", collection, attribute, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label sql.NullString
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		out = append(out, label.String)
	}
	return out, rows.Err()
}

func groupByID(rows *sql.Rows, t value.DataType) ([][]value.Value, error) {
	var out [][]value.Value
	var curID int64
	first := true
	for rows.Next() {
		var id int64
		var raw any
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		v, err := value.FromScan(t, raw)
		if err != nil {
			return nil, err
		}
		if first || id != curID {
			out = append(out, nil)
			curID = id
			first = false
		}
		out[len(out)-1] = append(out[len(out)-1], v)
	}
	return out, rows.Err()
}

func scanValues(rows *sql.Rows, t value.DataType) ([]value.Value, error) {
	var out []value.Value
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := value.FromScan(t, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func joinQuoted(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
