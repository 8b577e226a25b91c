// Package write implements attrdb's element writer: create, update and
// delete of collection rows together with their vector, set and
// time-series attribute groups, and the FK label pre-resolution pass every
// write goes through first.
package write

import (
	"context"
	"fmt"
	"strings"

	"attrdb/element"
	"attrdb/schema"
	"attrdb/txn"
	"attrdb/typecheck"
	"attrdb/value"
)

// Writer performs element writes against one Schema/connection pair.
type Writer struct {
	schema *schema.Schema
	types  *typecheck.Validator
	conn   *txn.Conn
}

// New returns a Writer bound to s and conn. s must reflect conn's current
// database state; callers are responsible for reloading it after any
// schema-mutating operation.
func New(s *schema.Schema, conn *txn.Conn) *Writer {
	return &Writer{schema: s, types: typecheck.New(s), conn: conn}
}

func (w *Writer) requireCollection(name string) (*schema.Table, error) {
	t := w.schema.GetTable(name)
	if t == nil || t.Kind != schema.KindCollection {
		return nil, fmt.Errorf("write: %q is not a known collection", name)
	}
	return t, nil
}

// groupTarget is a resolved destination for one or more array attributes
// that share a backing table.
type groupTarget struct {
	table *schema.Table
	kind  schema.Kind
	attrs map[string][]value.Value
}

// routeArrays assigns every array attribute of e to its backing vector, set
// or time-series table, merging attributes that land on the same table so
// that a single zip insert can cover all of them at once (this is how two
// arrays such as "date_time" and "value" both land in one time-series
// table's insert).
func (w *Writer) routeArrays(collection string, e *element.Element) (map[string]*groupTarget, error) {
	targets := make(map[string]*groupTarget)
	for attr, values := range e.Arrays() {
		var (
			t   *schema.Table
			err error
			k   schema.Kind
		)
		if t, err = w.schema.FindVectorTable(collection, attr); err == nil {
			k = schema.KindVector
		} else if t, err = w.schema.FindSetTable(collection, attr); err == nil {
			k = schema.KindSet
		} else if t, err = w.schema.FindTimeSeriesTable(collection, attr); err == nil {
			k = schema.KindTimeSeries
		} else {
			return nil, fmt.Errorf("write: array attribute %q has no backing vector, set or time series table in collection %q", attr, collection)
		}

		tgt, ok := targets[t.Name]
		if !ok {
			tgt = &groupTarget{table: t, kind: k, attrs: make(map[string][]value.Value)}
			targets[t.Name] = tgt
		}
		tgt.attrs[attr] = values
	}
	return targets, nil
}

func checkEqualLengths(target *groupTarget) (int, error) {
	n := -1
	for attr, vs := range target.attrs {
		if n == -1 {
			n = len(vs)
			continue
		}
		if len(vs) != n {
			return 0, fmt.Errorf("write: array attribute %q has length %d but table %q requires matching lengths (got %d)", attr, len(vs), target.table.Name, n)
		}
	}
	if n == -1 {
		n = 0
	}
	return n, nil
}

// attrColumns returns the subset of target's columns (in schema declaration
// order) that have a value bound in target.attrs, so inserts are built in a
// deterministic column order regardless of Go's map iteration.
func attrColumns(target *groupTarget) []string {
	var cols []string
	for _, c := range target.table.Columns {
		if _, ok := target.attrs[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// insertGroup zip-inserts n rows into target's backing table for parent row
// id: a vector table gets a 1-based vector_index column, a set or
// time-series table does not (a time-series row's dimension value travels
// as one of target's own attribute columns).
func insertGroup(ctx context.Context, tx txn.Tx, id int64, target *groupTarget, n int) error {
	cols := attrColumns(target)
	if len(cols) == 0 {
		return nil
	}

	var columnNames []string
	if target.kind == schema.KindVector {
		columnNames = append([]string{"id", "vector_index"}, cols...)
	} else {
		columnNames = append([]string{"id"}, cols...)
	}
	placeholders := make([]string, len(columnNames))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	quoted := make([]string, len(columnNames))
	for i, c := range columnNames {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	stmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		target.table.Name, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	for i := 0; i < n; i++ {
		args := make([]any, 0, len(columnNames))
		args = append(args, id)
		if target.kind == schema.KindVector {
			args = append(args, i+1)
		}
		for _, c := range cols {
			args = append(args, target.attrs[c][i].AsAny())
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("write: insert into %q: %w", target.table.Name, err)
		}
	}
	return nil
}

// validateGroup type-checks every value bound to target's columns against
// their declared types.
func (w *Writer) validateGroup(target *groupTarget) error {
	for attr, vs := range target.attrs {
		if err := w.types.ValidateArray(target.table.Name, attr, vs); err != nil {
			return err
		}
	}
	return nil
}

// CreateElement inserts a new row into collection from e's scalar
// attributes, routes e's array attributes to their backing vector/set/
// time-series tables, and returns the new row's id. e must carry at least
// one scalar attribute. FK label text values are pre-resolved to integer
// ids before anything is written, and the whole operation is one
// transaction: a failure at any point leaves the database unchanged.
func (w *Writer) CreateElement(ctx context.Context, collection string, e *element.Element) (int64, error) {
	t, err := w.requireCollection(collection)
	if err != nil {
		return 0, err
	}
	if !e.HasScalars() {
		return 0, fmt.Errorf("write: element for %q has no scalar attributes", collection)
	}

	resolved, err := w.resolveFKLabels(ctx, w.conn.DB(), collection, e)
	if err != nil {
		return 0, err
	}
	for name, v := range resolved.Scalars() {
		if err := w.types.ValidateScalar(collection, name, v); err != nil {
			return 0, err
		}
	}
	targets, err := w.routeArrays(collection, resolved)
	if err != nil {
		return 0, err
	}
	lengths := make(map[string]int, len(targets))
	for tableName, tgt := range targets {
		n, err := checkEqualLengths(tgt)
		if err != nil {
			return 0, err
		}
		if err := w.validateGroup(tgt); err != nil {
			return 0, err
		}
		lengths[tableName] = n
	}

	guard, err := txn.Begin(ctx, w.conn)
	if err != nil {
		return 0, err
	}
	defer guard.Rollback()

	cols := scalarColumns(t, resolved)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = "?"
		v, _ := resolved.Scalar(c)
		args[i] = v.AsAny()
	}
	stmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, collection, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	res, err := guard.Tx().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("write: insert into %q: %w", collection, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write: read last insert id for %q: %w", collection, err)
	}

	for tableName, tgt := range targets {
		if err := insertGroup(ctx, guard.Tx(), id, tgt, lengths[tableName]); err != nil {
			return 0, err
		}
	}

	if err := guard.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateElement overwrites collection's row id with e's scalar attributes
// and replaces every array attribute group e names in full: the backing
// table's rows for id are deleted, then the new values are zip-inserted.
// Array attributes e does not mention are left untouched. e must carry at
// least one scalar or array attribute.
func (w *Writer) UpdateElement(ctx context.Context, collection string, id int64, e *element.Element) error {
	t, err := w.requireCollection(collection)
	if err != nil {
		return err
	}
	if !e.HasScalars() && !e.HasArrays() {
		return fmt.Errorf("write: element for %q is empty", collection)
	}

	resolved, err := w.resolveFKLabels(ctx, w.conn.DB(), collection, e)
	if err != nil {
		return err
	}
	for name, v := range resolved.Scalars() {
		if err := w.types.ValidateScalar(collection, name, v); err != nil {
			return err
		}
	}
	targets, err := w.routeArrays(collection, resolved)
	if err != nil {
		return err
	}
	lengths := make(map[string]int, len(targets))
	for tableName, tgt := range targets {
		n, err := checkEqualLengths(tgt)
		if err != nil {
			return err
		}
		if err := w.validateGroup(tgt); err != nil {
			return err
		}
		lengths[tableName] = n
	}

	guard, err := txn.Begin(ctx, w.conn)
	if err != nil {
		return err
	}
	defer guard.Rollback()

	if resolved.HasScalars() {
		cols := scalarColumns(t, resolved)
		sets := make([]string, len(cols))
		args := make([]any, len(cols)+1)
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%q = ?", c)
			v, _ := resolved.Scalar(c)
			args[i] = v.AsAny()
		}
		args[len(cols)] = id
		stmt := fmt.Sprintf(`UPDATE %q SET %s WHERE id = ?`, collection, strings.Join(sets, ", "))
		if _, err := guard.Tx().ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("write: update %q: %w", collection, err)
		}
	}

	for tableName, tgt := range targets {
		if _, err := guard.Tx().ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, tableName), id); err != nil {
			return fmt.Errorf("write: clear %q before replace: %w", tableName, err)
		}
		if err := insertGroup(ctx, guard.Tx(), id, tgt, lengths[tableName]); err != nil {
			return err
		}
	}

	return guard.Commit()
}

// DeleteElementByID deletes collection's row id. The schema's ON DELETE
// CASCADE foreign keys propagate the deletion into every vector, set and
// time-series table that references it. Deleting a row that does not exist
// is a silent no-op.
func (w *Writer) DeleteElementByID(ctx context.Context, collection string, id int64) error {
	if _, err := w.requireCollection(collection); err != nil {
		return err
	}
	guard, err := txn.Begin(ctx, w.conn)
	if err != nil {
		return err
	}
	defer guard.Rollback()
	if _, err := guard.Tx().ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, collection), id); err != nil {
		return fmt.Errorf("write: delete from %q: %w", collection, err)
	}
	return guard.Commit()
}

// scalarColumns returns the subset of t's columns that e has a scalar value
// for, in schema declaration order.
func scalarColumns(t *schema.Table, e *element.Element) []string {
	var cols []string
	for _, c := range t.Columns {
		if _, ok := e.Scalar(c.Name); ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// UpdateScalarRelation rewrites the FK attribute of the row labeled
// fromLabel so that it points at the row labeled toLabel, resolving
// toLabel against whichever table attribute's foreign key targets.
func (w *Writer) UpdateScalarRelation(ctx context.Context, collection, attribute, fromLabel, toLabel string) error {
	t, err := w.requireCollection(collection)
	if err != nil {
		return err
	}
	fk := t.ForeignKeyFor(attribute)
	if fk == nil {
		return fmt.Errorf("write: %q has no foreign key attribute %q", collection, attribute)
	}

	guard, err := txn.Begin(ctx, w.conn)
	if err != nil {
		return err
	}
	defer guard.Rollback()

	id, err := resolveLabel(ctx, guard.Tx(), fk.ToTable, toLabel)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`UPDATE %q SET %q = ? WHERE label = ?`, collection, attribute)
	if _, err := guard.Tx().ExecContext(ctx, stmt, id, fromLabel); err != nil {
		return fmt.Errorf("write: update scalar relation on %q.%q: %w", collection, attribute, err)
	}
	return guard.Commit()
}
