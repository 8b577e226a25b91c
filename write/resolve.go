package write

import (
	"context"
	"database/sql"
	"fmt"

	"attrdb/element"
	"attrdb/value"
)

// resolveLabel looks up the integer id of the row in table whose label
// column equals label. A missing target is a fatal error: write operations
// never silently skip an unresolved FK.
func resolveLabel(ctx context.Context, q querier, table, label string) (int64, error) {
	var id int64
	row := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %q WHERE label = ?`, table), label)
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("write: label %q not found in %q", label, table)
		}
		return 0, fmt.Errorf("write: resolve label %q in %q: %w", label, table, err)
	}
	return id, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// resolveFKLabels walks e's scalars and arrays, resolving any Text value
// bound to a foreign-key column into the target table's integer id, and
// returns a new Element with those fields rewritten to Integer. It never
// writes to the database. Scalars are resolved against the collection
// table's own foreign keys; array attributes are resolved against the
// foreign keys of whichever vector/set table will end up backing them.
func (w *Writer) resolveFKLabels(ctx context.Context, q querier, collection string, e *element.Element) (*element.Element, error) {
	t, err := w.requireCollection(collection)
	if err != nil {
		return nil, err
	}

	resolved := element.New()
	for name, v := range e.Scalars() {
		if fk := t.ForeignKeyFor(name); fk != nil && !v.Null && v.Type == value.Text {
			id, err := resolveLabel(ctx, q, fk.ToTable, v.Text)
			if err != nil {
				return nil, err
			}
			v = value.NewInt(id)
		}
		resolved.Set(name, v)
	}

	targets, err := w.routeArrays(collection, e)
	if err != nil {
		return nil, err
	}
	for _, tgt := range targets {
		for attr, values := range tgt.attrs {
			fk := tgt.table.ForeignKeyFor(attr)
			if fk == nil {
				resolved.SetArray(attr, values)
				continue
			}
			out := make([]value.Value, len(values))
			for i, v := range values {
				if !v.Null && v.Type == value.Text {
					id, err := resolveLabel(ctx, q, fk.ToTable, v.Text)
					if err != nil {
						return nil, err
					}
					out[i] = value.NewInt(id)
				} else {
					out[i] = v
				}
			}
			resolved.SetArray(attr, out)
		}
	}
	return resolved, nil
}
