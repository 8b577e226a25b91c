package schema

import (
	"context"
	"database/sql"
	"fmt"

	"attrdb/value"
)

// Load introspects every user table in the connected SQLite database and
// builds a Schema from it, the same way attrdb's catalog-backed cousins
// build their model from information_schema: one pass to list the tables,
// then one PRAGMA round-trip per table for columns, foreign keys and
// indexes.
func Load(ctx context.Context, db *sql.DB) (*Schema, error) {
	names, err := tableNames(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("schema: list tables: %w", err)
	}

	s := New()
	for _, name := range names {
		t := &Table{Name: name, Kind: classify(name)}

		if t.Columns, err = loadColumns(ctx, db, name); err != nil {
			return nil, fmt.Errorf("schema: load columns for %q: %w", name, err)
		}
		if t.ForeignKeys, err = loadForeignKeys(ctx, db, name); err != nil {
			return nil, fmt.Errorf("schema: load foreign keys for %q: %w", name, err)
		}
		if t.Indexes, err = loadIndexes(ctx, db, name); err != nil {
			return nil, fmt.Errorf("schema: load indexes for %q: %w", name, err)
		}
		s.addTable(t)
	}
	return s, nil
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func loadColumns(ctx context.Context, db *sql.DB, table string) ([]*Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []*Column
	for rows.Next() {
		var (
			cid        int
			name       string
			rawType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &rawType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}

		dt, err := value.DataTypeFromString(rawType)
		if err != nil {
			// SQLite's declared type affinity is looser than attrdb's four
			// kinds (e.g. "VARCHAR(255)"); fall back to Text for anything
			// unrecognized rather than failing the whole load.
			dt = value.Text
		}
		if dt == value.Text && value.IsDateTimeColumn(name) {
			dt = value.DateTime
		}

		columns = append(columns, &Column{
			Name:         name,
			Type:         dt,
			NotNull:      notNull != 0,
			PrimaryKey:   pk != 0,
			DefaultValue: defaultVal.String,
			HasDefault:   defaultVal.Valid,
		})
	}
	return columns, rows.Err()
}

func loadForeignKeys(ctx context.Context, db *sql.DB, table string) ([]*ForeignKey, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []*ForeignKey
	for rows.Next() {
		var (
			id, seq                    int
			toTable, from, to          string
			onUpdate, onDelete, match  string
		)
		if err := rows.Scan(&id, &seq, &toTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		fks = append(fks, &ForeignKey{
			FromColumn: from,
			ToTable:    toTable,
			ToColumn:   to,
			OnUpdate:   onUpdate,
			OnDelete:   onDelete,
		})
	}
	return fks, rows.Err()
}

func loadIndexes(ctx context.Context, db *sql.DB, table string) ([]*Index, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%q)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type row struct {
		name   string
		unique bool
	}
	var listed []row
	for rows.Next() {
		var (
			seq      int
			name     string
			unique   int
			origin   string
			partial  int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		listed = append(listed, row{name: name, unique: unique != 0})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []*Index
	for _, li := range listed {
		cols, err := indexColumns(ctx, db, li.name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, &Index{Name: li.name, Unique: li.unique, Columns: cols})
	}
	return indexes, nil
}

func indexColumns(ctx context.Context, db *sql.DB, index string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%q)`, index))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}
