package csvio

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"attrdb/schema"
	"attrdb/value"
)

// Exporter renders a collection or one of its attribute groups to a CSV
// file.
type Exporter struct {
	schema *schema.Schema
	db     *sql.DB
}

// NewExporter returns an Exporter bound to s and db.
func NewExporter(s *schema.Schema, db *sql.DB) *Exporter {
	return &Exporter{schema: s, db: db}
}

// Export writes collection (or, when group is non-empty, one of its
// vector/set/time-series attribute groups) to path as CSV. The first line
// is always "sep=,", followed by a header line and then the data rows with
// LF line endings. Every foreign-key column — the group table's own parent
// link plus any FK value column — is rendered as the referenced row's
// label via a LEFT JOIN, never as the raw integer id, the same resolution
// read.Reader.ReadScalarRelation performs for single-attribute reads.
func (ex *Exporter) Export(ctx context.Context, collection, group, path string, opts *Options) error {
	t := ex.schema.GetTable(collection)
	if t == nil || t.Kind != schema.KindCollection {
		return fmt.Errorf("csvio: %q is not a known collection", collection)
	}

	var (
		header  []string
		colDefs []*schema.Column
		isLabel []bool
		query   string
	)
	if group == "" {
		header, colDefs, isLabel, query = ex.scalarQuery(collection, t)
	} else {
		gt, kind, err := ex.groupTable(collection, group)
		if err != nil {
			return err
		}
		header, colDefs, isLabel, query = ex.groupQuery(collection, gt, kind)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("csvio: create destination directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("csvio: open %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString("sep=,\n"); err != nil {
		return err
	}
	if _, err := f.WriteString(renderCSVRow(header) + "\n"); err != nil {
		return err
	}

	rows, err := ex.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("csvio: export query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		raws := make([]any, len(colDefs))
		ptrs := make([]any, len(colDefs))
		for i := range raws {
			ptrs[i] = &raws[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}

		fields := make([]string, len(colDefs))
		for i, c := range colDefs {
			colType := c.Type
			if isLabel[i] {
				colType = value.Text
			}
			v, err := value.FromScan(colType, raws[i])
			if err != nil {
				return fmt.Errorf("csvio: export value for %q: %w", c.Name, err)
			}
			if isLabel[i] {
				fields[i] = v.String()
				continue
			}
			field, err := renderField(c.Name, v, opts)
			if err != nil {
				return err
			}
			fields[i] = field
		}
		if _, err := f.WriteString(renderCSVRow(fields) + "\n"); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (ex *Exporter) groupTable(collection, group string) (*schema.Table, schema.Kind, error) {
	if t, err := ex.schema.FindVectorTable(collection, group); err == nil {
		return t, schema.KindVector, nil
	}
	if t, err := ex.schema.FindSetTable(collection, group); err == nil {
		return t, schema.KindSet, nil
	}
	if t, err := ex.schema.FindTimeSeriesTable(collection, group); err == nil {
		return t, schema.KindTimeSeries, nil
	}
	return nil, schema.KindUnknown, fmt.Errorf("csvio: collection %q has no attribute group %q", collection, group)
}

// scalarQuery builds the collection's own SELECT: every non-id column, with
// each foreign-key column replaced by a LEFT JOIN against its target table
// so the rendered value is the target's label rather than its integer id.
func (ex *Exporter) scalarQuery(collection string, t *schema.Table) (header []string, colDefs []*schema.Column, isLabel []bool, query string) {
	var selects, joins []string
	for _, c := range t.Columns {
		if c.Name == "id" {
			continue
		}
		header = append(header, c.Name)
		colDefs = append(colDefs, c)

		if fk := t.ForeignKeyFor(c.Name); fk != nil {
			alias := fmt.Sprintf("fk%d", len(joins))
			joins = append(joins, fmt.Sprintf(`LEFT JOIN %q %s ON C.%q = %s.id`, fk.ToTable, alias, c.Name, alias))
			selects = append(selects, fmt.Sprintf(`%s.label`, alias))
			isLabel = append(isLabel, true)
		} else {
			selects = append(selects, fmt.Sprintf(`C.%q`, c.Name))
			isLabel = append(isLabel, false)
		}
	}

	query = fmt.Sprintf(`SELECT %s FROM %q C %s ORDER BY C.rowid`,
		strings.Join(selects, ", "), collection, strings.Join(joins, " "))
	return header, colDefs, isLabel, query
}

// groupQuery builds the join selecting the parent collection's label as the
// rendered "id" column, every other foreign-key value column resolved to
// its own target's label via its own LEFT JOIN, and every remaining group
// column as-is, ordered per spec.md's per-kind convention.
func (ex *Exporter) groupQuery(collection string, gt *schema.Table, kind schema.Kind) (header []string, colDefs []*schema.Column, isLabel []bool, query string) {
	var selects, joins []string
	for _, c := range gt.Columns {
		header = append(header, c.Name)
		colDefs = append(colDefs, c)

		if c.Name == "id" {
			selects = append(selects, `C.label AS id`)
			isLabel = append(isLabel, true)
			continue
		}
		if fk := gt.ForeignKeyFor(c.Name); fk != nil {
			alias := fmt.Sprintf("fk%d", len(joins))
			joins = append(joins, fmt.Sprintf(`LEFT JOIN %q %s ON G.%q = %s.id`, fk.ToTable, alias, c.Name, alias))
			selects = append(selects, fmt.Sprintf(`%s.label`, alias))
			isLabel = append(isLabel, true)
			continue
		}
		selects = append(selects, fmt.Sprintf(`G.%q`, c.Name))
		isLabel = append(isLabel, false)
	}

	var order string
	switch kind {
	case schema.KindVector:
		order = `G.id, G.vector_index`
	case schema.KindSet:
		order = `G.id`
	case schema.KindTimeSeries:
		dim := gt.DimensionColumn()
		order = fmt.Sprintf(`G.id, G.%q`, dim.Name)
	}

	query = fmt.Sprintf(`SELECT %s FROM %q G JOIN %q C ON G.id = C.id %s ORDER BY %s`,
		strings.Join(selects, ", "), gt.Name, collection, strings.Join(joins, " "), order)
	return header, colDefs, isLabel, query
}

func renderCSVRow(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteCSVField(f)
	}
	return strings.Join(quoted, ",")
}
