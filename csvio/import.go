package csvio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"attrdb/schema"
	"attrdb/txn"
	"attrdb/value"
)

// Importer loads a CSV file into a collection or one of its attribute
// groups with wipe-and-reload semantics: a full validation pass runs
// before any mutation, and all writes happen in one transaction with
// foreign-key enforcement temporarily disabled.
type Importer struct {
	schema *schema.Schema
	conn   *txn.Conn
}

// NewImporter returns an Importer bound to s and conn.
func NewImporter(s *schema.Schema, conn *txn.Conn) *Importer {
	return &Importer{schema: s, conn: conn}
}

type parsedCSV struct {
	header []string
	rows   [][]string
}

func parseCSVFile(path string) (*parsedCSV, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("csvio: read %q: %w", path, err)
	}
	doc := string(raw)

	firstLine, _, _ := strings.Cut(doc, "\n")
	sep, stripFirst := detectSeparator(firstLine, doc)
	if stripFirst {
		_, doc, _ = strings.Cut(doc, "\n")
	}
	doc = normalizeToComma(doc, sep)

	lines := strings.Split(strings.TrimRight(doc, "\n"), "\n")
	if len(lines) == 0 || (len(lines) == 1 && strings.TrimSpace(lines[0]) == "") {
		return nil, fmt.Errorf("csvio: file %q is empty", path)
	}

	header := splitCSVLine(strings.TrimRight(lines[0], "\r"))
	var rows [][]string
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		rows = append(rows, splitCSVLine(line))
	}

	header, rows = stripTrailingCommaColumn(header, rows)
	return &parsedCSV{header: header, rows: rows}, nil
}

// Import loads path into collection (or, when group is non-empty, one of
// its attribute groups), replacing the target table's current contents.
func (im *Importer) Import(ctx context.Context, collection, group, path string, opts *Options) error {
	t := im.schema.GetTable(collection)
	if t == nil || t.Kind != schema.KindCollection {
		return fmt.Errorf("csvio: %q is not a known collection", collection)
	}

	doc, err := parseCSVFile(path)
	if err != nil {
		return err
	}

	var (
		target   *schema.Table
		kind     schema.Kind
		wanted   []string // import-visible columns of target, excluding the rendered "id" substitution rule
	)
	if group == "" {
		target, kind = t, schema.KindCollection
		for _, c := range t.Columns {
			if c.Name != "id" {
				wanted = append(wanted, c.Name)
			}
		}
		if !contains(doc.header, "label") {
			return fmt.Errorf("csvio: scalar import of %q requires a 'label' column", collection)
		}
	} else {
		gt, k, err := im.groupTable(collection, group)
		if err != nil {
			return err
		}
		target, kind = gt, k
		for _, c := range gt.Columns {
			wanted = append(wanted, c.Name)
		}
	}

	if !sameColumnSet(doc.header, wanted) {
		return fmt.Errorf("csvio: CSV columns %v do not match target columns %v", doc.header, wanted)
	}
	for i, row := range doc.rows {
		if len(row) != len(doc.header) {
			return fmt.Errorf("csvio: row %d has %d fields, want %d", i+1, len(row), len(doc.header))
		}
	}

	if len(doc.rows) == 0 {
		return im.wipe(ctx, target.Name)
	}

	labelMaps, err := im.loadLabelMaps(ctx, target, kind)
	if err != nil {
		return err
	}

	cells, err := im.validateRows(doc, target, kind, opts, labelMaps)
	if err != nil {
		return err
	}
	if kind == schema.KindVector {
		if err := validateVectorIndexDensity(doc.header, cells); err != nil {
			return err
		}
	}

	return im.mutate(ctx, collection, target, kind, doc.header, cells)
}

func (im *Importer) groupTable(collection, group string) (*schema.Table, schema.Kind, error) {
	if t, err := im.schema.FindVectorTable(collection, group); err == nil {
		return t, schema.KindVector, nil
	}
	if t, err := im.schema.FindSetTable(collection, group); err == nil {
		return t, schema.KindSet, nil
	}
	if t, err := im.schema.FindTimeSeriesTable(collection, group); err == nil {
		return t, schema.KindTimeSeries, nil
	}
	return nil, schema.KindUnknown, fmt.Errorf("csvio: collection %q has no attribute group %q", collection, group)
}

func (im *Importer) wipe(ctx context.Context, table string) error {
	guard, err := txn.Begin(ctx, im.conn)
	if err != nil {
		return err
	}
	defer guard.Rollback()
	if _, err := guard.Tx().ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, table)); err != nil {
		return fmt.Errorf("csvio: wipe %q: %w", table, err)
	}
	return guard.Commit()
}

// loadLabelMaps builds a label→id map for every table a foreign key in
// target (or, for a group table, the parent collection's own label) might
// resolve against, read once per import.
func (im *Importer) loadLabelMaps(ctx context.Context, target *schema.Table, kind schema.Kind) (map[string]map[string]int64, error) {
	maps := make(map[string]map[string]int64)
	need := make(map[string]bool)
	for _, fk := range target.ForeignKeys {
		if kind != schema.KindCollection && fk.FromColumn == "id" {
			continue
		}
		need[fk.ToTable] = true
	}
	if kind != schema.KindCollection {
		need[schema.ParentCollection(target.Name)] = true
	}

	for tableName := range need {
		m := make(map[string]int64)
		rows, err := im.conn.DB().QueryContext(ctx, fmt.Sprintf(`SELECT id, label FROM %q`, tableName))
		if err != nil {
			return nil, fmt.Errorf("csvio: load labels for %q: %w", tableName, err)
		}
		for rows.Next() {
			var id int64
			var label string
			if err := rows.Scan(&id, &label); err != nil {
				rows.Close()
				return nil, err
			}
			m[label] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		maps[tableName] = m
	}
	return maps, nil
}

// cellValue is the validated, type-resolved form of one CSV cell.
type cellValue struct {
	raw    string
	empty  bool
	fk     bool
	fkID   int64 // resolved only when the label is already known (not self-referencing)
	self   bool  // a FK into target's own collection, resolved in the mutation pass's second sub-pass
	v      value.Value
}

// validateRows runs the full validation pass over every cell with no
// writes: NOT NULL, FK label resolution, DateTime parsing, Integer/enum
// parsing and Real parsing, per spec's per-column-kind rules.
func (im *Importer) validateRows(doc *parsedCSV, target *schema.Table, kind schema.Kind, opts *Options, labelMaps map[string]map[string]int64) ([][]cellValue, error) {
	colIndex := make(map[string]int, len(doc.header))
	for i, h := range doc.header {
		colIndex[h] = i
	}
	fkByColumn := make(map[string]*schema.ForeignKey)
	for _, fk := range target.ForeignKeys {
		fkByColumn[fk.FromColumn] = fk
	}
	parent := schema.ParentCollection(target.Name)

	cells := make([][]cellValue, len(doc.rows))
	for r, row := range doc.rows {
		cells[r] = make([]cellValue, len(doc.header))
		for _, colName := range doc.header {
			i := colIndex[colName]
			raw := row[i]
			col := target.GetColumn(colName)

			cv := cellValue{raw: raw, empty: raw == ""}

			if kind != schema.KindCollection && colName == "id" {
				if cv.empty {
					return nil, fmt.Errorf("csvio: row %d: group import 'id' (parent label) cannot be empty", r+1)
				}
				id, ok := labelMaps[parent][raw]
				if !ok {
					return nil, fmt.Errorf("csvio: row %d: unknown parent label %q", r+1, raw)
				}
				cv.fk, cv.fkID = true, id
				cells[r][i] = cv
				continue
			}

			if col != nil && col.NotNull && cv.empty {
				return nil, fmt.Errorf("csvio: row %d: column %q is NOT NULL but empty", r+1, colName)
			}
			if cv.empty {
				cells[r][i] = cv
				continue
			}

			if fk, ok := fkByColumn[colName]; ok {
				if fk.ToTable == target.Name && kind == schema.KindCollection {
					cv.self = true
					cells[r][i] = cv
					continue
				}
				id, ok := labelMaps[fk.ToTable][raw]
				if !ok {
					return nil, fmt.Errorf("csvio: row %d: unknown label %q for %q", r+1, raw, colName)
				}
				cv.fk, cv.fkID = true, id
				cells[r][i] = cv
				continue
			}

			var colType value.DataType
			if col != nil {
				colType = col.Type
			} else {
				colType = value.Text
			}

			switch colType {
			case value.DateTime:
				t, ok := parseWithFormat(raw, opts)
				if !ok {
					return nil, fmt.Errorf("csvio: row %d: column %q: %q is not a valid timestamp", r+1, colName, raw)
				}
				cv.v = value.NewDateTime(t)
			case value.Integer:
				if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
					cv.v = value.NewInt(n)
				} else if opts != nil {
					if n, ok := opts.enumValue(colName, raw); ok {
						cv.v = value.NewInt(n)
					} else {
						return nil, fmt.Errorf("csvio: row %d: column %q: %q is not an integer or known enum label", r+1, colName, raw)
					}
				} else {
					return nil, fmt.Errorf("csvio: row %d: column %q: %q is not an integer", r+1, colName, raw)
				}
			case value.Real:
				f, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("csvio: row %d: column %q: %q is not a number", r+1, colName, raw)
				}
				cv.v = value.NewReal(f)
			default:
				cv.v = value.NewText(raw)
			}
			cells[r][i] = cv
		}
	}
	return cells, nil
}

func parseWithFormat(raw string, opts *Options) (string, bool) {
	if opts != nil && opts.DateTimeFormat != "" {
		if t, ok := parseStrftime(raw, opts.DateTimeFormat); ok {
			return t.Format("2006-01-02T15:04:05"), true
		}
		return "", false
	}
	if t, ok := parseISO8601(raw); ok {
		return t.Format("2006-01-02T15:04:05"), true
	}
	return "", false
}

func validateVectorIndexDensity(header []string, cells [][]cellValue) error {
	idxOf := -1
	viOf := -1
	for i, h := range header {
		if h == "id" {
			idxOf = i
		}
		if h == "vector_index" {
			viOf = i
		}
	}
	if idxOf == -1 || viOf == -1 {
		return nil
	}
	seen := make(map[int64]map[int64]bool)
	for _, row := range cells {
		id := row[idxOf].fkID
		vi, err := strconv.ParseInt(row[viOf].raw, 10, 64)
		if err != nil {
			return fmt.Errorf("csvio: vector_index %q is not an integer", row[viOf].raw)
		}
		if seen[id] == nil {
			seen[id] = make(map[int64]bool)
		}
		seen[id][vi] = true
	}
	for id, indexes := range seen {
		for i := int64(1); i <= int64(len(indexes)); i++ {
			if !indexes[i] {
				return fmt.Errorf("csvio: vector_index for id %d is not dense starting at 1 (missing %d)", id, i)
			}
		}
	}
	return nil
}

// mutate performs the actual wipe-and-reload: delete target's current
// rows, insert the validated rows, and for scalar imports, resolve
// self-referencing FK columns in a second sub-pass once new ids exist.
// Foreign key enforcement is disabled for the duration (PRAGMA changes
// inside a transaction are a no-op in SQLite, so it is toggled outside the
// transaction that does the writing).
func (im *Importer) mutate(ctx context.Context, collection string, target *schema.Table, kind schema.Kind, header []string, cells [][]cellValue) error {
	db := im.conn.DB()
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("csvio: disable foreign keys: %w", err)
	}
	defer db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)

	guard, err := txn.Begin(ctx, im.conn)
	if err != nil {
		return err
	}
	defer guard.Rollback()

	if _, err := guard.Tx().ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, target.Name)); err != nil {
		return friendlyImportError(err)
	}

	var selfFKColumn string
	insertCols := make([]string, 0, len(header))
	for _, h := range header {
		if kind == schema.KindCollection {
			if col := target.GetColumn(h); col != nil {
				if fk := target.ForeignKeyFor(h); fk != nil && fk.ToTable == target.Name {
					selfFKColumn = h
					continue
				}
			}
		}
		insertCols = append(insertCols, h)
	}

	quoted := make([]string, len(insertCols))
	placeholders := make([]string, len(insertCols))
	for i, c := range insertCols {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = "?"
	}
	insertStmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, target.Name, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	labelToID := make(map[string]int64, len(cells))
	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[h] = i
	}

	type pendingSelf struct {
		newID    int64
		toLabel  string
	}
	var pending []pendingSelf

	for _, row := range cells {
		args := make([]any, len(insertCols))
		for i, c := range insertCols {
			cell := row[colIndex[c]]
			args[i] = cellArg(cell)
		}
		res, err := guard.Tx().ExecContext(ctx, insertStmt, args...)
		if err != nil {
			return friendlyImportError(err)
		}
		if kind == schema.KindCollection {
			newID, _ := res.LastInsertId()
			if li, ok := colIndex["label"]; ok {
				labelToID[row[li].raw] = newID
			}
			if selfFKColumn != "" {
				fkCell := row[colIndex[selfFKColumn]]
				if !fkCell.empty {
					pending = append(pending, pendingSelf{newID: newID, toLabel: fkCell.raw})
				}
			}
		}
	}

	if selfFKColumn != "" {
		for _, p := range pending {
			id, ok := labelToID[p.toLabel]
			if !ok {
				return fmt.Errorf("csvio: unknown self-referencing label %q for column %q", p.toLabel, selfFKColumn)
			}
			stmt := fmt.Sprintf(`UPDATE %q SET %q = ? WHERE id = ?`, target.Name, selfFKColumn)
			if _, err := guard.Tx().ExecContext(ctx, stmt, id, p.newID); err != nil {
				return friendlyImportError(err)
			}
		}
	}

	return guard.Commit()
}

func cellArg(c cellValue) any {
	if c.empty {
		return nil
	}
	if c.fk {
		return c.fkID
	}
	if c.self {
		return nil
	}
	return c.v.AsAny()
}

func friendlyImportError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return errors.New("There are duplicate entries in the CSV file.")
	}
	return fmt.Errorf("csvio: %w", err)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
