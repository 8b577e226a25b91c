package schema

import (
	"fmt"
	"strings"

	"attrdb/value"
)

// ValidationError reports a schema that violates one of attrdb's structural
// conventions for collections, attribute groups, or foreign keys.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema validation error in table %q column %q: %s", e.Table, e.Column, e.Message)
	}
	if e.Table != "" {
		return fmt.Sprintf("schema validation error in table %q: %s", e.Table, e.Message)
	}
	return fmt.Sprintf("schema validation error: %s", e.Message)
}

// Validate checks that a loaded Schema conforms to attrdb's conventions:
// a Configuration table exists, every collection carries a unique labeled
// primary key, vector and time-series-files tables are correctly shaped and
// name an existing parent collection, set tables have a UNIQUE constraint
// covering all their value columns (their parent is not checked, and
// time-series tables get no structural check), no attribute name is declared twice across a
// collection's scalar columns and group tables, and foreign keys use the
// delete/update actions and naming pattern attrdb relies on.
func (s *Schema) Validate() error {
	if err := s.validateConfigurationExists(); err != nil {
		return err
	}
	if err := s.validateCollectionNames(); err != nil {
		return err
	}

	for _, name := range s.order {
		t := s.tables[name]
		var err error
		switch t.Kind {
		case KindCollection:
			err = s.validateCollection(t)
		case KindVector:
			err = s.validateVectorTable(t)
		case KindSet:
			err = s.validateSetTable(t)
		case KindTimeSeriesFiles:
			err = s.validateTimeSeriesFilesTable(t)
		}
		if err != nil {
			return err
		}
	}

	if err := s.validateNoDuplicateAttributes(); err != nil {
		return err
	}
	return s.validateForeignKeys()
}

func (s *Schema) validateConfigurationExists() error {
	if !s.HasTable("Configuration") {
		return &ValidationError{Message: "schema must have a Configuration table"}
	}
	return nil
}

func (s *Schema) validateCollectionNames() error {
	for _, name := range s.order {
		t := s.tables[name]
		if t.Kind != KindCollection && t.Kind != KindUnknown {
			continue
		}
		if t.Kind == KindUnknown {
			return &ValidationError{Table: name, Message: "table name does not match any recognized convention"}
		}
		if strings.Contains(name, "_") && name != "Configuration" {
			return &ValidationError{Table: name, Message: "collection names cannot contain underscores"}
		}
	}
	return nil
}

func (s *Schema) validateCollection(t *Table) error {
	id := t.GetColumn("id")
	if id == nil || !id.PrimaryKey {
		return &ValidationError{Table: t.Name, Message: "collection must have 'id' as primary key"}
	}

	label := t.GetColumn("label")
	if label == nil {
		return &ValidationError{Table: t.Name, Message: "collection must have a 'label' column"}
	}
	if label.Type != value.Text {
		return &ValidationError{Table: t.Name, Column: "label", Message: "label column must be TEXT type"}
	}
	if !label.NotNull {
		return &ValidationError{Table: t.Name, Column: "label", Message: "label column must have a NOT NULL constraint"}
	}

	labelUnique := false
	for _, idx := range t.Indexes {
		if idx.Unique && len(idx.Columns) == 1 && idx.Columns[0] == "label" {
			labelUnique = true
			break
		}
	}
	if !labelUnique {
		return &ValidationError{Table: t.Name, Column: "label", Message: "label column must have a UNIQUE constraint"}
	}
	return nil
}

func (s *Schema) validateVectorTable(t *Table) error {
	parent := ParentCollection(t.Name)
	if !s.HasTable(parent) || s.tables[parent].Kind != KindCollection {
		return &ValidationError{Table: t.Name, Message: fmt.Sprintf("references non-existent collection %q", parent)}
	}

	idCol := t.GetColumn("id")
	if idCol == nil {
		return &ValidationError{Table: t.Name, Message: "vector table must have an 'id' column"}
	}
	if idCol.PrimaryKey {
		pkCount := 0
		for _, c := range t.Columns {
			if c.PrimaryKey {
				pkCount++
			}
		}
		if pkCount == 1 {
			return &ValidationError{Table: t.Name, Message: "vector table must have composite primary key (id, vector_index), not just 'id'"}
		}
	}

	if !t.HasColumn("vector_index") {
		return &ValidationError{Table: t.Name, Message: "vector table must have a 'vector_index' column"}
	}

	fk := t.ForeignKeyFor("id")
	if fk == nil || fk.ToTable != parent {
		return &ValidationError{Table: t.Name, Message: fmt.Sprintf("vector table must have a foreign key to parent collection %q", parent)}
	}
	if fk.OnDelete != "CASCADE" || fk.OnUpdate != "CASCADE" {
		return &ValidationError{Table: t.Name, Message: "foreign key to parent must use ON DELETE CASCADE ON UPDATE CASCADE"}
	}
	return nil
}

func (s *Schema) validateSetTable(t *Table) error {
	fkColumns := make(map[string]bool)
	for _, fk := range t.ForeignKeys {
		fkColumns[fk.FromColumn] = true
	}

	hasUnique := false
	uniqueColumns := make(map[string]bool)
	for _, idx := range t.Indexes {
		if idx.Unique {
			hasUnique = true
			for _, c := range idx.Columns {
				uniqueColumns[c] = true
			}
		}
	}
	if !hasUnique {
		return &ValidationError{Table: t.Name, Message: "set table must have a UNIQUE constraint"}
	}

	for _, c := range t.Columns {
		if c.Name == "id" || fkColumns[c.Name] {
			continue
		}
		if !uniqueColumns[c.Name] {
			return &ValidationError{Table: t.Name, Column: c.Name, Message: "set table column must be part of a UNIQUE constraint"}
		}
	}
	return nil
}

func (s *Schema) validateTimeSeriesFilesTable(t *Table) error {
	parent := strings.TrimSuffix(t.Name, "_time_series_files")
	if !s.HasTable(parent) || s.tables[parent].Kind != KindCollection {
		return &ValidationError{Table: t.Name, Message: fmt.Sprintf("references non-existent collection %q", parent)}
	}
	for _, c := range t.Columns {
		if c.Name == "id" {
			continue
		}
		if c.Type != value.Text {
			return &ValidationError{Table: t.Name, Column: c.Name, Message: "time series files table column must be TEXT type (for file paths)"}
		}
	}
	return nil
}

func (s *Schema) validateNoDuplicateAttributes() error {
	for _, collection := range s.CollectionNames() {
		if collection == "Configuration" {
			continue
		}
		colTable := s.tables[collection]

		attributes := make(map[string]bool)
		for _, c := range colTable.Columns {
			if c.Name != "id" && c.Name != "label" {
				attributes[c.Name] = true
			}
		}

		for _, name := range s.order {
			t := s.tables[name]
			isVector, isSet, isTS := t.Kind == KindVector, t.Kind == KindSet, t.Kind == KindTimeSeries
			if !isVector && !isSet && !isTS {
				continue
			}
			if ParentCollection(name) != collection {
				continue
			}

			fkCols := make(map[string]bool)
			for _, fk := range t.ForeignKeys {
				fkCols[fk.FromColumn] = true
			}

			for _, c := range t.Columns {
				if c.Name == "id" || fkCols[c.Name] {
					continue
				}
				if isVector && c.Name == "vector_index" {
					continue
				}
				if isTS && strings.HasPrefix(c.Name, "date_") {
					continue
				}
				if attributes[c.Name] {
					return &ValidationError{Table: name, Column: c.Name, Message: fmt.Sprintf("duplicate attribute (already defined in collection %q)", collection)}
				}
				attributes[c.Name] = true
			}
		}
	}
	return nil
}

func (s *Schema) validateForeignKeys() error {
	for _, name := range s.order {
		t := s.tables[name]
		for _, fk := range t.ForeignKeys {
			col := t.GetColumn(fk.FromColumn)
			if col == nil {
				continue
			}

			if fk.OnDelete == "SET NULL" && col.NotNull {
				return &ValidationError{Table: name, Column: fk.FromColumn, Message: "foreign key has ON DELETE SET NULL but a NOT NULL constraint"}
			}

			switch {
			case t.Kind == KindVector && fk.FromColumn == "id":
				if fk.OnDelete != "CASCADE" || fk.OnUpdate != "CASCADE" {
					return &ValidationError{Table: name, Column: fk.FromColumn, Message: "vector table parent FK must use ON DELETE CASCADE ON UPDATE CASCADE"}
				}
			default:
				if fk.OnUpdate != "CASCADE" {
					return &ValidationError{Table: name, Column: fk.FromColumn, Message: "foreign key must use ON UPDATE CASCADE"}
				}
				if fk.OnDelete != "SET NULL" && fk.OnDelete != "CASCADE" {
					return &ValidationError{Table: name, Column: fk.FromColumn, Message: "foreign key must use ON DELETE SET NULL or ON DELETE CASCADE"}
				}
			}

			if t.Kind == KindVector && fk.FromColumn == "id" {
				continue
			}
			if t.Kind == KindSet || t.Kind == KindTimeSeries {
				continue
			}
			if !validForeignKeyColumnName(fk.FromColumn, fk.ToTable) {
				return &ValidationError{Table: name, Column: fk.FromColumn, Message: "foreign key column should follow naming pattern '<collection>_id'"}
			}
		}
	}
	return nil
}

func validForeignKeyColumnName(column, target string) bool {
	col := strings.ToLower(column)
	tgt := strings.ToLower(target)
	return col == tgt+"_id" || strings.HasPrefix(col, tgt+"_") || strings.Contains(col, "_id")
}
