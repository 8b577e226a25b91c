// Package schema holds attrdb's in-memory model of a SQLite database: the
// set of tables it contains, how those tables classify into collections,
// vector/set/time-series attribute groups, and the metadata needed to read
// and write them. It is loaded by introspecting the live database with
// PRAGMA statements, mirroring the catalog-query style the rest of the
// ecosystem uses for information_schema-backed introspection.
package schema

import (
	"fmt"
	"strings"

	"attrdb/value"
)

// Kind classifies a table by attrdb's naming convention.
type Kind int

const (
	KindUnknown Kind = iota
	KindCollection
	KindVector
	KindSet
	KindTimeSeries
	KindTimeSeriesFiles
)

func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindVector:
		return "vector"
	case KindSet:
		return "set"
	case KindTimeSeries:
		return "time_series"
	case KindTimeSeriesFiles:
		return "time_series_files"
	default:
		return "unknown"
	}
}

// Column describes one column of a table as reported by PRAGMA table_info.
type Column struct {
	Name         string
	Type         value.DataType
	NotNull      bool
	PrimaryKey   bool
	DefaultValue string
	HasDefault   bool
}

// ForeignKey describes a single PRAGMA foreign_key_list row.
type ForeignKey struct {
	FromColumn string
	ToTable    string
	ToColumn   string
	OnUpdate   string
	OnDelete   string
}

// Index describes a PRAGMA index_list / index_info pair.
type Index struct {
	Name    string
	Unique  bool
	Columns []string
}

// Table is attrdb's metadata for a single SQLite table.
type Table struct {
	Name        string
	Kind        Kind
	Columns     []*Column
	ForeignKeys []*ForeignKey
	Indexes     []*Index
}

// HasColumn reports whether the table declares a column with the given name.
func (t *Table) HasColumn(name string) bool {
	return t.GetColumn(name) != nil
}

// GetColumn returns the named column, or nil if absent.
func (t *Table) GetColumn(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ForeignKeyFor returns the foreign key declared on the given column, or nil.
func (t *Table) ForeignKeyFor(column string) *ForeignKey {
	for _, fk := range t.ForeignKeys {
		if fk.FromColumn == column {
			return fk
		}
	}
	return nil
}

// Schema is the full set of tables attrdb knows about, keyed by name.
type Schema struct {
	tables map[string]*Table
	order  []string
}

// New returns an empty Schema, used by Load as the starting point of
// introspection and by tests.
func New() *Schema {
	return &Schema{tables: make(map[string]*Table)}
}

func (s *Schema) addTable(t *Table) {
	if _, exists := s.tables[t.Name]; !exists {
		s.order = append(s.order, t.Name)
	}
	s.tables[t.Name] = t
}

// GetTable returns the named table, or nil if the schema has no such table.
func (s *Schema) GetTable(name string) *Table {
	return s.tables[name]
}

// HasTable reports whether the schema contains a table with the given name.
func (s *Schema) HasTable(name string) bool {
	_, ok := s.tables[name]
	return ok
}

// TableNames returns every table name, in load order.
func (s *Schema) TableNames() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// CollectionNames returns the names of every collection table.
func (s *Schema) CollectionNames() []string {
	var out []string
	for _, name := range s.order {
		if s.tables[name].Kind == KindCollection {
			out = append(out, name)
		}
	}
	return out
}

// VectorTableName builds the conventional name of a vector attribute group
// table for the given collection and group.
func VectorTableName(collection, group string) string {
	return collection + "_vector_" + group
}

// SetTableName builds the conventional name of a set attribute group table.
func SetTableName(collection, group string) string {
	return collection + "_set_" + group
}

// TimeSeriesTableName builds the conventional name of a time-series group
// table.
func TimeSeriesTableName(collection, group string) string {
	return collection + "_time_series_" + group
}

// TimeSeriesFilesTableName builds the conventional name of a collection's
// singleton time-series-files table.
func TimeSeriesFilesTableName(collection string) string {
	return collection + "_time_series_files"
}

// classify determines a table's Kind purely from its name, matching
// attrdb's lexical convention: no underscore (or the reserved
// "Configuration" table) is a collection, "_vector_" / "_set_" /
// "_time_series_" substrings mark attribute-group tables, and a
// "_time_series_files" suffix marks the singleton file-path table.
func classify(name string) Kind {
	switch {
	case name == "Configuration":
		return KindCollection
	case strings.HasSuffix(name, "_time_series_files"):
		return KindTimeSeriesFiles
	case strings.Contains(name, "_time_series_"):
		return KindTimeSeries
	case strings.Contains(name, "_vector_"):
		return KindVector
	case strings.Contains(name, "_set_"):
		return KindSet
	case !strings.Contains(name, "_"):
		return KindCollection
	default:
		return KindUnknown
	}
}

// ParentCollection returns the collection name embedded in a group table's
// name: the prefix up to (not including) the first underscore.
func ParentCollection(table string) string {
	if i := strings.Index(table, "_"); i >= 0 {
		return table[:i]
	}
	return ""
}

// FindVectorTable resolves the vector table backing an attribute of a
// collection, trying the conventional name first and falling back to a scan
// over every vector table belonging to the collection that declares the
// attribute as a column. This mirrors the two-step lookup attrdb uses so
// that more than one vector attribute can share a backing table.
func (s *Schema) FindVectorTable(collection, attribute string) (*Table, error) {
	if t := s.tables[VectorTableName(collection, attribute)]; t != nil {
		return t, nil
	}
	for _, name := range s.order {
		t := s.tables[name]
		if t.Kind != KindVector || ParentCollection(name) != collection {
			continue
		}
		if t.HasColumn(attribute) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("schema: vector attribute %q not found for collection %q", attribute, collection)
}

// FindSetTable resolves the set table backing an attribute, with the same
// convention-first, scan-fallback strategy as FindVectorTable.
func (s *Schema) FindSetTable(collection, attribute string) (*Table, error) {
	if t := s.tables[SetTableName(collection, attribute)]; t != nil {
		return t, nil
	}
	for _, name := range s.order {
		t := s.tables[name]
		if t.Kind != KindSet || ParentCollection(name) != collection {
			continue
		}
		if t.HasColumn(attribute) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("schema: set attribute %q not found for collection %q", attribute, collection)
}

// FindTimeSeriesTable resolves the time-series table backing an attribute of
// a collection, with the same convention-first, scan-fallback strategy as
// FindVectorTable.
func (s *Schema) FindTimeSeriesTable(collection, attribute string) (*Table, error) {
	if t := s.tables[TimeSeriesTableName(collection, attribute)]; t != nil {
		return t, nil
	}
	for _, name := range s.order {
		t := s.tables[name]
		if t.Kind != KindTimeSeries || ParentCollection(name) != collection {
			continue
		}
		if t.HasColumn(attribute) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("schema: time series attribute %q not found for collection %q", attribute, collection)
}

// FindTimeSeriesFilesTable resolves the singleton time-series-files table
// for a collection, by the single conventional name attrdb uses for it.
func (s *Schema) FindTimeSeriesFilesTable(collection string) (*Table, error) {
	if t := s.tables[TimeSeriesFilesTableName(collection)]; t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("schema: collection %q has no time series files table", collection)
}

// Describe renders a one-line-per-table inventory of the schema's
// collections and the attribute groups attached to each, in load order.
// It is a diagnostic helper, not part of the CRUD or CSV surface.
func (s *Schema) Describe() []string {
	var lines []string
	for _, collection := range s.CollectionNames() {
		t := s.tables[collection]
		var attrs []string
		for _, c := range t.Columns {
			if c.Name != "id" && c.Name != "label" {
				attrs = append(attrs, c.Name)
			}
		}
		lines = append(lines, fmt.Sprintf("%s: scalars=%s", collection, strings.Join(attrs, ",")))

		for _, name := range s.order {
			group := s.tables[name]
			if ParentCollection(name) != collection {
				continue
			}
			switch group.Kind {
			case KindVector, KindSet, KindTimeSeries:
				lines = append(lines, fmt.Sprintf("  %s (%s)", name, group.Kind))
			case KindTimeSeriesFiles:
				lines = append(lines, fmt.Sprintf("  %s (time_series_files)", name))
			}
		}
	}
	return lines
}

// TimeSeriesGroups returns the group name suffix of every time-series table
// belonging to the given collection (the portion of the table name after
// "<collection>_time_series_").
func (s *Schema) TimeSeriesGroups(collection string) []string {
	prefix := collection + "_time_series_"
	var groups []string
	for _, name := range s.order {
		if s.tables[name].Kind != KindTimeSeries {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			groups = append(groups, strings.TrimPrefix(name, prefix))
		}
	}
	return groups
}

// DimensionColumn returns the column that indexes a time-series table: the
// first non-id column that is DateTime-typed, or failing that the first
// column whose name follows the "date_*" convention.
func (t *Table) DimensionColumn() *Column {
	for _, c := range t.Columns {
		if c.Name == "id" {
			continue
		}
		if c.Type == value.DateTime {
			return c
		}
	}
	for _, c := range t.Columns {
		if c.Name != "id" && value.IsDateTimeColumn(c.Name) {
			return c
		}
	}
	return nil
}
