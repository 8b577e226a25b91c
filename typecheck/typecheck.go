// Package typecheck validates attribute values against the declared type of
// the schema column they are destined for, the same dispatch-on-DataType
// shape as attrdb's schema validator but applied to values instead of table
// structure.
package typecheck

import (
	"fmt"
	"time"

	"attrdb/schema"
	"attrdb/value"
)

// TypeError reports a value that does not match the declared type of the
// column it was being written to or compared against.
type TypeError struct {
	Table   string
	Column  string
	Want    value.DataType
	Got     value.DataType
	Message string
}

func (e *TypeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("type error in %s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("type error in %s.%s: expected %s, got %s", e.Table, e.Column, e.Want, e.Got)
}

// dateTimeLayouts are the two ISO-8601 forms attrdb's DateTime columns
// accept, matching how the original engine formats its timestamps with and
// without a 'T' separator.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Validator checks scalar and array values against a Schema's declared
// column types. It holds no state of its own beyond the Schema it was built
// from, mirroring attrdb's TypeValidator being a thin, stateless companion
// to the Schema it type-checks against.
type Validator struct {
	schema *schema.Schema
}

// New returns a Validator bound to the given Schema.
func New(s *schema.Schema) *Validator {
	return &Validator{schema: s}
}

// ValidateScalar resolves column's declared type from table and checks that
// v matches it: Integer columns accept only Integer or Null, Real accepts
// Real or Null, Text and DateTime accept Text or Null, and a DateTime value
// must additionally parse as ISO-8601.
func (tv *Validator) ValidateScalar(table, column string, v value.Value) error {
	t := tv.schema.GetTable(table)
	if t == nil {
		return &TypeError{Table: table, Column: column, Message: "table not found in schema"}
	}
	col := t.GetColumn(column)
	if col == nil {
		return &TypeError{Table: table, Column: column, Message: "column not found in schema"}
	}
	return tv.validateAgainst(table, column, col.Type, v)
}

func (tv *Validator) validateAgainst(table, column string, want value.DataType, v value.Value) error {
	if v.Null {
		return nil
	}
	switch want {
	case value.Integer:
		if v.Type != value.Integer {
			return &TypeError{Table: table, Column: column, Want: want, Got: v.Type}
		}
	case value.Real:
		if v.Type != value.Real {
			return &TypeError{Table: table, Column: column, Want: want, Got: v.Type}
		}
	case value.Text:
		if v.Type != value.Text && v.Type != value.DateTime {
			return &TypeError{Table: table, Column: column, Want: want, Got: v.Type}
		}
	case value.DateTime:
		if v.Type != value.Text && v.Type != value.DateTime {
			return &TypeError{Table: table, Column: column, Want: want, Got: v.Type}
		}
		if !isISO8601(v.String()) {
			return &TypeError{Table: table, Column: column, Message: fmt.Sprintf("value %q is not a valid ISO-8601 timestamp", v.String())}
		}
	default:
		return &TypeError{Table: table, Column: column, Message: "column has no recognized declared type"}
	}
	return nil
}

// ValidateArray validates every element of values against the declared
// type of column, stopping at the first mismatch.
func (tv *Validator) ValidateArray(table, column string, values []value.Value) error {
	t := tv.schema.GetTable(table)
	if t == nil {
		return &TypeError{Table: table, Column: column, Message: "table not found in schema"}
	}
	col := t.GetColumn(column)
	if col == nil {
		return &TypeError{Table: table, Column: column, Message: "column not found in schema"}
	}
	for i, v := range values {
		if err := tv.validateAgainst(table, column, col.Type, v); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func isISO8601(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
