// Package value implements the tagged-union scalar type that flows through
// every read and write path in attrdb: attributes, vector and set elements,
// time-series samples and query results are all expressed as Value.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType identifies the declared type of an attribute column.
type DataType int

const (
	Unknown DataType = iota
	Integer
	Real
	Text
	DateTime
)

func (t DataType) String() string {
	switch t {
	case Integer:
		return "Integer"
	case Real:
		return "Real"
	case Text:
		return "Text"
	case DateTime:
		return "DateTime"
	default:
		return "Unknown"
	}
}

// DataTypeFromString parses the raw type keyword attrdb uses in its own
// schema metadata (not the SQLite storage class). It accepts the four
// declared kinds and is case-insensitive.
func DataTypeFromString(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int":
		return Integer, nil
	case "real", "float", "double":
		return Real, nil
	case "text", "string", "varchar":
		return Text, nil
	case "datetime", "date_time", "timestamp":
		return DateTime, nil
	default:
		return Unknown, fmt.Errorf("value: unrecognized data type %q", s)
	}
}

// IsDateTimeColumn reports whether a column name follows the "date_*"
// convention attrdb uses to flag DateTime-typed dimension columns in
// time-series groups.
func IsDateTimeColumn(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "date_")
}

// Value is a nullable scalar carried between the attribute store and its
// callers. Exactly one of the typed fields is meaningful when Null is false;
// which one is determined by Type.
type Value struct {
	Type  DataType
	Null  bool
	Int   int64
	Real  float64
	Text  string
}

// NullValue returns a null Value of the given declared type.
func NullValue(t DataType) Value {
	return Value{Type: t, Null: true}
}

func NewInt(v int64) Value    { return Value{Type: Integer, Int: v} }
func NewReal(v float64) Value { return Value{Type: Real, Real: v} }
func NewText(v string) Value  { return Value{Type: Text, Text: v} }

// NewDateTime stores a DateTime value as formatted text; attrdb does not
// keep a distinct in-memory time representation, matching how the
// underlying SQLite column stores it.
func NewDateTime(v string) Value { return Value{Type: DateTime, Text: v} }

// AsAny returns the Value unwrapped to the Go type matching Type, or nil if
// Null. It is the shape handed to database/sql as an exec/query argument.
func (v Value) AsAny() any {
	if v.Null {
		return nil
	}
	switch v.Type {
	case Integer:
		return v.Int
	case Real:
		return v.Real
	case Text, DateTime:
		return v.Text
	default:
		return nil
	}
}

// String renders the Value the way attrdb's CSV exporter does: empty for
// null, the raw integer/float text otherwise, and the text payload for
// Text/DateTime unchanged.
func (v Value) String() string {
	if v.Null {
		return ""
	}
	switch v.Type {
	case Integer:
		return strconv.FormatInt(v.Int, 10)
	case Real:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case Text, DateTime:
		return v.Text
	default:
		return ""
	}
}

// FromScan builds a Value of the given declared type from a value produced
// by database/sql scanning into `any` (via sql.Rows.Scan(&dest) with dest of
// type any), which modernc.org/sqlite yields as int64, float64, string, []byte
// or nil.
func FromScan(t DataType, raw any) (Value, error) {
	if raw == nil {
		return NullValue(t), nil
	}
	switch t {
	case Integer:
		switch x := raw.(type) {
		case int64:
			return NewInt(x), nil
		case float64:
			return NewInt(int64(x)), nil
		default:
			return Value{}, fmt.Errorf("value: cannot scan %T as Integer", raw)
		}
	case Real:
		switch x := raw.(type) {
		case float64:
			return NewReal(x), nil
		case int64:
			return NewReal(float64(x)), nil
		default:
			return Value{}, fmt.Errorf("value: cannot scan %T as Real", raw)
		}
	case Text, DateTime:
		switch x := raw.(type) {
		case string:
			return Value{Type: t, Text: x}, nil
		case []byte:
			return Value{Type: t, Text: string(x)}, nil
		default:
			return Value{}, fmt.Errorf("value: cannot scan %T as Text", raw)
		}
	default:
		return Value{}, fmt.Errorf("value: cannot scan into Unknown data type")
	}
}
