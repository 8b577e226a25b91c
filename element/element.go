// Package element defines the in-memory payload attrdb's writer and reader
// exchange with callers: a bag of scalar attributes plus named arrays for
// vector, set and time-series attribute groups, mirroring the fluent builder shape the
// original engine's Element type exposes.
package element

import (
	"fmt"
	"sort"
	"strings"

	"attrdb/value"
)

// Element holds the scalar and array attributes of one record in a
// collection. Scalars map to ordinary columns; Arrays map to vector, set or
// time-series attribute groups, keyed by group/attribute name.
type Element struct {
	scalars map[string]value.Value
	arrays  map[string][]value.Value
}

// New returns an empty Element.
func New() *Element {
	return &Element{
		scalars: make(map[string]value.Value),
		arrays:  make(map[string][]value.Value),
	}
}

// Set stores a scalar attribute, overwriting any previous value, and
// returns the Element so calls can be chained.
func (e *Element) Set(name string, v value.Value) *Element {
	e.scalars[name] = v
	return e
}

// SetInt is a convenience wrapper around Set for Integer attributes.
func (e *Element) SetInt(name string, v int64) *Element { return e.Set(name, value.NewInt(v)) }

// SetReal is a convenience wrapper around Set for Real attributes.
func (e *Element) SetReal(name string, v float64) *Element { return e.Set(name, value.NewReal(v)) }

// SetText is a convenience wrapper around Set for Text attributes.
func (e *Element) SetText(name string, v string) *Element { return e.Set(name, value.NewText(v)) }

// SetNull stores an explicit null of the given declared type.
func (e *Element) SetNull(name string, t value.DataType) *Element {
	e.scalars[name] = value.NullValue(t)
	return e
}

// SetArray stores a vector, set or time-series attribute group's values,
// overwriting any
// previous values for that name.
func (e *Element) SetArray(name string, values []value.Value) *Element {
	e.arrays[name] = values
	return e
}

// Scalar returns a scalar attribute and whether it was set.
func (e *Element) Scalar(name string) (value.Value, bool) {
	v, ok := e.scalars[name]
	return v, ok
}

// Array returns an array attribute and whether it was set.
func (e *Element) Array(name string) ([]value.Value, bool) {
	v, ok := e.arrays[name]
	return v, ok
}

// Scalars returns every scalar attribute name this Element has set.
func (e *Element) Scalars() map[string]value.Value {
	return e.scalars
}

// Arrays returns every array attribute name this Element has set.
func (e *Element) Arrays() map[string][]value.Value {
	return e.arrays
}

// HasScalars reports whether any scalar attribute has been set.
func (e *Element) HasScalars() bool { return len(e.scalars) > 0 }

// HasArrays reports whether any array attribute has been set.
func (e *Element) HasArrays() bool { return len(e.arrays) > 0 }

// Clear removes every scalar and array attribute, leaving an empty Element.
func (e *Element) Clear() {
	e.scalars = make(map[string]value.Value)
	e.arrays = make(map[string][]value.Value)
}

// String renders the Element's attribute names and values for diagnostics,
// in sorted order so output is deterministic.
func (e *Element) String() string {
	var sb strings.Builder
	names := make([]string, 0, len(e.scalars))
	for name := range e.scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s=%s ", name, e.scalars[name].String())
	}

	arrayNames := make([]string, 0, len(e.arrays))
	for name := range e.arrays {
		arrayNames = append(arrayNames, name)
	}
	sort.Strings(arrayNames)
	for _, name := range arrayNames {
		parts := make([]string, len(e.arrays[name]))
		for i, v := range e.arrays[name] {
			parts[i] = v.String()
		}
		fmt.Fprintf(&sb, "%s=[%s] ", name, strings.Join(parts, ","))
	}
	return strings.TrimSpace(sb.String())
}
