// Package csvio implements attrdb's CSV interchange: schema-aware export
// and a two-phase validate-then-mutate import, both driven by the same
// CSVOptions (datetime formatting and enum label maps) a caller can load
// from a TOML document, matching the rest of the ecosystem's preference
// for TOML-shaped configuration.
package csvio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Options controls how csvio renders and parses column values that need
// more than their raw textual form: DateTimeFormat is a strftime pattern
// applied to every DateTime column (empty means canonical ISO-8601), and
// EnumLabels maps an attribute to a locale to a label to the integer it
// stands for.
type Options struct {
	DateTimeFormat string                                 `toml:"date_time_format"`
	EnumLabels     map[string]map[string]map[string]int64 `toml:"enum_labels"`
}

// LoadOptionsFile reads a TOML file into Options.
func LoadOptionsFile(path string) (*Options, error) {
	var opts Options
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return nil, fmt.Errorf("csvio: load options file %q: %w", path, err)
	}
	return &opts, nil
}

// hasEnum reports whether attribute has any configured locale, meaning its
// Integer values must all resolve to a label on export (strict enum).
func (o *Options) hasEnum(attribute string) bool {
	locales, ok := o.EnumLabels[attribute]
	return ok && len(locales) > 0
}

// firstLocale returns the alphabetically-first locale name configured for
// attribute, and its label→integer map. Go maps have no iteration order of
// their own, so "first locale" is defined lexically for determinism.
func (o *Options) firstLocale(attribute string) (map[string]int64, bool) {
	locales, ok := o.EnumLabels[attribute]
	if !ok || len(locales) == 0 {
		return nil, false
	}
	names := make([]string, 0, len(locales))
	for name := range locales {
		names = append(names, name)
	}
	sort.Strings(names)
	return locales[names[0]], true
}

// enumLabel reverse-looks-up an integer back to its label under attribute's
// first locale, for CSV export.
func (o *Options) enumLabel(attribute string, n int64) (string, bool) {
	labels, ok := o.firstLocale(attribute)
	if !ok {
		return "", false
	}
	for label, v := range labels {
		if v == n {
			return label, true
		}
	}
	return "", false
}

// enumValue resolves a label back to its integer for attribute, searching
// every configured locale case-insensitively, for CSV import.
func (o *Options) enumValue(attribute, label string) (int64, bool) {
	locales, ok := o.EnumLabels[attribute]
	if !ok {
		return 0, false
	}
	for _, labels := range locales {
		for l, v := range labels {
			if strings.EqualFold(l, label) {
				return v, true
			}
		}
	}
	return 0, false
}
