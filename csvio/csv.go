package csvio

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"attrdb/value"
)

// dateTimeLayouts mirrors typecheck's accepted ISO-8601 forms.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseISO8601(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// strftimeDirectives maps the strftime tokens attrdb's date_time_format
// option supports to their Go reference-time equivalents; go-strftime only
// formats, so import parses the same pattern back with this converter.
var strftimeDirectives = map[byte]string{
	'Y': "2006", 'y': "06",
	'm': "01", 'd': "02",
	'H': "15", 'I': "03",
	'M': "04", 'S': "05",
	'p': "PM", 'Z': "MST",
}

func strftimeToGoLayout(format string) string {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			if layout, ok := strftimeDirectives[format[i+1]]; ok {
				sb.WriteString(layout)
				i++
				continue
			}
			if format[i+1] == '%' {
				sb.WriteByte('%')
				i++
				continue
			}
		}
		sb.WriteByte(format[i])
	}
	return sb.String()
}

// parseStrftime parses raw under a strftime-style pattern by converting it
// to a Go reference-time layout first.
func parseStrftime(raw, format string) (time.Time, bool) {
	t, err := time.Parse(strftimeToGoLayout(format), raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// renderField renders one cell for CSV export: empty for null, the enum
// label for Integer when the column is enum-mapped (fatal if the value has
// no label — enum columns are strict, unmapped columns render base-10),
// compact decimal for Real, and either the raw text or a strftime-reformatted
// timestamp for Text/DateTime.
func renderField(col string, v value.Value, opts *Options) (string, error) {
	if v.Null {
		return "", nil
	}
	switch v.Type {
	case value.Integer:
		if opts != nil && opts.hasEnum(col) {
			label, ok := opts.enumLabel(col, v.Int)
			if !ok {
				return "", fmt.Errorf("csvio: column %q has no enum label for value %d", col, v.Int)
			}
			return label, nil
		}
		return strconv.FormatInt(v.Int, 10), nil
	case value.Real:
		return strconv.FormatFloat(v.Real, 'g', -1, 64), nil
	case value.DateTime:
		if opts != nil && opts.DateTimeFormat != "" {
			if t, ok := parseISO8601(v.Text); ok {
				return strftime.Format(opts.DateTimeFormat, t), nil
			}
		}
		return v.Text, nil
	default:
		return v.Text, nil
	}
}

// quoteCSVField quotes a field per RFC 4180 when it contains a comma,
// double quote or newline, doubling any inner quotes.
func quoteCSVField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// splitCSVLine splits one comma-delimited CSV line into fields, a minimal
// RFC 4180 reader sufficient for attrdb's own export format (quoted
// fields, doubled inner quotes, embedded commas).
func splitCSVLine(line string) []string {
	return splitCSVLineSep(line, ',')
}

// detectSeparator inspects the first line of a CSV document: a literal
// "sep=<c>" line names the separator explicitly, otherwise a document
// containing a semicolon anywhere and no comma in its first line (quoted or
// not) is assumed semicolon delimited (Excel locale export), and everything
// else is comma delimited.
func detectSeparator(firstLine, wholeDoc string) (sep byte, stripFirstLine bool) {
	trimmed := strings.TrimRight(firstLine, "\r\n")
	if strings.HasPrefix(trimmed, "sep=") && len(trimmed) == 5 {
		return trimmed[4], true
	}
	if strings.Contains(wholeDoc, ";") && !strings.Contains(strings.SplitN(wholeDoc, "\n", 2)[0], ",") {
		return ';', false
	}
	return ',', false
}

// normalizeToComma rewrites every line of doc from sep-delimited to
// comma-delimited, respecting quoted fields, so the rest of csvio only
// ever has to deal with commas.
func normalizeToComma(doc string, sep byte) string {
	if sep == ',' {
		return doc
	}
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		fields := splitCSVLineSep(line, sep)
		for j, f := range fields {
			fields[j] = quoteCSVField(f)
		}
		lines[i] = strings.Join(fields, ",")
	}
	return strings.Join(lines, "\n")
}

func splitCSVLineSep(line string, sep byte) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inQuotes:
			if c == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					cur.WriteRune('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				cur.WriteRune(c)
			}
		case c == '"':
			inQuotes = true
		case byte(c) == sep && c < 128:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

// stripTrailingCommaColumn counts the number of trailing empty header
// fields (the Excel "trailing comma" artifact) and trims that many fields
// from the header and every data row.
func stripTrailingCommaColumn(header []string, rows [][]string) ([]string, [][]string) {
	n := 0
	for i := len(header) - 1; i >= 0 && header[i] == ""; i-- {
		n++
	}
	if n == 0 {
		return header, rows
	}
	header = header[:len(header)-n]
	for i, row := range rows {
		if len(row) >= n {
			rows[i] = row[:len(row)-n]
		}
	}
	return header, rows
}
