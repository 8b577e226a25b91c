package csvio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attrdb/value"
)

func TestParseISO8601AcceptsBothLayouts(t *testing.T) {
	_, ok := parseISO8601("2024-01-02T03:04:05")
	assert.True(t, ok)
	_, ok = parseISO8601("2024-01-02 03:04:05")
	assert.True(t, ok)
	_, ok = parseISO8601("not-a-date")
	assert.False(t, ok)
}

func TestStrftimeToGoLayoutConvertsDirectives(t *testing.T) {
	assert.Equal(t, "2006-01-02", strftimeToGoLayout("%Y-%m-%d"))
	assert.Equal(t, "2006-01-02 15:04:05", strftimeToGoLayout("%Y-%m-%d %H:%M:%S"))
	assert.Equal(t, "100%", strftimeToGoLayout("100%%"))
}

func TestParseStrftimeRoundTrips(t *testing.T) {
	tm, ok := parseStrftime("2024-03-04", "%Y-%m-%d")
	require.True(t, ok)
	assert.Equal(t, 2024, tm.Year())
	assert.Equal(t, 3, int(tm.Month()))
	assert.Equal(t, 4, tm.Day())
}

func TestParseStrftimeRejectsMismatch(t *testing.T) {
	_, ok := parseStrftime("not-a-date", "%Y-%m-%d")
	assert.False(t, ok)
}

func TestRenderFieldNullIsEmpty(t *testing.T) {
	got, err := renderField("x", value.Value{Null: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestRenderFieldIntegerUsesEnumLabel(t *testing.T) {
	opts := &Options{EnumLabels: map[string]map[string]map[string]int64{
		"status": {"en": {"active": 1}},
	}}
	got, err := renderField("status", value.NewInt(1), opts)
	require.NoError(t, err)
	assert.Equal(t, "active", got)
}

func TestRenderFieldIntegerWithoutEnumMapIsBase10(t *testing.T) {
	got, err := renderField("count", value.NewInt(2), nil)
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestRenderFieldIntegerEnumColumnRejectsUnlabeledValue(t *testing.T) {
	opts := &Options{EnumLabels: map[string]map[string]map[string]int64{
		"status": {"en": {"active": 1}},
	}}
	_, err := renderField("status", value.NewInt(2), opts)
	require.Error(t, err)
}

func TestRenderFieldRealCompactDecimal(t *testing.T) {
	got, err := renderField("x", value.NewReal(1.5), nil)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got)
}

func TestRenderFieldDateTimeUsesStrftimeFormat(t *testing.T) {
	opts := &Options{DateTimeFormat: "%Y-%m-%d"}
	got, err := renderField("x", value.NewDateTime("2024-01-02T03:04:05"), opts)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", got)
}

func TestRenderFieldDateTimeWithoutFormatIsRaw(t *testing.T) {
	got, err := renderField("x", value.NewDateTime("2024-01-02T03:04:05"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05", got)
}

func TestQuoteCSVFieldQuotesWhenNeeded(t *testing.T) {
	assert.Equal(t, "plain", quoteCSVField("plain"))
	assert.Equal(t, `"a,b"`, quoteCSVField("a,b"))
	assert.Equal(t, `"a""b"`, quoteCSVField(`a"b`))
	assert.Equal(t, "\"a\nb\"", quoteCSVField("a\nb"))
}

func TestSplitCSVLineSepHandlesQuotesAndCommas(t *testing.T) {
	fields := splitCSVLineSep(`a,"b,c","d""e",f`, ',')
	assert.Equal(t, []string{"a", "b,c", `d"e`, "f"}, fields)
}

func TestDetectSeparatorExplicitSepLine(t *testing.T) {
	sep, strip := detectSeparator("sep=;", "sep=;\na;b\n")
	assert.Equal(t, byte(';'), sep)
	assert.True(t, strip)
}

func TestDetectSeparatorSemicolonHeuristic(t *testing.T) {
	sep, strip := detectSeparator("a;b;c", "a;b;c\n1;2;3\n")
	assert.Equal(t, byte(';'), sep)
	assert.False(t, strip)
}

func TestDetectSeparatorDefaultsToComma(t *testing.T) {
	sep, strip := detectSeparator("a,b,c", "a,b,c\n1,2,3\n")
	assert.Equal(t, byte(','), sep)
	assert.False(t, strip)
}

func TestNormalizeToCommaRewritesSemicolons(t *testing.T) {
	out := normalizeToComma("a;b\n1;2", ';')
	assert.Equal(t, "a,b\n1,2", out)
}

func TestNormalizeToCommaNoOpForComma(t *testing.T) {
	out := normalizeToComma("a,b\n1,2", ',')
	assert.Equal(t, "a,b\n1,2", out)
}

func TestStripTrailingCommaColumnTrimsEmptyHeaders(t *testing.T) {
	header := []string{"id", "label", ""}
	rows := [][]string{{"1", "alice", ""}, {"2", "bob", ""}}
	h, r := stripTrailingCommaColumn(header, rows)
	assert.Equal(t, []string{"id", "label"}, h)
	assert.Equal(t, []string{"1", "alice"}, r[0])
}

func TestStripTrailingCommaColumnNoOpWhenNoneEmpty(t *testing.T) {
	header := []string{"id", "label"}
	rows := [][]string{{"1", "alice"}}
	h, r := stripTrailingCommaColumn(header, rows)
	assert.Equal(t, header, h)
	assert.Equal(t, rows, r)
}
