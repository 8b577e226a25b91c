package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attrdb/value"
)

func buildTestSchema() *Schema {
	s := New()
	s.addTable(&Table{
		Name: "Configuration",
		Kind: KindCollection,
		Columns: []*Column{
			{Name: "id", PrimaryKey: true},
			{Name: "label", Type: value.Text, NotNull: true},
		},
	})
	s.addTable(&Table{
		Name: "Person",
		Kind: KindCollection,
		Columns: []*Column{
			{Name: "id", PrimaryKey: true},
			{Name: "label", Type: value.Text, NotNull: true},
		},
	})
	s.addTable(&Table{
		Name: "Person_vector_scores",
		Kind: KindVector,
		Columns: []*Column{
			{Name: "id"},
			{Name: "vector_index"},
			{Name: "score"},
		},
	})
	s.addTable(&Table{
		Name: "Person_set_tags",
		Kind: KindSet,
		Columns: []*Column{
			{Name: "id"},
			{Name: "tag"},
		},
	})
	return s
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindCollection, classify("Configuration"))
	assert.Equal(t, KindCollection, classify("Person"))
	assert.Equal(t, KindVector, classify("Person_vector_scores"))
	assert.Equal(t, KindSet, classify("Person_set_tags"))
	assert.Equal(t, KindTimeSeries, classify("Person_time_series_readings"))
	assert.Equal(t, KindTimeSeriesFiles, classify("Person_time_series_files"))
	assert.Equal(t, KindUnknown, classify("Person_weird"))
}

func TestParentCollection(t *testing.T) {
	assert.Equal(t, "Person", ParentCollection("Person_vector_scores"))
	assert.Equal(t, "", ParentCollection("Person"))
}

func TestFindVectorTableConvention(t *testing.T) {
	s := buildTestSchema()
	tbl, err := s.FindVectorTable("Person", "scores")
	require.NoError(t, err)
	assert.Equal(t, "Person_vector_scores", tbl.Name)
}

func TestFindVectorTableScanFallback(t *testing.T) {
	s := New()
	s.addTable(&Table{Name: "Person", Kind: KindCollection})
	s.addTable(&Table{
		Name:    "Person_vector_metrics",
		Kind:    KindVector,
		Columns: []*Column{{Name: "id"}, {Name: "vector_index"}, {Name: "score"}},
	})

	tbl, err := s.FindVectorTable("Person", "score")
	require.NoError(t, err)
	assert.Equal(t, "Person_vector_metrics", tbl.Name)
}

func TestFindVectorTableNotFound(t *testing.T) {
	s := buildTestSchema()
	_, err := s.FindVectorTable("Person", "unknown")
	require.Error(t, err)
}

func TestFindSetTable(t *testing.T) {
	s := buildTestSchema()
	tbl, err := s.FindSetTable("Person", "tag")
	require.NoError(t, err)
	assert.Equal(t, "Person_set_tags", tbl.Name)
}

func TestFindTimeSeriesFilesTableNotFound(t *testing.T) {
	s := buildTestSchema()
	_, err := s.FindTimeSeriesFilesTable("Person")
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	s := buildTestSchema()
	lines := s.Describe()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "Configuration:")
}

func TestDimensionColumn(t *testing.T) {
	tbl := &Table{
		Name: "Person_time_series_readings",
		Columns: []*Column{
			{Name: "id"},
			{Name: "date_time", Type: value.DateTime},
			{Name: "value"},
		},
	}
	dim := tbl.DimensionColumn()
	require.NotNil(t, dim)
	assert.Equal(t, "date_time", dim.Name)
}

func TestTimeSeriesGroups(t *testing.T) {
	s := buildTestSchema()
	s.addTable(&Table{Name: "Person_time_series_readings", Kind: KindTimeSeries})
	groups := s.TimeSeriesGroups("Person")
	assert.Equal(t, []string{"readings"}, groups)
}
