package csvio

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"attrdb/read"
	"attrdb/schema"
	"attrdb/txn"
)

const exportTestDDL = `
CREATE TABLE Configuration (id INTEGER PRIMARY KEY, label TEXT NOT NULL UNIQUE);

CREATE TABLE Person (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL UNIQUE,
	age INTEGER
);

CREATE TABLE Person_vector_scores (
	id INTEGER NOT NULL REFERENCES Person(id) ON DELETE CASCADE ON UPDATE CASCADE,
	vector_index INTEGER NOT NULL,
	score INTEGER NOT NULL,
	PRIMARY KEY (id, vector_index)
);
`

func newExportTestDB(t *testing.T) (*schema.Schema, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, exportTestDDL)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO Person (label, age) VALUES ('alice, a.', 30), ('bob', NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO Person_vector_scores (id, vector_index, score) VALUES (1,1,10),(1,2,20)`)
	require.NoError(t, err)

	s, err := schema.Load(ctx, db)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return s, db
}

func TestExportScalarCollectionWritesHeaderAndRows(t *testing.T) {
	s, db := newExportTestDB(t)
	ex := NewExporter(s, db)
	path := filepath.Join(t.TempDir(), "person.csv")

	require.NoError(t, ex.Export(context.Background(), "Person", "", path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "sep=,\n")
	assert.Contains(t, content, "label,age\n")
	assert.Contains(t, content, `"alice, a.",30`)
	assert.Contains(t, content, "bob,\n")
}

func TestExportGroupJoinsParentLabel(t *testing.T) {
	s, db := newExportTestDB(t)
	ex := NewExporter(s, db)
	path := filepath.Join(t.TempDir(), "scores.csv")

	require.NoError(t, ex.Export(context.Background(), "Person", "score", path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "id,vector_index,score\n")
	assert.Contains(t, content, `"alice, a.",1,10`)
	assert.Contains(t, content, `"alice, a.",2,20`)
}

const relationExportTestDDL = `
CREATE TABLE Configuration (id INTEGER PRIMARY KEY, label TEXT NOT NULL UNIQUE);

CREATE TABLE Parent (id INTEGER PRIMARY KEY, label TEXT NOT NULL UNIQUE);

CREATE TABLE Child (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL UNIQUE,
	parent_id INTEGER REFERENCES Parent(id) ON DELETE SET NULL ON UPDATE CASCADE,
	sibling_id INTEGER REFERENCES Child(id) ON DELETE SET NULL ON UPDATE CASCADE
);
`

func newRelationExportTestDB(t *testing.T) (*schema.Schema, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, relationExportTestDDL)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO Parent (label) VALUES ('Parent 1'), ('Parent 2')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO Child (label, parent_id, sibling_id) VALUES ('Child 1', 1, NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO Child (label, parent_id, sibling_id) VALUES ('Child 2', 2, 1)`)
	require.NoError(t, err)

	s, err := schema.Load(ctx, db)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return s, db
}

func TestExportScalarForeignKeyColumnsRenderAsLabels(t *testing.T) {
	s, db := newRelationExportTestDB(t)
	ex := NewExporter(s, db)
	path := filepath.Join(t.TempDir(), "child.csv")

	require.NoError(t, ex.Export(context.Background(), "Child", "", path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "label,parent_id,sibling_id\n")
	assert.Contains(t, content, "Child 1,Parent 1,\n")
	assert.Contains(t, content, "Child 2,Parent 2,Child 1\n")
}

func TestExportImportForeignKeyRoundTrip(t *testing.T) {
	s, db := newRelationExportTestDB(t)
	ex := NewExporter(s, db)
	path := filepath.Join(t.TempDir(), "child.csv")
	require.NoError(t, ex.Export(context.Background(), "Child", "", path, nil))

	im := NewImporter(s, txn.NewConn(db))
	require.NoError(t, im.Import(context.Background(), "Child", "", path, nil))

	r := read.New(s, db)
	parents, err := r.ReadScalarRelation(context.Background(), "Child", "parent_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"Parent 1", "Parent 2"}, parents)

	siblings, err := r.ReadScalarRelation(context.Background(), "Child", "sibling_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "Child 1"}, siblings)
}

func TestExportUnknownCollectionFails(t *testing.T) {
	s, db := newExportTestDB(t)
	ex := NewExporter(s, db)
	err := ex.Export(context.Background(), "Nothing", "", filepath.Join(t.TempDir(), "x.csv"), nil)
	require.Error(t, err)
}

func TestExportUnknownGroupFails(t *testing.T) {
	s, db := newExportTestDB(t)
	ex := NewExporter(s, db)
	err := ex.Export(context.Background(), "Person", "nope", filepath.Join(t.TempDir(), "x.csv"), nil)
	require.Error(t, err)
}
