package write

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"attrdb/element"
	"attrdb/schema"
	"attrdb/txn"
	"attrdb/value"
)

const writerTestDDL = `
CREATE TABLE Configuration (id INTEGER PRIMARY KEY, label TEXT NOT NULL UNIQUE);

CREATE TABLE Country (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL UNIQUE
);

CREATE TABLE Person (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL UNIQUE,
	age INTEGER,
	country_id INTEGER REFERENCES Country(id) ON DELETE SET NULL ON UPDATE CASCADE
);

CREATE TABLE Person_vector_scores (
	id INTEGER NOT NULL REFERENCES Person(id) ON DELETE CASCADE ON UPDATE CASCADE,
	vector_index INTEGER NOT NULL,
	score INTEGER NOT NULL,
	PRIMARY KEY (id, vector_index)
);

CREATE TABLE Person_set_tags (
	id INTEGER NOT NULL REFERENCES Person(id) ON DELETE CASCADE ON UPDATE CASCADE,
	tag TEXT NOT NULL,
	UNIQUE (id, tag)
);

CREATE TABLE Person_time_series_readings (
	id INTEGER NOT NULL REFERENCES Person(id) ON DELETE CASCADE ON UPDATE CASCADE,
	date_time TEXT NOT NULL,
	value REAL NOT NULL
);
`

func newTestWriter(t *testing.T) (*Writer, *schema.Schema, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, writerTestDDL)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO Country (label) VALUES ('France'), ('Spain')`)
	require.NoError(t, err)

	s, err := schema.Load(ctx, db)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	conn := txn.NewConn(db)
	return New(s, conn), s, db
}

func TestCreateElementInsertsScalarsAndReturnsID(t *testing.T) {
	w, _, db := newTestWriter(t)
	ctx := context.Background()

	e := element.New().SetText("label", "alice").SetInt("age", 30)
	id, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	var label string
	require.NoError(t, db.QueryRow(`SELECT label FROM Person WHERE id = ?`, id).Scan(&label))
	assert.Equal(t, "alice", label)
}

func TestCreateElementRejectsEmptyElement(t *testing.T) {
	w, _, _ := newTestWriter(t)
	_, err := w.CreateElement(context.Background(), "Person", element.New())
	require.Error(t, err)
}

func TestCreateElementResolvesFKLabel(t *testing.T) {
	w, _, db := newTestWriter(t)
	ctx := context.Background()

	e := element.New().SetText("label", "bob").SetText("country_id", "France")
	id, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)

	var countryID int64
	require.NoError(t, db.QueryRow(`SELECT country_id FROM Person WHERE id = ?`, id).Scan(&countryID))
	assert.Equal(t, int64(1), countryID)
}

func TestCreateElementUnknownFKLabelFails(t *testing.T) {
	w, _, _ := newTestWriter(t)
	e := element.New().SetText("label", "bob").SetText("country_id", "Nowhere")
	_, err := w.CreateElement(context.Background(), "Person", e)
	require.Error(t, err)
}

func TestCreateElementInsertsVectorGroup(t *testing.T) {
	w, _, db := newTestWriter(t)
	ctx := context.Background()

	e := element.New().SetText("label", "carol").
		SetArray("score", []value.Value{value.NewInt(10), value.NewInt(20), value.NewInt(30)})
	id, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)

	rows, err := db.QueryContext(ctx, `SELECT vector_index, score FROM Person_vector_scores WHERE id = ? ORDER BY vector_index`, id)
	require.NoError(t, err)
	defer rows.Close()
	var got []int64
	for rows.Next() {
		var vi, score int64
		require.NoError(t, rows.Scan(&vi, &score))
		got = append(got, score)
		_ = vi
	}
	assert.Equal(t, []int64{10, 20, 30}, got)
}

func TestCreateElementMismatchedArrayLengthsFail(t *testing.T) {
	w, _, _ := newTestWriter(t)
	e := element.New().SetText("label", "dan").
		SetArray("date_time", []value.Value{value.NewDateTime("2024-01-01T00:00:00")}).
		SetArray("value", []value.Value{value.NewReal(1), value.NewReal(2)})
	_, err := w.CreateElement(context.Background(), "Person", e)
	require.Error(t, err)
}

func TestCreateElementInsertsTimeSeriesGroup(t *testing.T) {
	w, _, db := newTestWriter(t)
	ctx := context.Background()

	e := element.New().SetText("label", "erin").
		SetArray("date_time", []value.Value{
			value.NewDateTime("2024-01-01T00:00:00"),
			value.NewDateTime("2024-01-02T00:00:00"),
		}).
		SetArray("value", []value.Value{value.NewReal(1.5), value.NewReal(2.5)})
	id, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM Person_time_series_readings WHERE id = ?`, id).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestUpdateElementOverwritesScalarsAndArrays(t *testing.T) {
	w, _, db := newTestWriter(t)
	ctx := context.Background()

	e := element.New().SetText("label", "fred").SetInt("age", 20).
		SetArray("tag", []value.Value{value.NewText("x")})
	id, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)

	update := element.New().SetInt("age", 21).SetArray("tag", []value.Value{value.NewText("y"), value.NewText("z")})
	require.NoError(t, w.UpdateElement(ctx, "Person", id, update))

	var age int64
	require.NoError(t, db.QueryRow(`SELECT age FROM Person WHERE id = ?`, id).Scan(&age))
	assert.Equal(t, int64(21), age)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM Person_set_tags WHERE id = ?`, id).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestUpdateElementRejectsEmptyElement(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ctx := context.Background()
	e := element.New().SetText("label", "gus")
	id, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)

	err = w.UpdateElement(ctx, "Person", id, element.New())
	require.Error(t, err)
}

func TestDeleteElementByIDCascadesToGroups(t *testing.T) {
	w, _, db := newTestWriter(t)
	ctx := context.Background()
	e := element.New().SetText("label", "hank").
		SetArray("score", []value.Value{value.NewInt(1), value.NewInt(2)})
	id, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)

	require.NoError(t, w.DeleteElementByID(ctx, "Person", id))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM Person WHERE id = ?`, id).Scan(&count))
	assert.Equal(t, 0, count)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM Person_vector_scores WHERE id = ?`, id).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestDeleteElementByIDMissingIsNoOp(t *testing.T) {
	w, _, _ := newTestWriter(t)
	require.NoError(t, w.DeleteElementByID(context.Background(), "Person", 999))
}

func TestUpdateScalarRelationRepointsFK(t *testing.T) {
	w, _, db := newTestWriter(t)
	ctx := context.Background()
	e := element.New().SetText("label", "ivy").SetText("country_id", "France")
	_, err := w.CreateElement(ctx, "Person", e)
	require.NoError(t, err)

	require.NoError(t, w.UpdateScalarRelation(ctx, "Person", "country_id", "ivy", "Spain"))

	var countryID int64
	require.NoError(t, db.QueryRow(`SELECT country_id FROM Person WHERE label = 'ivy'`).Scan(&countryID))
	assert.Equal(t, int64(2), countryID)
}
