package typecheck

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"attrdb/schema"
	"attrdb/value"
)

const typecheckDDL = `
CREATE TABLE Configuration (id INTEGER PRIMARY KEY, label TEXT NOT NULL UNIQUE);
CREATE TABLE Person (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL UNIQUE,
	age INTEGER,
	height REAL,
	bio TEXT,
	date_born TEXT
);
`

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.ExecContext(context.Background(), typecheckDDL)
	require.NoError(t, err)
	s, err := schema.Load(context.Background(), db)
	require.NoError(t, err)
	return New(s)
}

func TestValidateScalarUnknownTable(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateScalar("Missing", "col", value.NewInt(1))
	require.Error(t, err)
	var te *TypeError
	require.ErrorAs(t, err, &te)
}

func TestValidateScalarUnknownColumn(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateScalar("Person", "missing", value.NewInt(1))
	require.Error(t, err)
}

func TestValidateScalarIntegerOK(t *testing.T) {
	v := newTestValidator(t)
	require.NoError(t, v.ValidateScalar("Person", "age", value.NewInt(30)))
}

func TestValidateScalarIntegerMismatch(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateScalar("Person", "age", value.NewText("thirty"))
	require.Error(t, err)
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, value.Integer, te.Want)
	assert.Equal(t, value.Text, te.Got)
}

func TestValidateScalarRealOK(t *testing.T) {
	v := newTestValidator(t)
	require.NoError(t, v.ValidateScalar("Person", "height", value.NewReal(1.8)))
}

func TestValidateScalarNullAlwaysPasses(t *testing.T) {
	v := newTestValidator(t)
	require.NoError(t, v.ValidateScalar("Person", "age", value.NullValue(value.Integer)))
}

func TestValidateScalarTextAcceptsDateTime(t *testing.T) {
	v := newTestValidator(t)
	require.NoError(t, v.ValidateScalar("Person", "bio", value.NewDateTime("2024-01-02T03:04:05")))
}

func TestValidateScalarDateTimeRejectsGarbage(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateScalar("Person", "date_born", value.NewText("not-a-date"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ISO-8601")
}

func TestValidateScalarDateTimeAcceptsBothLayouts(t *testing.T) {
	v := newTestValidator(t)
	require.NoError(t, v.ValidateScalar("Person", "date_born", value.NewText("2024-01-02T03:04:05")))
	require.NoError(t, v.ValidateScalar("Person", "date_born", value.NewText("2024-01-02 03:04:05")))
}

func TestValidateArrayStopsAtFirstMismatch(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateArray("Person", "age", []value.Value{value.NewInt(1), value.NewText("oops")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
}

func TestValidateArrayAllOK(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateArray("Person", "age", []value.Value{value.NewInt(1), value.NewInt(2), value.NullValue(value.Integer)})
	require.NoError(t, err)
}

func TestIsISO8601(t *testing.T) {
	assert.True(t, isISO8601("2024-01-02T03:04:05"))
	assert.True(t, isISO8601("2024-01-02 03:04:05"))
	assert.False(t, isISO8601("not-a-date"))
}
