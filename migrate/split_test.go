package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatementsParsesMultipleStatements(t *testing.T) {
	stmts := splitStatements(`
CREATE TABLE a (id INTEGER);
CREATE TABLE b (id INTEGER);
`)
	require.Len(t, stmts, 2)
}

func TestSplitStatementsEmpty(t *testing.T) {
	assert.Nil(t, splitStatements("   \n  "))
}

func TestSplitBySemicolonFallback(t *testing.T) {
	stmts := splitBySemicolon("PRAGMA user_version = 1;\nPRAGMA foreign_keys = ON;\n")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "user_version")
	assert.Contains(t, stmts[1], "foreign_keys")
}

func TestSplitBySemicolonSkipsComments(t *testing.T) {
	stmts := splitBySemicolon("-- a comment\nSELECT 1;\n")
	require.Len(t, stmts, 1)
}
