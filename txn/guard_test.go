package txn

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openGuardTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.ExecContext(context.Background(), `CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	return db
}

func TestCommitPersistsChanges(t *testing.T) {
	db := openGuardTestDB(t)
	conn := NewConn(db)
	ctx := context.Background()

	g, err := Begin(ctx, conn)
	require.NoError(t, err)
	_, err = g.Tx().ExecContext(ctx, `INSERT INTO t (v) VALUES ('a')`)
	require.NoError(t, err)
	require.NoError(t, g.Commit())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&count))
	assert.Equal(t, 1, count)
	assert.False(t, conn.InTransaction())
}

func TestRollbackDiscardsChanges(t *testing.T) {
	db := openGuardTestDB(t)
	conn := NewConn(db)
	ctx := context.Background()

	g, err := Begin(ctx, conn)
	require.NoError(t, err)
	_, err = g.Tx().ExecContext(ctx, `INSERT INTO t (v) VALUES ('a')`)
	require.NoError(t, err)
	require.NoError(t, g.Rollback())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRollbackAfterCommitIsNoOp(t *testing.T) {
	db := openGuardTestDB(t)
	conn := NewConn(db)
	ctx := context.Background()

	g, err := Begin(ctx, conn)
	require.NoError(t, err)
	require.NoError(t, g.Commit())
	require.NoError(t, g.Rollback())
}

func TestNestedGuardJoinsOuterTransaction(t *testing.T) {
	db := openGuardTestDB(t)
	conn := NewConn(db)
	ctx := context.Background()

	outer, err := Begin(ctx, conn)
	require.NoError(t, err)
	inner, err := Begin(ctx, conn)
	require.NoError(t, err)
	assert.Same(t, outer.tx, inner.tx)

	_, err = inner.Tx().ExecContext(ctx, `INSERT INTO t (v) VALUES ('nested')`)
	require.NoError(t, err)
	require.NoError(t, inner.Commit())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&count))
	assert.Equal(t, 0, count, "inner commit must not commit the outer transaction")

	require.NoError(t, outer.Commit())
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInTransactionReflectsOpenGuard(t *testing.T) {
	db := openGuardTestDB(t)
	conn := NewConn(db)
	ctx := context.Background()

	assert.False(t, conn.InTransaction())
	g, err := Begin(ctx, conn)
	require.NoError(t, err)
	assert.True(t, conn.InTransaction())
	require.NoError(t, g.Commit())
	assert.False(t, conn.InTransaction())
}

func TestCommitOuterAndRollbackOuter(t *testing.T) {
	db := openGuardTestDB(t)
	conn := NewConn(db)
	ctx := context.Background()

	if err := conn.CommitOuter(); err == nil {
		t.Fatalf("expected error when no transaction is open")
	}

	g, err := Begin(ctx, conn)
	require.NoError(t, err)
	_ = g
	require.NoError(t, conn.CommitOuter())
	assert.False(t, conn.InTransaction())
}
