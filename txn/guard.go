// Package txn provides attrdb's transaction facade: a guard that begins a
// SQLite transaction on construction and rolls it back unless explicitly
// committed, the same RAII shape the original engine's TransactionGuard
// uses, generalized to tolerate nesting.
//
// Unlike the original, a Guard opened while an outer Guard already holds
// the connection's transaction does not begin a second one — the outer
// transaction wins, and the inner Guard's Commit/Rollback become no-ops.
// Every element writer call opens a Guard so that it is safe to call from
// inside a caller-managed transaction as well as standalone.
package txn

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Tx is the subset of *sql.Tx a Guard executes statements through.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn tracks whether a transaction is already open on a *sql.DB, so
// nested Guard calls can detect they're inside one.
type Conn struct {
	db    *sql.DB
	mu    sync.Mutex
	tx    *sql.Tx
	outer *Guard
}

// NewConn wraps db for use with Guard. A single Conn must be shared by
// every Guard opened against the same database connection, matching
// attrdb's rule that a Database owns exactly one SQL connection.
func NewConn(db *sql.DB) *Conn {
	return &Conn{db: db}
}

// DB returns the underlying connection pool for operations that don't need
// transactional semantics (e.g. schema introspection).
func (c *Conn) DB() *sql.DB {
	return c.db
}

// InTransaction reports whether a transaction is currently open on this
// Conn, for the public transaction facade's begin/commit/rollback guards.
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// CommitOuter commits the outermost Guard's transaction — the one a
// caller-facing BeginTransaction opened. It is an error to call this when
// no transaction is open.
func (c *Conn) CommitOuter() error {
	c.mu.Lock()
	g := c.outer
	c.mu.Unlock()
	if g == nil {
		return fmt.Errorf("txn: no transaction is open")
	}
	return g.Commit()
}

// RollbackOuter rolls back the outermost Guard's transaction.
func (c *Conn) RollbackOuter() error {
	c.mu.Lock()
	g := c.outer
	c.mu.Unlock()
	if g == nil {
		return fmt.Errorf("txn: no transaction is open")
	}
	return g.Rollback()
}

// Guard is a scoped transaction: Begin it, execute through Tx(), then
// Commit or Rollback. If Begin finds a transaction already open on the
// Conn, it joins that outer transaction instead of starting a new one; in
// that case Commit and Rollback are no-ops and only the outermost Guard's
// decision takes effect.
type Guard struct {
	conn   *Conn
	tx     *sql.Tx
	nested bool
	done   bool
}

// Begin opens a Guard on conn. Pass ctx through to the underlying
// BeginTx when this Guard is the outermost one.
func Begin(ctx context.Context, conn *Conn) (*Guard, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.tx != nil {
		return &Guard{conn: conn, tx: conn.tx, nested: true}, nil
	}

	tx, err := conn.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("txn: begin transaction: %w", err)
	}
	conn.tx = tx
	g := &Guard{conn: conn, tx: tx}
	conn.outer = g
	return g, nil
}

// Tx returns the transaction statements should execute through, whether or
// not this Guard is the one that opened it.
func (g *Guard) Tx() Tx {
	return g.tx
}

// Commit commits the transaction if this Guard owns it. A nested Guard's
// Commit defers entirely to the outer Guard and does nothing.
func (g *Guard) Commit() error {
	if g.nested || g.done {
		return nil
	}
	g.done = true

	g.conn.mu.Lock()
	g.conn.tx = nil
	g.conn.outer = nil
	g.conn.mu.Unlock()

	if err := g.tx.Commit(); err != nil {
		return fmt.Errorf("txn: commit: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction if this Guard owns it and it has not
// already been committed or rolled back. Calling Rollback after a
// successful Commit, or from a nested Guard, is a safe no-op — this lets
// callers `defer guard.Rollback()` unconditionally.
func (g *Guard) Rollback() error {
	if g.nested || g.done {
		return nil
	}
	g.done = true

	g.conn.mu.Lock()
	g.conn.tx = nil
	g.conn.outer = nil
	g.conn.mu.Unlock()

	if err := g.tx.Rollback(); err != nil {
		return fmt.Errorf("txn: rollback: %w", err)
	}
	return nil
}
