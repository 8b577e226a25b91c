// Package attrdb is an embedded attribute-oriented database library built
// on SQLite. It maps a relational schema obeying a fixed naming
// convention onto collections, elements and four kinds of per-element
// attribute groups (scalars, vectors, sets, time series), and exposes
// typed CRUD, CSV interchange and a migration runner on top of it.
package attrdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "modernc.org/sqlite"

	"attrdb/csvio"
	"attrdb/element"
	"attrdb/migrate"
	"attrdb/query"
	"attrdb/read"
	"attrdb/schema"
	"attrdb/timeseries"
	"attrdb/txn"
	"attrdb/value"
	"attrdb/write"
)

// ErrorKind classifies a failure the way attrdb's C ABI boundary would
// translate it into a negative error code.
type ErrorKind int

const (
	KindInvalidArgument ErrorKind = iota
	KindDatabase
	KindMigration
	KindSchema
	KindCreateElement
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindDatabase:
		return "Database"
	case KindMigration:
		return "Migration"
	case KindSchema:
		return "Schema"
	case KindCreateElement:
		return "CreateElement"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the typed failure every attrdb public method returns on
// failure, the Go equivalent of the C ABI's negative error codes plus
// thread-local message slot.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("attrdb: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Database owns exactly one SQLite connection and a cached Schema/type
// validator. It is not safe for concurrent use from multiple goroutines:
// callers needing concurrent access must synchronize externally or use one
// Database per goroutine, matching attrdb's single-threaded-per-instance
// concurrency model.
type Database struct {
	db     *sql.DB
	conn   *txn.Conn
	schema *schema.Schema

	writer   *write.Writer
	reader   *read.Reader
	files    *timeseries.Files
	exporter *csvio.Exporter
	importer *csvio.Importer
	query    *query.Query

	out io.Writer
}

// Open opens (creating if necessary) the SQLite database at path, loads
// its schema and validates it. path may be ":memory:" or a
// "file::memory:?cache=shared" DSN for an in-memory database.
func Open(ctx context.Context, path string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(KindDatabase, fmt.Errorf("open %q: %w", path, err))
	}
	// A Database owns exactly one logical connection; SQLite's own file
	// locking does not tolerate attrdb handing out a second pooled
	// connection mid transaction.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, wrap(KindDatabase, fmt.Errorf("enable foreign keys: %w", err))
	}

	d := newDatabase(db)
	if err := d.reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.schema.Validate(); err != nil {
		db.Close()
		return nil, wrap(KindSchema, err)
	}
	return d, nil
}

// FromSchema opens path (which may not yet exist) and applies the DDL in
// schemaPath as its initial schema.
func FromSchema(ctx context.Context, path, schemaPath string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(KindDatabase, fmt.Errorf("open %q: %w", path, err))
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, wrap(KindDatabase, fmt.Errorf("enable foreign keys: %w", err))
	}

	d := newDatabase(db)
	runner := migrate.NewRunner(db, d.out)
	s, err := runner.ApplySchema(ctx, schemaPath)
	if err != nil {
		db.Close()
		return nil, wrap(KindSchema, err)
	}
	d.setSchema(s)
	return d, nil
}

// FromMigrations opens path and applies every pending migration in dir.
func FromMigrations(ctx context.Context, path, dir string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(KindDatabase, fmt.Errorf("open %q: %w", path, err))
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, wrap(KindDatabase, fmt.Errorf("enable foreign keys: %w", err))
	}

	d := newDatabase(db)
	runner := migrate.NewRunner(db, d.out)
	s, err := runner.MigrateUp(ctx, dir)
	if err != nil {
		db.Close()
		return nil, wrap(KindMigration, err)
	}
	d.setSchema(s)
	return d, nil
}

func newDatabase(db *sql.DB) *Database {
	d := &Database{db: db, conn: txn.NewConn(db), out: io.Discard}
	return d
}

// SetProgressWriter directs migration progress output to w instead of
// discarding it. CSV export and import write no progress output.
func (d *Database) SetProgressWriter(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	d.out = w
}

func (d *Database) setSchema(s *schema.Schema) {
	d.schema = s
	d.writer = write.New(s, d.conn)
	d.reader = read.New(s, d.db)
	d.files = timeseries.New(s, d.conn)
	d.exporter = csvio.NewExporter(s, d.db)
	d.importer = csvio.NewImporter(s, d.conn)
	d.query = query.New(d.db)
}

// reload reloads the Schema from the live database, the same reload point
// used after open, migrate_up and apply_schema.
func (d *Database) reload(ctx context.Context) error {
	s, err := schema.Load(ctx, d.db)
	if err != nil {
		return wrap(KindSchema, err)
	}
	d.setSchema(s)
	return nil
}

// Close releases the underlying SQLite connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Schema returns the cached Schema.
func (d *Database) Schema() *schema.Schema { return d.schema }

// MigrateUp applies every pending migration in dir and reloads the schema.
func (d *Database) MigrateUp(ctx context.Context, dir string) error {
	runner := migrate.NewRunner(d.db, d.out)
	s, err := runner.MigrateUp(ctx, dir)
	if err != nil {
		return wrap(KindMigration, err)
	}
	d.setSchema(s)
	return nil
}

// ApplySchema executes path's DDL in one transaction and reloads the
// schema.
func (d *Database) ApplySchema(ctx context.Context, path string) error {
	runner := migrate.NewRunner(d.db, d.out)
	s, err := runner.ApplySchema(ctx, path)
	if err != nil {
		return wrap(KindSchema, err)
	}
	d.setSchema(s)
	return nil
}

// CreateElement inserts e as a new row of collection and returns its id.
func (d *Database) CreateElement(ctx context.Context, collection string, e *element.Element) (int64, error) {
	id, err := d.writer.CreateElement(ctx, collection, e)
	return id, wrap(KindCreateElement, err)
}

// UpdateElement overwrites collection row id with e.
func (d *Database) UpdateElement(ctx context.Context, collection string, id int64, e *element.Element) error {
	return wrap(KindDatabase, d.writer.UpdateElement(ctx, collection, id, e))
}

// DeleteElementByID deletes collection row id, cascading per the schema's
// foreign keys. Deleting a missing id is a no-op.
func (d *Database) DeleteElementByID(ctx context.Context, collection string, id int64) error {
	return wrap(KindDatabase, d.writer.DeleteElementByID(ctx, collection, id))
}

// UpdateScalarRelation repoints collection row fromLabel's FK attribute at
// toLabel.
func (d *Database) UpdateScalarRelation(ctx context.Context, collection, attribute, fromLabel, toLabel string) error {
	return wrap(KindNotFound, d.writer.UpdateScalarRelation(ctx, collection, attribute, fromLabel, toLabel))
}

// Reader exposes the read-only scalar/vector/set/time-series surface.
func (d *Database) Reader() *read.Reader { return d.reader }

// TimeSeriesFiles exposes the time-series-files singleton surface.
func (d *Database) TimeSeriesFiles() *timeseries.Files { return d.files }

// ExportCSV renders collection (or one of its attribute groups, when group
// is non-empty) to path as CSV.
func (d *Database) ExportCSV(ctx context.Context, collection, group, path string, opts *csvio.Options) error {
	return wrap(KindDatabase, d.exporter.Export(ctx, collection, group, path, opts))
}

// ImportCSV loads path into collection (or one of its attribute groups),
// replacing the target table's current contents.
func (d *Database) ImportCSV(ctx context.Context, collection, group, path string, opts *csvio.Options) error {
	return wrap(KindDatabase, d.importer.Import(ctx, collection, group, path, opts))
}

// QueryString, QueryInteger and QueryFloat are the parameterized SQL
// passthrough: the escape hatch for reads the typed API does not cover.
func (d *Database) QueryString(ctx context.Context, sql string, params []value.Value) (string, bool, error) {
	s, ok, err := d.query.String(ctx, sql, params)
	return s, ok, wrap(KindDatabase, err)
}

func (d *Database) QueryInteger(ctx context.Context, sql string, params []value.Value) (int64, bool, error) {
	n, ok, err := d.query.Integer(ctx, sql, params)
	return n, ok, wrap(KindDatabase, err)
}

func (d *Database) QueryFloat(ctx context.Context, sql string, params []value.Value) (float64, bool, error) {
	f, ok, err := d.query.Float(ctx, sql, params)
	return f, ok, wrap(KindDatabase, err)
}

// BeginTransaction opens a caller-managed transaction spanning any number
// of subsequent Database calls. Every internal operation's own scoped
// guard detects this outer transaction and defers to it, so the public
// and internal transaction mechanisms share one piece of state. A nested
// BeginTransaction is rejected.
func (d *Database) BeginTransaction(ctx context.Context) error {
	if d.conn.InTransaction() {
		return wrap(KindInvalidArgument, fmt.Errorf("a transaction is already open"))
	}
	_, err := txn.Begin(ctx, d.conn)
	return wrap(KindDatabase, err)
}

// Commit commits the outer transaction opened by BeginTransaction.
func (d *Database) Commit() error {
	if !d.conn.InTransaction() {
		return wrap(KindInvalidArgument, fmt.Errorf("no transaction is open"))
	}
	return wrap(KindDatabase, d.conn.CommitOuter())
}

// Rollback rolls back the outer transaction opened by BeginTransaction.
func (d *Database) Rollback() error {
	if !d.conn.InTransaction() {
		return wrap(KindInvalidArgument, fmt.Errorf("no transaction is open"))
	}
	return wrap(KindDatabase, d.conn.RollbackOuter())
}

// InTransaction reports whether a caller-managed transaction is open.
func (d *Database) InTransaction() bool {
	return d.conn.InTransaction()
}
