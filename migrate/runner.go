// Package migrate discovers and applies versioned SQL migrations against an
// attrdb database, persisting the applied version in SQLite's user_version
// pragma the way the rest of attrdb keeps engine state out of ordinary
// tables.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"attrdb/schema"
)

// Migration is a single versioned pair of up/down SQL scripts.
type Migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

var migrationFileRe = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// Discover reads a migrations directory and returns every up/down pair it
// finds, sorted by version. A migration missing either half of its pair is
// an error: attrdb never applies a migration it cannot also roll back.
func Discover(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read migrations directory: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migrate: invalid version in filename %q: %w", entry.Name(), err)
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read %q: %w", entry.Name(), err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: m[2]}
			byVersion[version] = mig
		}
		if m[3] == "up" {
			mig.Up = string(content)
		} else {
			mig.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" {
			return nil, fmt.Errorf("migrate: version %d (%s) is missing its .up.sql file", mig.Version, mig.Name)
		}
		if mig.Down == "" {
			return nil, fmt.Errorf("migrate: version %d (%s) is missing its .down.sql file", mig.Version, mig.Name)
		}
		migrations = append(migrations, *mig)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// CurrentVersion reads the database's persisted schema version from
// PRAGMA user_version.
func CurrentVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var version int64
	row := db.QueryRowContext(ctx, "PRAGMA user_version")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: read user_version: %w", err)
	}
	return version, nil
}

func setVersion(ctx context.Context, db *sql.DB, version int64) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	if err != nil {
		return fmt.Errorf("migrate: set user_version: %w", err)
	}
	return nil
}

// Pending returns the subset of Discover's result with a version greater
// than the database's current version.
func Pending(ctx context.Context, db *sql.DB, dir string) ([]Migration, error) {
	migrations, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Runner applies migrations to a database, reporting progress to Out the
// way attrdb's other long-running operations do instead of through a
// logging dependency.
type Runner struct {
	DB  *sql.DB
	Out io.Writer
}

// NewRunner returns a Runner writing progress to out. A nil out discards
// progress output.
func NewRunner(db *sql.DB, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{DB: db, Out: out}
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.Out, format, args...)
}

// MigrateUp discovers the migrations in dir, applies every pending one in
// order inside its own transaction, advances user_version after each, and
// finally reloads and revalidates the schema. It aborts the whole run with
// a contextualized error on the first failing migration, leaving the
// database at the last successfully applied version.
func (r *Runner) MigrateUp(ctx context.Context, dir string) (*schema.Schema, error) {
	pending, err := Pending(ctx, r.DB, dir)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		r.printf("no pending migrations\n")
		return schema.Load(ctx, r.DB)
	}

	for i, m := range pending {
		start := time.Now()
		if err := r.applyOne(ctx, m); err != nil {
			return nil, fmt.Errorf("migrate: applying version %d (%s) failed: %w", m.Version, m.Name, err)
		}
		r.printf("[%d/%d] applied version %d (%s) in %s\n", i+1, len(pending), m.Version, m.Name, time.Since(start).Round(time.Millisecond))
	}

	s, err := schema.Load(ctx, r.DB)
	if err != nil {
		return nil, fmt.Errorf("migrate: reload schema after migrating: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("migrate: schema invalid after migrating: %w", err)
	}
	return s, nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for _, stmt := range splitStatements(m.Up) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("execute %q failed: %w; rollback also failed: %w", truncate(stmt), err, rbErr)
			}
			return fmt.Errorf("execute %q failed (rolled back): %w", truncate(stmt), err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("set user_version failed: %w; rollback also failed: %w", err, rbErr)
		}
		return fmt.Errorf("set user_version failed (rolled back): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ApplySchema is the single-file counterpart to MigrateUp: it executes the
// statements in path inside one transaction and reloads the schema, without
// touching user_version. It is used to bootstrap a brand-new database from
// a single DDL script rather than a migrations directory.
func (r *Runner) ApplySchema(ctx context.Context, path string) (*schema.Schema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migrate: read schema file: %w", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("migrate: begin transaction: %w", err)
	}

	for _, stmt := range splitStatements(string(content)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return nil, fmt.Errorf("migrate: execute %q failed: %w; rollback also failed: %w", truncate(stmt), err, rbErr)
			}
			return nil, fmt.Errorf("migrate: execute %q failed (rolled back): %w", truncate(stmt), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("migrate: commit transaction: %w", err)
	}

	s, err := schema.Load(ctx, r.DB)
	if err != nil {
		return nil, fmt.Errorf("migrate: reload schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("migrate: schema invalid: %w", err)
	}
	return s, nil
}

func truncate(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > 80 {
		return sql[:80] + "..."
	}
	return sql
}
