/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"instory/internal/domain"
	applog "instory/internal/log"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect selects the SQL flavor and driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateFlow is returned for a second unconditional choice of a scene.
	ErrDuplicateFlow = domain.ErrDuplicateFlow
)

// Options selects and tunes the database.
type Options struct {
	Dialect Dialect
	// DSN is a file path for SQLite or a connection URL for Postgres.
	DSN          string
	MaxOpenConns int
}

// Repository is the single entry point for all table access.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Open connects, pings and migrates the database.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("dialect", string(opts.Dialect)))
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}
	var (
		driver string
		dsn    = opts.DSN
	)
	switch opts.Dialect {
	case SQLite, "":
		opts.Dialect = SQLite
		driver = "sqlite"
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			dsn = "file:" + dsn
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	case Postgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unknown dialect %q", opts.Dialect)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open %s: %w", opts.Dialect, err)
	}
	switch {
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	case opts.Dialect == SQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	r := New(db, opts.Dialect)
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("ping db: %w", err), db.Close())
	}
	if err := r.Migrate(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	l.Info("database ready")
	return r, nil
}

// New wraps an open database without migrating it.
func New(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{
		db:      db,
		dialect: dialect,
		log:     applog.WithComponent("storage"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

func (r *Repository) DB() *sql.DB                    { return r.db }
func (r *Repository) Dialect() Dialect               { return r.dialect }
func (r *Repository) Close() error                   { return r.db.Close() }
func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Migrate applies the embedded migrations of the dialect in filename order
// and records each in schema_migrations.
func (r *Repository) Migrate(ctx context.Context) error {
	dir := path.Join("migrations", string(r.dialect))
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	ddl := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if r.dialect == SQLite {
		ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for _, name := range files {
		v, err := parseVersion(name)
		if err != nil {
			return err
		}
		if applied[v] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return err
		}
		r.log.Info("applying migration", slog.String("file", name))
		if err := r.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range splitStatements(string(b)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`), v, name)
			return err
		}); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

func (r *Repository) appliedVersions(ctx context.Context) (_ map[int64]bool, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("select schema_migrations: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	applied := map[int64]bool{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func parseVersion(name string) (int64, error) {
	prefix, _, _ := strings.Cut(path.Base(name), "_")
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// splitStatements splits a migration file on semicolons at line ends.
func splitStatements(sqlText string) []string {
	var out []string
	for _, part := range strings.Split(sqlText, ";\n") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// rebind turns ? placeholders into $n for Postgres.
func (r *Repository) rebind(q string) string {
	if r.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// exec runs a write and maps zero affected rows to ErrNotFound.
func (r *Repository) exec(ctx context.Context, q querier, what, query string, args ...any) error {
	res, err := q.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// sqliteTime is fixed width so TEXT columns sort chronologically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// ts converts a timestamp for the driver: TEXT on SQLite, TIMESTAMPTZ on Postgres.
func (r *Repository) ts(t time.Time) any {
	if r.dialect == SQLite {
		return t.UTC().Format(sqliteTime)
	}
	return t.UTC()
}

// dbTime scans both timestamp representations.
type dbTime struct{ t *time.Time }

func (d dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.t = time.Time{}
	case time.Time:
		*d.t = v.UTC()
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (d dbTime) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*d.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse time %q", s)
}

// dbJSON scans a JSON or JSONB column as raw bytes.
type dbJSON struct{ b *[]byte }

func (d dbJSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.b = nil
	case string:
		*d.b = []byte(v)
	case []byte:
		*d.b = append([]byte(nil), v...)
	default:
		return fmt.Errorf("unsupported json value %T", src)
	}
	return nil
}

func nullString(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}
