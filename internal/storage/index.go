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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "comicstrip/internal/log"
	"comicstrip/internal/version"

	// Postgres driver registered as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	// LedgerFileName is the SQLite file created under Options.Dir when no DSN is given.
	LedgerFileName = "ledger.sqlite"

	// schemaVersion tracks the ledger schema. Bump it together with a new case in runMigrations.
	schemaVersion = 2
)

// Options selects the database backing a Ledger.
type Options struct {
	// Driver is DriverSQLite (default) or DriverPostgres.
	Driver string
	// DSN overrides the connection string. For SQLite it may be left empty when Dir is set.
	DSN string
	// Dir holds the SQLite file when DSN is empty.
	Dir string
}

// Ledger records generated assets and exports.
type Ledger struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	name   string
	serial string // auto-increment primary key column definition
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{name: DriverPostgres, serial: "BIGSERIAL PRIMARY KEY"}
)

// rebind rewrites ? placeholders into $n for Postgres.
func (d dialect) rebind(q string) string {
	if d.name != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open connects to the configured database, ensures the meta/version tables and the
// ledger schema exist, and runs pending migrations.
func Open(ctx context.Context, opts Options) (*Ledger, error) {
	driver := strings.TrimSpace(opts.Driver)
	if driver == "" {
		driver = DriverSQLite
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "ledger_open").With(
		slog.String("driver", driver),
	)

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch driver {
	case DriverSQLite, "sqlite3":
		d = sqliteDialect
		db, err = openSQLite(ctx, opts)
	case DriverPostgres, "postgres", "postgresql":
		d = postgresDialect
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, errors.New("postgres dsn is required")
		}
		db, err = sql.Open("pgx", opts.DSN)
		if err == nil {
			err = db.PingContext(ctx)
			if err != nil {
				_ = db.Close()
			}
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, err
	}

	lg := &Ledger{db: db, dialect: d}
	if err := lg.ensureMetaAndVersion(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := lg.ensureSchema(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure ledger schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := lg.runMigrations(ctx); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("ledger ready")
	return lg, nil
}

func openSQLite(ctx context.Context, opts Options) (*sql.DB, error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		if strings.TrimSpace(opts.Dir) == "" {
			return nil, errors.New("sqlite ledger needs a dsn or a directory")
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		uriPath := filepath.ToSlash(filepath.Join(opts.Dir, LedgerFileName))
		dsn = fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", uriPath)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer for the embedded database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		applog.WithComponent("storage").Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	return db, nil
}

// DB exposes the underlying handle, mainly for tests and diagnostics.
func (lg *Ledger) DB() *sql.DB { return lg.db }

// Driver reports the active driver name.
func (lg *Ledger) Driver() string { return lg.dialect.name }

// Close releases the database handle.
func (lg *Ledger) Close() error {
	if lg == nil || lg.db == nil {
		return nil
	}
	return lg.db.Close()
}

// SchemaVersion reads the schema number stored in the version table.
func (lg *Ledger) SchemaVersion(ctx context.Context) (int, error) {
	var cur int
	if err := lg.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return cur, nil
}

func (lg *Ledger) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return lg.db.ExecContext(ctx, lg.dialect.rebind(q), args...)
}

func (lg *Ledger) ensureMetaAndVersion(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := lg.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := lg.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A fresh database starts at version 1 and migrates forward like an old one.
		if _, err := lg.exec(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, 1, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := lg.exec(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func (lg *Ledger) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			id         ` + lg.dialect.serial + `,
			path       TEXT    NOT NULL UNIQUE,
			kind       TEXT    NOT NULL,
			panel      INTEGER NOT NULL,
			session    TEXT,
			created_at TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assets_path ON assets(path);`,
		`CREATE TABLE IF NOT EXISTS exports (
			id         ` + lg.dialect.serial + `,
			format     TEXT    NOT NULL,
			filename   TEXT    NOT NULL,
			size       BIGINT  NOT NULL,
			session    TEXT,
			token      TEXT,
			created_at TEXT    NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := lg.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create ledger schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func (lg *Ledger) runMigrations(ctx context.Context) error {
	cur, err := lg.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if cur > schemaVersion {
		// Newer binary wrote this database; leave it alone.
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_exports_session ON exports(session);`,
				`CREATE INDEX IF NOT EXISTS idx_exports_created ON exports(created_at);`,
			}
		}
		tx, err := lg.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, lg.dialect.rebind(`UPDATE version SET schema=?, updated_at=? WHERE id=1`), next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}
