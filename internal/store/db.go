// Package store implements the transactional persistence layer: a
// pooled SQLite session with a recursive shared mutex, a schema-version
// migration engine, a query-plan recorder and a startup integrity pass.
//
// Built as a *DB facade with typed *Params request structs and scanX
// row-mapping helpers, with the driver set to database/sql + mattn/go-sqlite3
// because this catalog is a single-file pooled SQLite database with WAL, not
// a Postgres connection pool — see DESIGN.md.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"lms/internal/config"
	"lms/internal/lock"
)

// DB is the process-wide database handle: a fixed-size connection pool plus
// the shared recursive mutex, query-plan recorder and query-logging
// setting.
type DB struct {
	conn *sql.DB

	Lock *lock.RecursiveSharedMutex
	Plan *QueryPlanRecorder

	showQueries bool
	nextOwner int64
}

// connTimeout is the pool acquisition timeout: individual acquisitions time
// out after 10 seconds.
const connTimeout = 10 * time.Second

// Open returns a process-wide database handle over the SQLite catalog at
// path, with a connection pool of the given size. journal_mode,
// synchronous and foreign_keys are set through the driver's DSN
// parameters, which apply to every pooled connection; temp_store,
// cache_size and automatic_index are set by one Exec at open time, which
// applies only to the pooled connection that runs it.
func Open(path string, poolSize int) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if poolSize <= 0 {
		poolSize = 8
	}
	conn.SetMaxOpenConns(poolSize)
	conn.SetMaxIdleConns(poolSize)

	db := &DB{
		conn: conn,
		Lock: lock.New,
		Plan: NewQueryPlanRecorder,
	}

	if _, err := conn.Exec(`PRAGMA temp_store = MEMORY; PRAGMA cache_size = -8000; PRAGMA automatic_index = OFF;`); err != nil {
		return nil, fmt.Errorf("store: apply pragmas: %w", err)
	}

	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close error { return db.conn.Close }

// Ping verifies connectivity (used by the server's readiness endpoint).
func (db *DB) Ping(ctx context.Context) error { return db.conn.PingContext(ctx) }

// ShowQueries toggles `db-show-queries` behavior: when enabled, every
// executed SQL string is logged via slog before running.
func (db *DB) ShowQueries(enabled bool) { db.showQueries = enabled }

func (db *DB) logQuery(query string) {
	if db.showQueries {
		slog.Info("sql", "query", query)
	}
}

// Optimize runs SQLite's query-planner statistics refresh, the scanner's
// Optimize step run once at the end of every scan pass. Must run
// outside any open transaction.
func (db *DB) Optimize(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `PRAGMA optimize`)
	return err
}

// Compact runs VACUUM, the scanner's Compact step, reclaiming the
// space freed by a pass that deleted many rows (CheckForRemovedFiles).
// It runs VACUUM only. Like Optimize, must run outside any open transaction.
func (db *DB) Compact(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `VACUUM`)
	return err
}

// NewOwner mints a fresh lock.Owner token for a logical session holder,
// since Go has no portable thread id to key the recursive mutex on.
func (db *DB) NewOwner lock.Owner {
	db.nextOwner++
	return lock.Owner(db.nextOwner)
}

// CheckIntegrity runs the startup integrity pass selected by kind.
func (db *DB) CheckIntegrity(ctx context.Context, kind config.IntegrityCheck) error {
	switch kind {
	case config.IntegrityNone:
		return nil
	case config.IntegrityFull:
		if err := db.runIntegrityCheck(ctx, "PRAGMA integrity_check"); err != nil {
			return err
		}
		return db.runForeignKeyCheck(ctx)
	default: // quick
		return db.runIntegrityCheck(ctx, "PRAGMA quick_check")
	}
}

func (db *DB) runIntegrityCheck(ctx context.Context, pragma string) error {
	rows, err := db.conn.QueryContext(ctx, pragma)
	if err != nil {
		return fmt.Errorf("store: run %s: %w", pragma, err)
	}
	defer rows.Close

	for rows.Next {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("store: scan %s result: %w", pragma, err)
		}
		if result != "ok" {
			return &ErrCorruption{Detail: result}
		}
	}
	return rows.Err
}

func (db *DB) runForeignKeyCheck(ctx context.Context) error {
	rows, err := db.conn.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("store: run foreign_key_check: %w", err)
	}
	defer rows.Close

	for rows.Next {
		var table string
		var rowid sql.NullInt64
		var parent string
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("store: scan foreign_key_check row: %w", err)
		}
		return &ErrForeignKeyViolation{Detail: fmt.Sprintf("%s references missing %s row", table, parent)}
	}
	return rows.Err
}
