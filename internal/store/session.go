package store

import (
	"context"
	"database/sql"
	"fmt"

	"lms/internal/lock"
)

// Session pairs the DB's connection pool with one lock owner token and
// exposes the two transaction scopes (each begun on whichever pooled
// connection database/sql hands out): ReadTransaction (shared lock) and WriteTransaction
// (exclusive lock). Transactions are RAII-flavored: the returned Tx's
// Commit/Abandon pair must be used with defer, mirroring "commit happens on
// normal destruction; no explicit rollback API — destruction without commit
// = abandon".
type Session struct {
	db *DB
	owner lock.Owner
}

// NewSession mints a Session with a fresh recursion-tracking owner token.
func NewSession(db *DB) *Session {
	return &Session{db: db, owner: db.NewOwner}
}

// Tx is a single read or write transaction scope.
type Tx struct {
	tx *sql.Tx
	session *Session
	write bool
	committed bool
}

// ReadTransaction acquires the shared lock and begins a read-only-by-
// convention transaction. Call defer tx.Abandon immediately, then
// tx.Commit (or simply let Abandon run) once done reading.
func (s *Session) ReadTransaction(ctx context.Context) (*Tx, error) {
	s.db.Lock.RLock(s.owner)

	acqCtx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel

	sqlTx, err := s.db.conn.BeginTx(acqCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		s.db.Lock.RUnlock(s.owner)
		if acqCtx.Err != nil {
			return nil, &ErrConnectionTimeout{}
		}
		return nil, fmt.Errorf("store: begin read transaction: %w", err)
	}

	return &Tx{tx: sqlTx, session: s, write: false}, nil
}

// WriteTransaction acquires the exclusive lock and begins a write
// transaction.
func (s *Session) WriteTransaction(ctx context.Context) (*Tx, error) {
	s.db.Lock.Lock(s.owner)

	acqCtx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel

	sqlTx, err := s.db.conn.BeginTx(acqCtx, nil)
	if err != nil {
		s.db.Lock.Unlock(s.owner)
		if acqCtx.Err != nil {
			return nil, &ErrConnectionTimeout{}
		}
		return nil, fmt.Errorf("store: begin write transaction: %w", err)
	}

	return &Tx{tx: sqlTx, session: s, write: true}, nil
}

// Commit commits the underlying SQL transaction and releases the lock.
// Safe to call at most once; Abandon after Commit is a no-op.
func (t *Tx) Commit error {
	if t.committed {
		return nil
	}
	t.committed = true
	err := t.tx.Commit
	t.release
	return err
}

// Abandon rolls back the transaction if it was never committed (the "no
// explicit rollback API, destruction without commit = abandon" contract).
// Intended to be deferred unconditionally right after acquiring the Tx.
func (t *Tx) Abandon {
	if t.committed {
		return
	}
	t.committed = true
	_ = t.tx.Rollback
	t.release
}

func (t *Tx) release {
	if t.write {
		t.session.db.Lock.Unlock(t.session.owner)
	} else {
		t.session.db.Lock.RUnlock(t.session.owner)
	}
}

// Exec runs a statement inside the transaction, recording its plan if a
// recorder is attached and db-show-queries logging if enabled.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t.session.db.logQuery(query)
	if t.session.db.Plan != nil {
		t.session.db.Plan.RecordIfNeeded(ctx, t.tx, query)
	}
	return t.tx.ExecContext(ctx, query, args...)
}

// Query runs a query inside the transaction.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	t.session.db.logQuery(query)
	if t.session.db.Plan != nil {
		t.session.db.Plan.RecordIfNeeded(ctx, t.tx, query)
	}
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	t.session.db.logQuery(query)
	if t.session.db.Plan != nil {
		t.session.db.Plan.RecordIfNeeded(ctx, t.tx, query)
	}
	return t.tx.QueryRowContext(ctx, query, args...)
}
