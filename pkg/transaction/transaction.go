// Package transaction defines the unit of work an executor runs its
// statements in, and implementations over database/sql handles.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ammar0144/sqlmap/pkg/logging"
)

// ErrTransactionClosed is returned by a transaction used after Close
var ErrTransactionClosed = errors.New("transaction is closed")

// Conn is the part of a database handle statements run on. *sql.DB, *sql.Tx,
// *sql.Conn and gorm connection pools all satisfy it.
type Conn interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Transaction wraps the connection of one unit of work
type Transaction interface {
	// Conn returns the connection, beginning the transaction on first use
	Conn(ctx context.Context) (Conn, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
	// Timeout bounds statements run in this transaction; zero means none
	Timeout() time.Duration
}

// Options configure a new transaction
type Options struct {
	AutoCommit bool
	Isolation  sql.IsolationLevel
	ReadOnly   bool
	Timeout    time.Duration
}

// Factory opens transactions
type Factory interface {
	NewTransaction(opts Options) Transaction
}

// DB is a handle that can both run statements and begin transactions
type DB interface {
	Conn
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SQLFactory opens SQLTransactions over a shared handle
type SQLFactory struct {
	db  DB
	log logging.Logger
}

// NewSQLFactory creates a factory for db
func NewSQLFactory(db DB, log logging.Logger) *SQLFactory {
	return &SQLFactory{db: db, log: logging.OrDiscard(log)}
}

func (f *SQLFactory) NewTransaction(opts Options) Transaction {
	return &SQLTransaction{db: f.db, opts: opts, log: f.log}
}

// SQLTransaction begins a database/sql transaction lazily, on the first
// request for a connection. In auto-commit mode statements run straight on
// the shared handle and Commit and Rollback do nothing.
type SQLTransaction struct {
	mu     sync.Mutex
	db     DB
	opts   Options
	tx     *sql.Tx
	closed bool
	log    logging.Logger
}

// NewSQLTransaction creates a transaction over db
func NewSQLTransaction(db DB, opts Options, log logging.Logger) *SQLTransaction {
	return &SQLTransaction{db: db, opts: opts, log: logging.OrDiscard(log)}
}

func (t *SQLTransaction) Conn(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransactionClosed
	}
	if t.opts.AutoCommit {
		return t.db, nil
	}
	if t.tx == nil {
		// the transaction outlives the call that happens to begin it
		tx, err := t.db.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: t.opts.Isolation, ReadOnly: t.opts.ReadOnly})
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		t.log.Info(ctx, "began transaction (isolation %s)", t.opts.Isolation)
		t.tx = tx
	}
	return t.tx, nil
}

func (t *SQLTransaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransactionClosed
	}
	if t.tx == nil {
		return nil
	}
	err := t.tx.Commit()
	t.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.log.Info(ctx, "committed transaction")
	return nil
}

func (t *SQLTransaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransactionClosed
	}
	return t.rollbackLocked(ctx)
}

func (t *SQLTransaction) rollbackLocked(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	err := t.tx.Rollback()
	t.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	t.log.Info(ctx, "rolled back transaction")
	return nil
}

// Close rolls back an open transaction. The shared handle stays open.
func (t *SQLTransaction) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.rollbackLocked(ctx)
}

func (t *SQLTransaction) Timeout() time.Duration { return t.opts.Timeout }

// Managed hands out a connection whose lifecycle is owned elsewhere, for
// example by a container-managed or caller-managed transaction. Commit and
// Rollback do nothing.
type Managed struct {
	conn    Conn
	timeout time.Duration
	closed  bool
}

// NewManaged wraps conn
func NewManaged(conn Conn, timeout time.Duration) *Managed {
	return &Managed{conn: conn, timeout: timeout}
}

func (m *Managed) Conn(context.Context) (Conn, error) {
	if m.closed {
		return nil, ErrTransactionClosed
	}
	return m.conn, nil
}

func (m *Managed) Commit(context.Context) error   { return nil }
func (m *Managed) Rollback(context.Context) error { return nil }

func (m *Managed) Close(context.Context) error {
	m.closed = true
	return nil
}

func (m *Managed) Timeout() time.Duration { return m.timeout }

// ManagedFactory hands every unit of work the same caller-owned connection
type ManagedFactory struct {
	Conn Conn
}

func (f ManagedFactory) NewTransaction(opts Options) Transaction {
	return NewManaged(f.Conn, opts.Timeout)
}
