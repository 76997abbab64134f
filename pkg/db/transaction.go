package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// TransactionFactory opens Transactions on a Manager's pool
type TransactionFactory struct {
	manager *Manager
}

func (f *TransactionFactory) NewTransaction(opts transaction.Options) transaction.Transaction {
	if opts.Timeout == 0 {
		opts.Timeout = f.manager.config.QueryTimeout
	}
	return &Transaction{manager: f.manager, opts: opts}
}

// Transaction is a unit of work on a gorm session. The gorm transaction is
// begun on the first request for a connection; in auto-commit mode
// statements run on the pool.
type Transaction struct {
	mu      sync.Mutex
	manager *Manager
	opts    transaction.Options
	tx      *gorm.DB
	closed  bool
}

func (t *Transaction) Conn(ctx context.Context) (transaction.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, transaction.ErrTransactionClosed
	}
	if t.opts.AutoCommit {
		return t.manager.db.WithContext(ctx).Statement.ConnPool, nil
	}
	if t.tx == nil {
		tx := t.manager.db.WithContext(context.WithoutCancel(ctx)).Begin(&sql.TxOptions{
			Isolation: t.opts.Isolation,
			ReadOnly:  t.opts.ReadOnly,
		})
		if tx.Error != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
		}
		t.manager.log.Info(ctx, "began transaction (isolation %s)", t.opts.Isolation)
		t.tx = tx
	}
	return t.tx.Statement.ConnPool, nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transaction.ErrTransactionClosed
	}
	if t.tx == nil {
		return nil
	}
	err := t.tx.Commit().Error
	t.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.manager.log.Info(ctx, "committed transaction")
	return nil
}

func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transaction.ErrTransactionClosed
	}
	return t.rollbackLocked(ctx)
}

func (t *Transaction) rollbackLocked(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	err := t.tx.Rollback().Error
	t.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	t.manager.log.Info(ctx, "rolled back transaction")
	return nil
}

// Close rolls back uncommitted work. The pool stays open.
func (t *Transaction) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.rollbackLocked(ctx)
}

func (t *Transaction) Timeout() time.Duration { return t.opts.Timeout }
