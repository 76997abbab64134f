// Package executor runs mapped statements inside one unit of work. The
// base executor owns the session cache and the queue of deferred nested
// loads; CachingExecutor adds the namespace caches shared between units of
// work.
package executor

import (
	"context"

	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/resultset"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// Executor is the statement runner of one unit of work. It is not safe for
// concurrent use.
type Executor interface {
	resultset.Executor

	Query(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
		handler mapping.ResultHandler) ([]any, error)
	QueryCursor(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds) (*resultset.ResultCursor, error)
	Update(ctx context.Context, ms *mapping.MappedStatement, parameter any) (int64, error)
	FlushStatements(ctx context.Context) ([]BatchResult, error)

	Commit(ctx context.Context, required bool) error
	Rollback(ctx context.Context, required bool) error
	ClearLocalCache()

	Transaction() transaction.Transaction
	// QueryDepth is the number of queries currently running, nested
	// selects included
	QueryDepth() int
	// SetWrapper sets the executor nested selects are issued through
	SetWrapper(wrapper Executor)
}

// New creates the executor for typ over tx, wrapped in a CachingExecutor
// when the configuration enables caching
func New(conf *mapping.Configuration, tx transaction.Transaction, typ mapping.ExecutorType) Executor {
	if typ == "" {
		typ = conf.Settings.DefaultExecutorType
	}

	var exec Executor
	switch typ {
	case mapping.ExecutorBatch:
		exec = NewBatchExecutor(conf, tx)
	case mapping.ExecutorReuse:
		exec = NewReuseExecutor(conf, tx)
	default:
		exec = NewSimpleExecutor(conf, tx)
	}
	if conf.Settings.CacheEnabled {
		exec = NewCachingExecutor(exec, conf.Log())
	}
	return exec
}

// BatchResult reports one batched statement after a flush
type BatchResult struct {
	Statement    *mapping.MappedStatement
	SQL          string
	Parameters   []any
	UpdateCounts []int64
}
