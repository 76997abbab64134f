package executor

import (
	"context"
	"math"

	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/resultset"
	"github.com/ammar0144/sqlmap/pkg/statement"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// BatchUpdateReturnValue is the row count reported for a buffered write
const BatchUpdateReturnValue = math.MinInt32 + 1002

// BatchExecutor buffers writes and runs them on the next flush. Consecutive
// writes of the same statement and SQL share one prepared statement. A
// query flushes the buffer first.
type BatchExecutor struct {
	*BaseExecutor
	batches []*batch
}

type batch struct {
	ms       *mapping.MappedStatement
	st       statement.Statement
	handlers []*statement.Handler
	result   BatchResult
}

// NewBatchExecutor creates a BatchExecutor over tx
func NewBatchExecutor(conf *mapping.Configuration, tx transaction.Transaction) *BatchExecutor {
	e := &BatchExecutor{}
	e.BaseExecutor = newBaseExecutor(conf, tx, e)
	e.wrapper = e
	return e
}

func (e *BatchExecutor) doUpdate(ctx context.Context, ms *mapping.MappedStatement, parameter any) (int64, error) {
	h, err := statement.NewHandler(e.wrapper, e.conf, ms, parameter, mapping.DefaultRowBounds, nil, nil)
	if err != nil {
		return 0, err
	}
	// arguments are captured now, not when the batch runs
	if err := h.Bind(); err != nil {
		return 0, err
	}

	query := h.BoundSql().SQL
	var current *batch
	if n := len(e.batches); n > 0 {
		if last := e.batches[n-1]; last.ms == ms && last.result.SQL == query {
			current = last
			h.ApplyTransactionTimeout(e.tx.Timeout())
		}
	}
	if current == nil {
		st, err := e.prepareStatement(ctx, h)
		if err != nil {
			return 0, err
		}
		current = &batch{ms: ms, st: st, result: BatchResult{Statement: ms, SQL: query}}
		e.batches = append(e.batches, current)
	}
	current.handlers = append(current.handlers, h)
	current.result.Parameters = append(current.result.Parameters, parameter)
	return BatchUpdateReturnValue, nil
}

func (e *BatchExecutor) doQuery(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler, boundSql *mapping.BoundSql) ([]any, error) {
	if _, err := e.flushStatements(ctx, false); err != nil {
		return nil, err
	}
	h, err := statement.NewHandler(e.wrapper, e.conf, ms, parameter, bounds, handler, boundSql)
	if err != nil {
		return nil, err
	}
	st, err := e.prepareStatement(ctx, h)
	if err != nil {
		return nil, err
	}
	defer e.closeStatement(ctx, st)
	return h.Query(ctx, st)
}

func (e *BatchExecutor) doQueryCursor(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, boundSql *mapping.BoundSql) (*resultset.ResultCursor, error) {
	if _, err := e.flushStatements(ctx, false); err != nil {
		return nil, err
	}
	h, err := statement.NewHandler(e.wrapper, e.conf, ms, parameter, bounds, nil, boundSql)
	if err != nil {
		return nil, err
	}
	st, err := e.prepareStatement(ctx, h)
	if err != nil {
		return nil, err
	}
	cursor, err := h.QueryCursor(ctx, st)
	if err != nil {
		e.closeStatement(ctx, st)
		return nil, err
	}
	cursor.OnClose(func() { e.closeStatement(ctx, st) })
	return cursor, nil
}

// doFlushStatements runs every buffered write in order. On rollback the
// buffer is dropped without running.
func (e *BatchExecutor) doFlushStatements(ctx context.Context, isRollback bool) ([]BatchResult, error) {
	batches := e.batches
	e.batches = nil
	defer func() {
		for _, b := range batches {
			e.closeStatement(ctx, b.st)
		}
	}()
	if isRollback {
		return nil, nil
	}

	results := make([]BatchResult, 0, len(batches))
	for _, b := range batches {
		for _, h := range b.handlers {
			n, err := h.Update(ctx, b.st)
			if err != nil {
				return nil, &BatchError{Statement: b.ms.ID, SQL: b.result.SQL, Successful: results, Err: err}
			}
			b.result.UpdateCounts = append(b.result.UpdateCounts, n)
		}
		results = append(results, b.result)
	}
	return results, nil
}

// Pending returns the number of buffered writes
func (e *BatchExecutor) Pending() int {
	n := 0
	for _, b := range e.batches {
		n += len(b.handlers)
	}
	return n
}
