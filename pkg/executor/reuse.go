package executor

import (
	"context"

	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/resultset"
	"github.com/ammar0144/sqlmap/pkg/statement"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// ReuseExecutor keeps prepared statements by SQL text until the next
// flush, commit or rollback
type ReuseExecutor struct {
	*BaseExecutor
	statements map[string]statement.Statement
}

// NewReuseExecutor creates a ReuseExecutor over tx
func NewReuseExecutor(conf *mapping.Configuration, tx transaction.Transaction) *ReuseExecutor {
	e := &ReuseExecutor{statements: map[string]statement.Statement{}}
	e.BaseExecutor = newBaseExecutor(conf, tx, e)
	e.wrapper = e
	return e
}

func (e *ReuseExecutor) statementFor(ctx context.Context, h *statement.Handler) (statement.Statement, error) {
	query := h.BoundSql().SQL
	if st, ok := e.statements[query]; ok {
		h.ApplyTransactionTimeout(e.tx.Timeout())
		return st, nil
	}
	st, err := e.prepareStatement(ctx, h)
	if err != nil {
		return nil, err
	}
	e.statements[query] = st
	return st, nil
}

func (e *ReuseExecutor) doUpdate(ctx context.Context, ms *mapping.MappedStatement, parameter any) (int64, error) {
	h, err := statement.NewHandler(e.wrapper, e.conf, ms, parameter, mapping.DefaultRowBounds, nil, nil)
	if err != nil {
		return 0, err
	}
	st, err := e.statementFor(ctx, h)
	if err != nil {
		return 0, err
	}
	return h.Update(ctx, st)
}

func (e *ReuseExecutor) doQuery(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler, boundSql *mapping.BoundSql) ([]any, error) {
	h, err := statement.NewHandler(e.wrapper, e.conf, ms, parameter, bounds, handler, boundSql)
	if err != nil {
		return nil, err
	}
	st, err := e.statementFor(ctx, h)
	if err != nil {
		return nil, err
	}
	return h.Query(ctx, st)
}

func (e *ReuseExecutor) doQueryCursor(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, boundSql *mapping.BoundSql) (*resultset.ResultCursor, error) {
	h, err := statement.NewHandler(e.wrapper, e.conf, ms, parameter, bounds, nil, boundSql)
	if err != nil {
		return nil, err
	}
	st, err := e.statementFor(ctx, h)
	if err != nil {
		return nil, err
	}
	return h.QueryCursor(ctx, st)
}

func (e *ReuseExecutor) doFlushStatements(ctx context.Context, _ bool) ([]BatchResult, error) {
	for query, st := range e.statements {
		e.closeStatement(ctx, st)
		delete(e.statements, query)
	}
	return nil, nil
}

// Prepared returns the number of statements currently held open
func (e *ReuseExecutor) Prepared() int { return len(e.statements) }
