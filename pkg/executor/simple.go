package executor

import (
	"context"

	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/resultset"
	"github.com/ammar0144/sqlmap/pkg/statement"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// SimpleExecutor prepares a new statement for every call and closes it
// afterwards
type SimpleExecutor struct {
	*BaseExecutor
}

// NewSimpleExecutor creates a SimpleExecutor over tx
func NewSimpleExecutor(conf *mapping.Configuration, tx transaction.Transaction) *SimpleExecutor {
	e := &SimpleExecutor{}
	e.BaseExecutor = newBaseExecutor(conf, tx, e)
	e.wrapper = e
	return e
}

func (e *SimpleExecutor) doUpdate(ctx context.Context, ms *mapping.MappedStatement, parameter any) (int64, error) {
	h, err := statement.NewHandler(e.wrapper, e.conf, ms, parameter, mapping.DefaultRowBounds, nil, nil)
	if err != nil {
		return 0, err
	}
	st, err := e.prepareStatement(ctx, h)
	if err != nil {
		return 0, err
	}
	defer e.closeStatement(ctx, st)
	return h.Update(ctx, st)
}

func (e *SimpleExecutor) doQuery(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler, boundSql *mapping.BoundSql) ([]any, error) {
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

func (e *SimpleExecutor) doQueryCursor(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, boundSql *mapping.BoundSql) (*resultset.ResultCursor, error) {
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

func (e *SimpleExecutor) doFlushStatements(context.Context, bool) ([]BatchResult, error) {
	return nil, nil
}
