package executor

import (
	"context"
	"reflect"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/cachekey"
	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
	"github.com/ammar0144/sqlmap/pkg/resultset"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// CachingExecutor consults the statement's namespace cache before its
// delegate. Writes to namespace caches are staged and only become visible
// to other units of work on commit.
type CachingExecutor struct {
	delegate Executor
	tcm      *cache.TransactionalCacheManager
}

// NewCachingExecutor wraps delegate and routes its nested selects through
// the returned executor
func NewCachingExecutor(delegate Executor, log logging.Logger) *CachingExecutor {
	c := &CachingExecutor{
		delegate: delegate,
		tcm:      cache.NewTransactionalCacheManager(logging.OrDiscard(log)),
	}
	delegate.SetWrapper(c)
	return c
}

// Delegate returns the wrapped executor
func (c *CachingExecutor) Delegate() Executor { return c.delegate }

func (c *CachingExecutor) Transaction() transaction.Transaction { return c.delegate.Transaction() }

func (c *CachingExecutor) IsClosed() bool { return c.delegate.IsClosed() }

func (c *CachingExecutor) QueryDepth() int { return c.delegate.QueryDepth() }

// SetWrapper does nothing; a CachingExecutor is always outermost
func (c *CachingExecutor) SetWrapper(Executor) {}

// Close commits staged cache writes, or discards them when rolling back,
// then closes the delegate
func (c *CachingExecutor) Close(ctx context.Context, forceRollback bool) error {
	if forceRollback {
		c.tcm.Rollback()
	} else {
		c.tcm.Commit()
	}
	return c.delegate.Close(ctx, forceRollback)
}

func (c *CachingExecutor) Update(ctx context.Context, ms *mapping.MappedStatement, parameter any) (int64, error) {
	c.flushCacheIfRequired(ms)
	return c.delegate.Update(ctx, ms, parameter)
}

func (c *CachingExecutor) QueryCursor(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds) (*resultset.ResultCursor, error) {
	c.flushCacheIfRequired(ms)
	return c.delegate.QueryCursor(ctx, ms, parameter, bounds)
}

func (c *CachingExecutor) Query(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler) ([]any, error) {
	boundSql, err := ms.BoundSql(parameter)
	if err != nil {
		return nil, err
	}
	key, err := c.CreateCacheKey(ms, parameter, bounds, boundSql)
	if err != nil {
		return nil, err
	}
	return c.QueryBound(ctx, ms, parameter, bounds, handler, key, boundSql)
}

// QueryBound answers from the namespace cache when the statement uses it
// and no custom handler is given. Results of nested selects are not stored:
// only the outermost query of a tree populates the namespace cache.
func (c *CachingExecutor) QueryBound(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler, key *cachekey.CacheKey, boundSql *mapping.BoundSql) ([]any, error) {
	ns := ms.Cache
	if ns == nil {
		return c.delegate.QueryBound(ctx, ms, parameter, bounds, handler, key, boundSql)
	}

	c.flushCacheIfRequired(ms)
	if !ms.UseCache || handler != nil {
		return c.delegate.QueryBound(ctx, ms, parameter, bounds, handler, key, boundSql)
	}
	if ms.StatementType == mapping.StatementCallable && mapping.HasOutParameters(boundSql) {
		return nil, mapping.WrapExecution("query", ms.ID, ErrCachedOutParameters)
	}

	cached, err := c.tcm.Get(ns, key)
	if err != nil {
		return nil, mapping.WrapExecution("query", ms.ID, err)
	}
	if list, ok := cached.([]any); ok {
		return list, nil
	}

	list, err := c.delegate.QueryBound(ctx, ms, parameter, bounds, handler, key, boundSql)
	if err != nil {
		return nil, err
	}
	if c.delegate.QueryDepth() == 0 {
		c.tcm.Put(ns, key, list)
	}
	return list, nil
}

func (c *CachingExecutor) FlushStatements(ctx context.Context) ([]BatchResult, error) {
	return c.delegate.FlushStatements(ctx)
}

// Commit commits the delegate, then publishes staged cache writes
func (c *CachingExecutor) Commit(ctx context.Context, required bool) error {
	if err := c.delegate.Commit(ctx, required); err != nil {
		return err
	}
	c.tcm.Commit()
	return nil
}

// Rollback rolls back the delegate and discards staged cache writes
func (c *CachingExecutor) Rollback(ctx context.Context, required bool) error {
	err := c.delegate.Rollback(ctx, required)
	if required {
		c.tcm.Rollback()
	}
	return err
}

func (c *CachingExecutor) CreateCacheKey(ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	boundSql *mapping.BoundSql) (*cachekey.CacheKey, error) {
	return c.delegate.CreateCacheKey(ms, parameter, bounds, boundSql)
}

func (c *CachingExecutor) IsCached(ms *mapping.MappedStatement, key *cachekey.CacheKey) bool {
	return c.delegate.IsCached(ms, key)
}

func (c *CachingExecutor) DeferLoad(ms *mapping.MappedStatement, meta *reflection.MetaObject, property string,
	key *cachekey.CacheKey, targetType reflect.Type) error {
	return c.delegate.DeferLoad(ms, meta, property, key, targetType)
}

func (c *CachingExecutor) ClearLocalCache() { c.delegate.ClearLocalCache() }

func (c *CachingExecutor) LoaderExecutor(ctx context.Context) (resultset.Executor, error) {
	return c.delegate.LoaderExecutor(ctx)
}

func (c *CachingExecutor) flushCacheIfRequired(ms *mapping.MappedStatement) {
	if ms.Cache != nil && ms.FlushCacheRequired {
		c.tcm.Clear(ms.Cache)
	}
}
