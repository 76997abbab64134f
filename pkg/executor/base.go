package executor

import (
	"context"
	"errors"
	"reflect"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/cachekey"
	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
	"github.com/ammar0144/sqlmap/pkg/resultset"
	"github.com/ammar0144/sqlmap/pkg/statement"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// placeholder marks a session cache entry whose query is still running
type placeholder struct{}

var executionPlaceholder = &placeholder{}

// strategy is how a concrete executor talks to the driver
type strategy interface {
	doUpdate(ctx context.Context, ms *mapping.MappedStatement, parameter any) (int64, error)
	doQuery(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
		handler mapping.ResultHandler, boundSql *mapping.BoundSql) ([]any, error)
	doQueryCursor(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
		boundSql *mapping.BoundSql) (*resultset.ResultCursor, error)
	doFlushStatements(ctx context.Context, isRollback bool) ([]BatchResult, error)
}

// BaseExecutor implements the session cache protocol shared by every
// executor type; the embedding executor supplies the driver calls
type BaseExecutor struct {
	conf    *mapping.Configuration
	tx      transaction.Transaction
	wrapper Executor
	impl    strategy
	log     logging.Logger

	localCache                *cache.PerpetualCache
	localOutputParameterCache *cache.PerpetualCache
	deferredLoads             []*deferredLoad
	queryStack                int
	closed                    bool
}

func newBaseExecutor(conf *mapping.Configuration, tx transaction.Transaction, impl strategy) *BaseExecutor {
	return &BaseExecutor{
		conf:                      conf,
		tx:                        tx,
		impl:                      impl,
		log:                       conf.Log(),
		localCache:                cache.NewPerpetualCache("LocalCache"),
		localOutputParameterCache: cache.NewPerpetualCache("LocalOutputParameterCache"),
	}
}

func (e *BaseExecutor) Transaction() transaction.Transaction { return e.tx }

func (e *BaseExecutor) IsClosed() bool { return e.closed }

func (e *BaseExecutor) QueryDepth() int { return e.queryStack }

func (e *BaseExecutor) SetWrapper(wrapper Executor) { e.wrapper = wrapper }

// Close rolls back when forced, closes the transaction and drops all
// session state. Closing twice is a no-op.
func (e *BaseExecutor) Close(ctx context.Context, forceRollback bool) error {
	if e.closed {
		return nil
	}
	err := e.Rollback(ctx, forceRollback)
	if e.tx != nil {
		if cerr := e.tx.Close(ctx); cerr != nil {
			e.log.Warn(ctx, "unexpected error closing transaction: %v", cerr)
			err = errors.Join(err, cerr)
		}
	}
	e.localCache.Clear()
	e.localOutputParameterCache.Clear()
	e.deferredLoads = nil
	e.closed = true
	return mapping.WrapExecution("close", "", err)
}

// Update clears the session cache and runs a write
func (e *BaseExecutor) Update(ctx context.Context, ms *mapping.MappedStatement, parameter any) (int64, error) {
	if e.closed {
		return 0, closedError("update")
	}
	e.ClearLocalCache()
	return e.impl.doUpdate(ctx, ms, parameter)
}

// FlushStatements clears the session cache and runs buffered statements
func (e *BaseExecutor) FlushStatements(ctx context.Context) ([]BatchResult, error) {
	if e.closed {
		return nil, closedError("flush statements")
	}
	e.ClearLocalCache()
	return e.impl.doFlushStatements(ctx, false)
}

func (e *BaseExecutor) flushStatements(ctx context.Context, isRollback bool) ([]BatchResult, error) {
	if e.closed {
		return nil, closedError("flush statements")
	}
	return e.impl.doFlushStatements(ctx, isRollback)
}

// Query resolves the SQL, builds the cache key and runs QueryBound
func (e *BaseExecutor) Query(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler) ([]any, error) {
	boundSql, err := ms.BoundSql(parameter)
	if err != nil {
		return nil, err
	}
	key, err := e.CreateCacheKey(ms, parameter, bounds, boundSql)
	if err != nil {
		return nil, err
	}
	return e.QueryBound(ctx, ms, parameter, bounds, handler, key, boundSql)
}

// QueryBound answers from the session cache or runs the statement. Loads
// deferred while the query tree ran are resolved when the outermost query
// returns.
func (e *BaseExecutor) QueryBound(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler, key *cachekey.CacheKey, boundSql *mapping.BoundSql) ([]any, error) {
	if e.closed {
		return nil, closedError("query")
	}
	if e.queryStack == 0 && ms.FlushCacheRequired {
		e.ClearLocalCache()
	}

	list, err := e.nestedQuery(ctx, ms, parameter, bounds, handler, key, boundSql)
	if err != nil {
		return nil, err
	}

	if e.queryStack == 0 {
		loads := e.deferredLoads
		e.deferredLoads = nil
		for _, d := range loads {
			if err := d.load(); err != nil {
				return nil, err
			}
		}
		if e.conf.Settings.LocalCacheScope == mapping.LocalCacheStatement {
			e.ClearLocalCache()
		}
	}
	return list, nil
}

// nestedQuery runs one level of a query tree. The depth is restored and,
// at the top level, pending deferred loads are dropped even when the query
// panics.
func (e *BaseExecutor) nestedQuery(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, handler mapping.ResultHandler, key *cachekey.CacheKey, boundSql *mapping.BoundSql) ([]any, error) {
	ok := false
	e.queryStack++
	defer func() {
		e.queryStack--
		if !ok && e.queryStack == 0 {
			e.deferredLoads = nil
		}
	}()
	list, err := e.queryLocalOrDatabase(ctx, ms, parameter, bounds, handler, key, boundSql)
	ok = err == nil
	return list, err
}

func (e *BaseExecutor) queryLocalOrDatabase(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, handler mapping.ResultHandler, key *cachekey.CacheKey, boundSql *mapping.BoundSql) ([]any, error) {
	if handler == nil {
		cached, _ := e.localCache.Get(key)
		switch v := cached.(type) {
		case []any:
			if err := e.handleLocallyCachedOutputParameters(ms, key, parameter, boundSql); err != nil {
				return nil, err
			}
			return v, nil
		case *placeholder:
			return nil, mapping.WrapExecution("query", ms.ID, ErrQueryInProgress)
		}
	}
	return e.queryFromDatabase(ctx, ms, parameter, bounds, handler, key, boundSql)
}

// queryFromDatabase marks the key as in flight, runs the statement and
// replaces the marker with the results. The marker never outlives the call.
func (e *BaseExecutor) queryFromDatabase(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, handler mapping.ResultHandler, key *cachekey.CacheKey, boundSql *mapping.BoundSql) ([]any, error) {
	list, err := e.runMarked(ctx, ms, parameter, bounds, handler, key, boundSql)
	if err != nil {
		return nil, err
	}

	// rows handed to a custom handler were never collected
	if handler == nil {
		e.localCache.Put(key, list)
	}
	if ms.StatementType == mapping.StatementCallable && parameter != nil {
		e.localOutputParameterCache.Put(key, parameter)
	}
	return list, nil
}

func (e *BaseExecutor) runMarked(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, handler mapping.ResultHandler, key *cachekey.CacheKey, boundSql *mapping.BoundSql) ([]any, error) {
	e.localCache.Put(key, executionPlaceholder)
	defer e.localCache.Remove(key)
	return e.impl.doQuery(ctx, ms, parameter, bounds, handler, boundSql)
}

// handleLocallyCachedOutputParameters replays the OUT values of a cached
// callable statement onto the caller's parameter object
func (e *BaseExecutor) handleLocallyCachedOutputParameters(ms *mapping.MappedStatement, key *cachekey.CacheKey,
	parameter any, boundSql *mapping.BoundSql) error {
	if ms.StatementType != mapping.StatementCallable || parameter == nil {
		return nil
	}
	cached, _ := e.localOutputParameterCache.Get(key)
	if cached == nil || cached == parameter {
		return nil
	}

	src := e.conf.NewMetaObject(cached)
	dst := e.conf.NewMetaObject(parameter)
	for _, pm := range boundSql.ParameterMappings {
		if !pm.Mode.IsOutput() {
			continue
		}
		value, err := src.GetValue(pm.Property)
		if err != nil {
			return &mapping.MappingError{ResultMap: ms.ID, Property: pm.Property, Err: err}
		}
		if err := dst.SetValue(pm.Property, value); err != nil {
			return &mapping.MappingError{ResultMap: ms.ID, Property: pm.Property, Err: err}
		}
	}
	return nil
}

// QueryCursor runs a select whose rows are materialized as the cursor
// advances. Cursor results bypass the session cache.
func (e *BaseExecutor) QueryCursor(ctx context.Context, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds) (*resultset.ResultCursor, error) {
	if e.closed {
		return nil, closedError("query cursor")
	}
	boundSql, err := ms.BoundSql(parameter)
	if err != nil {
		return nil, err
	}
	return e.impl.doQueryCursor(ctx, ms, parameter, bounds, boundSql)
}

// DeferLoad assigns property from the session cache now when the result
// is there, or once the outermost query returns
func (e *BaseExecutor) DeferLoad(ms *mapping.MappedStatement, meta *reflection.MetaObject, property string,
	key *cachekey.CacheKey, targetType reflect.Type) error {
	if e.closed {
		return closedError("defer load")
	}
	d := &deferredLoad{
		statement:  ms.ID,
		meta:       meta,
		property:   property,
		key:        key,
		targetType: targetType,
		localCache: e.localCache,
	}
	if d.canLoad() {
		return d.load()
	}
	e.deferredLoads = append(e.deferredLoads, d)
	return nil
}

// CreateCacheKey folds the statement id, bounds, SQL, every input
// parameter value and the environment id into a key
func (e *BaseExecutor) CreateCacheKey(ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
	boundSql *mapping.BoundSql) (*cachekey.CacheKey, error) {
	if e.closed {
		return nil, closedError("create cache key")
	}
	key := cachekey.New(ms.ID, bounds.Offset, bounds.Limit, boundSql.SQL)
	for _, pm := range boundSql.ParameterMappings {
		if pm.Mode == mapping.ModeOut {
			continue
		}
		value, err := boundSql.ParameterValue(pm)
		if err != nil {
			return nil, &mapping.MappingError{ResultMap: ms.ID, Property: pm.Property, Err: err}
		}
		key.Update(value)
	}
	if env := e.conf.Environment; env != nil {
		key.Update(env.ID)
	}
	return key, nil
}

// IsCached reports whether key is in the session cache, finished or not
func (e *BaseExecutor) IsCached(_ *mapping.MappedStatement, key *cachekey.CacheKey) bool {
	v, _ := e.localCache.Get(key)
	return v != nil
}

// Commit clears the session cache, flushes buffered statements and commits
// the transaction when required
func (e *BaseExecutor) Commit(ctx context.Context, required bool) error {
	if e.closed {
		return closedError("commit")
	}
	e.ClearLocalCache()
	if _, err := e.flushStatements(ctx, false); err != nil {
		return err
	}
	if required {
		return mapping.WrapExecution("commit", "", e.tx.Commit(ctx))
	}
	return nil
}

// Rollback clears the session cache, discards buffered statements and
// rolls back the transaction when required
func (e *BaseExecutor) Rollback(ctx context.Context, required bool) error {
	if e.closed {
		return nil
	}
	e.ClearLocalCache()
	_, err := e.flushStatements(ctx, true)
	if required {
		err = errors.Join(err, e.tx.Rollback(ctx))
	}
	return mapping.WrapExecution("rollback", "", err)
}

func (e *BaseExecutor) ClearLocalCache() {
	if !e.closed {
		e.localCache.Clear()
		e.localOutputParameterCache.Clear()
	}
}

// LoaderExecutor opens a simple executor on a fresh auto-commit
// transaction, for lazy loads that run after this executor is closed
func (e *BaseExecutor) LoaderExecutor(context.Context) (resultset.Executor, error) {
	env := e.conf.Environment
	if env == nil || env.TransactionFactory == nil {
		return nil, mapping.Configurationf("", "lazy loading after close requires an environment with a transaction factory")
	}
	tx := env.TransactionFactory.NewTransaction(transaction.Options{AutoCommit: true})
	return NewSimpleExecutor(e.conf, tx), nil
}

// prepareStatement prepares h on the transaction's connection
func (e *BaseExecutor) prepareStatement(ctx context.Context, h *statement.Handler) (statement.Statement, error) {
	conn, err := e.tx.Conn(ctx)
	if err != nil {
		return nil, mapping.WrapExecution("open connection", "", err)
	}
	return h.Prepare(ctx, conn, e.tx.Timeout())
}

func (e *BaseExecutor) closeStatement(ctx context.Context, st statement.Statement) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		e.log.Warn(ctx, "failed to close statement: %v", err)
	}
}

// deferredLoad assigns a property from a session cache entry that was in
// flight when the property was mapped
type deferredLoad struct {
	statement  string
	meta       *reflection.MetaObject
	property   string
	key        *cachekey.CacheKey
	targetType reflect.Type
	localCache cache.Cache
}

func (d *deferredLoad) canLoad() bool {
	v, _ := d.localCache.Get(d.key)
	_, pending := v.(*placeholder)
	return v != nil && !pending
}

func (d *deferredLoad) load() error {
	v, _ := d.localCache.Get(d.key)
	list, _ := v.([]any)
	value, err := resultset.ExtractResult(list, d.targetType, d.statement)
	if err != nil {
		return err
	}
	if err := resultset.AssignProperty(d.meta, d.property, value); err != nil {
		return &mapping.MappingError{ResultMap: d.statement, Property: d.property, Err: err}
	}
	return nil
}
