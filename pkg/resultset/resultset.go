// Package resultset turns driver rows into result objects: flat rows,
// nested and cyclic object graphs, nested selects, lazily loaded
// properties and rows spread over several result sets.
package resultset

import (
	"context"
	"reflect"

	"github.com/ammar0144/sqlmap/pkg/cachekey"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
)

// Rows is the forward-only row source a statement returns. *sql.Rows
// satisfies it.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	NextResultSet() bool
	Err() error
	Close() error
}

// Executor is what materialization needs from the executor that ran the
// statement: nested selects, the session cache and deferred loads
type Executor interface {
	QueryBound(ctx context.Context, ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds,
		handler mapping.ResultHandler, key *cachekey.CacheKey, boundSql *mapping.BoundSql) ([]any, error)
	CreateCacheKey(ms *mapping.MappedStatement, parameter any, bounds mapping.RowBounds, boundSql *mapping.BoundSql) (*cachekey.CacheKey, error)
	IsCached(ms *mapping.MappedStatement, key *cachekey.CacheKey) bool
	DeferLoad(ms *mapping.MappedStatement, meta *reflection.MetaObject, property string, key *cachekey.CacheKey, targetType reflect.Type) error
	IsClosed() bool
	// LoaderExecutor opens an independent executor for lazy loads that run
	// after this one is closed
	LoaderExecutor(ctx context.Context) (Executor, error)
	Close(ctx context.Context, forceRollback bool) error
}

type resultContext struct {
	object  any
	count   int
	stopped bool
}

func (c *resultContext) ResultObject() any { return c.object }
func (c *resultContext) ResultCount() int  { return c.count }
func (c *resultContext) IsStopped() bool   { return c.stopped }
func (c *resultContext) Stop()             { c.stopped = true }

func (c *resultContext) next(object any) {
	c.count++
	c.object = object
}

// listHandler collects every object, the default when the caller passes
// no ResultHandler
type listHandler struct {
	list []any
}

func (h *listHandler) HandleResult(ctx mapping.ResultContext) {
	h.list = append(h.list, ctx.ResultObject())
}

// singleHandler captures one object and stops
type singleHandler struct {
	object any
	found  bool
}

func (h *singleHandler) HandleResult(ctx mapping.ResultContext) {
	h.object = ctx.ResultObject()
	h.found = true
	ctx.Stop()
}
