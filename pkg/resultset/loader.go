package resultset

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ammar0144/sqlmap/pkg/cachekey"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
)

// ResultLoader runs a nested select and shapes its rows for the property
// that asked for them. It implements lazy.Loader.
type ResultLoader struct {
	executor   Executor
	ms         *mapping.MappedStatement
	parameter  any
	targetType reflect.Type
	key        *cachekey.CacheKey
	boundSql   *mapping.BoundSql
}

// NewResultLoader creates a loader for ms bound to parameter
func NewResultLoader(executor Executor, ms *mapping.MappedStatement, parameter any, targetType reflect.Type,
	key *cachekey.CacheKey, boundSql *mapping.BoundSql) *ResultLoader {
	return &ResultLoader{
		executor:   executor,
		ms:         ms,
		parameter:  parameter,
		targetType: targetType,
		key:        key,
		boundSql:   boundSql,
	}
}

// Load runs the select. Once the originating executor is closed, a fresh
// executor is opened for the load and closed afterwards.
func (l *ResultLoader) Load(ctx context.Context) (any, error) {
	list, err := l.selectList(ctx)
	if err != nil {
		return nil, err
	}
	return ExtractResult(list, l.targetType, l.ms.ID)
}

func (l *ResultLoader) selectList(ctx context.Context) ([]any, error) {
	exec := l.executor
	if exec.IsClosed() {
		fresh, err := exec.LoaderExecutor(ctx)
		if err != nil {
			return nil, mapping.WrapExecution("lazy load", l.ms.ID, err)
		}
		defer fresh.Close(ctx, false)
		exec = fresh
	}
	return exec.QueryBound(ctx, l.ms, l.parameter, mapping.DefaultRowBounds, nil, l.key, l.boundSql)
}

// ExtractResult shapes a result list for a target type: a typed slice for
// collections, otherwise the single element or nil
func ExtractResult(list []any, target reflect.Type, statement string) (any, error) {
	if target != nil && reflection.IsCollection(target) && target.Kind() == reflect.Slice {
		out := reflect.MakeSlice(target, 0, len(list))
		for _, item := range list {
			ev, err := elementValue(item, target.Elem())
			if err != nil {
				return nil, &mapping.MappingError{ResultMap: statement, Err: err}
			}
			out = reflect.Append(out, ev)
		}
		return out.Interface(), nil
	}

	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	}
	return nil, &mapping.ExecutionError{Op: "extract result", Statement: statement,
		Err: fmt.Errorf("%w: statement returned %d rows", mapping.ErrTooManyResults, len(list))}
}

func elementValue(item any, elem reflect.Type) (reflect.Value, error) {
	if item == nil {
		return reflect.Zero(elem), nil
	}
	rv := reflect.ValueOf(item)
	if rv.Type().AssignableTo(elem) {
		return rv, nil
	}
	converted, err := reflection.Convert(item, elem)
	if err != nil {
		return reflect.Value{}, err
	}
	if converted == nil {
		return reflect.Zero(elem), nil
	}
	return reflect.ValueOf(converted), nil
}
