package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/ammar0144/sqlmap/pkg/executor"
	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/resultset"
)

var (
	// ErrTooManyResults is returned by SelectOne when more than one row maps
	ErrTooManyResults = errors.New("expected one result or none")

	// ErrSessionClosed is returned by every operation on a closed session
	ErrSessionClosed = errors.New("session is closed")
)

// Session runs statements in one unit of work. It is not safe for
// concurrent use. Without AutoCommit, writes are rolled back on Close unless
// committed.
type Session struct {
	conf       *mapping.Configuration
	executor   executor.Executor
	autoCommit bool
	dirty      bool
	closed     bool
	cursors    []*resultset.ResultCursor
	log        logging.Logger
}

// Configuration returns the configuration the session was opened with
func (s *Session) Configuration() *mapping.Configuration { return s.conf }

// Executor exposes the session's executor
func (s *Session) Executor() executor.Executor { return s.executor }

// IsDirty reports whether the session has uncommitted writes
func (s *Session) IsDirty() bool { return s.dirty }

// SelectOne runs a select expected to map at most one object
func (s *Session) SelectOne(ctx context.Context, statement string, parameter any) (any, error) {
	list, err := s.SelectList(ctx, statement, parameter)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	}
	return nil, fmt.Errorf("%w: %s returned %d results", ErrTooManyResults, statement, len(list))
}

// SelectList runs a select and returns every mapped object
func (s *Session) SelectList(ctx context.Context, statement string, parameter any) ([]any, error) {
	return s.SelectPage(ctx, statement, parameter, mapping.DefaultRowBounds)
}

// SelectPage runs a select and returns the objects within bounds
func (s *Session) SelectPage(ctx context.Context, statement string, parameter any, bounds mapping.RowBounds) ([]any, error) {
	return s.selectList(ctx, statement, parameter, bounds, nil)
}

// Select streams every mapped object to handler instead of collecting them
func (s *Session) Select(ctx context.Context, statement string, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler) error {
	if handler == nil {
		return mapping.Configurationf(statement, "result handler is required")
	}
	_, err := s.selectList(ctx, statement, parameter, bounds, handler)
	return err
}

func (s *Session) selectList(ctx context.Context, statement string, parameter any, bounds mapping.RowBounds,
	handler mapping.ResultHandler) ([]any, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	ms, err := s.conf.Statement(statement)
	if err != nil {
		return nil, err
	}
	return s.executor.Query(ctx, ms, wrapCollection(parameter), bounds, handler)
}

// SelectMap runs a select and indexes the results by the value of mapKey,
// a property path of the result objects. Later rows win on duplicate keys.
func (s *Session) SelectMap(ctx context.Context, statement string, parameter any, mapKey string) (map[any]any, error) {
	list, err := s.SelectList(ctx, statement, parameter)
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(list))
	for _, obj := range list {
		if obj == nil {
			continue
		}
		key, err := s.conf.NewMetaObject(obj).GetValue(mapKey)
		if err != nil {
			return nil, &mapping.MappingError{ResultMap: statement, Property: mapKey, Err: err}
		}
		if key != nil && !reflect.TypeOf(key).Comparable() {
			return nil, mapping.Mappingf(statement, "map key %s of type %T is not comparable", mapKey, key)
		}
		out[key] = obj
	}
	return out, nil
}

// SelectCursor runs a select whose rows are mapped as the cursor advances.
// Open cursors are closed with the session.
func (s *Session) SelectCursor(ctx context.Context, statement string, parameter any,
	bounds mapping.RowBounds) (*resultset.ResultCursor, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	ms, err := s.conf.Statement(statement)
	if err != nil {
		return nil, err
	}
	cursor, err := s.executor.QueryCursor(ctx, ms, wrapCollection(parameter), bounds)
	if err != nil {
		return nil, err
	}
	s.cursors = append(s.cursors, cursor)
	return cursor, nil
}

// Insert runs an insert and returns the affected row count
func (s *Session) Insert(ctx context.Context, statement string, parameter any) (int64, error) {
	return s.Update(ctx, statement, parameter)
}

// Update runs any write statement and returns the affected row count. In a
// batch session the count is executor.BatchUpdateReturnValue.
func (s *Session) Update(ctx context.Context, statement string, parameter any) (int64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	ms, err := s.conf.Statement(statement)
	if err != nil {
		return 0, err
	}
	s.dirty = true
	return s.executor.Update(ctx, ms, wrapCollection(parameter))
}

// Delete runs a delete and returns the affected row count
func (s *Session) Delete(ctx context.Context, statement string, parameter any) (int64, error) {
	return s.Update(ctx, statement, parameter)
}

// FlushStatements runs writes a batch session has buffered
func (s *Session) FlushStatements(ctx context.Context) ([]executor.BatchResult, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.executor.FlushStatements(ctx)
}

// Commit publishes staged cache writes and commits the transaction when
// the session is dirty or force is set
func (s *Session) Commit(ctx context.Context, force bool) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.executor.Commit(ctx, s.commitOrRollbackRequired(force)); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Rollback discards staged cache writes and rolls back the transaction when
// the session is dirty or force is set
func (s *Session) Rollback(ctx context.Context, force bool) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.executor.Rollback(ctx, s.commitOrRollbackRequired(force)); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// ClearCache empties the session cache
func (s *Session) ClearCache() {
	s.executor.ClearLocalCache()
}

// Close closes open cursors and the executor, rolling back uncommitted
// writes. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	var errs []error
	for _, c := range s.cursors {
		if err := c.Close(); err != nil {
			s.log.Warn(ctx, "failed to close cursor: %v", err)
			errs = append(errs, err)
		}
	}
	s.cursors = nil
	errs = append(errs, s.executor.Close(ctx, s.commitOrRollbackRequired(false)))
	s.dirty = false
	s.closed = true
	return errors.Join(errs...)
}

func (s *Session) commitOrRollbackRequired(force bool) bool {
	return (!s.autoCommit && s.dirty) || force
}

// wrapCollection exposes a slice or array parameter as "list" and
// "collection" (or "array") so statements can reference it by name
func wrapCollection(parameter any) any {
	if parameter == nil {
		return nil
	}
	v := reflect.ValueOf(parameter)
	switch v.Kind() {
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return parameter
		}
		return map[string]any{"list": parameter, "collection": parameter}
	case reflect.Array:
		return map[string]any{"array": parameter}
	}
	return parameter
}

// SelectList runs a select and asserts every result to T
func SelectList[T any](ctx context.Context, s *Session, statement string, parameter any) ([]T, error) {
	list, err := s.SelectList(ctx, statement, parameter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(list))
	for _, obj := range list {
		v, err := as[T](statement, obj)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SelectOne runs a select expected to map at most one T. The zero value is
// returned when no row maps.
func SelectOne[T any](ctx context.Context, s *Session, statement string, parameter any) (T, error) {
	obj, err := s.SelectOne(ctx, statement, parameter)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](statement, obj)
}

func as[T any](statement string, obj any) (T, error) {
	var zero T
	if obj == nil {
		return zero, nil
	}
	v, ok := obj.(T)
	if !ok {
		return zero, mapping.Mappingf(statement, "result of type %T is not %s", obj, reflect.TypeOf((*T)(nil)).Elem())
	}
	return v, nil
}
