// Package statement prepares mapped statements on a connection, binds their
// parameters and runs them, handing rows to the result materializer.
package statement

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
	"github.com/ammar0144/sqlmap/pkg/resultset"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// Statement is a statement bound to one connection. *sql.Stmt satisfies it.
type Statement interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, args ...any) (*sql.Rows, error)
	Close() error
}

// plainStatement sends the SQL with every call instead of preparing it
type plainStatement struct {
	conn  transaction.Conn
	query string
}

func (s *plainStatement) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args...)
}

func (s *plainStatement) QueryContext(ctx context.Context, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args...)
}

func (s *plainStatement) Close() error { return nil }

// Handler runs one mapped statement for one parameter object
type Handler struct {
	executor      resultset.Executor
	conf          *mapping.Configuration
	ms            *mapping.MappedStatement
	parameter     any
	bounds        mapping.RowBounds
	resultHandler mapping.ResultHandler
	boundSql      *mapping.BoundSql
	log           logging.Logger

	txTimeout time.Duration
	binding   *binding
}

type binding struct {
	args []any
	outs []outParameter
}

// outParameter receives an OUT or INOUT value from a callable statement
type outParameter struct {
	property string
	dest     reflect.Value
}

// NewHandler creates a handler. A nil boundSql is resolved from parameter.
func NewHandler(executor resultset.Executor, conf *mapping.Configuration, ms *mapping.MappedStatement, parameter any,
	bounds mapping.RowBounds, resultHandler mapping.ResultHandler, boundSql *mapping.BoundSql) (*Handler, error) {
	if boundSql == nil {
		var err error
		if boundSql, err = ms.BoundSql(parameter); err != nil {
			return nil, err
		}
	}
	return &Handler{
		executor:      executor,
		conf:          conf,
		ms:            ms,
		parameter:     parameter,
		bounds:        bounds,
		resultHandler: resultHandler,
		boundSql:      boundSql,
		log:           conf.Log(),
	}, nil
}

// BoundSql returns the resolved SQL
func (h *Handler) BoundSql() *mapping.BoundSql { return h.boundSql }

// Prepare creates the statement on conn. Plain statements are not sent to
// the database until they run.
func (h *Handler) Prepare(ctx context.Context, conn transaction.Conn, txTimeout time.Duration) (Statement, error) {
	h.ApplyTransactionTimeout(txTimeout)
	if h.ms.StatementType == mapping.StatementPlain {
		return &plainStatement{conn: conn, query: h.boundSql.SQL}, nil
	}

	ctx, cancel := h.Context(ctx)
	defer cancel()
	stmt, err := conn.PrepareContext(ctx, h.boundSql.SQL)
	if err != nil {
		return nil, h.wrap("prepare", err)
	}
	return stmt, nil
}

// ApplyTransactionTimeout caps the statement timeout by the transaction's
// remaining time, for statements reused across calls
func (h *Handler) ApplyTransactionTimeout(txTimeout time.Duration) {
	h.txTimeout = txTimeout
}

// Timeout is the effective timeout: the statement's own or the default,
// lowered to the transaction timeout when that is shorter. Zero means none.
func (h *Handler) Timeout() time.Duration {
	timeout := h.ms.Timeout
	if timeout <= 0 {
		timeout = h.conf.Settings.DefaultStatementTimeout
	}
	if h.txTimeout > 0 && (timeout <= 0 || h.txTimeout < timeout) {
		timeout = h.txTimeout
	}
	return timeout
}

// Context derives the context a driver call runs under
func (h *Handler) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := h.Timeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// Bind resolves the driver arguments from the parameter object. It runs
// once; later calls reuse the arguments.
func (h *Handler) Bind() error {
	if h.binding != nil {
		return nil
	}
	callable := h.ms.StatementType == mapping.StatementCallable
	b := &binding{args: make([]any, 0, len(h.boundSql.ParameterMappings))}

	for _, pm := range h.boundSql.ParameterMappings {
		value, err := h.boundSql.ParameterValue(pm)
		if err != nil {
			return &mapping.MappingError{ResultMap: h.ms.ID, Property: pm.Property, Err: err}
		}
		if !pm.Mode.IsOutput() {
			if callable {
				b.args = append(b.args, sql.Named(pm.Property, value))
			} else {
				b.args = append(b.args, value)
			}
			continue
		}
		if !callable {
			return mapping.Configurationf(h.ms.ID, "parameter %s has mode %s but the statement is not callable", pm.Property, pm.Mode)
		}

		typ := pm.GoType
		if typ == nil {
			typ = anyType
		}
		dest := reflect.New(typ)
		if pm.Mode == mapping.ModeInOut && value != nil {
			converted, err := reflection.Convert(value, typ)
			if err != nil {
				return &mapping.MappingError{ResultMap: h.ms.ID, Property: pm.Property, Err: err}
			}
			dest.Elem().Set(reflect.ValueOf(converted))
		}
		b.args = append(b.args, sql.Named(pm.Property, sql.Out{Dest: dest.Interface(), In: pm.Mode == mapping.ModeInOut}))
		b.outs = append(b.outs, outParameter{property: pm.Property, dest: dest})
	}

	h.binding = b
	return nil
}

// Args returns the bound driver arguments
func (h *Handler) Args() ([]any, error) {
	if err := h.Bind(); err != nil {
		return nil, err
	}
	return h.binding.args, nil
}

// Query runs the statement and materializes every result set
func (h *Handler) Query(ctx context.Context, st Statement) ([]any, error) {
	args, err := h.Args()
	if err != nil {
		return nil, err
	}
	qctx, cancel := h.Context(ctx)
	defer cancel()

	begin := time.Now()
	rows, err := st.QueryContext(qctx, args...)
	if err != nil {
		h.trace(ctx, begin, 0, err)
		return nil, h.wrap("query", err)
	}
	defer rows.Close()

	rh := resultset.NewHandler(h.executor, h.conf, h.ms, h.boundSql, h.bounds, h.resultHandler)
	list, err := rh.HandleResultSets(qctx, rows)
	h.trace(ctx, begin, int64(len(list)), err)
	if err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, h.wrap("query", err)
	}
	if err := h.handleOutputParameters(rh); err != nil {
		return nil, err
	}
	return list, nil
}

// QueryCursor runs the statement and returns a cursor over its first
// result set. Closing the cursor releases the rows.
func (h *Handler) QueryCursor(ctx context.Context, st Statement) (*resultset.ResultCursor, error) {
	args, err := h.Args()
	if err != nil {
		return nil, err
	}
	qctx, cancel := h.Context(ctx)

	begin := time.Now()
	rows, err := st.QueryContext(qctx, args...)
	h.trace(ctx, begin, -1, err)
	if err != nil {
		cancel()
		return nil, h.wrap("query cursor", err)
	}

	cursor, err := resultset.NewHandler(h.executor, h.conf, h.ms, h.boundSql, h.bounds, nil).HandleCursorResultSets(qctx, rows)
	if err != nil {
		rows.Close()
		cancel()
		return nil, err
	}
	cursor.OnClose(cancel)
	return cursor, nil
}

// Update runs an insert, update or delete and returns the affected rows.
// Generated keys are copied onto the parameter object.
func (h *Handler) Update(ctx context.Context, st Statement) (int64, error) {
	args, err := h.Args()
	if err != nil {
		return 0, err
	}
	qctx, cancel := h.Context(ctx)
	defer cancel()

	begin := time.Now()
	res, err := st.ExecContext(qctx, args...)
	if err != nil {
		h.trace(ctx, begin, 0, err)
		return 0, h.wrap("update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}
	h.trace(ctx, begin, affected, nil)

	if err := h.assignGeneratedKey(res); err != nil {
		return 0, err
	}
	if len(h.binding.outs) > 0 {
		rh := resultset.NewHandler(h.executor, h.conf, h.ms, h.boundSql, h.bounds, nil)
		if err := h.handleOutputParameters(rh); err != nil {
			return 0, err
		}
	}
	return affected, nil
}

func (h *Handler) handleOutputParameters(rh *resultset.Handler) error {
	if len(h.binding.outs) == 0 {
		return nil
	}
	outs := make(map[string]any, len(h.binding.outs))
	for _, o := range h.binding.outs {
		outs[o.property] = o.dest.Elem().Interface()
	}
	return rh.HandleOutputParameters(outs)
}

func (h *Handler) useGeneratedKeys() bool {
	if len(h.ms.KeyProperties) == 0 || h.parameter == nil {
		return false
	}
	return h.ms.UseGeneratedKeys || (h.conf.Settings.UseGeneratedKeys && h.ms.CommandType == mapping.CommandInsert)
}

// assignGeneratedKey stores the last insert id in the first key property
func (h *Handler) assignGeneratedKey(res sql.Result) error {
	if !h.useGeneratedKeys() {
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return h.wrap("read generated key", err)
	}
	property := h.ms.KeyProperties[0]
	if err := h.conf.NewMetaObject(h.parameter).SetValue(property, id); err != nil {
		return &mapping.MappingError{ResultMap: h.ms.ID, Property: property, Err: err}
	}
	return nil
}

func (h *Handler) trace(ctx context.Context, begin time.Time, rows int64, err error) {
	h.log.Trace(ctx, begin, func() (string, int64) {
		return h.boundSql.SQL, rows
	}, err)
}

func (h *Handler) wrap(op string, err error) error {
	return mapping.WrapExecution(op, h.ms.ID, classify(err))
}
