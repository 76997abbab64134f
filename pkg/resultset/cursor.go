package resultset

import (
	"context"
	"errors"

	"github.com/ammar0144/sqlmap/pkg/mapping"
)

// ResultCursor materializes one object per Next call instead of building
// the whole list. It must be closed.
type ResultCursor struct {
	handler *Handler
	rs      *rowSet
	rows    Rows
	rm      *mapping.ResultMap
	bounds  mapping.RowBounds

	current  any
	err      error
	index    int
	skipped  bool
	consumed bool
	closed   bool
	onClose  []func()
}

func newResultCursor(h *Handler, rs *rowSet, rows Rows, rm *mapping.ResultMap, bounds mapping.RowBounds) *ResultCursor {
	return &ResultCursor{
		handler:  h,
		rs:       rs,
		rows:     rows,
		rm:       rm,
		bounds:   bounds,
		consumed: rs == nil,
	}
}

// OnClose registers fn to run when the cursor closes
func (c *ResultCursor) OnClose(fn func()) {
	c.onClose = append(c.onClose, fn)
}

// Next materializes the next object. It returns false when the rows or
// the row window are exhausted, or on error.
func (c *ResultCursor) Next(ctx context.Context) bool {
	if c.closed || c.consumed {
		return false
	}

	if !c.skipped {
		c.skipped = true
		for i := 0; i < c.bounds.Offset; i++ {
			if _, ok := c.fetch(ctx); !ok {
				return c.finish()
			}
		}
	}
	if c.index >= c.bounds.Limit {
		return c.finish()
	}

	obj, ok := c.fetch(ctx)
	if !ok {
		return c.finish()
	}
	c.current = obj
	c.index++
	return true
}

func (c *ResultCursor) fetch(ctx context.Context) (any, bool) {
	capture := &singleHandler{}
	if err := c.handler.handleRowValues(ctx, c.rs, c.rm, capture, mapping.DefaultRowBounds, nil); err != nil {
		c.err = err
		return nil, false
	}
	return capture.object, capture.found
}

func (c *ResultCursor) finish() bool {
	c.consumed = true
	c.current = nil
	if err := c.Close(); err != nil && c.err == nil {
		c.err = err
	}
	return false
}

// Value returns the object produced by the last successful Next
func (c *ResultCursor) Value() any { return c.current }

// Err returns the error that ended iteration, if any
func (c *ResultCursor) Err() error { return c.err }

// Index returns the number of objects handed out so far
func (c *ResultCursor) Index() int { return c.index }

// IsOpen reports whether the cursor still holds its rows
func (c *ResultCursor) IsOpen() bool { return !c.closed }

// IsConsumed reports whether every object in the window was read
func (c *ResultCursor) IsConsumed() bool { return c.consumed }

// Close releases the rows; it is safe to call more than once
func (c *ResultCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.rows != nil {
		err = c.rows.Close()
	}
	for _, fn := range c.onClose {
		fn()
	}
	return err
}

// All drains the cursor into a list and closes it
func (c *ResultCursor) All(ctx context.Context) ([]any, error) {
	list := []any{}
	for c.Next(ctx) {
		list = append(list, c.Value())
	}
	return list, errors.Join(c.Err(), c.Close())
}
