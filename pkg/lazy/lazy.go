// Package lazy provides explicit handles for properties that are loaded on
// first read instead of while the owning row is materialized.
package lazy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrDetached is returned by handles that lost their loader, for example
// after being copied through a serializing cache before they were resolved
var ErrDetached = errors.New("lazy value is detached from its loader")

// Loader produces the value of a pending handle
type Loader interface {
	Load(ctx context.Context) (any, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (any, error)

func (f LoaderFunc) Load(ctx context.Context) (any, error) { return f(ctx) }

// Value is a load-once cell. It is safe for concurrent use; concurrent
// readers of a pending value share one load.
type Value struct {
	mu       sync.Mutex
	loader   Loader
	loaded   bool
	detached bool
	value    any
	err      error
}

// Resolved returns a cell that already holds v
func Resolved(v any) *Value {
	return &Value{loaded: true, value: v}
}

// Pending returns a cell that calls l on first read
func Pending(l Loader) *Value {
	return &Value{loader: l}
}

func detached() *Value {
	return &Value{detached: true}
}

// Get returns the value, loading it on first use. A failed load is retried
// on the next call.
func (v *Value) Get(ctx context.Context) (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loaded {
		return v.value, nil
	}
	if v.detached || v.loader == nil {
		return nil, ErrDetached
	}

	value, err := v.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	v.value = value
	v.loaded = true
	v.loader = nil
	return value, nil
}

// IsLoaded reports whether Get would return without loading
func (v *Value) IsLoaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// peek returns the loaded value without triggering a load
func (v *Value) peek() (any, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.loaded
}

// Binder is implemented by *Ref so the materializer can install cells into
// properties without knowing T
type Binder interface {
	Bind(v *Value)
	ValueType() reflect.Type
}

// Ref is a typed lazy property. The zero Ref reads as the zero T.
type Ref[T any] struct {
	cell *Value
}

// Of returns a resolved Ref holding v
func Of[T any](v T) Ref[T] {
	return Ref[T]{cell: Resolved(v)}
}

// Bind installs cell as the backing value
func (r *Ref[T]) Bind(cell *Value) {
	r.cell = cell
}

// ValueType returns the reflect type of T
func (r *Ref[T]) ValueType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Set replaces the value with a resolved v
func (r *Ref[T]) Set(v T) {
	r.cell = Resolved(v)
}

// Get returns the value, loading it on first use
func (r Ref[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if r.cell == nil {
		return zero, nil
	}
	v, err := r.cell.Get(ctx)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("lazy value has type %T, want %s", v, reflect.TypeOf((*T)(nil)).Elem())
	}
	return t, nil
}

// MustGet is Get for callers that treat a failed load as fatal
func (r Ref[T]) MustGet(ctx context.Context) T {
	v, err := r.Get(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// IsLoaded reports whether the value is available without a query
func (r Ref[T]) IsLoaded() bool {
	return r.cell == nil || r.cell.IsLoaded()
}
