package lazy

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type author struct {
	Name string
}

type blog struct {
	Title  string
	Author Ref[*author]
}

func TestRef_LoadsOnce(t *testing.T) {
	var calls atomic.Int32
	var r Ref[*author]
	r.Bind(Pending(LoaderFunc(func(context.Context) (any, error) {
		calls.Add(1)
		return &author{Name: "ann"}, nil
	})))

	assert.False(t, r.IsLoaded())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := r.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "ann", a.Name)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, r.IsLoaded())
}

func TestRef_RetriesFailedLoad(t *testing.T) {
	fail := true
	var r Ref[string]
	r.Bind(Pending(LoaderFunc(func(context.Context) (any, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})))

	_, err := r.Get(context.Background())
	require.Error(t, err)

	fail = false
	v, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRef_ZeroAndTypes(t *testing.T) {
	var r Ref[int]
	v, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.True(t, r.IsLoaded())
	assert.Equal(t, reflect.TypeOf(0), r.ValueType())

	r.Bind(Resolved("not an int"))
	_, err = r.Get(context.Background())
	assert.Error(t, err)

	r.Set(3)
	assert.Equal(t, 3, r.MustGet(context.Background()))
}

func TestRef_ImplementsBinder(t *testing.T) {
	var b Binder = &Ref[*author]{}
	assert.Equal(t, reflect.TypeOf(&author{}), b.ValueType())
}

func TestRef_Msgpack(t *testing.T) {
	resolved := blog{Title: "go", Author: Of(&author{Name: "ann"})}
	data, err := msgpack.Marshal(&resolved)
	require.NoError(t, err)

	var out blog
	require.NoError(t, msgpack.Unmarshal(data, &out))
	a, err := out.Author.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ann", a.Name)

	pending := blog{Title: "go"}
	pending.Author.Bind(Pending(LoaderFunc(func(context.Context) (any, error) {
		return &author{}, nil
	})))
	data, err = msgpack.Marshal(&pending)
	require.NoError(t, err)

	out = blog{}
	require.NoError(t, msgpack.Unmarshal(data, &out))
	_, err = out.Author.Get(context.Background())
	assert.ErrorIs(t, err, ErrDetached)

	empty := blog{Title: "none"}
	data, err = msgpack.Marshal(&empty)
	require.NoError(t, err)
	out = blog{}
	require.NoError(t, msgpack.Unmarshal(data, &out))
	assert.True(t, out.Author.IsLoaded())
}
