package resultset

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/sqlmap/pkg/cachekey"
	"github.com/ammar0144/sqlmap/pkg/lazy"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
)

type fakeSet struct {
	columns []string
	rows    [][]any
}

type fakeRows struct {
	sets   []fakeSet
	set    int
	row    int
	closed bool
}

func newRows(sets ...fakeSet) *fakeRows {
	return &fakeRows{sets: sets, row: -1}
}

func (r *fakeRows) Columns() ([]string, error) {
	if r.set >= len(r.sets) {
		return nil, nil
	}
	return r.sets[r.set].columns, nil
}

func (r *fakeRows) Next() bool {
	if r.set >= len(r.sets) {
		return false
	}
	r.row++
	return r.row < len(r.sets[r.set].rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.sets[r.set].rows[r.row]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) NextResultSet() bool {
	if r.set+1 >= len(r.sets) {
		return false
	}
	r.set++
	r.row = -1
	return true
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { r.closed = true; return nil }

type deferral struct {
	statement string
	property  string
}

type fakeExecutor struct {
	results  map[string][]any
	calls    map[string]int
	cached   map[string]bool
	deferred []deferral
	closed   bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{results: map[string][]any{}, calls: map[string]int{}, cached: map[string]bool{}}
}

func (f *fakeExecutor) QueryBound(_ context.Context, ms *mapping.MappedStatement, _ any, _ mapping.RowBounds,
	_ mapping.ResultHandler, _ *cachekey.CacheKey, _ *mapping.BoundSql) ([]any, error) {
	f.calls[ms.ID]++
	return f.results[ms.ID], nil
}

func (f *fakeExecutor) CreateCacheKey(ms *mapping.MappedStatement, parameter any, _ mapping.RowBounds, _ *mapping.BoundSql) (*cachekey.CacheKey, error) {
	return cachekey.New(ms.ID, parameter), nil
}

func (f *fakeExecutor) IsCached(ms *mapping.MappedStatement, _ *cachekey.CacheKey) bool {
	return f.cached[ms.ID]
}

func (f *fakeExecutor) DeferLoad(ms *mapping.MappedStatement, _ *reflection.MetaObject, property string, _ *cachekey.CacheKey, _ reflect.Type) error {
	f.deferred = append(f.deferred, deferral{statement: ms.ID, property: property})
	return nil
}

func (f *fakeExecutor) IsClosed() bool { return f.closed }

func (f *fakeExecutor) LoaderExecutor(context.Context) (Executor, error) {
	return f, nil
}

func (f *fakeExecutor) Close(context.Context, bool) error { return nil }

type author struct {
	ID       int
	Username string
}

type post struct {
	ID      int
	Subject string
	BlogID  int
}

type blog struct {
	ID     int
	Title  string
	Author *author
	Posts  []*post
}

type node struct {
	ID   int
	Name string
	Self *node
}

func newConf(t *testing.T, maps ...*mapping.ResultMap) *mapping.Configuration {
	t.Helper()
	conf := mapping.NewConfiguration(&mapping.Environment{ID: "test"})
	for _, rm := range maps {
		require.NoError(t, conf.AddResultMap(rm))
	}
	return conf
}

func selectStatement(id string, opts ...mapping.StatementOption) *mapping.MappedStatement {
	return mapping.NewMappedStatement(id, mapping.CommandSelect, &mapping.StaticSqlSource{SQL: "SELECT"}, opts...)
}

func handle(t *testing.T, conf *mapping.Configuration, exec Executor, ms *mapping.MappedStatement,
	bounds mapping.RowBounds, rows Rows) ([]any, error) {
	t.Helper()
	bs, err := ms.BoundSql(nil)
	require.NoError(t, err)
	return NewHandler(exec, conf, ms, bs, bounds, nil).HandleResultSets(context.Background(), rows)
}

func TestHandleResultSets_AutoMappingAndBounds(t *testing.T) {
	rm := mapping.MustResultMap("ns.author", reflect.TypeOf(author{}), nil)
	conf := newConf(t, rm)
	ms := selectStatement("ns.selectAuthors", mapping.WithResultMaps(rm))

	rows := newRows(fakeSet{
		columns: []string{"ID", "USERNAME"},
		rows:    [][]any{{int64(1), "a"}, {int64(2), []byte("b")}, {int64(3), "c"}},
	})

	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.NewRowBounds(1, 1), rows)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, &author{ID: 2, Username: "b"}, list[0])
}

func TestHandleResultSets_AllNullRowIsSuppressed(t *testing.T) {
	rm := mapping.MustResultMap("ns.author", reflect.TypeOf(author{}), nil)
	ms := selectStatement("ns.selectAuthors", mapping.WithResultMaps(rm))
	rows := func() Rows {
		return newRows(fakeSet{columns: []string{"id", "username"}, rows: [][]any{{nil, nil}}})
	}

	conf := newConf(t, rm)
	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds, rows())
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, list)

	conf.Settings.ReturnInstanceForEmptyRow = true
	list, err = handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds, rows())
	require.NoError(t, err)
	assert.Equal(t, []any{&author{}}, list)
}

func TestHandleResultSets_ScalarResults(t *testing.T) {
	rm := mapping.MustResultMap("ns.count", reflect.TypeOf(int64(0)), nil)
	conf := newConf(t, rm)
	ms := selectStatement("ns.count", mapping.WithResultMaps(rm))

	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"n"}, rows: [][]any{{"41"}, {int64(42)}}}))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(41), int64(42)}, list)
}

func TestHandleResultSets_MapResults(t *testing.T) {
	rm := mapping.MustResultMap("ns.row", reflect.TypeOf(map[string]any{}), nil)
	conf := newConf(t, rm)
	ms := selectStatement("ns.rows", mapping.WithResultMaps(rm))

	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"id", "name"}, rows: [][]any{{int64(1), "x"}}}))
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": int64(1), "name": "x"}}, list)
}

func TestHandleResultSets_SelfReferentialRowSharesInstance(t *testing.T) {
	rm := mapping.MustResultMap("ns.node", reflect.TypeOf(node{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Name", Column: "name"},
		{Property: "Self", NestedResultMapID: "ns.node"},
	})
	conf := newConf(t, rm)
	ms := selectStatement("ns.selectNode", mapping.WithResultMaps(rm))

	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"id", "name"}, rows: [][]any{{int64(1), "root"}}}))
	require.NoError(t, err)
	require.Len(t, list, 1)

	n := list[0].(*node)
	assert.Equal(t, 1, n.ID)
	assert.Equal(t, "root", n.Name)
	assert.Same(t, n, n.Self)
}

func TestHandleResultSets_OneToManyCollection(t *testing.T) {
	postMap := mapping.MustResultMap("ns.post", reflect.TypeOf(post{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Subject", Column: "subject"},
	})
	blogMap := mapping.MustResultMap("ns.blog", reflect.TypeOf(blog{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Title", Column: "title"},
		{Property: "Posts", NestedResultMapID: "ns.post", ColumnPrefix: "post_"},
	})
	conf := newConf(t, postMap, blogMap)
	ms := selectStatement("ns.selectBlog", mapping.WithResultMaps(blogMap))

	rows := newRows(fakeSet{
		columns: []string{"id", "title", "post_id", "post_subject"},
		rows: [][]any{
			{int64(1), "first", int64(10), "a"},
			{int64(1), "first", int64(11), "b"},
			{int64(2), "second", nil, nil},
		},
	})

	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds, rows)
	require.NoError(t, err)
	require.Len(t, list, 2)

	first := list[0].(*blog)
	assert.Equal(t, "first", first.Title)
	require.Len(t, first.Posts, 2)
	assert.Equal(t, &post{ID: 10, Subject: "a"}, first.Posts[0])
	assert.Equal(t, &post{ID: 11, Subject: "b"}, first.Posts[1])
	assert.NotSame(t, first.Posts[0], first.Posts[1])

	second := list[1].(*blog)
	assert.NotNil(t, second.Posts)
	assert.Empty(t, second.Posts)
}

func TestHandleResultSets_OrderedResults(t *testing.T) {
	postMap := mapping.MustResultMap("ns.post", reflect.TypeOf(post{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "post_id", Flags: mapping.FlagID},
	})
	blogMap := mapping.MustResultMap("ns.blog", reflect.TypeOf(blog{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Posts", NestedResultMapID: "ns.post"},
	})
	conf := newConf(t, postMap, blogMap)
	ms := selectStatement("ns.selectBlog", mapping.WithResultMaps(blogMap), mapping.WithResultOrdered(true))

	var seen []int
	bs, err := ms.BoundSql(nil)
	require.NoError(t, err)
	h := NewHandler(newFakeExecutor(), conf, ms, bs, mapping.DefaultRowBounds, mapping.ResultHandlerFunc(func(rc mapping.ResultContext) {
		b := rc.ResultObject().(*blog)
		seen = append(seen, len(b.Posts))
	}))

	rows := newRows(fakeSet{
		columns: []string{"id", "post_id"},
		rows:    [][]any{{int64(1), int64(10)}, {int64(1), int64(11)}, {int64(2), int64(12)}},
	})
	_, err = h.HandleResultSets(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, seen)
}

func TestHandleResultSets_NestedRequiresSafeHandler(t *testing.T) {
	blogMap := mapping.MustResultMap("ns.blog", reflect.TypeOf(blog{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Posts", NestedResultMapID: "ns.blog"},
	})
	conf := newConf(t, blogMap)
	ms := selectStatement("ns.selectBlog", mapping.WithResultMaps(blogMap))
	bs, err := ms.BoundSql(nil)
	require.NoError(t, err)

	h := NewHandler(newFakeExecutor(), conf, ms, bs, mapping.DefaultRowBounds, mapping.ResultHandlerFunc(func(mapping.ResultContext) {}))
	_, err = h.HandleResultSets(context.Background(), newRows(fakeSet{columns: []string{"id"}, rows: [][]any{{int64(1)}}}))
	assert.True(t, mapping.IsMapping(err))

	conf.Settings.SafeRowBoundsEnabled = true
	_, err = handle(t, conf, newFakeExecutor(), ms, mapping.NewRowBounds(0, 5),
		newRows(fakeSet{columns: []string{"id"}, rows: [][]any{{int64(1)}}}))
	assert.True(t, mapping.IsMapping(err))
}

type vehicle struct {
	ID   int
	Kind string
}

type car struct {
	ID    int
	Kind  string
	Doors int
}

func TestHandleResultSets_Discriminator(t *testing.T) {
	carMap := mapping.MustResultMap("ns.car", reflect.TypeOf(car{}), nil)
	vehicleMap := mapping.MustResultMap("ns.vehicle", reflect.TypeOf(vehicle{}), nil,
		mapping.WithDiscriminator(&mapping.Discriminator{
			Column: "kind",
			Cases:  map[string]string{"car": "ns.car", "loop": "ns.vehicle"},
		}))
	conf := newConf(t, carMap, vehicleMap)
	ms := selectStatement("ns.selectVehicles", mapping.WithResultMaps(vehicleMap))

	rows := newRows(fakeSet{
		columns: []string{"id", "kind", "doors"},
		rows:    [][]any{{int64(1), []byte("car"), int64(4)}, {int64(2), "boat", nil}, {int64(3), "loop", nil}},
	})
	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds, rows)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, &car{ID: 1, Kind: "car", Doors: 4}, list[0])
	assert.Equal(t, &vehicle{ID: 2, Kind: "boat"}, list[1])
	assert.Equal(t, &vehicle{ID: 3, Kind: "loop"}, list[2])
}

type point struct {
	x, y int
}

func TestHandleResultSets_ConstructorMapping(t *testing.T) {
	rm := mapping.MustResultMap("ns.point", reflect.TypeOf(point{}), []*mapping.ResultMapping{
		{Column: "x", GoType: reflect.TypeOf(0), Flags: mapping.FlagConstructor},
		{Column: "y", GoType: reflect.TypeOf(0), Flags: mapping.FlagConstructor},
	}, mapping.WithConstructor(func(args []any) (any, error) {
		if args[0] == nil || args[1] == nil {
			return nil, errors.New("missing coordinate")
		}
		return &point{x: args[0].(int), y: args[1].(int)}, nil
	}))
	conf := newConf(t, rm)
	ms := selectStatement("ns.points", mapping.WithResultMaps(rm))

	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"x", "y"}, rows: [][]any{{int64(1), "2"}}}))
	require.NoError(t, err)
	assert.Equal(t, []any{&point{x: 1, y: 2}}, list)

	_, err = handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"x", "y"}, rows: [][]any{{int64(1), nil}}}))
	assert.True(t, mapping.IsMapping(err))
}

func TestHandleResultSets_UnknownColumnFailing(t *testing.T) {
	rm := mapping.MustResultMap("ns.author", reflect.TypeOf(author{}), nil)
	conf := newConf(t, rm)
	conf.Settings.AutoMappingUnknownColumnBehavior = mapping.UnknownColumnFailing
	ms := selectStatement("ns.selectAuthors", mapping.WithResultMaps(rm))

	_, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"id", "nickname"}, rows: [][]any{{int64(1), "x"}}}))
	require.Error(t, err)
	var me *mapping.MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "nickname", me.Column)
}

func blogWithAuthorQuery(t *testing.T, typ reflect.Type, fetch mapping.FetchType) (*mapping.Configuration, *mapping.MappedStatement) {
	t.Helper()
	rm := mapping.MustResultMap("ns.blog", typ, []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Author", Column: "author_id", NestedQueryID: "ns.selectAuthor", Fetch: fetch},
	})
	conf := newConf(t, rm)
	require.NoError(t, conf.AddStatement(selectStatement("ns.selectAuthor")))
	return conf, selectStatement("ns.selectBlog", mapping.WithResultMaps(rm))
}

func TestHandleResultSets_EagerNestedQuery(t *testing.T) {
	conf, ms := blogWithAuthorQuery(t, reflect.TypeOf(blog{}), mapping.FetchDefault)
	exec := newFakeExecutor()
	exec.results["ns.selectAuthor"] = []any{&author{ID: 7, Username: "jane"}}

	list, err := handle(t, conf, exec, ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"id", "author_id"}, rows: [][]any{{int64(1), int64(7)}, {int64(2), nil}}}))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, &author{ID: 7, Username: "jane"}, list[0].(*blog).Author)
	assert.Nil(t, list[1].(*blog).Author)
	assert.Equal(t, 1, exec.calls["ns.selectAuthor"])
}

func TestHandleResultSets_CachedNestedQueryIsDeferred(t *testing.T) {
	conf, ms := blogWithAuthorQuery(t, reflect.TypeOf(blog{}), mapping.FetchDefault)
	exec := newFakeExecutor()
	exec.cached["ns.selectAuthor"] = true

	list, err := handle(t, conf, exec, ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"id", "author_id"}, rows: [][]any{{int64(1), int64(7)}}}))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []deferral{{statement: "ns.selectAuthor", property: "Author"}}, exec.deferred)
	assert.Zero(t, exec.calls["ns.selectAuthor"])
}

type lazyBlog struct {
	ID     int
	Author lazy.Ref[*author]
}

func TestHandleResultSets_LazyNestedQuery(t *testing.T) {
	conf, ms := blogWithAuthorQuery(t, reflect.TypeOf(lazyBlog{}), mapping.FetchLazy)
	exec := newFakeExecutor()
	exec.results["ns.selectAuthor"] = []any{&author{ID: 7, Username: "jane"}}

	list, err := handle(t, conf, exec, ms, mapping.DefaultRowBounds,
		newRows(fakeSet{columns: []string{"id", "author_id"}, rows: [][]any{{int64(1), int64(7)}}}))
	require.NoError(t, err)
	require.Len(t, list, 1)

	b := list[0].(*lazyBlog)
	assert.False(t, b.Author.IsLoaded())
	assert.Zero(t, exec.calls["ns.selectAuthor"])

	a, err := b.Author.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jane", a.Username)
	assert.True(t, b.Author.IsLoaded())

	_, err = b.Author.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls["ns.selectAuthor"])
}

func TestHandleResultSets_MultipleResultSets(t *testing.T) {
	postMap := mapping.MustResultMap("ns.post", reflect.TypeOf(post{}), nil)
	blogMap := mapping.MustResultMap("ns.blog", reflect.TypeOf(blog{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Title", Column: "title"},
		{Property: "Posts", NestedResultMapID: "ns.post", ResultSet: "posts", Column: "id", ForeignColumn: "blog_id"},
	})
	conf := newConf(t, postMap, blogMap)
	ms := selectStatement("ns.selectBlogs", mapping.WithResultMaps(blogMap), mapping.WithResultSets("blogs", "posts"))

	rows := newRows(
		fakeSet{columns: []string{"id", "title"}, rows: [][]any{{int64(1), "one"}, {int64(2), "two"}}},
		fakeSet{columns: []string{"id", "subject", "blog_id"}, rows: [][]any{
			{int64(10), "a", int64(1)},
			{int64(11), "b", "2"},
			{int64(12), "c", int64(1)},
		}},
	)

	list, err := handle(t, conf, newFakeExecutor(), ms, mapping.DefaultRowBounds, rows)
	require.NoError(t, err)
	require.Len(t, list, 2)

	one, two := list[0].(*blog), list[1].(*blog)
	require.Len(t, one.Posts, 2)
	assert.Equal(t, "a", one.Posts[0].Subject)
	assert.Equal(t, "c", one.Posts[1].Subject)
	require.Len(t, two.Posts, 1)
	assert.Equal(t, 2, two.Posts[0].BlogID)
}

func TestHandleOutputParameters(t *testing.T) {
	rm := mapping.MustResultMap("ns.author", reflect.TypeOf(author{}), nil)
	conf := newConf(t, rm)
	src, err := mapping.ParseSQL("CALL rename(#{ID}, #{Username,mode=INOUT})")
	require.NoError(t, err)
	ms := mapping.NewMappedStatement("ns.rename", mapping.CommandSelect, src,
		mapping.WithStatementType(mapping.StatementCallable), mapping.WithResultMaps(rm))

	param := &author{ID: 1, Username: "old"}
	bs, err := ms.BoundSql(param)
	require.NoError(t, err)

	h := NewHandler(newFakeExecutor(), conf, ms, bs, mapping.DefaultRowBounds, nil)
	require.NoError(t, h.HandleOutputParameters(map[string]any{"Username": "new", "ID": 99}))
	assert.Equal(t, &author{ID: 1, Username: "new"}, param)
}

func TestHandleCursorResultSets(t *testing.T) {
	rm := mapping.MustResultMap("ns.author", reflect.TypeOf(author{}), nil)
	conf := newConf(t, rm)
	ms := selectStatement("ns.selectAuthors", mapping.WithResultMaps(rm))
	bs, err := ms.BoundSql(nil)
	require.NoError(t, err)

	rows := newRows(fakeSet{
		columns: []string{"id", "username"},
		rows:    [][]any{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}, {int64(4), "d"}},
	})
	cursor, err := NewHandler(newFakeExecutor(), conf, ms, bs, mapping.NewRowBounds(1, 2), nil).
		HandleCursorResultSets(context.Background(), rows)
	require.NoError(t, err)

	closedHook := false
	cursor.OnClose(func() { closedHook = true })

	var names []string
	for cursor.Next(context.Background()) {
		names = append(names, cursor.Value().(*author).Username)
	}
	require.NoError(t, cursor.Err())
	assert.Equal(t, []string{"b", "c"}, names)
	assert.True(t, cursor.IsConsumed())
	assert.False(t, cursor.IsOpen())
	assert.True(t, rows.closed)
	assert.True(t, closedHook)
	assert.Equal(t, 2, cursor.Index())
}

func TestHandleCursorResultSets_NestedNeedsOrder(t *testing.T) {
	rm := mapping.MustResultMap("ns.node", reflect.TypeOf(node{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Self", NestedResultMapID: "ns.node"},
	})
	conf := newConf(t, rm)
	ms := selectStatement("ns.selectNode", mapping.WithResultMaps(rm))
	bs, err := ms.BoundSql(nil)
	require.NoError(t, err)

	_, err = NewHandler(newFakeExecutor(), conf, ms, bs, mapping.DefaultRowBounds, nil).
		HandleCursorResultSets(context.Background(), newRows(fakeSet{columns: []string{"id"}}))
	assert.True(t, mapping.IsMapping(err))
}

func TestExtractResult(t *testing.T) {
	v, err := ExtractResult([]any{&post{ID: 1}, &post{ID: 2}}, reflect.TypeOf([]*post{}), "ns.posts")
	require.NoError(t, err)
	assert.Equal(t, []*post{{ID: 1}, {ID: 2}}, v)

	v, err = ExtractResult(nil, reflect.TypeOf(&post{}), "ns.post")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ExtractResult([]any{int64(3)}, reflect.TypeOf(0), "ns.count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = ExtractResult([]any{1, 2}, reflect.TypeOf(0), "ns.count")
	assert.ErrorIs(t, err, mapping.ErrTooManyResults)
	assert.True(t, mapping.IsExecution(err))
}

func TestAssignProperty_LazyHandles(t *testing.T) {
	b := &lazyBlog{}
	meta := reflection.Forward(b)

	typ, err := PropertyType(meta, "Author")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(&author{}), typ)

	require.NoError(t, AssignProperty(meta, "Author", &author{ID: 3}))
	assert.True(t, b.Author.IsLoaded())
	assert.Equal(t, 3, b.Author.MustGet(context.Background()).ID)

	require.NoError(t, AssignProperty(meta, "ID", int64(9)))
	assert.Equal(t, 9, b.ID)
}
