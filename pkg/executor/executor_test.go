package executor

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/lazy"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

type author struct {
	ID       int64
	Username string
}

type blog struct {
	ID     int64
	Title  string
	Author *author
}

type lazyBlog struct {
	ID     int64
	Title  string
	Author lazy.Ref[*author]
}

type node struct {
	ID   int64
	Name string
	Self *node
}

// countingConn counts the statements sent to the database
type countingConn struct {
	db       *sql.DB
	prepares int
	execs    int
	queries  int
}

func (c *countingConn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	c.prepares++
	return c.db.PrepareContext(ctx, query)
}

func (c *countingConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.execs++
	return c.db.ExecContext(ctx, query, args...)
}

func (c *countingConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.queries++
	return c.db.QueryContext(ctx, query, args...)
}

type fixture struct {
	db   *sql.DB
	conn *countingConn
	conf *mapping.Configuration
	ns   cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "executor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, ddl := range []string{
		`CREATE TABLE author (id INTEGER PRIMARY KEY, username TEXT NOT NULL)`,
		`CREATE TABLE blog (id INTEGER PRIMARY KEY, title TEXT NOT NULL, author_id INTEGER)`,
		`CREATE TABLE node (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`INSERT INTO author (id, username) VALUES (1, 'jane'), (2, 'john')`,
		`INSERT INTO blog (id, title, author_id) VALUES (5, 'Go', 1)`,
		`INSERT INTO node (id, name) VALUES (1, 'root')`,
	} {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}

	ns, err := cache.NewBuilder("ns").Build()
	require.NoError(t, err)

	conf := mapping.NewConfiguration(&mapping.Environment{
		ID:                 "test",
		TransactionFactory: transaction.NewSQLFactory(db, nil),
	})
	require.NoError(t, conf.AddCache(ns))

	f := &fixture{db: db, conn: &countingConn{db: db}, conf: conf, ns: ns}
	f.register(t)
	return f
}

func (f *fixture) register(t *testing.T) {
	t.Helper()
	authorMap := mapping.MustResultMap("ns.author", reflect.TypeOf(author{}), nil)
	blogMap := mapping.MustResultMap("ns.blog", reflect.TypeOf(blog{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Title", Column: "title"},
		{Property: "Author", Column: "author_id", NestedQueryID: "ns.selectAuthor"},
	})
	lazyBlogMap := mapping.MustResultMap("ns.lazyBlog", reflect.TypeOf(lazyBlog{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Title", Column: "title"},
		{Property: "Author", Column: "author_id", NestedQueryID: "ns.selectAuthor", Fetch: mapping.FetchLazy},
	})
	nodeMap := mapping.MustResultMap("ns.node", reflect.TypeOf(node{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Name", Column: "name"},
		{Property: "Self", Column: "id", NestedQueryID: "ns.selectNode"},
	})
	for _, rm := range []*mapping.ResultMap{authorMap, blogMap, lazyBlogMap, nodeMap} {
		require.NoError(t, f.conf.AddResultMap(rm))
	}

	add := func(id string, cmd mapping.SqlCommandType, text string, opts ...mapping.StatementOption) {
		src, err := mapping.ParseSQL(text)
		require.NoError(t, err)
		require.NoError(t, f.conf.AddStatement(mapping.NewMappedStatement(id, cmd, src, opts...)))
	}
	add("ns.selectAuthor", mapping.CommandSelect, "SELECT id, username FROM author WHERE id = #{id}",
		mapping.WithResultMaps(authorMap), mapping.WithCache(f.ns))
	add("ns.selectAuthorFresh", mapping.CommandSelect, "SELECT id, username FROM author WHERE id = #{id}",
		mapping.WithResultMaps(authorMap), mapping.WithFlushCache(true))
	add("ns.selectBlog", mapping.CommandSelect, "SELECT id, title, author_id FROM blog WHERE id = #{id}",
		mapping.WithResultMaps(blogMap), mapping.WithCache(f.ns))
	add("ns.selectLazyBlog", mapping.CommandSelect, "SELECT id, title, author_id FROM blog WHERE id = #{id}",
		mapping.WithResultMaps(lazyBlogMap))
	add("ns.selectNode", mapping.CommandSelect, "SELECT id, name FROM node WHERE id = #{id}",
		mapping.WithResultMaps(nodeMap))
	add("ns.insertAuthor", mapping.CommandInsert, "INSERT INTO author (username) VALUES (#{Username})",
		mapping.WithGeneratedKeys("ID"), mapping.WithCache(f.ns))
	add("ns.insertAuthorWithID", mapping.CommandInsert, "INSERT INTO author (id, username) VALUES (#{ID}, #{Username})")
	add("ns.updateAuthor", mapping.CommandUpdate, "UPDATE author SET username = #{Username} WHERE id = #{ID}",
		mapping.WithCache(f.ns))
	add("ns.rename", mapping.CommandSelect, "CALL rename(#{ID}, #{Username,mode=OUT})",
		mapping.WithStatementType(mapping.StatementCallable), mapping.WithResultMaps(authorMap), mapping.WithCache(f.ns))
}

func (f *fixture) statement(t *testing.T, id string) *mapping.MappedStatement {
	t.Helper()
	ms, err := f.conf.Statement(id)
	require.NoError(t, err)
	return ms
}

func (f *fixture) tx() transaction.Transaction {
	return transaction.NewManaged(f.conn, 0)
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestSimpleExecutor_SessionCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewSimpleExecutor(f.conf, f.tx())
	selectAuthor := f.statement(t, "ns.selectAuthor")

	first, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, &author{ID: 1, Username: "jane"}, first[0])

	second, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Same(t, first[0], second[0])
	assert.Equal(t, 1, f.conn.prepares)

	_, err = exec.Query(ctx, selectAuthor, int64(1), mapping.NewRowBounds(0, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.conn.prepares, "bounds are part of the key")

	n, err := exec.Update(ctx, f.statement(t, "ns.updateAuthor"), &author{ID: 1, Username: "janet"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	third, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Equal(t, "janet", third[0].(*author).Username)
	assert.Equal(t, 4, f.conn.prepares)
	assert.Zero(t, exec.QueryDepth())
}

func TestSimpleExecutor_FlushingSelectAndStatementScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewSimpleExecutor(f.conf, f.tx())

	fresh := f.statement(t, "ns.selectAuthorFresh")
	for i := 0; i < 2; i++ {
		_, err := exec.Query(ctx, fresh, int64(2), mapping.DefaultRowBounds, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.conn.prepares)

	f.conf.Settings.LocalCacheScope = mapping.LocalCacheStatement
	selectAuthor := f.statement(t, "ns.selectAuthor")
	for i := 0; i < 2; i++ {
		_, err := exec.Query(ctx, selectAuthor, int64(2), mapping.DefaultRowBounds, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, f.conn.prepares)
}

func TestSimpleExecutor_CustomHandlerBypassesSessionCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewSimpleExecutor(f.conf, f.tx())
	selectAuthor := f.statement(t, "ns.selectAuthor")

	var seen []any
	handler := mapping.ResultHandlerFunc(func(rc mapping.ResultContext) { seen = append(seen, rc.ResultObject()) })
	_, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, handler)
	require.NoError(t, err)
	require.Len(t, seen, 1)

	list, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, f.conn.prepares)
}

func TestExecutor_FailedQueryLeavesNoPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	selectAuthor := f.statement(t, "ns.selectAuthor")

	handler := mapping.ResultHandlerFunc(func(mapping.ResultContext) { panic("handler failed") })
	assert.PanicsWithValue(t, "handler failed", func() {
		_, _ = exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, handler)
	})
	assert.Zero(t, exec.QueryDepth())

	list, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "jane", list[0].(*author).Username)

	src, err := mapping.ParseSQL("SELECT id FROM missing WHERE id = #{id}")
	require.NoError(t, err)
	broken := mapping.NewMappedStatement("ns.broken", mapping.CommandSelect, src)
	for i := 0; i < 2; i++ {
		_, err = exec.Query(ctx, broken, int64(2), mapping.DefaultRowBounds, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrQueryInProgress)
	}
	key, err := exec.CreateCacheKey(broken, int64(2), mapping.DefaultRowBounds, mustBound(t, broken, int64(2)))
	require.NoError(t, err)
	assert.False(t, exec.IsCached(broken, key))
	assert.Zero(t, exec.QueryDepth())

	require.NoError(t, exec.Commit(ctx, true))
	assert.Equal(t, 1, f.ns.Size(), "the depth is back to zero so the namespace cache is populated")
}

func mustBound(t *testing.T, ms *mapping.MappedStatement, parameter any) *mapping.BoundSql {
	t.Helper()
	b, err := ms.BoundSql(parameter)
	require.NoError(t, err)
	return b
}

func TestExecutor_Closed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx := transaction.NewSQLTransaction(f.db, transaction.Options{}, nil)
	exec := NewSimpleExecutor(f.conf, tx)

	require.NoError(t, exec.Close(ctx, true))
	assert.True(t, exec.IsClosed())
	require.NoError(t, exec.Close(ctx, false))

	_, err := exec.Query(ctx, f.statement(t, "ns.selectAuthor"), int64(1), mapping.DefaultRowBounds, nil)
	assert.True(t, IsClosed(err))
	assert.True(t, mapping.IsExecution(err))

	_, err = exec.Update(ctx, f.statement(t, "ns.updateAuthor"), &author{ID: 1})
	assert.True(t, IsClosed(err))
	assert.True(t, IsClosed(exec.Commit(ctx, true)))
	assert.NoError(t, exec.Rollback(ctx, true))

	_, err = tx.Conn(ctx)
	assert.ErrorIs(t, err, transaction.ErrTransactionClosed)
}

func TestExecutor_SelfReferentialNestedSelect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewSimpleExecutor(f.conf, f.tx())

	list, err := exec.Query(ctx, f.statement(t, "ns.selectNode"), int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)

	n := list[0].(*node)
	assert.Equal(t, "root", n.Name)
	assert.Same(t, n, n.Self)
	assert.Equal(t, 1, f.conn.prepares)
}

func TestExecutor_EagerNestedSelectUsesSessionCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewSimpleExecutor(f.conf, f.tx())

	authors, err := exec.Query(ctx, f.statement(t, "ns.selectAuthor"), int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)

	list, err := exec.Query(ctx, f.statement(t, "ns.selectBlog"), int64(5), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	b := list[0].(*blog)
	assert.Same(t, authors[0], b.Author)
	assert.Equal(t, 2, f.conn.prepares)
}

func TestExecutor_DeferLoadResolvesCachedResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewSimpleExecutor(f.conf, f.tx())
	selectAuthor := f.statement(t, "ns.selectAuthor")

	_, err := exec.Query(ctx, selectAuthor, int64(2), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)

	bs, err := selectAuthor.BoundSql(int64(2))
	require.NoError(t, err)
	key, err := exec.CreateCacheKey(selectAuthor, int64(2), mapping.DefaultRowBounds, bs)
	require.NoError(t, err)
	require.True(t, exec.IsCached(selectAuthor, key))

	b := &blog{}
	require.NoError(t, exec.DeferLoad(selectAuthor, f.conf.NewMetaObject(b), "Author", key, reflect.TypeOf(&author{})))
	assert.Equal(t, "john", b.Author.Username)
}

func TestExecutor_LazyLoadAfterClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewSimpleExecutor(f.conf, f.tx())

	list, err := exec.Query(ctx, f.statement(t, "ns.selectLazyBlog"), int64(5), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	b := list[0].(*lazyBlog)
	assert.False(t, b.Author.IsLoaded())
	require.NoError(t, exec.Close(ctx, false))

	a, err := b.Author.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jane", a.Username)
	assert.Equal(t, 1, f.conn.prepares, "the lazy load runs on its own transaction")
}

func TestReuseExecutor_PreparesOncePerSQL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewReuseExecutor(f.conf, f.tx())
	selectAuthor := f.statement(t, "ns.selectAuthor")

	for _, id := range []int64{1, 2} {
		list, err := exec.Query(ctx, selectAuthor, id, mapping.DefaultRowBounds, nil)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	assert.Equal(t, 1, f.conn.prepares)
	assert.Equal(t, 1, exec.Prepared())

	require.NoError(t, exec.Commit(ctx, true))
	assert.Zero(t, exec.Prepared())
}

func TestBatchExecutor_BuffersWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewBatchExecutor(f.conf, f.tx())
	insert := f.statement(t, "ns.insertAuthor")

	params := []*author{{Username: "ann"}, {Username: "bob"}}
	for _, p := range params {
		n, err := exec.Update(ctx, insert, p)
		require.NoError(t, err)
		assert.Equal(t, int64(BatchUpdateReturnValue), n)
	}
	assert.Equal(t, 2, exec.Pending())
	assert.Equal(t, 2, f.count(t, "author"))

	results, err := exec.FlushStatements(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []int64{1, 1}, results[0].UpdateCounts)
	assert.Len(t, results[0].Parameters, 2)
	assert.Equal(t, 4, f.count(t, "author"))
	assert.NotZero(t, params[0].ID)
	assert.NotEqual(t, params[0].ID, params[1].ID)
	assert.Equal(t, 1, f.conn.prepares)

	_, err = exec.Update(ctx, insert, &author{Username: "cat"})
	require.NoError(t, err)
	list, err := exec.Query(ctx, f.statement(t, "ns.selectAuthor"), int64(5), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1, "queries flush pending writes first")
	assert.Equal(t, "cat", list[0].(*author).Username)

	_, err = exec.Update(ctx, insert, &author{Username: "dan"})
	require.NoError(t, err)
	require.NoError(t, exec.Rollback(ctx, true))
	assert.Zero(t, exec.Pending())
	assert.Equal(t, 5, f.count(t, "author"))
}

func TestBatchExecutor_FailedFlush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewBatchExecutor(f.conf, f.tx())

	_, err := exec.Update(ctx, f.statement(t, "ns.insertAuthor"), &author{Username: "ok"})
	require.NoError(t, err)
	_, err = exec.Update(ctx, f.statement(t, "ns.updateAuthor"), &author{ID: 1, Username: "x"})
	require.NoError(t, err)
	_, err = exec.Update(ctx, f.statement(t, "ns.insertAuthorWithID"), &author{ID: 2, Username: "dup"})
	require.NoError(t, err)
	assert.Equal(t, 3, exec.Pending())

	_, err = exec.FlushStatements(ctx)
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "ns.insertAuthorWithID", batchErr.Statement)
	assert.Len(t, batchErr.Successful, 2, "a different statement starts a new batch")
	assert.True(t, mapping.IsExecution(err))
	assert.Zero(t, exec.Pending())
}

func TestCachingExecutor_SecondLevelCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	selectAuthor := f.statement(t, "ns.selectAuthor")

	first := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	list, err := first.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, f.conn.prepares)

	other := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	_, err = other.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.conn.prepares, "uncommitted results are not shared")

	require.NoError(t, first.Commit(ctx, true))
	assert.Equal(t, 1, f.ns.Size())

	third := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	cached, err := third.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.conn.prepares)
	assert.Equal(t, list[0], cached[0])
	assert.NotSame(t, list[0], cached[0], "read-write caches hand out copies")

	_, err = third.Update(ctx, f.statement(t, "ns.updateAuthor"), &author{ID: 1, Username: "janet"})
	require.NoError(t, err)
	require.NoError(t, third.Commit(ctx, true))
	assert.Zero(t, f.ns.Size())

	fourth := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	fresh, err := fourth.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Equal(t, "janet", fresh[0].(*author).Username)
	assert.Equal(t, 4, f.conn.prepares)
}

func TestCachingExecutor_BlockingCacheWithStatementScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.conf.Settings.LocalCacheScope = mapping.LocalCacheStatement

	blk, err := cache.NewBuilder("blk").Blocking(true).BlockingTimeout(200 * time.Millisecond).Build()
	require.NoError(t, err)
	src, err := mapping.ParseSQL("SELECT id, username FROM author WHERE id = #{id}")
	require.NoError(t, err)
	authorMap, err := f.conf.ResultMap("ns.author")
	require.NoError(t, err)
	selectAuthor := mapping.NewMappedStatement("blk.selectAuthor", mapping.CommandSelect, src,
		mapping.WithResultMaps(authorMap), mapping.WithCache(blk))
	require.NoError(t, f.conf.AddStatement(selectAuthor))

	exec := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	first, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	second, err := exec.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err, "the session does not wait on the latch its first miss holds")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.conn.prepares)
	require.NoError(t, exec.Commit(ctx, true))
	require.NoError(t, exec.Close(ctx, false))

	next := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	cached, err := next.Query(ctx, selectAuthor, int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Equal(t, first[0], cached[0])
	assert.Equal(t, 1, f.conn.prepares)
}

func TestCachingExecutor_NestedSelectsAreNotStored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)

	list, err := exec.Query(ctx, f.statement(t, "ns.selectBlog"), int64(5), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "jane", list[0].(*blog).Author.Username)
	assert.Equal(t, 2, f.conn.prepares)
	require.NoError(t, exec.Close(ctx, false))

	next := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)
	cached, err := next.Query(ctx, f.statement(t, "ns.selectBlog"), int64(5), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Equal(t, "jane", cached[0].(*blog).Author.Username)
	assert.Equal(t, 2, f.conn.prepares)

	_, err = next.Query(ctx, f.statement(t, "ns.selectAuthor"), int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, f.conn.prepares, "the nested author select was never stored")
}

func TestCachingExecutor_RollbackDiscardsStagedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)

	_, err := exec.Query(ctx, f.statement(t, "ns.selectAuthor"), int64(1), mapping.DefaultRowBounds, nil)
	require.NoError(t, err)
	require.NoError(t, exec.Rollback(ctx, true))
	require.NoError(t, exec.Close(ctx, false))
	assert.Zero(t, f.ns.Size())
}

func TestCachingExecutor_RejectsCachedOutParameters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := NewCachingExecutor(NewSimpleExecutor(f.conf, f.tx()), nil)

	_, err := exec.Query(ctx, f.statement(t, "ns.rename"), &author{ID: 1}, mapping.DefaultRowBounds, nil)
	assert.ErrorIs(t, err, ErrCachedOutParameters)
	assert.True(t, mapping.IsExecution(err))
	assert.Zero(t, f.conn.prepares)
}

func TestNew(t *testing.T) {
	f := newFixture(t)

	exec := New(f.conf, f.tx(), mapping.ExecutorBatch)
	caching, ok := exec.(*CachingExecutor)
	require.True(t, ok)
	assert.IsType(t, &BatchExecutor{}, caching.Delegate())

	f.conf.Settings.CacheEnabled = false
	f.conf.Settings.DefaultExecutorType = mapping.ExecutorReuse
	assert.IsType(t, &ReuseExecutor{}, New(f.conf, f.tx(), ""))
}
