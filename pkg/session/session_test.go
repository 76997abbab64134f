package session

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/executor"
	"github.com/ammar0144/sqlmap/pkg/logging"
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

type fixture struct {
	db      *sql.DB
	factory *Factory
	ns      cache.Cache
	log     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, ddl := range []string{
		`CREATE TABLE author (id INTEGER PRIMARY KEY, username TEXT NOT NULL)`,
		`CREATE TABLE blog (id INTEGER PRIMARY KEY, title TEXT NOT NULL, author_id INTEGER)`,
		`INSERT INTO author (id, username) VALUES (1, 'jane'), (2, 'john')`,
		`INSERT INTO blog (id, title, author_id) VALUES (5, 'Go', 1)`,
	} {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}

	var out bytes.Buffer
	conf := mapping.NewConfiguration(&mapping.Environment{
		ID:                 "test",
		TransactionFactory: transaction.NewSQLFactory(db, nil),
	})
	conf.Logger = logging.NewWriter(&out, "info", 0)

	ns, err := cache.NewBuilder("ns").Build()
	require.NoError(t, err)
	require.NoError(t, conf.AddCache(ns))

	authorMap := mapping.MustResultMap("ns.author", reflect.TypeOf(author{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Username", Column: "username"},
	})
	blogMap := mapping.MustResultMap("ns.blog", reflect.TypeOf(blog{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Title", Column: "title"},
		{Property: "Author", NestedResultMapID: "ns.author", ColumnPrefix: "author_"},
	})
	require.NoError(t, conf.AddResultMap(authorMap))
	require.NoError(t, conf.AddResultMap(blogMap))

	add := func(id string, cmd mapping.SqlCommandType, text string, opts ...mapping.StatementOption) {
		src, err := mapping.ParseSQL(text)
		require.NoError(t, err)
		require.NoError(t, conf.AddStatement(mapping.NewMappedStatement(id, cmd, src, opts...)))
	}
	add("ns.selectBlogWithAuthor", mapping.CommandSelect,
		`SELECT b.id, b.title, a.id AS author_id, a.username AS author_username
		   FROM blog b JOIN author a ON a.id = b.author_id WHERE b.id = #{id}`,
		mapping.WithResultMaps(blogMap), mapping.WithCache(ns))
	add("ns.selectAuthors", mapping.CommandSelect, `SELECT id, username FROM author ORDER BY id`,
		mapping.WithResultMaps(authorMap))
	add("ns.selectAuthor", mapping.CommandSelect, `SELECT id, username FROM author WHERE id = #{id}`,
		mapping.WithResultMaps(authorMap))
	add("ns.insertAuthor", mapping.CommandInsert, `INSERT INTO author (username) VALUES (#{Username})`,
		mapping.WithGeneratedKeys("ID"))
	add("ns.deleteAuthor", mapping.CommandDelete, `DELETE FROM author WHERE id = #{id}`)
	add("ns.updateBlogTitle", mapping.CommandUpdate, `UPDATE blog SET title = #{title} WHERE id = #{id}`,
		mapping.WithCache(ns))

	factory, err := NewFactory(conf)
	require.NoError(t, err)
	return &fixture{db: db, factory: factory, ns: ns, log: &out}
}

func (f *fixture) open(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := f.factory.OpenSession(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestSession_TwoTierCaching(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	param := map[string]any{"id": 5}
	bounds := mapping.NewRowBounds(0, 10)

	first := f.open(t, Options{})
	list, err := first.SelectPage(ctx, "ns.selectBlogWithAuthor", param, bounds)
	require.NoError(t, err)
	require.Len(t, list, 1)
	b := list[0].(*blog)
	assert.Equal(t, "Go", b.Title)
	require.NotNil(t, b.Author)
	assert.Equal(t, "jane", b.Author.Username)

	again, err := first.SelectPage(ctx, "ns.selectBlogWithAuthor", param, bounds)
	require.NoError(t, err)
	assert.Same(t, b, again[0], "the session cache returns the same instance")
	assert.Zero(t, f.ns.Size(), "nothing is shared before commit")

	require.NoError(t, first.Commit(ctx, false))
	require.NoError(t, first.Close(ctx))
	assert.Equal(t, 1, f.ns.Size())

	// a change the engine does not see
	_, err = f.db.Exec(`UPDATE blog SET title = 'stale' WHERE id = 5`)
	require.NoError(t, err)

	second := f.open(t, Options{})
	cached, err := second.SelectPage(ctx, "ns.selectBlogWithAuthor", param, bounds)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, b, cached[0])
	assert.NotSame(t, b, cached[0])

	n, err := second.Update(ctx, "ns.updateBlogTitle", map[string]any{"id": 5, "title": "Go 2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, second.IsDirty())
	require.NoError(t, second.Commit(ctx, false))
	assert.False(t, second.IsDirty())
	assert.Zero(t, f.ns.Size())
	require.NoError(t, second.Close(ctx))

	third := f.open(t, Options{})
	fresh, err := third.SelectPage(ctx, "ns.selectBlogWithAuthor", param, bounds)
	require.NoError(t, err)
	assert.Equal(t, "Go 2", fresh[0].(*blog).Title)
	assert.Contains(t, f.log.String(), "FROM blog b JOIN author a")
}

func TestSession_SelectVariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.open(t, Options{AutoCommit: true})

	one, err := s.SelectOne(ctx, "ns.selectAuthor", map[string]any{"id": 2})
	require.NoError(t, err)
	assert.Equal(t, &author{ID: 2, Username: "john"}, one)

	none, err := s.SelectOne(ctx, "ns.selectAuthor", map[string]any{"id": 42})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.SelectOne(ctx, "ns.selectAuthors", nil)
	assert.ErrorIs(t, err, ErrTooManyResults)

	byID, err := s.SelectMap(ctx, "ns.selectAuthors", nil, "ID")
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "jane", byID[int64(1)].(*author).Username)

	authors, err := SelectList[*author](ctx, s, "ns.selectAuthors", nil)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "john", authors[1].Username)

	a, err := SelectOne[*author](ctx, s, "selectAuthor", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "jane", a.Username)

	_, err = SelectOne[*blog](ctx, s, "ns.selectAuthor", map[string]any{"id": 1})
	assert.True(t, mapping.IsMapping(err))

	var names []string
	err = s.Select(ctx, "ns.selectAuthors", nil, mapping.DefaultRowBounds,
		mapping.ResultHandlerFunc(func(rc mapping.ResultContext) {
			names = append(names, rc.ResultObject().(*author).Username)
		}))
	require.NoError(t, err)
	assert.Equal(t, []string{"jane", "john"}, names)

	_, err = s.SelectList(ctx, "ns.missing", nil)
	assert.True(t, mapping.IsConfiguration(err))
}

func TestSession_Cursor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.open(t, Options{AutoCommit: true})

	cursor, err := s.SelectCursor(ctx, "ns.selectAuthors", nil, mapping.DefaultRowBounds)
	require.NoError(t, err)
	require.True(t, cursor.Next(ctx))
	assert.Equal(t, "jane", cursor.Value().(*author).Username)

	require.NoError(t, s.Close(ctx))
	assert.False(t, cursor.IsOpen())
}

func TestSession_CloseRollsBackUncommittedWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s := f.open(t, Options{})
	a := &author{Username: "ann"}
	n, err := s.Insert(ctx, "ns.insertAuthor", a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotZero(t, a.ID)
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 2, f.count(t, "author"))

	_, err = s.SelectList(ctx, "ns.selectAuthors", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.NoError(t, s.Close(ctx))

	committed := f.open(t, Options{})
	_, err = committed.Delete(ctx, "ns.deleteAuthor", map[string]any{"id": 2})
	require.NoError(t, err)
	require.NoError(t, committed.Commit(ctx, false))
	require.NoError(t, committed.Close(ctx))
	assert.Equal(t, 1, f.count(t, "author"))
}

func TestSession_Batch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.open(t, Options{ExecutorType: mapping.ExecutorBatch, AutoCommit: true})

	for _, name := range []string{"ann", "bob"} {
		n, err := s.Insert(ctx, "ns.insertAuthor", &author{Username: name})
		require.NoError(t, err)
		assert.Equal(t, int64(executor.BatchUpdateReturnValue), n)
	}
	assert.Equal(t, 2, f.count(t, "author"))

	results, err := s.FlushStatements(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []int64{1, 1}, results[0].UpdateCounts)
	assert.Equal(t, 4, f.count(t, "author"))
}

func TestSession_OpenSessionOn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	conn, err := f.db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	s := f.factory.OpenSessionOn(conn, Options{})
	list, err := s.SelectList(ctx, "ns.selectAuthors", nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	require.NoError(t, s.Close(ctx))

	// the caller's connection stays usable
	require.NoError(t, conn.PingContext(ctx))
}

func TestNewFactory(t *testing.T) {
	_, err := NewFactory(nil)
	assert.True(t, mapping.IsConfiguration(err))

	conf := mapping.NewConfiguration(nil)
	f, err := NewFactory(conf)
	require.NoError(t, err)
	_, err = f.OpenSession(Options{})
	assert.True(t, mapping.IsConfiguration(err))

	conf.Settings.LocalCacheScope = "forever"
	_, err = NewFactory(conf)
	assert.True(t, mapping.IsConfiguration(err))
}

func TestWrapCollection(t *testing.T) {
	ids := []int{1, 2}
	assert.Equal(t, map[string]any{"list": ids, "collection": ids}, wrapCollection(ids))
	assert.Equal(t, map[string]any{"array": [2]int{1, 2}}, wrapCollection([2]int{1, 2}))
	assert.Equal(t, []byte("raw"), wrapCollection([]byte("raw")))
	assert.Nil(t, wrapCollection(nil))
	assert.Equal(t, 5, wrapCollection(5))
}
