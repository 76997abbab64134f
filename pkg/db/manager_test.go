package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/session"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

func validConfig() *Config {
	c := DefaultConfig()
	c.Database = "app"
	c.Username = "app"
	c.Password = "secret"
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "missing host", modify: func(c *Config) { c.Host = "" }, wantErr: "host is required"},
		{name: "bad port", modify: func(c *Config) { c.Port = 70000 }, wantErr: "port must be between"},
		{name: "missing database", modify: func(c *Config) { c.Database = "" }, wantErr: "name is required"},
		{name: "missing username", modify: func(c *Config) { c.Username = "" }, wantErr: "username is required"},
		{name: "no connections", modify: func(c *Config) { c.MaxOpenConns = 0 }, wantErr: "max_open_conns"},
		{name: "idle above open", modify: func(c *Config) { c.MaxIdleConns = 30 }, wantErr: "max_idle_conns"},
		{name: "negative timeout", modify: func(c *Config) { c.QueryTimeout = -time.Second }, wantErr: "query_timeout"},
		{
			name: "missing ca file",
			modify: func(c *Config) {
				c.SSL = SSLConfig{Enabled: true, CAFile: filepath.Join(t.TempDir(), "ca.pem")}
			},
			wantErr: "CA file not accessible",
		},
		{
			name:    "cert without key",
			modify:  func(c *Config) { c.SSL = SSLConfig{Enabled: true, CertFile: "client.pem"} },
			wantErr: "provided together",
		},
		{
			name:   "skip verify ignores files",
			modify: func(c *Config) { c.SSL = SSLConfig{Enabled: true, SkipVerify: true, CAFile: "missing.pem"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	c := validConfig()
	dsn, err := c.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:secret@tcp(localhost:3306)/app?")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "parseTime=true")

	c.SSL = SSLConfig{Enabled: true, SkipVerify: true}
	dsn, err = c.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "tls=skip-verify")
}

func TestParseLocation(t *testing.T) {
	assert.Equal(t, time.UTC, parseLocation(""))
	assert.Equal(t, time.UTC, parseLocation("Not/AZone"))
	assert.Equal(t, "Europe/Berlin", parseLocation("Europe/Berlin").String())
}

func TestNewManager_RejectsInvalidConfig(t *testing.T) {
	_, err := NewManager(nil, nil)
	assert.Error(t, err)

	c := validConfig()
	c.Host = ""
	_, err = NewManager(c, nil)
	assert.ErrorContains(t, err, "invalid config")
}

// newTestManager runs gorm over a sqlite handle. Statements are plain SQL,
// so the mysql dialector never generates anything sqlite cannot run.
func newTestManager(t *testing.T) (*Manager, *sql.DB) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "db.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE item (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	cfg := validConfig()
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	m, err := NewManagerWithDialector(cfg, mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), nil)
	require.NoError(t, err)
	return m, sqlDB
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM item`).Scan(&n))
	return n
}

func TestManager_PoolAndStats(t *testing.T) {
	m, sqlDB := newTestManager(t)
	require.NoError(t, m.Ping(context.Background()))

	got, err := m.SqlDB()
	require.NoError(t, err)
	assert.Same(t, sqlDB, got)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
	assert.Equal(t, "app", m.Config().Database)
	assert.NotNil(t, m.DB())
}

func TestTransaction_CommitRollbackClose(t *testing.T) {
	ctx := context.Background()
	m, sqlDB := newTestManager(t)

	tx := m.TransactionFactory().NewTransaction(transaction.Options{})
	assert.Equal(t, 30*time.Second, tx.Timeout())

	conn, err := tx.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "discarded")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, countItems(t, sqlDB))

	conn, err = tx.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "kept")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, countItems(t, sqlDB))

	conn, err = tx.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "open")
	require.NoError(t, err)
	require.NoError(t, tx.Close(ctx))
	assert.Equal(t, 1, countItems(t, sqlDB))

	_, err = tx.Conn(ctx)
	assert.ErrorIs(t, err, transaction.ErrTransactionClosed)
	assert.ErrorIs(t, tx.Commit(ctx), transaction.ErrTransactionClosed)
	assert.NoError(t, tx.Close(ctx))
}

func TestTransaction_AutoCommit(t *testing.T) {
	ctx := context.Background()
	m, sqlDB := newTestManager(t)

	tx := m.TransactionFactory().NewTransaction(transaction.Options{AutoCommit: true, Timeout: time.Second})
	assert.Equal(t, time.Second, tx.Timeout())

	conn, err := tx.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "auto")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 1, countItems(t, sqlDB))
}

type item struct {
	ID   int64
	Name string
}

func TestManager_Environment(t *testing.T) {
	ctx := context.Background()
	m, sqlDB := newTestManager(t)

	conf := mapping.NewConfiguration(m.Environment("gorm"))
	itemMap := mapping.MustResultMap("items.item", reflect.TypeOf(item{}), []*mapping.ResultMapping{
		{Property: "ID", Column: "id", Flags: mapping.FlagID},
		{Property: "Name", Column: "name"},
	})
	require.NoError(t, conf.AddResultMap(itemMap))
	for _, st := range []struct {
		id   string
		cmd  mapping.SqlCommandType
		text string
		opts []mapping.StatementOption
	}{
		{"items.insert", mapping.CommandInsert, `INSERT INTO item (name) VALUES (#{Name})`, nil},
		{"items.all", mapping.CommandSelect, `SELECT id, name FROM item ORDER BY id`, []mapping.StatementOption{mapping.WithResultMaps(itemMap)}},
	} {
		src, err := mapping.ParseSQL(st.text)
		require.NoError(t, err)
		require.NoError(t, conf.AddStatement(mapping.NewMappedStatement(st.id, st.cmd, src, st.opts...)))
	}

	factory, err := session.NewFactory(conf)
	require.NoError(t, err)
	s, err := factory.OpenSession(session.Options{})
	require.NoError(t, err)

	n, err := s.Insert(ctx, "items.insert", &item{Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, s.Commit(ctx, false))
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, countItems(t, sqlDB))

	s, err = factory.OpenSession(session.Options{})
	require.NoError(t, err)
	defer s.Close(ctx)
	items, err := session.SelectList[*item](ctx, s, "items.all", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "first", items[0].Name)
}
