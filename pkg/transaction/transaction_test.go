package transaction

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE item (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM item`).Scan(&n))
	return n
}

func TestSQLTransaction_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	factory := NewSQLFactory(db, nil)

	tx := factory.NewTransaction(Options{})
	conn, err := tx.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "discarded")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, countItems(t, db))

	conn, err = tx.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "kept")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, countItems(t, db))

	require.NoError(t, tx.Close(ctx))
	_, err = tx.Conn(ctx)
	assert.ErrorIs(t, err, ErrTransactionClosed)
}

func TestSQLTransaction_CloseRollsBackOpenWork(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	tx := NewSQLTransaction(db, Options{}, nil)

	conn, err := tx.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "pending")
	require.NoError(t, err)

	require.NoError(t, tx.Close(ctx))
	assert.Equal(t, 0, countItems(t, db))
}

func TestSQLTransaction_AutoCommit(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	tx := NewSQLTransaction(db, Options{AutoCommit: true}, nil)

	conn, err := tx.Conn(ctx)
	require.NoError(t, err)
	assert.Same(t, db, conn)

	_, err = conn.ExecContext(ctx, `INSERT INTO item (name) VALUES (?)`, "direct")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 1, countItems(t, db))
}

func TestManaged(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	tx := ManagedFactory{Conn: db}.NewTransaction(Options{})

	conn, err := tx.Conn(ctx)
	require.NoError(t, err)
	assert.Same(t, db, conn)
	assert.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Rollback(ctx))
	assert.Zero(t, tx.Timeout())

	require.NoError(t, tx.Close(ctx))
	_, err = tx.Conn(ctx)
	assert.ErrorIs(t, err, ErrTransactionClosed)
}
