package transaction

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a test database with a test table
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE test_records (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func insert(ctx context.Context, t *testing.T, db *sql.DB, name string) {
	t.Helper()
	tx, ok := FromContext(ctx)
	require.True(t, ok)
	_, err := tx.Tx().ExecContext(ctx, `INSERT INTO test_records (name) VALUES (?)`, name)
	require.NoError(t, err)
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM test_records`).Scan(&n))
	return n
}

func TestWithTransaction_Commit(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)

	err := mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
		insert(ctx, t, db, "a")
		insert(ctx, t, db, "b")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, count(t, db))
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)
	boom := errors.New("boom")

	err := mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
		insert(ctx, t, db, "a")
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db))
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)

	assert.Panics(t, func() {
		_ = mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
			insert(ctx, t, db, "a")
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, count(t, db))
}

func TestWithTransaction_NestedSavepoint(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)

	err := mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
		insert(ctx, t, db, "outer")

		inner := mgr.WithTransaction(ctx, func(ctx context.Context) error {
			tx, _ := FromContext(ctx)
			assert.Equal(t, 1, tx.Level())
			insert(ctx, t, db, "inner")
			return errors.New("inner failed")
		})
		assert.Error(t, inner)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestTransaction_DoubleCommit(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), ErrAlreadyFinished)
	assert.ErrorIs(t, tx.Rollback(ctx), ErrAlreadyFinished)
}

func TestFromContext_Missing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
