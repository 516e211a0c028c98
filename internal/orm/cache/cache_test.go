package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, DefaultOptions())
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr(), Options: DefaultOptions()})
	require.NoError(t, err)
	defer store.Close()
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: "localhost:99999"})
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := setupTestRedis(t)

	_, err := store.Get(ctx, "missing")
	assert.True(t, IsMiss(err))

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	assert.True(t, mr.Exists("orm:a"))
	assert.Equal(t, DefaultOptions().DefaultTTL, mr.TTL("orm:b"))

	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	assert.True(t, IsMiss(err))

	require.NoError(t, mr.Set("other", "x"))
	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("orm:b"))
	assert.True(t, mr.Exists("other"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(DefaultOptions())
	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.Get(ctx, "missing")
	assert.True(t, IsMiss(err))

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Second))
	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	now = now.Add(2 * time.Second)
	_, err = store.Get(ctx, "a")
	assert.True(t, IsMiss(err))

	require.NoError(t, store.Set(ctx, "b", []byte("2"), -1))
	require.NoError(t, store.Delete(ctx, "b"))
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))
	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Len())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, store.Set(cancelled, "d", nil, 0))
}

func TestRowCache(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestRedis(t)
	rows := NewRowCache(store, time.Minute)

	_, ok, err := rows.Get(ctx, "users", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, rows.Put(ctx, "users", 1, map[string]interface{}{
		"id":         int64(1),
		"name":       "Ada",
		"created_at": created,
		"bio":        nil,
	}))

	row, ok, err := rows.Get(ctx, "users", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", row["name"])
	assert.Equal(t, int64(1), row["id"])
	assert.True(t, created.Equal(row["created_at"].(time.Time)))

	require.NoError(t, rows.Forget(ctx, "users", 1))
	_, ok, err = rows.Get(ctx, "users", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRowCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(DefaultOptions())
	rows := NewRowCache(store, 0)

	require.NoError(t, store.Set(ctx, Key("users", 9), []byte("not gob"), 0))
	_, ok, err := rows.Get(ctx, "users", 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}
