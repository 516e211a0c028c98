package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

func init() {
	gob.Register(time.Time{})
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// RowCache caches single rows by table and primary key
type RowCache struct {
	store Store
	ttl   time.Duration
}

// NewRowCache creates a row cache over store
func NewRowCache(store Store, ttl time.Duration) *RowCache {
	return &RowCache{store: store, ttl: ttl}
}

// Key builds the cache key of one row
func Key(table string, id interface{}) string {
	return "row:" + table + ":" + cast.ToString(id)
}

// Get returns the cached row, or ok=false on a miss
func (c *RowCache) Get(ctx context.Context, table string, id interface{}) (map[string]interface{}, bool, error) {
	data, err := c.store.Get(ctx, Key(table, id))
	if err != nil {
		if IsMiss(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var row map[string]interface{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&row); err != nil {
		// an undecodable entry is dropped and treated as a miss
		_ = c.store.Delete(ctx, Key(table, id))
		return nil, false, nil
	}
	return row, true, nil
}

// Put stores a row
func (c *RowCache) Put(ctx context.Context, table string, id interface{}, row map[string]interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(row); err != nil {
		return fmt.Errorf("failed to encode row %s: %w", Key(table, id), err)
	}
	return c.store.Set(ctx, Key(table, id), buf.Bytes(), c.ttl)
}

// Forget removes a row
func (c *RowCache) Forget(ctx context.Context, table string, id interface{}) error {
	return c.store.Delete(ctx, Key(table, id))
}
