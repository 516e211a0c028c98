package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/conduit-lang/orm/internal/orm/query"
)

// InsertMany inserts rows directly, without hooks or timestamps
func (q *Query) InsertMany(ctx context.Context, rows []map[string]interface{}) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	n, err := q.typ.manager.conn.Table(q.typ.desc.Table).Insert(ctx, q.storageRows(rows)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s rows: %w", q.typ.desc.Name, err)
	}
	return n, nil
}

// Upsert inserts rows, updating updateColumns of rows that collide on
// uniqueBy. An empty updateColumns ignores collisions.
func (q *Query) Upsert(ctx context.Context, rows []map[string]interface{}, uniqueBy, updateColumns []string) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	n, err := q.typ.manager.conn.Table(q.typ.desc.Table).
		Upsert(ctx, q.storageRows(rows), uniqueBy, updateColumns)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %s rows: %w", q.typ.desc.Name, err)
	}
	return n, nil
}

// UpdateWhere updates every visible row matching the equality conditions
func (q *Query) UpdateWhere(ctx context.Context, conditions, values map[string]interface{}) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	set := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		set[q.typ.manager.opts.Naming.ToStorage(k)] = v
	}
	if q.typ.usesTimestamps() {
		if _, ok := set[q.typ.updatedAtColumn()]; !ok {
			set[q.typ.updatedAtColumn()] = q.typ.manager.freshTimestamp()
		}
	}
	return q.writeWhere(ctx, conditions, func(b query.Builder) (int64, error) {
		return b.Update(ctx, set)
	})
}

// DeleteWhere deletes every visible row matching the equality conditions.
// Types with soft deletes get their delete marker set instead.
func (q *Query) DeleteWhere(ctx context.Context, conditions map[string]interface{}) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	t := q.typ
	if t.usesSoftDeletes() {
		now := t.manager.freshTimestamp()
		set := map[string]interface{}{t.deletedAtColumn(): now}
		if t.usesTimestamps() {
			set[t.updatedAtColumn()] = now
		}
		return q.writeWhere(ctx, conditions, func(b query.Builder) (int64, error) {
			return b.Update(ctx, set)
		})
	}
	return q.writeWhere(ctx, conditions, func(b query.Builder) (int64, error) {
		return b.Delete(ctx)
	})
}

func (q *Query) writeWhere(ctx context.Context, conditions map[string]interface{}, write func(b query.Builder) (int64, error)) (int64, error) {
	t := q.typ
	scoped := q.Clone()
	scoped.lock = query.LockNone
	scoped.builder.GroupWhere()
	for _, column := range sortedColumns(conditions) {
		scoped.Where(t.qualify(t.manager.opts.Naming.ToStorage(column)), query.OpEqual, conditions[column])
	}

	b, err := scoped.prepared(ctx)
	if err != nil {
		return 0, err
	}

	var keys []interface{}
	if t.cacheable() {
		if keys, err = b.Pluck(ctx, t.qualify(t.desc.PrimaryKey)); err != nil {
			return 0, err
		}
	}

	n, err := write(b)
	if err != nil {
		return 0, fmt.Errorf("failed to write %s rows: %w", t.desc.Name, err)
	}
	for _, key := range keys {
		t.forgetCached(ctx, key)
	}
	return n, nil
}

func (q *Query) storageRows(rows []map[string]interface{}) []query.Row {
	naming := q.typ.manager.opts.Naming
	out := make([]query.Row, 0, len(rows))
	for _, row := range rows {
		r := make(query.Row, len(row))
		for k, v := range row {
			r[naming.ToStorage(k)] = v
		}
		out = append(out, r)
	}
	return out
}

func sortedColumns(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
