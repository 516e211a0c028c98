package model

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/conduit-lang/orm/internal/orm/attributes"
	"github.com/conduit-lang/orm/internal/orm/hooks"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/validation"
)

// Save inserts a transient entity or updates the dirty attributes of a
// persisted one. It returns false without an error when a hook cancels or
// when an unlocked update matched no row.
func (e *Entity) Save(ctx context.Context) (bool, error) {
	t := e.typ

	if t.usesTimestamps() {
		if err := e.touchTimestamps(); err != nil {
			return false, err
		}
	}

	op := validation.OperationUpdate
	if !e.exists {
		op = validation.OperationCreate
	}
	if err := e.validate(ctx, op); err != nil {
		return false, err
	}

	if e.exists {
		return e.performUpdate(ctx)
	}
	return e.performInsert(ctx)
}

// touchTimestamps stamps updated_at on every save, and created_at on insert
// unless the caller already set it
func (e *Entity) touchTimestamps() error {
	t := e.typ
	now := t.manager.freshTimestamp()

	if err := e.attrs.Set(e.attrs.Key(t.updatedAtColumn()), now); err != nil {
		return err
	}
	if !e.exists {
		created := e.attrs.Key(t.createdAtColumn())
		if !e.attrs.IsDirty(created) {
			if err := e.attrs.Set(created, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Entity) validate(ctx context.Context, op validation.Operation) error {
	m := e.typ.manager
	if !m.cfg.Validation.Enabled {
		return nil
	}
	rules := e.typ.desc.RulesFor(op)
	if len(rules) == 0 {
		return nil
	}
	return m.validator.Validate(ctx, e.typ.desc.Name, e.attrs.Attributes(), rules, op)
}

func (e *Entity) performInsert(ctx context.Context) (bool, error) {
	t := e.typ
	if t.events.Dispatch(ctx, hooks.Creating, e) == hooks.Cancel {
		return false, nil
	}
	if t.events.Dispatch(ctx, hooks.Saving, e) == hooks.Cancel {
		return false, nil
	}

	pk := t.desc.PrimaryKey
	pkKey := e.attrs.Key(pk)
	incrementing := t.desc.IsIncrementing()

	if !incrementing && e.Key() == nil {
		key, err := generateKey(t)
		if err != nil {
			return false, err
		}
		if err := e.attrs.Set(pkKey, key); err != nil {
			return false, err
		}
	}

	row := e.attrs.ToStorage(e.attrs.Attributes())
	b := t.manager.conn.Table(t.desc.Table)

	if incrementing {
		id, err := b.InsertGetID(ctx, row, pk)
		if err != nil {
			return false, fmt.Errorf("failed to insert %s: %w", t.desc.Name, err)
		}
		if err := e.attrs.Put(pkKey, id, false); err != nil {
			return false, err
		}
	} else if _, err := b.Insert(ctx, row); err != nil {
		return false, fmt.Errorf("failed to insert %s: %w", t.desc.Name, err)
	}

	e.exists = true
	e.attrs.SyncOriginal()
	t.forgetCached(ctx, e.Key())

	t.events.Dispatch(ctx, hooks.Saved, e)
	t.events.Dispatch(ctx, hooks.Created, e)
	return true, nil
}

func (e *Entity) performUpdate(ctx context.Context) (bool, error) {
	t := e.typ
	if !e.attrs.IsDirty() {
		return true, nil
	}

	if t.events.Dispatch(ctx, hooks.Updating, e) == hooks.Cancel {
		return false, nil
	}
	if t.events.Dispatch(ctx, hooks.Saving, e) == hooks.Cancel {
		return false, nil
	}
	// listeners may have reverted every change
	if !e.attrs.IsDirty() {
		return true, nil
	}

	key := e.originalKey()
	b := t.manager.conn.Table(t.desc.Table).
		Where(t.qualify(t.desc.PrimaryKey), query.OpEqual, key)
	t.desc.Scopes.Apply(ctx, b, nil)

	lockColumn := t.desc.LockColumn
	var lockKey string
	var lockOriginal interface{}
	if lockColumn != "" {
		lockKey = e.attrs.Key(lockColumn)
		lockOriginal, _ = e.attrs.Original(lockKey)
		if lockOriginal == nil {
			b.WhereNull(t.qualify(lockColumn))
		} else {
			b.Where(t.qualify(lockColumn), query.OpEqual, lockOriginal)
		}
		next, err := e.nextLockValue(lockColumn, lockOriginal)
		if err != nil {
			return false, err
		}
		if err := e.attrs.Put(lockKey, next, true); err != nil {
			return false, err
		}
	}

	restoreLock := func() {
		if lockColumn != "" {
			_ = e.attrs.Put(lockKey, lockOriginal, true)
		}
	}

	affected, err := b.Update(ctx, e.attrs.ToStorage(e.attrs.Dirty()))
	if err != nil {
		restoreLock()
		return false, fmt.Errorf("failed to update %s: %w", t.desc.Name, err)
	}
	if affected == 0 {
		restoreLock()
		if lockColumn != "" {
			return false, &OptimisticLockError{
				Entity: t.desc.Name,
				Table:  t.desc.Table,
				Key:    key,
				Column: lockColumn,
			}
		}
		return false, nil
	}

	e.attrs.SyncOriginal()
	t.forgetCached(ctx, key)

	t.events.Dispatch(ctx, hooks.Saved, e)
	t.events.Dispatch(ctx, hooks.Updated, e)
	return true, nil
}

// originalKey is the primary key as last persisted
func (e *Entity) originalKey() interface{} {
	if v, ok := e.attrs.Original(e.attrs.Key(e.typ.desc.PrimaryKey)); ok && v != nil {
		return v
	}
	return e.Key()
}

// nextLockValue advances a lock column: a timestamp lock gets the current
// time, a numeric lock is incremented
func (e *Entity) nextLockValue(column string, current interface{}) (interface{}, error) {
	t := e.typ
	if t.usesTimestamps() && column == t.updatedAtColumn() {
		return t.manager.freshTimestamp(), nil
	}
	if c, ok := t.desc.Casts[e.attrs.Key(column)]; ok {
		switch c.Kind {
		case attributes.KindDatetime, attributes.KindTimestamp, attributes.KindDate:
			return t.manager.freshTimestamp(), nil
		}
	}
	if current == nil {
		return int64(1), nil
	}
	n, err := cast.ToInt64E(current)
	if err != nil {
		return nil, fmt.Errorf("lock column %s of %s is not numeric: %w", column, t.desc.Name, err)
	}
	return n + 1, nil
}

// Delete soft deletes the entity when the type uses soft deletes and
// removes its row otherwise
func (e *Entity) Delete(ctx context.Context) (bool, error) {
	t := e.typ
	if !e.exists {
		return false, nil
	}
	if t.events.Dispatch(ctx, hooks.Deleting, e) == hooks.Cancel {
		return false, nil
	}

	if t.usesSoftDeletes() {
		deletedKey := e.attrs.Key(t.deletedAtColumn())
		previous, _ := e.attrs.Raw(deletedKey)
		if err := e.attrs.Set(deletedKey, t.manager.freshTimestamp()); err != nil {
			return false, err
		}
		ok, err := e.Save(ctx)
		if err != nil || !ok {
			_ = e.attrs.Set(deletedKey, previous)
			return false, err
		}
	} else {
		affected, err := e.deleteRow(ctx)
		if err != nil {
			return false, err
		}
		if affected == 0 {
			return false, nil
		}
		e.exists = false
	}

	t.events.Dispatch(ctx, hooks.Deleted, e)
	return true, nil
}

// ForceDelete removes the row regardless of soft deletes. No hooks run.
func (e *Entity) ForceDelete(ctx context.Context) (bool, error) {
	if !e.exists {
		return false, nil
	}
	affected, err := e.deleteRow(ctx)
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	e.exists = false
	return true, nil
}

func (e *Entity) deleteRow(ctx context.Context) (int64, error) {
	t := e.typ
	key := e.originalKey()
	affected, err := t.manager.conn.Table(t.desc.Table).
		Where(t.qualify(t.desc.PrimaryKey), query.OpEqual, key).
		Delete(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", t.desc.Name, err)
	}
	t.forgetCached(ctx, key)
	return affected, nil
}

// Restore clears the soft delete marker and saves
func (e *Entity) Restore(ctx context.Context) (bool, error) {
	t := e.typ
	if !t.usesSoftDeletes() {
		return false, fmt.Errorf("cannot restore %s: %w", t.desc.Name, ErrSoftDeletesDisabled)
	}

	deletedKey := e.attrs.Key(t.deletedAtColumn())
	previous, _ := e.attrs.Raw(deletedKey)
	if err := e.attrs.Set(deletedKey, nil); err != nil {
		return false, err
	}

	if t.events.Dispatch(ctx, hooks.Restoring, e) == hooks.Cancel {
		_ = e.attrs.Set(deletedKey, previous)
		return false, nil
	}

	ok, err := e.Save(ctx)
	if err != nil || !ok {
		_ = e.attrs.Set(deletedKey, previous)
		return false, err
	}

	t.events.Dispatch(ctx, hooks.Restored, e)
	return true, nil
}

// Refresh reloads the attributes from the store, trashed rows included,
// and drops cached relations
func (e *Entity) Refresh(ctx context.Context) error {
	t := e.typ
	if !e.exists {
		return nil
	}
	fresh, err := t.Query().WithoutGlobalScopes().WithTrashed().
		Where(t.qualify(t.desc.PrimaryKey), query.OpEqual, e.originalKey()).
		First(ctx)
	if err != nil {
		return err
	}
	if fresh == nil {
		return &ModelNotFoundError{Entity: t.desc.Name, Table: t.desc.Table, IDs: []interface{}{e.originalKey()}}
	}
	e.attrs = fresh.attrs
	e.relations = make(map[string]interface{})
	return nil
}
