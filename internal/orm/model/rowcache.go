package model

import (
	"context"

	"github.com/conduit-lang/orm/internal/orm/query"
)

// usesRowCache reports whether Find may be served from the row cache: the
// type opted in and the query carries nothing that changes which row a
// key resolves to
func (q *Query) usesRowCache() bool {
	t := q.typ
	if t == nil || !t.cacheable() {
		return false
	}
	if q.constrained || q.pivot || q.trashed != withoutTrashed || q.lock != query.LockNone {
		return false
	}
	return q.withoutScopes || t.desc.Scopes.Len() == 0
}

func (q *Query) findCached(ctx context.Context, id interface{}) (*Entity, error) {
	t := q.typ
	m := t.manager

	row, ok, err := m.rows.Get(ctx, t.desc.Table, id)
	if err != nil {
		m.logger.Warn("row cache read failed", zapType(t), zapKey(id), zapError(err))
	}
	if ok {
		e := t.hydrate(row)
		if e.Trashed() {
			return nil, nil
		}
		if len(q.includes) > 0 {
			if err := t.eagerLoad(ctx, []*Entity{e}, q.includes, q.constraints); err != nil {
				return nil, err
			}
		}
		return e, nil
	}

	e, err := q.Clone().Where(t.qualify(t.desc.PrimaryKey), query.OpEqual, id).First(ctx)
	if err != nil || e == nil {
		return e, err
	}
	if err := m.rows.Put(ctx, t.desc.Table, id, e.attrs.ToStorage(e.attrs.Attributes())); err != nil {
		m.logger.Warn("row cache write failed", zapType(t), zapKey(id), zapError(err))
	}
	return e, nil
}
