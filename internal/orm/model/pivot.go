package model

import (
	"context"
	"fmt"

	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/relationships"
	"github.com/conduit-lang/orm/internal/orm/schema"
)

// PivotEntry is a related id with the link-table attributes to store
type PivotEntry struct {
	ID         interface{}
	Attributes map[string]interface{}
}

// SyncChanges lists the related ids touched by Sync or Toggle
type SyncChanges struct {
	Attached []string `json:"attached"`
	Detached []string `json:"detached"`
	Updated  []string `json:"updated"`
}

// PivotRelation manipulates the link rows of one parent in a
// belongs-to-many relation
type PivotRelation struct {
	rel    *relation
	parent *Entity
}

// BelongsToMany returns the link-table operations of a belongs-to-many relation
func (e *Entity) BelongsToMany(name string) (*PivotRelation, error) {
	rel, err := e.typ.relation(name)
	if err != nil {
		return nil, err
	}
	if rel.def.Kind != schema.RelationBelongsToMany {
		return nil, &InvalidRelationError{
			Entity:   e.typ.desc.Name,
			Relation: name,
			Reason:   fmt.Sprintf("%s is not a belongs-to-many relation", rel.def.Kind),
		}
	}
	return &PivotRelation{rel: rel, parent: e}, nil
}

func (p *PivotRelation) parentKey() (interface{}, error) {
	key := p.parent.column(p.rel.def.ParentKey)
	if key == nil {
		return nil, fmt.Errorf("cannot use relation %s of %s: %s is not set",
			p.rel.name, p.parent.typ.desc.Name, p.rel.def.ParentKey)
	}
	return key, nil
}

// linkRows starts a builder over the parent's link rows
func (p *PivotRelation) linkRows(key interface{}) query.Builder {
	d := p.rel.def
	return p.parent.typ.manager.conn.Table(d.PivotTable).
		Where(d.PivotTable+"."+d.ForeignPivotKey, query.OpEqual, key)
}

// Get returns the related entities with their pivot maps
func (p *PivotRelation) Get(ctx context.Context) ([]*Entity, error) {
	key, err := p.parentKey()
	if err != nil {
		return nil, err
	}
	return p.rel.newQuery([]interface{}{key}).Get(ctx)
}

// IDs returns the currently linked related ids
func (p *PivotRelation) IDs(ctx context.Context) ([]interface{}, error) {
	key, err := p.parentKey()
	if err != nil {
		return nil, err
	}
	return p.linkRows(key).Pluck(ctx, p.rel.def.PivotTable+"."+p.rel.def.RelatedPivotKey)
}

// Attach inserts one link row per id. Existing links are not checked.
func (p *PivotRelation) Attach(ctx context.Context, ids []interface{}, attrs map[string]interface{}) error {
	entries := make([]PivotEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, PivotEntry{ID: id, Attributes: attrs})
	}
	return p.AttachEntries(ctx, entries)
}

// AttachEntries inserts one link row per entry with its own attributes
func (p *PivotRelation) AttachEntries(ctx context.Context, entries []PivotEntry) error {
	if len(entries) == 0 {
		return nil
	}
	key, err := p.parentKey()
	if err != nil {
		return err
	}

	d := p.rel.def
	rows := make([]query.Row, 0, len(entries))
	for _, entry := range entries {
		row := query.Row{d.ForeignPivotKey: key, d.RelatedPivotKey: entry.ID}
		for k, v := range entry.Attributes {
			row[k] = v
		}
		p.touch(row, true)
		rows = append(rows, row)
	}

	m := p.parent.typ.manager
	if _, err := m.conn.Table(d.PivotTable).Insert(ctx, rows...); err != nil {
		return fmt.Errorf("failed to attach %s: %w", p.rel.name, err)
	}
	p.parent.ForgetRelation(p.rel.name)
	return nil
}

// Detach deletes the link rows of ids, or every link row of the parent
// when no id is given
func (p *PivotRelation) Detach(ctx context.Context, ids ...interface{}) (int64, error) {
	key, err := p.parentKey()
	if err != nil {
		return 0, err
	}
	b := p.linkRows(key)
	if len(ids) > 0 {
		b.WhereIn(p.rel.def.PivotTable+"."+p.rel.def.RelatedPivotKey, ids)
	}
	n, err := b.Delete(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to detach %s: %w", p.rel.name, err)
	}
	p.parent.ForgetRelation(p.rel.name)
	return n, nil
}

// UpdateExisting updates the attributes of one existing link row
func (p *PivotRelation) UpdateExisting(ctx context.Context, id interface{}, attrs map[string]interface{}) (int64, error) {
	key, err := p.parentKey()
	if err != nil {
		return 0, err
	}
	values := make(query.Row, len(attrs)+1)
	for k, v := range attrs {
		values[k] = v
	}
	p.touch(values, false)
	if len(values) == 0 {
		return 0, nil
	}

	n, err := p.linkRows(key).
		Where(p.rel.def.PivotTable+"."+p.rel.def.RelatedPivotKey, query.OpEqual, id).
		Update(ctx, values)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s link: %w", p.rel.name, err)
	}
	p.parent.ForgetRelation(p.rel.name)
	return n, nil
}

// Sync makes ids the exact linked set
func (p *PivotRelation) Sync(ctx context.Context, ids []interface{}) (*SyncChanges, error) {
	entries := make([]PivotEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, PivotEntry{ID: id})
	}
	return p.SyncWith(ctx, entries, true)
}

// SyncWithoutDetaching links the entries without unlinking anything
func (p *PivotRelation) SyncWithoutDetaching(ctx context.Context, entries []PivotEntry) (*SyncChanges, error) {
	return p.SyncWith(ctx, entries, false)
}

// SyncWith links the target entries: ids no longer present are detached
// when detaching is set, new ids are attached and ids already linked get
// their attributes updated. A repeated call attaches and detaches nothing.
func (p *PivotRelation) SyncWith(ctx context.Context, entries []PivotEntry, detaching bool) (*SyncChanges, error) {
	changes := &SyncChanges{Attached: []string{}, Detached: []string{}, Updated: []string{}}

	err := p.parent.typ.manager.Transaction(ctx, func(ctx context.Context) error {
		current, err := p.IDs(ctx)
		if err != nil {
			return err
		}
		linked := make(map[string]bool, len(current))
		for _, id := range current {
			if s, err := relationships.KeyString(id); err == nil {
				linked[s] = true
			}
		}

		target := make(map[string]bool, len(entries))
		var attach []PivotEntry
		for _, entry := range entries {
			s, err := relationships.KeyString(entry.ID)
			if err != nil {
				return fmt.Errorf("sync %s: %w", p.rel.name, err)
			}
			if target[s] {
				continue
			}
			target[s] = true

			if !linked[s] {
				attach = append(attach, entry)
				changes.Attached = append(changes.Attached, s)
				continue
			}
			if len(entry.Attributes) > 0 {
				n, err := p.UpdateExisting(ctx, entry.ID, entry.Attributes)
				if err != nil {
					return err
				}
				if n > 0 {
					changes.Updated = append(changes.Updated, s)
				}
			}
		}

		if detaching {
			var detach []interface{}
			for _, id := range current {
				s, err := relationships.KeyString(id)
				if err != nil || target[s] {
					continue
				}
				detach = append(detach, id)
				changes.Detached = append(changes.Detached, s)
			}
			if len(detach) > 0 {
				if _, err := p.Detach(ctx, detach...); err != nil {
					return err
				}
			}
		}

		return p.AttachEntries(ctx, attach)
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// Toggle detaches each linked id and attaches each unlinked one
func (p *PivotRelation) Toggle(ctx context.Context, ids []interface{}) (*SyncChanges, error) {
	changes := &SyncChanges{Attached: []string{}, Detached: []string{}, Updated: []string{}}

	err := p.parent.typ.manager.Transaction(ctx, func(ctx context.Context) error {
		current, err := p.IDs(ctx)
		if err != nil {
			return err
		}
		linked := make(map[string]bool, len(current))
		for _, id := range current {
			if s, err := relationships.KeyString(id); err == nil {
				linked[s] = true
			}
		}

		var detach, attach []interface{}
		for _, id := range relationships.DistinctKeys(ids) {
			s, _ := relationships.KeyString(id)
			if linked[s] {
				detach = append(detach, id)
				changes.Detached = append(changes.Detached, s)
			} else {
				attach = append(attach, id)
				changes.Attached = append(changes.Attached, s)
			}
		}

		if len(detach) > 0 {
			if _, err := p.Detach(ctx, detach...); err != nil {
				return err
			}
		}
		return p.Attach(ctx, attach, nil)
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// touch stamps pivot timestamps when the relation keeps them
func (p *PivotRelation) touch(row query.Row, creating bool) {
	if !p.rel.def.PivotTimestamps {
		return
	}
	t := p.rel.related
	now := t.manager.freshTimestamp()
	if _, ok := row[t.updatedAtColumn()]; !ok {
		row[t.updatedAtColumn()] = now
	}
	if creating {
		if _, ok := row[t.createdAtColumn()]; !ok {
			row[t.createdAtColumn()] = now
		}
	}
}
