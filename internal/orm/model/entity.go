package model

import (
	"context"
	"encoding/json"

	"github.com/conduit-lang/orm/internal/orm/attributes"
)

// PivotKey is the reserved relation-cache key holding link-table columns
// on entities loaded through a belongs-to-many relation
const PivotKey = "pivot"

// Entity is one in-memory record. It is composed of its type, its
// attribute store, its persistence flag and its relation cache, and is not
// safe for concurrent use.
type Entity struct {
	typ       *Type
	attrs     *attributes.Store
	exists    bool
	relations map[string]interface{}
}

// Type returns the entity type
func (e *Entity) Type() *Type {
	return e.typ
}

// Exists reports whether the entity has been persisted
func (e *Entity) Exists() bool {
	return e.exists
}

// Get returns the user-facing value of an attribute
func (e *Entity) Get(key string) interface{} {
	return e.attrs.Get(key)
}

// Value returns the user-facing value of an attribute, reporting cast failures
func (e *Entity) Value(key string) (interface{}, error) {
	return e.attrs.Value(key)
}

// Set assigns one attribute without the fillable check
func (e *Entity) Set(key string, value interface{}) error {
	return e.attrs.Set(key, value)
}

// Fill assigns attributes under the mass assignment policy
func (e *Entity) Fill(attrs map[string]interface{}) error {
	return e.attrs.Fill(attrs, e.typ.manager.fillPolicy())
}

// ForceFill assigns attributes bypassing the fillable check
func (e *Entity) ForceFill(attrs map[string]interface{}) error {
	return e.attrs.ForceFill(attrs)
}

// Attributes returns a copy of the raw attribute map
func (e *Entity) Attributes() map[string]interface{} {
	return e.attrs.Attributes()
}

// Dirty returns the attributes changed since the last sync
func (e *Entity) Dirty() map[string]interface{} {
	return e.attrs.Dirty()
}

// IsDirty reports whether the given attributes, or any attribute, changed
func (e *Entity) IsDirty(keys ...string) bool {
	return e.attrs.IsDirty(keys...)
}

// Original returns the last synced value of an attribute
func (e *Entity) Original(key string) (interface{}, bool) {
	return e.attrs.Original(key)
}

// SyncOriginal makes the current attributes the clean snapshot
func (e *Entity) SyncOriginal() {
	e.attrs.SyncOriginal()
}

// Key returns the primary key value
func (e *Entity) Key() interface{} {
	v, _ := e.attrs.Raw(e.attrs.Key(e.typ.desc.PrimaryKey))
	return v
}

// column returns the raw value stored for a storage column
func (e *Entity) column(name string) interface{} {
	v, _ := e.attrs.Raw(e.attrs.Key(name))
	return v
}

// Trashed reports whether the entity is soft deleted
func (e *Entity) Trashed() bool {
	return e.typ.usesSoftDeletes() && e.column(e.typ.deletedAtColumn()) != nil
}

// Relation returns a loaded relation without querying
func (e *Entity) Relation(name string) (interface{}, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// RelationLoaded reports whether a relation is cached
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// SetRelation stores a relation value in the cache
func (e *Entity) SetRelation(name string, value interface{}) {
	e.relations[name] = value
}

// ForgetRelation drops a cached relation
func (e *Entity) ForgetRelation(name string) {
	delete(e.relations, name)
}

// Relations returns a copy of the relation cache
func (e *Entity) Relations() map[string]interface{} {
	out := make(map[string]interface{}, len(e.relations))
	for k, v := range e.relations {
		out[k] = v
	}
	return out
}

// Pivot returns the link-table columns of an entity loaded through a
// belongs-to-many relation
func (e *Entity) Pivot() map[string]interface{} {
	p, _ := e.relations[PivotKey].(map[string]interface{})
	return p
}

// One loads a belongs-to or has-one relation
func (e *Entity) One(ctx context.Context, name string) (*Entity, error) {
	v, err := e.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	related, _ := v.(*Entity)
	return related, nil
}

// Many loads a has-many or belongs-to-many relation
func (e *Entity) Many(ctx context.Context, name string) ([]*Entity, error) {
	v, err := e.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	related, _ := v.([]*Entity)
	return related, nil
}

// ToMap returns the serializable form honouring the type's hidden and
// visible lists, including loaded relations
func (e *Entity) ToMap() map[string]interface{} {
	desc := e.typ.desc
	out := e.attrs.ToMap(desc.Hidden, desc.Visible)

	for name, value := range e.relations {
		if name != PivotKey && !attributes.Visible(name, desc.Hidden, desc.Visible) {
			continue
		}
		switch v := value.(type) {
		case *Entity:
			if v == nil {
				out[name] = nil
			} else {
				out[name] = v.ToMap()
			}
		case []*Entity:
			items := make([]map[string]interface{}, 0, len(v))
			for _, item := range v {
				items = append(items, item.ToMap())
			}
			out[name] = items
		default:
			out[name] = v
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

// snapshot copies the entity for async listeners
func (e *Entity) snapshot() *Entity {
	return &Entity{
		typ:       e.typ,
		attrs:     e.attrs.Clone(),
		exists:    e.exists,
		relations: e.Relations(),
	}
}
