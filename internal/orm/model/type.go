package model

import (
	"context"

	"github.com/conduit-lang/orm/internal/orm/attributes"
	"github.com/conduit-lang/orm/internal/orm/hooks"
	"github.com/conduit-lang/orm/internal/orm/schema"
)

// Type is a registered entity type: its descriptor plus its event bus
type Type struct {
	manager *Manager
	desc    *schema.EntityType
	events  *hooks.Dispatcher[*Entity]
}

// Name returns the entity type name
func (t *Type) Name() string {
	return t.desc.Name
}

// Table returns the backing table
func (t *Type) Table() string {
	return t.desc.Table
}

// Descriptor returns the declarative descriptor
func (t *Type) Descriptor() *schema.EntityType {
	return t.desc
}

// On registers a lifecycle listener
func (t *Type) On(event hooks.Event, fn hooks.Listener[*Entity]) {
	t.events.Listen(event, fn)
}

// OnAsync registers a listener run on the async queue after a
// non-cancelable event. It receives a snapshot of the entity.
func (t *Type) OnAsync(event hooks.Event, name string, fn hooks.AsyncListener[*Entity]) error {
	return t.events.ListenAsync(event, name, fn)
}

// Observe attaches every hook method the observer implements
func (t *Type) Observe(observer interface{}) int {
	return t.events.Observe(observer)
}

// AddGlobalScope registers a scope applied to every query of the type
func (t *Type) AddGlobalScope(name string, fn schema.ScopeFunc) error {
	return t.desc.Scopes.Add(name, fn)
}

// New builds a transient entity filled under the mass assignment policy
func (t *Type) New(attrs map[string]interface{}) (*Entity, error) {
	e := t.newEntity()
	if err := e.Fill(attrs); err != nil {
		return nil, err
	}
	return e, nil
}

// Create builds and saves an entity
func (t *Type) Create(ctx context.Context, attrs map[string]interface{}) (*Entity, error) {
	e, err := t.New(attrs)
	if err != nil {
		return nil, err
	}
	if _, err := e.Save(ctx); err != nil {
		return e, err
	}
	return e, nil
}

// Query starts a facade query
func (t *Type) Query() *Query {
	return newQuery(t)
}

func (t *Type) newEntity() *Entity {
	return &Entity{
		typ:       t,
		attrs:     attributes.NewStore(t.desc.Attributes(), t.manager.opts),
		relations: make(map[string]interface{}),
	}
}

// hydrate builds a persisted entity from a storage row
func (t *Type) hydrate(row map[string]interface{}) *Entity {
	e := t.newEntity()
	e.attrs.Hydrate(row)
	e.exists = true
	return e
}

func (t *Type) usesTimestamps() bool {
	return t.desc.Timestamps.Resolve(t.manager.cfg.Timestamps.Enabled)
}

func (t *Type) usesSoftDeletes() bool {
	return t.desc.SoftDeletes.Resolve(t.manager.cfg.SoftDeletes.Enabled)
}

func (t *Type) createdAtColumn() string {
	return t.manager.cfg.Timestamps.CreatedAtColumn
}

func (t *Type) updatedAtColumn() string {
	return t.manager.cfg.Timestamps.UpdatedAtColumn
}

func (t *Type) deletedAtColumn() string {
	return t.manager.cfg.SoftDeletes.DeletedAtColumn
}

// qualify prefixes a column with the table name
func (t *Type) qualify(column string) string {
	return t.desc.Table + "." + column
}

func (t *Type) cacheable() bool {
	m := t.manager
	return t.desc.Cacheable && m.rows != nil && m.cfg.Cache.Enabled
}

func (t *Type) forgetCached(ctx context.Context, key interface{}) {
	if !t.cacheable() || key == nil {
		return
	}
	if err := t.manager.rows.Forget(ctx, t.desc.Table, key); err != nil {
		t.manager.logger.Warn("failed to invalidate cached row",
			zapType(t), zapKey(key), zapError(err))
	}
}
