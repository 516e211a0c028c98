package model

import (
	"context"
	"fmt"

	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/relationships"
	"github.com/conduit-lang/orm/internal/orm/schema"
)

// pivotPrefix aliases link-table columns in belongs-to-many selects
const pivotPrefix = "pivot_"

// relation is a resolved relation descriptor: both types plus the
// declaration with every key filled in
type relation struct {
	name    string
	parent  *Type
	related *Type
	def     schema.RelationDef
}

// relation resolves a declared relation by name
func (t *Type) relation(name string) (*relation, error) {
	decl, ok := t.desc.Relation(name)
	if !ok {
		return nil, &RelationNotFoundError{Entity: t.desc.Name, Relation: name}
	}
	if !decl.Kind.Valid() {
		return nil, &InvalidRelationError{
			Entity:   t.desc.Name,
			Relation: name,
			Reason:   fmt.Sprintf("unknown relation kind %q", decl.Kind),
		}
	}
	related, err := t.manager.Type(decl.Related)
	if err != nil {
		return nil, &InvalidRelationError{
			Entity:   t.desc.Name,
			Relation: name,
			Reason:   fmt.Sprintf("related type %s is not registered", decl.Related),
		}
	}

	return &relation{
		name:    name,
		parent:  t,
		related: related,
		def:     decl.Resolve(t.desc, related.desc),
	}, nil
}

func (r *relation) many() bool {
	return r.def.Kind == schema.RelationHasMany || r.def.Kind == schema.RelationBelongsToMany
}

// parentColumn is the parent column whose values select related rows
func (r *relation) parentColumn() string {
	switch r.def.Kind {
	case schema.RelationBelongsTo:
		return r.def.ForeignKey
	case schema.RelationBelongsToMany:
		return r.def.ParentKey
	default:
		return r.def.LocalKey
	}
}

// childKey reads back, from a related entity, the value it matches on
func (r *relation) childKey(child *Entity) interface{} {
	switch r.def.Kind {
	case schema.RelationBelongsTo:
		return child.column(r.def.OwnerKey)
	case schema.RelationBelongsToMany:
		return child.Pivot()[r.def.ForeignPivotKey]
	default:
		return child.column(r.def.ForeignKey)
	}
}

// pivotColumns lists the link-table columns hydrated into the pivot map
func (r *relation) pivotColumns() []string {
	columns := []string{r.def.ForeignPivotKey, r.def.RelatedPivotKey}
	columns = append(columns, r.def.PivotColumns...)
	if r.def.PivotTimestamps {
		columns = append(columns, r.related.createdAtColumn(), r.related.updatedAtColumn())
	}
	return columns
}

// newQuery builds the related query for a set of parent key values
func (r *relation) newQuery(keys []interface{}) *Query {
	q := r.related.Query()
	rt := r.related

	switch r.def.Kind {
	case schema.RelationBelongsTo:
		whereKeys(q, rt.qualify(r.def.OwnerKey), keys)
	case schema.RelationHasOne, schema.RelationHasMany:
		whereKeys(q, rt.qualify(r.def.ForeignKey), keys)
	case schema.RelationBelongsToMany:
		pivot := r.def.PivotTable
		q.builder.Select(rt.desc.Table + ".*")
		for _, column := range r.pivotColumns() {
			q.builder.Select(pivot + "." + column + " as " + pivotPrefix + column)
		}
		q.builder.Join(pivot, pivot+"."+r.def.RelatedPivotKey, "=", rt.qualify(r.def.RelatedKey))
		whereKeys(q, pivot+"."+r.def.ForeignPivotKey, keys)
		q.pivot = true
	}
	return q
}

func whereKeys(q *Query, column string, keys []interface{}) {
	if len(keys) == 1 {
		q.Where(column, query.OpEqual, keys[0])
		return
	}
	q.WhereIn(column, keys)
}

// eagerLoad resolves the relation for every parent with a single query and
// stores the matches in each parent's relation cache
func (r *relation) eagerLoad(ctx context.Context, parents []*Entity, constraint Constraint) error {
	values := make([]interface{}, 0, len(parents))
	for _, p := range parents {
		values = append(values, p.column(r.parentColumn()))
	}
	keys := relationships.DistinctKeys(values)

	if len(keys) == 0 {
		for _, p := range parents {
			r.match(p, nil)
		}
		return nil
	}

	q := r.newQuery(keys)
	if constraint != nil {
		constraint(q)
	}
	children, err := q.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load relation %s of %s: %w", r.name, r.parent.desc.Name, err)
	}

	dict := relationships.Group(children, r.childKey)
	for _, p := range parents {
		r.match(p, relationships.Lookup(dict, p.column(r.parentColumn())))
	}
	return nil
}

// match stores the related entities of one parent. Single relations take
// the first match; collections keep query order.
func (r *relation) match(parent *Entity, children []*Entity) {
	if r.many() {
		if children == nil {
			children = []*Entity{}
		}
		parent.relations[r.name] = children
		return
	}
	if len(children) == 0 {
		parent.relations[r.name] = nil
		return
	}
	parent.relations[r.name] = children[0]
}

// Load returns a relation, resolving it lazily on first access. Lazy
// resolution is subject to the lazy loading policy.
func (e *Entity) Load(ctx context.Context, name string) (interface{}, error) {
	if v, ok := e.relations[name]; ok {
		return v, nil
	}

	rel, err := e.typ.relation(name)
	if err != nil {
		return nil, err
	}
	if err := e.typ.manager.checkLazyLoading(e.typ, name); err != nil {
		return nil, err
	}

	if err := rel.eagerLoad(ctx, []*Entity{e}, nil); err != nil {
		return nil, err
	}
	return e.relations[name], nil
}

// LoadRelations eager loads relations on this entity, bypassing the lazy
// loading policy
func (e *Entity) LoadRelations(ctx context.Context, includes ...string) error {
	return e.typ.eagerLoad(ctx, []*Entity{e}, includes, nil)
}

// RelationQuery returns the facade query a relation resolves through
func (e *Entity) RelationQuery(name string) (*Query, error) {
	rel, err := e.typ.relation(name)
	if err != nil {
		return nil, err
	}
	return rel.newQuery([]interface{}{e.column(rel.parentColumn())}), nil
}
