package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/conduit-lang/orm/internal/orm/query"
)

type trashedMode int

const (
	withoutTrashed trashedMode = iota
	withTrashed
	onlyTrashed
)

// Constraint modifies the batched query of an eager-loaded relation
type Constraint func(q *Query)

// Query is the facade over the query builder for one entity type. Like the
// builder, chain methods mutate the receiver; use Clone to branch. Errors
// raised while building are returned by the terminal call.
type Query struct {
	typ     *Type
	builder query.Builder

	includes    []string
	constraints map[string]Constraint

	withoutScopes bool
	excluded      map[string]bool
	trashed       trashedMode
	lock          query.LockMode
	ordered       bool
	constrained   bool

	// pivot is set on belongs-to-many queries: aliased link-table columns
	// are moved from each row into the entity's pivot map
	pivot bool

	err error
}

func newQuery(t *Type) *Query {
	return &Query{
		typ:         t,
		builder:     t.manager.conn.Table(t.desc.Table),
		constraints: make(map[string]Constraint),
		excluded:    make(map[string]bool),
	}
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Builder exposes the underlying builder for clauses the facade does not wrap
func (q *Query) Builder() query.Builder {
	q.constrained = true
	return q.builder
}

// Select limits the selected columns
func (q *Query) Select(columns ...string) *Query {
	if q.err == nil {
		q.builder.Select(columns...)
		q.constrained = true
	}
	return q
}

// Where adds an AND condition
func (q *Query) Where(column string, op query.Operator, value interface{}) *Query {
	if q.err == nil {
		q.builder.Where(column, op, value)
		q.constrained = true
	}
	return q
}

// WhereEq adds an equality condition
func (q *Query) WhereEq(column string, value interface{}) *Query {
	return q.Where(column, query.OpEqual, value)
}

// OrWhere adds an OR condition
func (q *Query) OrWhere(column string, op query.Operator, value interface{}) *Query {
	if q.err == nil {
		q.builder.OrWhere(column, op, value)
		q.constrained = true
	}
	return q
}

// WhereIn adds an IN condition
func (q *Query) WhereIn(column string, values []interface{}) *Query {
	if q.err == nil {
		q.builder.WhereIn(column, values)
		q.constrained = true
	}
	return q
}

// WhereNotIn adds a NOT IN condition
func (q *Query) WhereNotIn(column string, values []interface{}) *Query {
	if q.err == nil {
		q.builder.WhereNotIn(column, values)
		q.constrained = true
	}
	return q
}

// WhereNull adds an IS NULL condition
func (q *Query) WhereNull(column string) *Query {
	if q.err == nil {
		q.builder.WhereNull(column)
		q.constrained = true
	}
	return q
}

// WhereNotNull adds an IS NOT NULL condition
func (q *Query) WhereNotNull(column string) *Query {
	if q.err == nil {
		q.builder.WhereNotNull(column)
		q.constrained = true
	}
	return q
}

// Join adds an inner join
func (q *Query) Join(table, first, op, second string) *Query {
	if q.err == nil {
		q.builder.Join(table, first, op, second)
		q.constrained = true
	}
	return q
}

// OrderBy adds an ORDER BY clause
func (q *Query) OrderBy(column, direction string) *Query {
	if q.err == nil {
		q.builder.OrderBy(column, direction)
		q.ordered = true
	}
	return q
}

// Limit sets the maximum number of rows
func (q *Query) Limit(n int) *Query {
	if q.err == nil {
		q.builder.Limit(n)
		q.constrained = true
	}
	return q
}

// Offset sets the number of rows to skip
func (q *Query) Offset(n int) *Query {
	if q.err == nil {
		q.builder.Offset(n)
		q.constrained = true
	}
	return q
}

// With records relations to eager load. Dotted paths load nested
// relations ("author.posts"). The first segment must exist on the type.
func (q *Query) With(names ...string) *Query {
	if q.err != nil {
		return q
	}
	for _, name := range names {
		head := name
		if i := strings.IndexByte(name, '.'); i >= 0 {
			head = name[:i]
		}
		if _, ok := q.typ.desc.Relation(head); !ok {
			return q.fail(&RelationNotFoundError{Entity: q.typ.desc.Name, Relation: head})
		}
		q.includes = append(q.includes, name)
	}
	return q
}

// WithConstraint eager loads a relation path with a constraint applied to
// its batched query
func (q *Query) WithConstraint(name string, fn Constraint) *Query {
	q.With(name)
	if q.err == nil {
		q.constraints[name] = fn
	}
	return q
}

// Scope applies a named local scope
func (q *Query) Scope(name string, args ...interface{}) *Query {
	if q.err != nil {
		return q
	}
	scope, ok := q.typ.desc.LocalScopes[name]
	if !ok {
		return q.fail(fmt.Errorf("%w: %s on %s", ErrUnknownScope, name, q.typ.desc.Name))
	}
	if err := scope(q.builder, args...); err != nil {
		return q.fail(fmt.Errorf("scope %s on %s: %w", name, q.typ.desc.Name, err))
	}
	q.constrained = true
	return q
}

// WithoutGlobalScopes skips the named global scopes, or all of them when
// no name is given
func (q *Query) WithoutGlobalScopes(names ...string) *Query {
	if q.err != nil {
		return q
	}
	if len(names) == 0 {
		q.withoutScopes = true
		return q
	}
	for _, name := range names {
		q.excluded[name] = true
	}
	return q
}

// WithTrashed includes soft deleted rows
func (q *Query) WithTrashed() *Query {
	q.trashed = withTrashed
	return q
}

// OnlyTrashed returns soft deleted rows only
func (q *Query) OnlyTrashed() *Query {
	q.trashed = onlyTrashed
	return q
}

// LockForUpdate selects rows with an exclusive row lock
func (q *Query) LockForUpdate() *Query {
	q.lock = query.LockForUpdate
	return q
}

// SharedLock selects rows with a shared row lock
func (q *Query) SharedLock() *Query {
	q.lock = query.LockShared
	return q
}

// Clone returns an independent copy of the query
func (q *Query) Clone() *Query {
	c := *q
	if q.builder != nil {
		c.builder = q.builder.Clone()
	}
	c.includes = append([]string(nil), q.includes...)
	c.constraints = make(map[string]Constraint, len(q.constraints))
	for k, v := range q.constraints {
		c.constraints[k] = v
	}
	c.excluded = make(map[string]bool, len(q.excluded))
	for k, v := range q.excluded {
		c.excluded[k] = v
	}
	return &c
}

// prepared returns a copy of the builder with the caller's conditions
// grouped, then global scopes, the soft delete filter and the lock applied
func (q *Query) prepared(ctx context.Context) (query.Builder, error) {
	if q.err != nil {
		return nil, q.err
	}

	b := q.builder.Clone().GroupWhere()
	if !q.withoutScopes {
		q.typ.desc.Scopes.Apply(ctx, b, q.excluded)
	}
	if q.typ.usesSoftDeletes() {
		column := q.typ.qualify(q.typ.deletedAtColumn())
		switch q.trashed {
		case withoutTrashed:
			b.WhereNull(column)
		case onlyTrashed:
			b.WhereNotNull(column)
		}
	}
	if q.lock != query.LockNone {
		b.Lock(q.lock)
	}
	return b, b.Err()
}

// ToSQL renders the SELECT statement the query would run
func (q *Query) ToSQL(ctx context.Context) (string, []interface{}, error) {
	b, err := q.prepared(ctx)
	if err != nil {
		return "", nil, err
	}
	return b.ToSQL()
}

// Get runs the query, hydrates entities and eager loads requested relations
func (q *Query) Get(ctx context.Context) ([]*Entity, error) {
	b, err := q.prepared(ctx)
	if err != nil {
		return nil, err
	}
	return q.run(ctx, b)
}

func (q *Query) run(ctx context.Context, b query.Builder) ([]*Entity, error) {
	rows, err := b.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.typ.desc.Name, err)
	}

	entities := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, q.hydrate(row))
	}

	if len(q.includes) > 0 && len(entities) > 0 {
		if err := q.typ.eagerLoad(ctx, entities, q.includes, q.constraints); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

func (q *Query) hydrate(row query.Row) *Entity {
	if !q.pivot {
		return q.typ.hydrate(row)
	}

	pivot := make(map[string]interface{})
	for column, value := range row {
		if strings.HasPrefix(column, pivotPrefix) {
			pivot[strings.TrimPrefix(column, pivotPrefix)] = value
			delete(row, column)
		}
	}
	e := q.typ.hydrate(row)
	e.relations[PivotKey] = pivot
	return e
}

// First returns the first entity, or nil when nothing matches
func (q *Query) First(ctx context.Context) (*Entity, error) {
	b, err := q.prepared(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := q.run(ctx, b.Limit(1))
	if err != nil || len(entities) == 0 {
		return nil, err
	}
	return entities[0], nil
}

// FirstOrFail is First returning ModelNotFoundError when nothing matches
func (q *Query) FirstOrFail(ctx context.Context) (*Entity, error) {
	e, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, q.notFound()
	}
	return e, nil
}

// Find looks an entity up by primary key; nil when absent
func (q *Query) Find(ctx context.Context, id interface{}) (*Entity, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.usesRowCache() {
		return q.findCached(ctx, id)
	}
	return q.Clone().Where(q.typ.qualify(q.typ.desc.PrimaryKey), query.OpEqual, id).First(ctx)
}

// FindOrFail is Find returning ModelNotFoundError when absent
func (q *Query) FindOrFail(ctx context.Context, id interface{}) (*Entity, error) {
	e, err := q.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, q.notFound(id)
	}
	return e, nil
}

func (q *Query) notFound(ids ...interface{}) error {
	if q.typ == nil {
		return ErrModelNotFound
	}
	return &ModelNotFoundError{Entity: q.typ.desc.Name, Table: q.typ.desc.Table, IDs: ids}
}

// Count returns the number of matching rows
func (q *Query) Count(ctx context.Context) (int64, error) {
	b, err := q.prepared(ctx)
	if err != nil {
		return 0, err
	}
	return b.Count(ctx)
}

// Exists reports whether any row matches
func (q *Query) Exists(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}

// Pluck returns one column of the matching rows
func (q *Query) Pluck(ctx context.Context, column string) ([]interface{}, error) {
	b, err := q.prepared(ctx)
	if err != nil {
		return nil, err
	}
	return b.Pluck(ctx, column)
}
