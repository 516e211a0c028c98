package model

import (
	"context"
	"fmt"

	"github.com/conduit-lang/orm/internal/orm/relationships"
)

// eagerLoad loads include paths for entities of type t: one query per
// relation per nesting level
func (t *Type) eagerLoad(ctx context.Context, entities []*Entity, includes []string, constraints map[string]Constraint) error {
	lc := relationships.NewLoadContext(relationships.DefaultMaxDepth)
	return t.eagerLoadLevel(ctx, entities, includes, constraints, "", lc)
}

func (t *Type) eagerLoadLevel(
	ctx context.Context,
	entities []*Entity,
	includes []string,
	constraints map[string]Constraint,
	prefix string,
	lc *relationships.LoadContext,
) error {
	if len(entities) == 0 {
		return nil
	}
	if err := lc.Enter(); err != nil {
		return fmt.Errorf("failed to eager load %s: %w", t.desc.Name, err)
	}
	defer lc.Leave()

	for _, inc := range relationships.ParseIncludes(includes) {
		rel, err := t.relation(inc.Name)
		if err != nil {
			return err
		}

		path := inc.Name
		if prefix != "" {
			path = prefix + "." + inc.Name
		}
		if err := rel.eagerLoad(ctx, entities, constraints[path]); err != nil {
			return err
		}

		if len(inc.Nested) == 0 {
			continue
		}
		children := collectRelated(entities, inc.Name)
		if err := rel.related.eagerLoadLevel(ctx, children, inc.Nested, constraints, path, lc); err != nil {
			return err
		}
	}
	return nil
}

// collectRelated flattens the loaded relation of every entity
func collectRelated(entities []*Entity, name string) []*Entity {
	var out []*Entity
	for _, e := range entities {
		switch v := e.relations[name].(type) {
		case *Entity:
			if v != nil {
				out = append(out, v)
			}
		case []*Entity:
			out = append(out, v...)
		}
	}
	return out
}
