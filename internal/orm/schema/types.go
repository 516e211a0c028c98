// Package schema holds the declarative descriptor tables of entity types:
// attributes, casts, relations, scopes, keys and lifecycle options. Tables
// are built once at registration and only read afterwards.
package schema

import (
	"fmt"
	"strings"

	strcase "github.com/stoewer/go-strcase"

	"github.com/conduit-lang/orm/internal/orm/attributes"
	"github.com/conduit-lang/orm/internal/orm/validation"
)

// KeyType selects how primary keys are produced
type KeyType string

const (
	KeyInt    KeyType = "int"
	KeyString KeyType = "string"
	KeyUUID   KeyType = "uuid"
	KeyULID   KeyType = "ulid"
)

// Toggle overrides a configuration default for one entity type
type Toggle int

const (
	Inherit Toggle = iota
	On
	Off
)

// Resolve returns the effective value given the configured default
func (t Toggle) Resolve(def bool) bool {
	switch t {
	case On:
		return true
	case Off:
		return false
	default:
		return def
	}
}

// EntityType describes one mapped entity type
type EntityType struct {
	Name       string
	Table      string // defaults to the snake_case plural of Name
	PrimaryKey string // defaults to "id"
	KeyType    KeyType
	// Incrementing defaults to On for KeyInt and Off otherwise
	Incrementing Toggle

	Fillable []string
	Guarded  []string
	Hidden   []string
	Visible  []string

	Casts     map[string]attributes.Cast
	Accessors map[string]attributes.Accessor
	Mutators  map[string]attributes.Mutator

	Relations   map[string]*RelationDef
	LocalScopes map[string]LocalScope
	Scopes      *ScopeRegistry

	Rules map[validation.Operation]validation.Rules

	Timestamps  Toggle
	SoftDeletes Toggle
	// LockColumn enables optimistic locking on the named column
	LockColumn string
	// Cacheable opts the type into the find-by-key row cache
	Cacheable bool

	attrs      *attributes.Definition
	normalized bool
}

// Normalize fills defaults and builds the attribute definition. It is
// called once by Registry.Register.
func (t *EntityType) Normalize() error {
	if t.normalized {
		return nil
	}
	if t.Name == "" {
		return fmt.Errorf("entity type name is required")
	}
	if t.Table == "" {
		t.Table = TableName(t.Name)
	}
	if t.PrimaryKey == "" {
		t.PrimaryKey = "id"
	}
	if t.KeyType == "" {
		t.KeyType = KeyInt
	}
	switch t.KeyType {
	case KeyInt, KeyString, KeyUUID, KeyULID:
	default:
		return fmt.Errorf("entity %s: unknown key type %q", t.Name, t.KeyType)
	}
	if t.Scopes == nil {
		t.Scopes = NewScopeRegistry()
	}
	if t.Relations == nil {
		t.Relations = make(map[string]*RelationDef)
	}
	if t.LocalScopes == nil {
		t.LocalScopes = make(map[string]LocalScope)
	}
	for name, rel := range t.Relations {
		if rel == nil {
			return fmt.Errorf("entity %s: relation %s is nil", t.Name, name)
		}
	}

	t.attrs = &attributes.Definition{
		Entity:    t.Name,
		Table:     t.Table,
		Fillable:  t.Fillable,
		Guarded:   t.Guarded,
		Casts:     t.Casts,
		Accessors: t.Accessors,
		Mutators:  t.Mutators,
	}
	t.normalized = true
	return nil
}

// Attributes returns the attribute definition built by Normalize
func (t *EntityType) Attributes() *attributes.Definition {
	return t.attrs
}

// IsIncrementing reports whether the store generates the primary key
func (t *EntityType) IsIncrementing() bool {
	return t.Incrementing.Resolve(t.KeyType == KeyInt)
}

// Relation looks up a relation definition by name
func (t *EntityType) Relation(name string) (*RelationDef, bool) {
	rel, ok := t.Relations[name]
	return rel, ok
}

// RulesFor returns the validation rules declared for an operation
func (t *EntityType) RulesFor(op validation.Operation) validation.Rules {
	return t.Rules[op]
}

// ForeignKeyName is the default column referencing this type ("user_id")
func (t *EntityType) ForeignKeyName() string {
	return strcase.SnakeCase(t.Name) + "_" + t.PrimaryKey
}

// TableName converts an entity name to a table name (snake_case plural)
func TableName(name string) string {
	return pluralize(strcase.SnakeCase(name))
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") ||
		strings.HasSuffix(s, "ch") ||
		strings.HasSuffix(s, "sh") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])) {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
