package schema

import (
	"sort"

	strcase "github.com/stoewer/go-strcase"
)

// RelationKind is the variant of a relation
type RelationKind string

const (
	RelationBelongsTo     RelationKind = "belongs_to"
	RelationHasOne        RelationKind = "has_one"
	RelationHasMany       RelationKind = "has_many"
	RelationBelongsToMany RelationKind = "belongs_to_many"
)

// Valid reports whether the kind is one the engine can resolve
func (k RelationKind) Valid() bool {
	switch k {
	case RelationBelongsTo, RelationHasOne, RelationHasMany, RelationBelongsToMany:
		return true
	default:
		return false
	}
}

// RelationDef declares a relation. Empty key names are derived from the
// two entity types when the relation is resolved.
type RelationDef struct {
	Kind    RelationKind
	Related string

	// belongs-to: ForeignKey on this type, OwnerKey on the related type.
	// has-one/has-many: ForeignKey on the related type, LocalKey on this type.
	ForeignKey string
	OwnerKey   string
	LocalKey   string

	// belongs-to-many
	PivotTable      string
	ForeignPivotKey string
	RelatedPivotKey string
	ParentKey       string
	RelatedKey      string
	PivotColumns    []string
	PivotTimestamps bool
}

// BelongsTo declares a many-to-one relation to related
func BelongsTo(related string) *RelationDef {
	return &RelationDef{Kind: RelationBelongsTo, Related: related}
}

// HasOne declares a one-to-one relation owned by related
func HasOne(related string) *RelationDef {
	return &RelationDef{Kind: RelationHasOne, Related: related}
}

// HasMany declares a one-to-many relation
func HasMany(related string) *RelationDef {
	return &RelationDef{Kind: RelationHasMany, Related: related}
}

// BelongsToMany declares a many-to-many relation through a link table
func BelongsToMany(related string) *RelationDef {
	return &RelationDef{Kind: RelationBelongsToMany, Related: related}
}

// WithForeignKey sets the foreign key column
func (d *RelationDef) WithForeignKey(column string) *RelationDef {
	d.ForeignKey = column
	return d
}

// WithPivot adds extra link-table columns to hydrate
func (d *RelationDef) WithPivot(columns ...string) *RelationDef {
	d.PivotColumns = append(d.PivotColumns, columns...)
	return d
}

// WithPivotTimestamps maintains created_at/updated_at on link rows
func (d *RelationDef) WithPivotTimestamps() *RelationDef {
	d.PivotTimestamps = true
	return d
}

// Resolve returns a copy with every empty key filled from parent and related
func (d *RelationDef) Resolve(parent, related *EntityType) RelationDef {
	r := *d
	r.PivotColumns = append([]string(nil), d.PivotColumns...)

	switch d.Kind {
	case RelationBelongsTo:
		if r.ForeignKey == "" {
			r.ForeignKey = related.ForeignKeyName()
		}
		if r.OwnerKey == "" {
			r.OwnerKey = related.PrimaryKey
		}
	case RelationHasOne, RelationHasMany:
		if r.ForeignKey == "" {
			r.ForeignKey = parent.ForeignKeyName()
		}
		if r.LocalKey == "" {
			r.LocalKey = parent.PrimaryKey
		}
	case RelationBelongsToMany:
		if r.PivotTable == "" {
			names := []string{strcase.SnakeCase(parent.Name), strcase.SnakeCase(related.Name)}
			sort.Strings(names)
			r.PivotTable = names[0] + "_" + names[1]
		}
		if r.ForeignPivotKey == "" {
			r.ForeignPivotKey = parent.ForeignKeyName()
		}
		if r.RelatedPivotKey == "" {
			r.RelatedPivotKey = related.ForeignKeyName()
		}
		if r.ParentKey == "" {
			r.ParentKey = parent.PrimaryKey
		}
		if r.RelatedKey == "" {
			r.RelatedKey = related.PrimaryKey
		}
	}
	return r
}
