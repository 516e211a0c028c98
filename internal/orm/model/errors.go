package model

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/orm/internal/orm/attributes"
	"github.com/conduit-lang/orm/internal/orm/validation"
)

// Sentinel errors. Every typed error below unwraps to one of them.
var (
	// ErrModelNotFound is returned when a find-or-fail lookup matches nothing
	ErrModelNotFound = errors.New("model not found")

	// ErrRelationNotFound is returned for a relation name the type does not declare
	ErrRelationNotFound = errors.New("relation not found")

	// ErrInvalidRelation is returned when a declared relation cannot be resolved
	ErrInvalidRelation = errors.New("invalid relation")

	// ErrLazyLoadingViolation is returned when lazy loading is prevented
	ErrLazyLoadingViolation = errors.New("lazy loading violation")

	// ErrOptimisticLock is returned when a locked update affected no rows
	ErrOptimisticLock = errors.New("optimistic lock conflict")

	// ErrInvalidKey is returned when no key generation strategy applies
	ErrInvalidKey = errors.New("invalid key type")

	// ErrUnknownType is returned for an entity type that was never registered
	ErrUnknownType = errors.New("unknown entity type")

	// ErrUnknownScope is returned for a local scope the type does not declare
	ErrUnknownScope = errors.New("unknown scope")

	// ErrSoftDeletesDisabled is returned by Restore on a type without soft deletes
	ErrSoftDeletesDisabled = errors.New("soft deletes are not enabled")

	// ErrMassAssignment is the attribute store's mass assignment sentinel
	ErrMassAssignment = attributes.ErrMassAssignment

	// ErrValidation is the validator's sentinel
	ErrValidation = validation.ErrValidation
)

// ModelNotFoundError carries the type, table and searched ids
type ModelNotFoundError struct {
	Entity string
	Table  string
	IDs    []interface{}
}

func (e *ModelNotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("no query results for %s (table %s)", e.Entity, e.Table)
	}
	return fmt.Sprintf("no query results for %s (table %s) with id %v", e.Entity, e.Table, e.IDs)
}

func (e *ModelNotFoundError) Unwrap() error { return ErrModelNotFound }

// RelationNotFoundError names the missing relation
type RelationNotFoundError struct {
	Entity   string
	Relation string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("call to undefined relation [%s] on %s", e.Relation, e.Entity)
}

func (e *RelationNotFoundError) Unwrap() error { return ErrRelationNotFound }

// InvalidRelationError explains why a declared relation is unusable
type InvalidRelationError struct {
	Entity   string
	Relation string
	Reason   string
}

func (e *InvalidRelationError) Error() string {
	return fmt.Sprintf("relation [%s] on %s is invalid: %s", e.Relation, e.Entity, e.Reason)
}

func (e *InvalidRelationError) Unwrap() error { return ErrInvalidRelation }

// LazyLoadingViolationError names the relation that was accessed lazily
type LazyLoadingViolationError struct {
	Entity   string
	Relation string
}

func (e *LazyLoadingViolationError) Error() string {
	return fmt.Sprintf("attempted to lazy load [%s] on %s but lazy loading is disabled", e.Relation, e.Entity)
}

func (e *LazyLoadingViolationError) Unwrap() error { return ErrLazyLoadingViolation }

// OptimisticLockError reports a stale update
type OptimisticLockError struct {
	Entity string
	Table  string
	Key    interface{}
	Column string
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("%s (table %s) with key %v was modified by another process; %s is stale",
		e.Entity, e.Table, e.Key, e.Column)
}

func (e *OptimisticLockError) Unwrap() error { return ErrOptimisticLock }

// InvalidKeyError reports a key type with no generation strategy
type InvalidKeyError struct {
	Entity  string
	KeyType string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("cannot generate a %s primary key for %s", e.KeyType, e.Entity)
}

func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }
