// Package validation provides the validator collaborator used on save
package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Operation tags what a validation run is for
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// Rules maps a field to its rule strings, e.g. {"email": {"required", "email"}}
type Rules map[string][]string

// Validator validates attribute data against rules. It returns nil or *Errors.
type Validator interface {
	Validate(ctx context.Context, entity string, data map[string]interface{}, rules Rules, op Operation) error
}

// NullValidator accepts everything
type NullValidator struct{}

// Validate implements Validator
func (NullValidator) Validate(ctx context.Context, entity string, data map[string]interface{}, rules Rules, op Operation) error {
	return nil
}

// RuleValidator evaluates "name" and "name:param" rule strings
type RuleValidator struct {
	mu        sync.RWMutex
	factories map[string]RuleFactory
}

// NewRuleValidator creates a validator with the built-in rules
func NewRuleValidator() *RuleValidator {
	return &RuleValidator{factories: builtinRules()}
}

// Register adds or replaces a named rule
func (v *RuleValidator) Register(name string, factory RuleFactory) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.factories[name] = factory
}

// Validate implements Validator. Fields are checked in sorted order; every
// failing rule is reported. Unknown rule names are a configuration error.
func (v *RuleValidator) Validate(ctx context.Context, entity string, data map[string]interface{}, rules Rules, op Operation) error {
	errs := NewErrors(entity, op)

	fields := make([]string, 0, len(rules))
	for field := range rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, present := data[field]
		for _, ruleDef := range rules[field] {
			rule, err := v.compile(ruleDef)
			if err != nil {
				return fmt.Errorf("invalid rule %q for %s.%s: %w", ruleDef, entity, field, err)
			}
			if err := rule.Check(value, present); err != nil {
				errs.Add(field, err.Error())
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (v *RuleValidator) compile(ruleDef string) (Rule, error) {
	name, param, _ := strings.Cut(ruleDef, ":")
	v.mu.RLock()
	factory, ok := v.factories[strings.TrimSpace(name)]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown rule %s", name)
	}
	return factory(param)
}
