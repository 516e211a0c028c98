// Package attributes holds per-entity attribute storage: casting, mass
// assignment policy and dirty tracking against an original snapshot.
package attributes

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// ErrMassAssignment is wrapped by every MassAssignmentError
var ErrMassAssignment = errors.New("mass assignment violation")

// MassAssignmentError is returned when a guarded or non-fillable key is filled
type MassAssignmentError struct {
	Key      string
	Entity   string
	Table    string
	Fillable []string
	Guarded  []string
}

// Error implements the error interface
func (e *MassAssignmentError) Error() string {
	list := func(items []string) string {
		if len(items) == 0 {
			return "none"
		}
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("attribute [%s] is not fillable on %s (table %s). Fillable: %s. Guarded: %s.",
		e.Key, e.Entity, e.Table, list(e.Fillable), list(e.Guarded))
}

// Unwrap returns ErrMassAssignment
func (e *MassAssignmentError) Unwrap() error {
	return ErrMassAssignment
}

// Accessor overrides Get for one key; it receives the raw stored value
type Accessor func(raw interface{}) interface{}

// Mutator overrides Set for one key; it returns the raw value to store
type Mutator func(value interface{}) (interface{}, error)

// Definition is the immutable attribute table of an entity type
type Definition struct {
	Entity    string
	Table     string
	Fillable  []string
	Guarded   []string
	Casts     map[string]Cast
	Accessors map[string]Accessor
	Mutators  map[string]Mutator
}

// Policy decides how Fill treats keys that fail the fillable check
type Policy struct {
	Enforce bool
	Throw   bool
}

// Store is the attribute map of a single entity. It is not safe for
// concurrent use; an entity and its store belong to one goroutine.
type Store struct {
	def      *Definition
	opts     Options
	current  map[string]interface{}
	original map[string]interface{}
}

// NewStore creates an empty store for a definition
func NewStore(def *Definition, opts Options) *Store {
	if def == nil {
		def = &Definition{}
	}
	return &Store{
		def:      def,
		opts:     opts,
		current:  make(map[string]interface{}),
		original: make(map[string]interface{}),
	}
}

// Options returns the cast options the store was created with
func (s *Store) Options() Options {
	return s.opts
}

// Get returns the user-facing value of key. A cast that fails yields the raw value.
func (s *Store) Get(key string) interface{} {
	v, err := s.Value(key)
	if err != nil {
		return s.current[key]
	}
	return v
}

// Value returns the user-facing value of key: accessor first, then cast,
// then the raw value
func (s *Store) Value(key string) (interface{}, error) {
	raw := s.current[key]
	if acc, ok := s.def.Accessors[key]; ok {
		return acc(raw), nil
	}
	if c, ok := s.def.Casts[key]; ok {
		v, err := s.opts.ForRead(c, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to cast %s as %s: %w", key, c.Kind, err)
		}
		return v, nil
	}
	return raw, nil
}

// Raw returns the stored value of key
func (s *Store) Raw(key string) (interface{}, bool) {
	v, ok := s.current[key]
	return v, ok
}

// Has reports whether key is set
func (s *Store) Has(key string) bool {
	_, ok := s.current[key]
	return ok
}

// Set stores value under key and marks it dirty
func (s *Store) Set(key string, value interface{}) error {
	return s.Put(key, value, true)
}

// Put stores value under key: mutator first, otherwise the storage cast.
// With markDirty=false the snapshot is updated too, so the key stays clean.
func (s *Store) Put(key string, value interface{}, markDirty bool) error {
	raw, err := s.prepare(key, value)
	if err != nil {
		return err
	}
	s.current[key] = raw
	if !markDirty {
		s.original[key] = deepCopyValue(raw)
	}
	return nil
}

func (s *Store) prepare(key string, value interface{}) (interface{}, error) {
	if mut, ok := s.def.Mutators[key]; ok {
		raw, err := mut(value)
		if err != nil {
			return nil, fmt.Errorf("failed to mutate %s: %w", key, err)
		}
		return raw, nil
	}
	if c, ok := s.def.Casts[key]; ok {
		raw, err := s.opts.ForStorage(c, value)
		if err != nil {
			return nil, fmt.Errorf("failed to cast %s as %s: %w", key, c.Kind, err)
		}
		return raw, nil
	}
	return value, nil
}

// Fill sets every attribute that passes the fillable check. Keys are applied
// in sorted order so violations are reported deterministically.
func (s *Store) Fill(attrs map[string]interface{}, policy Policy) error {
	for _, key := range sortedKeys(attrs) {
		if policy.Enforce && !s.IsFillable(key) {
			if policy.Throw {
				return &MassAssignmentError{
					Key:      key,
					Entity:   s.def.Entity,
					Table:    s.def.Table,
					Fillable: s.def.Fillable,
					Guarded:  s.def.Guarded,
				}
			}
			continue
		}
		if err := s.Set(key, attrs[key]); err != nil {
			return err
		}
	}
	return nil
}

// ForceFill sets every attribute, bypassing the fillable check
func (s *Store) ForceFill(attrs map[string]interface{}) error {
	for _, key := range sortedKeys(attrs) {
		if err := s.Set(key, attrs[key]); err != nil {
			return err
		}
	}
	return nil
}

// IsFillable applies the guarded list, then the fillable allow-list
func (s *Store) IsFillable(key string) bool {
	for _, g := range s.def.Guarded {
		if g == "*" || g == key {
			return false
		}
	}
	if len(s.def.Fillable) == 0 {
		return true
	}
	for _, f := range s.def.Fillable {
		if f == key {
			return true
		}
	}
	return false
}

// Dirty returns every key whose value differs from the snapshot or that
// has never been synced
func (s *Store) Dirty() map[string]interface{} {
	dirty := make(map[string]interface{})
	for key, value := range s.current {
		old, ok := s.original[key]
		if !ok || !valuesEqual(old, value) {
			dirty[key] = value
		}
	}
	return dirty
}

// IsDirty reports whether any of keys is dirty, or any key at all when none are given
func (s *Store) IsDirty(keys ...string) bool {
	if len(keys) == 0 {
		return len(s.Dirty()) > 0
	}
	for _, key := range keys {
		value, has := s.current[key]
		if !has {
			continue
		}
		old, ok := s.original[key]
		if !ok || !valuesEqual(old, value) {
			return true
		}
	}
	return false
}

// Original returns the snapshot value of key
func (s *Store) Original(key string) (interface{}, bool) {
	v, ok := s.original[key]
	return v, ok
}

// SyncOriginal makes the snapshot a copy of the current attributes
func (s *Store) SyncOriginal() {
	s.original = deepCopyMap(s.current)
}

// Clone returns an independent copy of the store
func (s *Store) Clone() *Store {
	return &Store{
		def:      s.def,
		opts:     s.opts,
		current:  deepCopyMap(s.current),
		original: deepCopyMap(s.original),
	}
}

// Attributes returns a copy of the raw attribute map
func (s *Store) Attributes() map[string]interface{} {
	return deepCopyMap(s.current)
}

// Keys returns the set attribute keys in sorted order
func (s *Store) Keys() []string {
	return sortedKeys(s.current)
}

// Hydrate replaces the attributes with a storage row and syncs the snapshot.
// Column names are converted to attribute keys.
func (s *Store) Hydrate(row map[string]interface{}) {
	s.current = make(map[string]interface{}, len(row))
	for col, v := range row {
		s.current[s.opts.Naming.ToMemory(col)] = v
	}
	s.SyncOriginal()
}

// Column returns the storage column for an attribute key
func (s *Store) Column(key string) string {
	return s.opts.Naming.ToStorage(key)
}

// Key returns the attribute key for a storage column
func (s *Store) Key(column string) string {
	return s.opts.Naming.ToMemory(column)
}

// ToStorage converts attribute keys of m to column names
func (s *Store) ToStorage(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[s.opts.Naming.ToStorage(k)] = v
	}
	return out
}

// ToMap returns the user-facing values, honouring hidden and visible lists
func (s *Store) ToMap(hidden, visible []string) map[string]interface{} {
	out := make(map[string]interface{}, len(s.current))
	for _, key := range sortedKeys(s.current) {
		if !Visible(key, hidden, visible) {
			continue
		}
		v := s.Get(key)
		if t, ok := v.(time.Time); ok {
			v = s.opts.FormatTime(t)
		}
		if ec, ok := v.(EnumCase); ok {
			v = ec.Stored()
		}
		out[key] = v
	}
	return out
}

// Visible applies a visible allow-list, then a hidden deny-list
func Visible(key string, hidden, visible []string) bool {
	if len(visible) > 0 && !contains(visible, key) {
		return false
	}
	return !contains(hidden, key)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deepCopyMap creates a deep copy of a map
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

// deepCopyValue copies maps, slices and byte slices; everything else is a value
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// valuesEqual compares two raw values. Numbers compare by value regardless
// of their Go type, []byte compares with string and times with Equal.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if equal, ok := numbersEqual(a, b); ok {
		return equal
	}

	if ba, ok := a.([]byte); ok {
		a = string(ba)
	}
	if bb, ok := b.([]byte); ok {
		b = string(bb)
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}

	return reflect.DeepEqual(a, b)
}

// numbersEqual compares two numeric values, keeping integers exact and
// widening to float64 only when either side is a float
func numbersEqual(a, b interface{}) (bool, bool) {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	ka, kb := numberKind(va.Kind()), numberKind(vb.Kind())
	if ka == notNumber || kb == notNumber {
		return false, false
	}

	if ka == floatNumber || kb == floatNumber {
		fa, fb := toFloat(va, ka), toFloat(vb, kb)
		if math.IsNaN(fa) || math.IsNaN(fb) {
			return false, false
		}
		return fa == fb, true
	}

	switch {
	case ka == signedNumber && kb == signedNumber:
		return va.Int() == vb.Int(), true
	case ka == unsignedNumber && kb == unsignedNumber:
		return va.Uint() == vb.Uint(), true
	case ka == signedNumber:
		return va.Int() >= 0 && uint64(va.Int()) == vb.Uint(), true
	default:
		return vb.Int() >= 0 && uint64(vb.Int()) == va.Uint(), true
	}
}

const (
	notNumber = iota
	signedNumber
	unsignedNumber
	floatNumber
)

func numberKind(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signedNumber
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return unsignedNumber
	case reflect.Float32, reflect.Float64:
		return floatNumber
	default:
		return notNumber
	}
}

func toFloat(v reflect.Value, kind int) float64 {
	switch kind {
	case signedNumber:
		return float64(v.Int())
	case unsignedNumber:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}
