// Package model is the mapping engine: entities, the save/delete/restore
// state machine, relation resolution with batched eager loading, and the
// query facade over the query builder.
package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/attributes"
	"github.com/conduit-lang/orm/internal/orm/cache"
	"github.com/conduit-lang/orm/internal/orm/config"
	"github.com/conduit-lang/orm/internal/orm/hooks"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/validation"
)

// Manager ties the collaborators together and owns the registered types
type Manager struct {
	conn      *query.Connection
	cfg       *config.Config
	registry  *schema.Registry
	validator validation.Validator
	logger    *zap.Logger
	rows      *cache.RowCache
	queue     *hooks.AsyncQueue
	now       func() time.Time
	opts      attributes.Options

	mu    sync.RWMutex
	types map[string]*Type
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithValidator replaces the default rule validator
func WithValidator(v validation.Validator) Option {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithCache enables the find-by-key row cache on store. It is only
// consulted when cache.enabled is set.
func WithCache(store cache.Store) Option {
	return func(m *Manager) {
		m.rows = cache.NewRowCache(store, m.cfg.Cache.TTL)
	}
}

// WithAsyncQueue enables async post-event listeners
func WithAsyncQueue(queue *hooks.AsyncQueue) Option {
	return func(m *Manager) {
		m.queue = queue
	}
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager. A nil cfg means config.Default().
func NewManager(conn *query.Connection, cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		conn:      conn,
		cfg:       cfg,
		registry:  schema.NewRegistry(),
		validator: validation.NewRuleValidator(),
		logger:    zap.NewNop(),
		now:       time.Now,
		types:     make(map[string]*Type),
	}
	for _, opt := range opts {
		opt(m)
	}

	naming := attributes.NamingNone
	if cfg.CamelCase() {
		naming = attributes.NamingCamel
	}
	m.opts = attributes.Options{Location: loc, DateFormat: cfg.Dates.Format, Naming: naming}
	return m, nil
}

// Config returns the active configuration
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Connection returns the query connection
func (m *Manager) Connection() *query.Connection {
	return m.conn
}

// Register adds an entity type. Relations may point at types registered
// later; Check verifies them once everything is registered.
func (m *Manager) Register(desc *schema.EntityType) (*Type, error) {
	if err := m.registry.Register(desc); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", desc.Name, err)
	}

	t := &Type{
		manager: m,
		desc:    desc,
		events:  hooks.NewDispatcher[*Entity](desc.Name, m.logger),
	}
	if m.queue != nil {
		t.events.UseQueue(m.queue, (*Entity).snapshot)
	}

	m.mu.Lock()
	m.types[desc.Name] = t
	m.mu.Unlock()
	return t, nil
}

// MustRegister is Register that panics on error, for package-level type setup
func (m *Manager) MustRegister(desc *schema.EntityType) *Type {
	t, err := m.Register(desc)
	if err != nil {
		panic(err)
	}
	return t
}

// Check validates every relation of every registered type
func (m *Manager) Check() error {
	return m.registry.ValidateAll()
}

// Type returns a registered type by name
func (m *Manager) Type(name string) (*Type, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// New builds a transient entity filled under the mass assignment policy
func (m *Manager) New(typeName string, attrs map[string]interface{}) (*Entity, error) {
	t, err := m.Type(typeName)
	if err != nil {
		return nil, err
	}
	return t.New(attrs)
}

// Create builds and saves an entity. A save canceled by a hook returns the
// transient entity and no error; check Exists.
func (m *Manager) Create(ctx context.Context, typeName string, attrs map[string]interface{}) (*Entity, error) {
	t, err := m.Type(typeName)
	if err != nil {
		return nil, err
	}
	return t.Create(ctx, attrs)
}

// Query starts a facade query for a type. An unknown type is reported by
// the terminal call.
func (m *Manager) Query(typeName string) *Query {
	t, err := m.Type(typeName)
	if err != nil {
		return &Query{
			constraints: make(map[string]Constraint),
			excluded:    make(map[string]bool),
			err:         err,
		}
	}
	return t.Query()
}

// Find looks an entity up by primary key; nil when absent
func (m *Manager) Find(ctx context.Context, typeName string, id interface{}) (*Entity, error) {
	return m.Query(typeName).Find(ctx, id)
}

// FindOrFail is Find returning ModelNotFoundError when absent
func (m *Manager) FindOrFail(ctx context.Context, typeName string, id interface{}) (*Entity, error) {
	return m.Query(typeName).FindOrFail(ctx, id)
}

// All returns every visible entity of a type
func (m *Manager) All(ctx context.Context, typeName string) ([]*Entity, error) {
	return m.Query(typeName).Get(ctx)
}

// Transaction runs fn atomically; entities saved with the ctx passed to fn
// join the transaction
func (m *Manager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.conn.Transaction(ctx, fn)
}

// EagerLoad loads relations for entities already in memory, one query per
// relation per nesting level
func (m *Manager) EagerLoad(ctx context.Context, entities []*Entity, includes ...string) error {
	if len(entities) == 0 {
		return nil
	}
	return entities[0].typ.eagerLoad(ctx, entities, includes, nil)
}

// freshTimestamp is the current time in the configured zone and layout
func (m *Manager) freshTimestamp() string {
	return m.opts.FormatTime(m.now())
}

func (m *Manager) fillPolicy() attributes.Policy {
	return attributes.Policy{
		Enforce: m.cfg.EnforceFillable,
		Throw:   m.cfg.MassAssignment.ThrowOnViolation,
	}
}
