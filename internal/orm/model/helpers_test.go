package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/orm/internal/orm/attributes"
	"github.com/conduit-lang/orm/internal/orm/config"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/validation"
)

const testSchema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT,
	email TEXT,
	role TEXT,
	status TEXT,
	version INTEGER,
	created_at TEXT,
	updated_at TEXT,
	deleted_at TEXT
);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER,
	title TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE TABLE profiles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER,
	bio TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE TABLE roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE TABLE role_user (
	user_id INTEGER NOT NULL,
	role_id INTEGER NOT NULL,
	expires_at TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE TABLE tokens (
	id TEXT PRIMARY KEY,
	value TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE TABLE invoices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id INTEGER,
	total INTEGER,
	created_at TEXT,
	updated_at TEXT
);
`

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	m    *Manager
	logs *observer.ObservedLogs
}

// queries returns the number of statements executed since the last call
func (env *testEnv) queries() int {
	n := 0
	for _, entry := range env.logs.TakeAll() {
		if entry.Message == "query executed" {
			n++
		}
	}
	return n
}

func (env *testEnv) reset() {
	env.logs.TakeAll()
}

func userType() *schema.EntityType {
	return &schema.EntityType{
		Name:        "User",
		Fillable:    []string{"name", "email", "status"},
		Hidden:      []string{"email"},
		SoftDeletes: schema.On,
		LockColumn:  "version",
		Casts: map[string]attributes.Cast{
			"version": attributes.Integer,
		},
		Relations: map[string]*schema.RelationDef{
			"posts":   schema.HasMany("Post"),
			"profile": schema.HasOne("Profile"),
			"roles":   schema.BelongsToMany("Role").WithPivot("expires_at").WithPivotTimestamps(),
		},
		LocalScopes: map[string]schema.LocalScope{
			"named": func(b query.Builder, args ...interface{}) error {
				b.Where("users.name", query.OpEqual, args[0])
				return nil
			},
		},
		Rules: map[validation.Operation]validation.Rules{
			validation.OperationCreate: {"name": {"required"}},
		},
	}
}

func postType() *schema.EntityType {
	return &schema.EntityType{
		Name:     "Post",
		Fillable: []string{"user_id", "title"},
		Relations: map[string]*schema.RelationDef{
			"author": schema.BelongsTo("User"),
		},
	}
}

func profileType() *schema.EntityType {
	return &schema.EntityType{Name: "Profile", Fillable: []string{"user_id", "bio"}}
}

func roleType() *schema.EntityType {
	return &schema.EntityType{
		Name:     "Role",
		Fillable: []string{"name"},
		Relations: map[string]*schema.RelationDef{
			"users": schema.BelongsToMany("User"),
		},
	}
}

func tokenType() *schema.EntityType {
	return &schema.EntityType{Name: "Token", KeyType: schema.KeyUUID, Fillable: []string{"value"}}
}

func invoiceType() *schema.EntityType {
	return &schema.EntityType{Name: "Invoice", Fillable: []string{"tenant_id", "total"}}
}

// setup creates a manager over a fresh in-memory database with every test
// type registered
func setup(t *testing.T, configure func(cfg *config.Config), opts ...Option) *testEnv {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	conn, err := query.Open("sqlite3", ":memory:", query.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.DB().Exec(testSchema)
	require.NoError(t, err)

	cfg := config.Default()
	if configure != nil {
		configure(cfg)
	}

	opts = append([]Option{WithLogger(logger), WithClock(func() time.Time { return testNow })}, opts...)
	m, err := NewManager(conn, cfg, opts...)
	require.NoError(t, err)

	for _, desc := range []*schema.EntityType{
		userType(), postType(), profileType(), roleType(), tokenType(), invoiceType(),
	} {
		_, err := m.Register(desc)
		require.NoError(t, err)
	}
	require.NoError(t, m.Check())

	env := &testEnv{m: m, logs: logs}
	env.reset()
	return env
}

func (env *testEnv) create(t *testing.T, typeName string, attrs map[string]interface{}) *Entity {
	t.Helper()
	e, err := env.m.Create(context.Background(), typeName, attrs)
	require.NoError(t, err)
	require.True(t, e.Exists())
	return e
}
