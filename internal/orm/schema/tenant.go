package schema

import (
	"context"

	"github.com/conduit-lang/orm/internal/orm/query"
)

// TenantScopeName is the global scope name registered by UseTenant
const TenantScopeName = "tenant"

type tenantKey struct{}

// WithTenant returns a context carrying the current tenant id
func WithTenant(ctx context.Context, id interface{}) context.Context {
	return context.WithValue(ctx, tenantKey{}, id)
}

// TenantFromContext returns the tenant id carried by ctx
func TenantFromContext(ctx context.Context) (interface{}, bool) {
	id := ctx.Value(tenantKey{})
	return id, id != nil
}

// TenantScope filters by column = tenant id from the context. Without a
// tenant in the context the query is left unfiltered.
func TenantScope(column string) ScopeFunc {
	return func(ctx context.Context, b query.Builder) {
		if id, ok := TenantFromContext(ctx); ok {
			b.Where(b.Table()+"."+column, query.OpEqual, id)
		}
	}
}

// UseTenant registers the tenant global scope on column
func (t *EntityType) UseTenant(column string) error {
	if t.Scopes == nil {
		t.Scopes = NewScopeRegistry()
	}
	return t.Scopes.Add(TenantScopeName, TenantScope(column))
}
