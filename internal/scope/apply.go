package scope

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
)

// Apply narrows q to s. It only ever adds a condition:
//
//   - Unscoped: q is returned unchanged
//   - Tenant(org): organization_id = org is added unless already present
//   - undefined: q is made to match no rows
//
// Every multi-row read or write of tenant-owned tables goes through here.
func Apply(q *database.Query, s Scope) *database.Query {
	return ApplyOn(q, s, TenantColumn)
}

// ApplyOn is Apply for a table whose organization key lives in column, such
// as the id of the organizations table itself.
func ApplyOn(q *database.Query, s Scope, column string) *database.Query {
	switch s.kind {
	case kindUnscoped:
		return q
	case kindTenant:
		if !q.HasEq(column, s.orgID) {
			q.Eq(column, s.orgID)
		}
		return q
	default:
		return q.Never()
	}
}

// WithConnection runs fn on a connection whose row-level-security context
// matches s. The undefined scope never acquires a connection.
func WithConnection(ctx context.Context, pool *pgxpool.Pool, s Scope, fn func(ctx context.Context, q database.Querier) error) error {
	cs, err := s.ConnScope()
	if err != nil {
		return err
	}
	return database.WithScopedConnection(ctx, pool, cs, fn)
}
