package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUndefinedScope is returned when a scoped connection is requested
// without either an organization or an explicit bypass.
var ErrUndefinedScope = errors.New("connection scope undefined")

// Querier abstracts pgx query methods so callers can work with both
// pool connections and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ConnScope is the row-level-security context of a connection: one
// organization, or the audited cross-organization bypass.
type ConnScope struct {
	OrganizationID string
	Bypass         bool
}

func (s ConnScope) defined() bool {
	return s.Bypass || s.OrganizationID != ""
}

// WithScopedConnection acquires a dedicated connection from the pool, sets
// the Postgres session variables read by the RLS policies, then calls fn.
// Both variables are reset before the connection is released back to the
// pool, so a later borrower never inherits another organization's context.
func WithScopedConnection(ctx context.Context, pool *pgxpool.Pool, s ConnScope, fn func(ctx context.Context, q Querier) error) error {
	if !s.defined() {
		return ErrUndefinedScope
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() {
		// The request context may already be canceled here.
		if err := releaseScoped(context.Background(), conn, conn.Conn().Close, conn.Release); err != nil {
			slog.Warn("discarding connection after failed scope reset", "error", err)
		}
	}()

	bypass := "off"
	if s.Bypass {
		bypass = "on"
	}
	_, err = conn.Exec(ctx,
		"SELECT set_config('app.current_org_id', $1, false), set_config('app.bypass_org_scope', $2, false)",
		s.OrganizationID, bypass)
	if err != nil {
		return fmt.Errorf("setting organization context: %w", err)
	}

	return fn(ctx, conn)
}

// releaseScoped resets the scope variables and hands the connection back.
// When the reset fails the connection is closed before release, which makes
// the pool destroy it rather than lend it out with a stale scope.
func releaseScoped(ctx context.Context, q Querier, closeConn func(context.Context) error, release func()) error {
	defer release()
	if _, err := q.Exec(ctx, resetScopeSQL); err != nil {
		_ = closeConn(ctx)
		return fmt.Errorf("resetting organization context: %w", err)
	}
	return nil
}
