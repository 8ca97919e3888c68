package database

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is a type alias for pgxpool.Pool for use in other packages.
type Pool = pgxpool.Pool

// ApplicationName identifies wrenchbay connections in pg_stat_activity.
const ApplicationName = "wrenchbay"

// resetScopeSQL puts a connection back into the closed state: no
// organization and no bypass, so the RLS policies match no tenant rows.
const resetScopeSQL = "SELECT set_config('app.current_org_id', '', false), set_config('app.bypass_org_scope', 'off', false)"

// Connect opens a pgx pool and pings it. maxConns <= 0 keeps the pgx
// default. Every new connection starts in the closed row-level-security
// state until WithScopedConnection sets a scope on it.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if maxConns > 0 && maxConns <= math.MaxInt32 {
		cfg.MaxConns = int32(maxConns) // #nosec G115 -- bounds checked above
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, resetScopeSQL); err != nil {
			return fmt.Errorf("initializing organization context: %w", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
