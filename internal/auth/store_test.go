package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
)

func setupTestDB(t *testing.T) (*database.Pool, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wrenchbay_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = database.RunMigrations(connStr, "file://../../migrations")
	require.NoError(t, err)

	pool, err := database.Connect(ctx, connStr, 5)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestStore_Refresh(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := auth.NewStore(pool)

	var orgA, orgB string
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO organizations (name, slug) VALUES ('Bay One', 'bay-one') RETURNING id`).Scan(&orgA))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO organizations (name, slug) VALUES ('Bay Two', 'bay-two') RETURNING id`).Scan(&orgB))

	var userID string
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO users (organization_id, email, role) VALUES ($1, 'mech@bayone.test', 'member') RETURNING id`,
		orgA,
	).Scan(&userID))

	t.Run("row is authoritative", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE users SET organization_id = $1, role = 'admin' WHERE id = $2`, orgB, userID)
		require.NoError(t, err)

		// Token still claims the old organization and role.
		stale := &auth.Identity{UserID: userID, Role: auth.RoleMember, OrganizationID: &orgA, IsActive: true}
		fresh, err := store.Refresh(ctx, stale)
		require.NoError(t, err)

		assert.Equal(t, auth.RoleAdmin, fresh.Role)
		require.NotNil(t, fresh.OrganizationID)
		assert.Equal(t, orgB, *fresh.OrganizationID)
		assert.Equal(t, "mech@bayone.test", fresh.Email)
		assert.Equal(t, orgA, *stale.OrganizationID, "input identity must not be mutated")
	})

	t.Run("deactivated", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, userID)
		require.NoError(t, err)

		fresh, err := store.Refresh(ctx, &auth.Identity{UserID: userID})
		require.NoError(t, err)
		assert.False(t, fresh.IsActive)
	})

	t.Run("elevated without organization", func(t *testing.T) {
		var superID string
		require.NoError(t, pool.QueryRow(ctx,
			`INSERT INTO users (email, role) VALUES ('root@wrenchbay.test', 'super-admin') RETURNING id`,
		).Scan(&superID))

		fresh, err := store.Refresh(ctx, &auth.Identity{UserID: superID})
		require.NoError(t, err)
		assert.Equal(t, auth.RoleSuperAdmin, fresh.Role)
		assert.Nil(t, fresh.OrganizationID)
	})

	t.Run("deleted user", func(t *testing.T) {
		_, err := store.Refresh(ctx, &auth.Identity{UserID: "00000000-0000-0000-0000-000000000000"})
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("nil identity", func(t *testing.T) {
		_, err := store.Refresh(ctx, nil)
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})
}
