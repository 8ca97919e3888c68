package tenant_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/scope"
	"github.com/wrenchbay/wrenchbay/internal/tenant"
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

func TestStore_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := tenant.NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, pool, "Northside Motors", "northside-motors")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Northside Motors", created.Name)
	assert.Equal(t, "northside-motors", created.Slug)
}

func TestStore_Create_DuplicateSlug(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := tenant.NewStore()
	ctx := context.Background()

	_, err := store.Create(ctx, pool, "Northside Motors", "northside-motors")
	require.NoError(t, err)

	_, err = store.Create(ctx, pool, "Northside Motors 2", "northside-motors")
	assert.ErrorIs(t, err, tenant.ErrSlugTaken)
}

func TestStore_GetByID_Scoped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := tenant.NewStore()
	ctx := context.Background()

	a, err := store.Create(ctx, pool, "Garage A", "garage-a")
	require.NoError(t, err)
	b, err := store.Create(ctx, pool, "Garage B", "garage-b")
	require.NoError(t, err)

	got, err := store.GetByID(ctx, pool, scope.Tenant(a.ID), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "garage-a", got.Slug)

	_, err = store.GetByID(ctx, pool, scope.Tenant(a.ID), b.ID)
	assert.ErrorIs(t, err, tenant.ErrOrganizationNotFound)

	got, err = store.GetByID(ctx, pool, scope.Unscoped(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "garage-b", got.Slug)

	_, err = store.GetByID(ctx, pool, scope.Scope{}, a.ID)
	assert.ErrorIs(t, err, tenant.ErrOrganizationNotFound)
}

func TestStore_List_Scoped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := tenant.NewStore()
	ctx := context.Background()

	a, err := store.Create(ctx, pool, "Garage A", "garage-a")
	require.NoError(t, err)
	_, err = store.Create(ctx, pool, "Garage B", "garage-b")
	require.NoError(t, err)

	all, err := store.List(ctx, pool, scope.Unscoped())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := store.List(ctx, pool, scope.Tenant(a.ID))
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, a.ID, own[0].ID)

	none, err := store.List(ctx, pool, scope.Scope{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		slug    string
		wantErr bool
	}{
		{"northside-motors", false},
		{"abc", false},
		{"a-b", false},
		{"ab", true},         // too short
		{"-abc", true},       // starts with hyphen
		{"abc-", true},       // ends with hyphen
		{"ABC", true},        // uppercase
		{"a b", true},        // space
		{"api", true},        // reserved
		{"superadmin", true}, // reserved
		{"login", true},      // reserved
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			err := tenant.ValidateSlug(tt.slug)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlugFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Northside Motors", "northside-motors"},
		{"Joe's Garage & Tyres", "joes-garage-tyres"},
		{"  --A1   Auto--  ", "a1-auto"},
		{"Škoda Centrum", "koda-centrum"},
		{"!!!", ""},
		{strings.Repeat("ab ", 40), strings.TrimRight(strings.Repeat("ab-", 21), "-")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tenant.SlugFromName(tt.name)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 63)
		})
	}
}

func TestCreateInput_Normalize(t *testing.T) {
	in := tenant.CreateInput{Name: " Bay Two ", Slug: ""}.Normalize()
	assert.Equal(t, "Bay Two", in.Name)
	assert.Equal(t, "bay-two", in.Slug)

	in = tenant.CreateInput{Name: "Bay Two", Slug: " custom-slug "}.Normalize()
	assert.Equal(t, "custom-slug", in.Slug)
}
