package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
)

func TestQuery_Select(t *testing.T) {
	q := database.Select("invoices", "id", "name").
		Eq("organization_id", "org-1").
		Where("created_at", ">", "2026-01-01").
		OrderBy("created_at DESC").
		Limit(50).
		Offset(10)

	sql, args, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, name FROM invoices WHERE organization_id = $1 AND created_at > $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		sql)
	assert.Equal(t, []any{"org-1", "2026-01-01", 50, 10}, args)
}

func TestQuery_SelectStar(t *testing.T) {
	sql, args, err := database.Select("customers").Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customers", sql)
	assert.Empty(t, args)
}

func TestQuery_Never(t *testing.T) {
	sql, _, err := database.Select("customers").Eq("id", "c-1").Never().Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customers WHERE id = $1 AND FALSE", sql)
}

func TestQuery_Insert(t *testing.T) {
	sql, args, err := database.Insert("customers").
		Set("organization_id", "org-1").
		Set("name", "Ada").
		Returning("id").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO customers (organization_id, name) VALUES ($1, $2) RETURNING id", sql)
	assert.Equal(t, []any{"org-1", "Ada"}, args)
}

func TestQuery_InsertRejectsConditions(t *testing.T) {
	_, _, err := database.Insert("customers").Set("name", "x").Eq("organization_id", "org-1").Build()
	assert.ErrorIs(t, err, database.ErrInsertCondition)

	_, _, err = database.Insert("customers").Set("name", "x").Never().Build()
	assert.ErrorIs(t, err, database.ErrInsertCondition)
}

func TestQuery_UpdateArgsOrder(t *testing.T) {
	sql, args, err := database.Update("tasks").
		Set("name", "Brake check").
		Eq("id", "t-1").
		Eq("organization_id", "org-1").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE tasks SET name = $1 WHERE id = $2 AND organization_id = $3", sql)
	assert.Equal(t, []any{"Brake check", "t-1", "org-1"}, args)
}

func TestQuery_DeleteRequiresCondition(t *testing.T) {
	_, _, err := database.Delete("tasks").Build()
	assert.ErrorIs(t, err, database.ErrUnsafeMutation)

	_, _, err = database.Update("tasks").Set("name", "x").Build()
	assert.ErrorIs(t, err, database.ErrUnsafeMutation)

	sql, _, err := database.Delete("tasks").Never().Build()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM tasks WHERE FALSE", sql)
}

func TestQuery_Errors(t *testing.T) {
	_, _, err := database.Select("").Build()
	assert.ErrorIs(t, err, database.ErrNoTable)

	_, _, err = database.Insert("customers").Build()
	assert.ErrorIs(t, err, database.ErrNoAssignments)
}

func TestQuery_HasEq(t *testing.T) {
	q := database.Select("customers").Where("organization_id", "<>", "org-1")
	assert.False(t, q.HasEq("organization_id", "org-1"))

	q.Eq("organization_id", "org-1")
	assert.True(t, q.HasEq("organization_id", "org-1"))
	assert.False(t, q.HasEq("organization_id", "org-2"))
	assert.Len(t, q.Conditions(), 2)
}
