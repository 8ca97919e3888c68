package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

var organizationColumns = []string{"id", "name", "slug", "created_at"}

// Store handles organization database operations. An organization's own id
// is its tenant key, so reads are narrowed with scope.ApplyOn(..., "id").
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Create inserts a new organization with the given name and slug.
func (s *Store) Create(ctx context.Context, q database.Querier, name, slug string) (*Organization, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	sql, args, err := database.Insert("organizations").
		Set("name", name).
		Set("slug", slug).
		Returning(organizationColumns...).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building organization insert: %w", err)
	}

	var o Organization
	err = q.QueryRow(ctx, sql, args...).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	return &o, nil
}

// GetByID retrieves an organization visible to sc.
func (s *Store) GetByID(ctx context.Context, q database.Querier, sc scope.Scope, id string) (*Organization, error) {
	sql, args, err := scope.ApplyOn(database.Select("organizations", organizationColumns...).Eq("id", id), sc, "id").Build()
	if err != nil {
		return nil, fmt.Errorf("building organization get: %w", err)
	}

	var o Organization
	err = q.QueryRow(ctx, sql, args...).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("getting organization: %w", err)
	}
	return &o, nil
}

// List returns every organization visible to sc: all of them when unscoped,
// only the caller's own for a tenant scope.
func (s *Store) List(ctx context.Context, q database.Querier, sc scope.Scope) ([]Organization, error) {
	sql, args, err := scope.ApplyOn(database.Select("organizations", organizationColumns...), sc, "id").
		OrderBy("created_at").
		Build()
	if err != nil {
		return nil, fmt.Errorf("building organization list: %w", err)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}
