package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

var recordColumns = []string{"id", "organization_id", "name", "data", "created_at"}

// Store handles record database operations. Methods accept
// database.Querier so they can run inside scope.WithConnection, and every
// statement is narrowed with scope.Apply.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// List returns the records of kind visible to s, newest first.
func (s *Store) List(ctx context.Context, q database.Querier, sc scope.Scope, kind Kind, p ListParams) ([]Record, error) {
	query := scope.Apply(database.Select(kind.Table, recordColumns...), sc).
		OrderBy("created_at DESC").
		OrderBy("id").
		Limit(p.Limit).
		Offset(p.Offset)

	sql, args, err := query.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s list: %w", kind.Name, err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", kind.Name, err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Data, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", kind.Name, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Get returns one record of kind, or ErrNotFound when it does not exist or
// lies outside s.
func (s *Store) Get(ctx context.Context, q database.Querier, sc scope.Scope, kind Kind, id string) (*Record, error) {
	query := scope.Apply(database.Select(kind.Table, recordColumns...).Eq("id", id), sc)
	sql, args, err := query.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s get: %w", kind.Name, err)
	}

	var r Record
	err = q.QueryRow(ctx, sql, args...).Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Data, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting %s: %w", kind.Name, err)
	}
	return &r, nil
}

// Create inserts a record owned by the organization of s. A cross-
// organization caller must name the owner in in.OrganizationID.
func (s *Store) Create(ctx context.Context, q database.Querier, sc scope.Scope, kind Kind, in CreateInput) (*Record, error) {
	orgID, err := OwnerFor(sc, in.OrganizationID)
	if err != nil {
		return nil, err
	}
	data := in.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	query := database.Insert(kind.Table).
		Set(scope.TenantColumn, orgID).
		Set("name", in.Name).
		Set("data", data).
		Returning(recordColumns...)
	sql, args, err := query.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s insert: %w", kind.Name, err)
	}

	var r Record
	err = q.QueryRow(ctx, sql, args...).Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Data, &r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, fmt.Errorf("%w: %s", ErrOrganizationUnknown, orgID)
		}
		return nil, fmt.Errorf("creating %s: %w", kind.Name, err)
	}
	return &r, nil
}

// Delete removes one record of kind within s and returns the organization
// that owned it.
func (s *Store) Delete(ctx context.Context, q database.Querier, sc scope.Scope, kind Kind, id string) (string, error) {
	query := scope.Apply(database.Delete(kind.Table).Eq("id", id), sc).
		Returning(scope.TenantColumn)
	sql, args, err := query.Build()
	if err != nil {
		return "", fmt.Errorf("building %s delete: %w", kind.Name, err)
	}
	var orgID string
	if err := q.QueryRow(ctx, sql, args...).Scan(&orgID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("deleting %s: %w", kind.Name, err)
	}
	return orgID, nil
}

// OwnerFor decides which organization a new row belongs to. A tenant scope
// always writes into its own organization; an unscoped caller must name one.
func OwnerFor(sc scope.Scope, requested string) (string, error) {
	if orgID, ok := sc.OrganizationID(); ok {
		if requested != "" && requested != orgID {
			return "", ErrOrganizationMismatch
		}
		return orgID, nil
	}
	if !sc.IsUnscoped() {
		return "", scope.ErrNoScope
	}
	if requested == "" {
		return "", ErrOrganizationRequired
	}
	return requested, nil
}
