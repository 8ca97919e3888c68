package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdentityRefresher re-reads the mutable parts of an identity (role,
// organization, active flag) so that reassignments apply on the next request
// instead of when the token expires.
type IdentityRefresher interface {
	Refresh(ctx context.Context, identity *Identity) (*Identity, error)
}

// Store reads user records for identity refresh.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Refresh returns a new Identity built from the users row for identity.UserID.
// The token's claims are never merged in: the row is authoritative.
func (s *Store) Refresh(ctx context.Context, identity *Identity) (*Identity, error) {
	if identity == nil {
		return nil, ErrUserNotFound
	}

	var (
		fresh Identity
		org   *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, role, organization_id, is_active
		 FROM users WHERE id = $1`,
		identity.UserID,
	).Scan(&fresh.UserID, &fresh.Email, &fresh.Role, &org, &fresh.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("refreshing identity: %w", err)
	}
	if !fresh.Role.Valid() {
		return nil, fmt.Errorf("%w: %q for user %s", ErrInvalidRole, fresh.Role, fresh.UserID)
	}
	fresh.OrganizationID = org
	return &fresh, nil
}
