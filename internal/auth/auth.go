package auth

import (
	"context"
	"errors"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrUserNotFound = errors.New("user not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidRole  = errors.New("invalid role")
)

// Role is the single role an identity acts under.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleMember     Role = "member"
	RoleSuperAdmin Role = "super-admin"
	RoleSuperUser  Role = "super-user"
)

// AllRoles returns every declared role, tenant roles first.
func AllRoles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleMember, RoleSuperAdmin, RoleSuperUser}
}

// Valid reports whether r is a declared role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleSuperAdmin, RoleSuperUser:
		return true
	}
	return false
}

// Elevated reports whether r may be granted cross-tenant visibility.
// Elevation still requires a verified elevated session.
func (r Role) Elevated() bool {
	return r == RoleSuperAdmin || r == RoleSuperUser
}

// Identity is the read-only view of the current actor.
type Identity struct {
	UserID         string  `json:"user_id"`
	Email          string  `json:"email"`
	Role           Role    `json:"role"`
	OrganizationID *string `json:"organization_id,omitempty"` // nil only for elevated roles
	IsActive       bool    `json:"is_active"`
}

// OrgID returns the identity's organization, if any.
func (i *Identity) OrgID() (string, bool) {
	if i == nil || i.OrganizationID == nil || *i.OrganizationID == "" {
		return "", false
	}
	return *i.OrganizationID, true
}

// Snapshot is what the identity collaborator currently knows about the
// actor. Ready is false while the identity is still being resolved; in that
// state Identity must not be trusted for allow decisions.
type Snapshot struct {
	Identity *Identity
	Ready    bool
}

// Authenticated reports whether the snapshot is settled and carries an identity.
func (s Snapshot) Authenticated() bool {
	return s.Ready && s.Identity != nil
}

type identityContextKey struct{}

type snapshotContextKey struct{}

// IdentityContextKey returns the context key used to store the identity.
// Exported so other packages can set identity in context for testing.
func IdentityContextKey() identityContextKey {
	return identityContextKey{}
}

// WithIdentity stores a settled identity in ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	ctx = context.WithValue(ctx, identityContextKey{}, identity)
	return context.WithValue(ctx, snapshotContextKey{}, Snapshot{Identity: identity, Ready: true})
}

// WithSnapshot stores a snapshot (possibly still loading) in ctx.
func WithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	if snap.Ready && snap.Identity != nil {
		ctx = context.WithValue(ctx, identityContextKey{}, snap.Identity)
	}
	return context.WithValue(ctx, snapshotContextKey{}, snap)
}

// GetIdentity retrieves the authenticated identity from the request context.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}

// SnapshotFrom returns the snapshot stored in ctx. A context that never went
// through the auth middleware is treated as settled and unauthenticated.
func SnapshotFrom(ctx context.Context) Snapshot {
	if snap, ok := ctx.Value(snapshotContextKey{}).(Snapshot); ok {
		return snap
	}
	if identity := GetIdentity(ctx); identity != nil {
		return Snapshot{Identity: identity, Ready: true}
	}
	return Snapshot{Ready: true}
}
