// Package scope decides which organization's rows an identity may touch and
// narrows queries and connections to it.
package scope

import (
	"errors"
	"fmt"

	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
)

// TenantColumn is the column every tenant-owned table carries.
const TenantColumn = "organization_id"

// ErrNoScope is returned by callers that refuse to touch data without a
// defined scope.
var ErrNoScope = errors.New("no data scope")

type kind uint8

const (
	kindUndefined kind = iota
	kindTenant
	kindUnscoped
)

// Scope is either Tenant(org) or Unscoped. The zero value is the undefined
// scope, which must be treated as "no data access".
type Scope struct {
	kind  kind
	orgID string
}

// Tenant restricts data access to one organization. An empty orgID yields
// the undefined scope.
func Tenant(orgID string) Scope {
	if orgID == "" {
		return Scope{}
	}
	return Scope{kind: kindTenant, orgID: orgID}
}

// Unscoped grants cross-organization access.
func Unscoped() Scope {
	return Scope{kind: kindUnscoped}
}

// Defined reports whether s permits any data access at all.
func (s Scope) Defined() bool { return s.kind != kindUndefined }

// IsUnscoped reports whether s spans every organization.
func (s Scope) IsUnscoped() bool { return s.kind == kindUnscoped }

// OrganizationID returns the organization of a Tenant scope.
func (s Scope) OrganizationID() (string, bool) {
	if s.kind != kindTenant {
		return "", false
	}
	return s.orgID, true
}

func (s Scope) String() string {
	switch s.kind {
	case kindTenant:
		return "tenant(" + s.orgID + ")"
	case kindUnscoped:
		return "unscoped"
	default:
		return "undefined"
	}
}

// ConnScope converts s to the row-level-security variables of a database
// connection.
func (s Scope) ConnScope() (database.ConnScope, error) {
	switch s.kind {
	case kindTenant:
		return database.ConnScope{OrganizationID: s.orgID}, nil
	case kindUnscoped:
		return database.ConnScope{Bypass: true}, nil
	default:
		return database.ConnScope{}, ErrNoScope
	}
}

// ConfigurationError means identity data violates a tenancy invariant, such
// as a tenant role without an organization. It is fatal for the request and
// must never be downgraded to a scope.
type ConfigurationError struct {
	UserID string
	Role   auth.Role
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scope: %s role for user %q has no organization", e.Role, e.UserID)
}
