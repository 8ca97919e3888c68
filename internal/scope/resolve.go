package scope

import "github.com/wrenchbay/wrenchbay/internal/auth"

// Resolve derives the data scope of identity. elevatedValid must come from a
// fresh elevated-session verification; Resolve itself does no I/O.
//
//   - nil identity: undefined scope
//   - tenant role: Tenant(organization), or *ConfigurationError without one
//   - elevated role: Unscoped only when elevatedValid, otherwise its own
//     organization if it has one, else undefined
func Resolve(identity *auth.Identity, elevatedValid bool) (Scope, error) {
	if identity == nil {
		return Scope{}, nil
	}

	orgID, hasOrg := identity.OrgID()
	if !identity.Role.Elevated() {
		if !hasOrg {
			return Scope{}, &ConfigurationError{UserID: identity.UserID, Role: identity.Role}
		}
		return Tenant(orgID), nil
	}

	if elevatedValid {
		return Unscoped(), nil
	}
	if hasOrg {
		return Tenant(orgID), nil
	}
	return Scope{}, nil
}
