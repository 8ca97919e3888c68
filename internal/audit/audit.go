package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/wrenchbay/wrenchbay/internal/auth"
)

// Event represents a single auditable action in the system.
type Event struct {
	OrganizationID *uuid.UUID // nil for cross-organization and platform events
	UserID         *uuid.UUID // nil for system events
	Action         string     // e.g. "access.denied", "elevated.acquired"
	ResourceType   string     // e.g. "invoices", "organizations"
	ResourceID     *uuid.UUID
	Metadata       map[string]any
	Source         string
}

const (
	ActionAccessDenied = "access.denied"

	ActionElevatedAcquired           = "elevated.acquired"
	ActionElevatedAcquireFailed      = "elevated.acquire_failed"
	ActionElevatedVerificationFailed = "elevated.verification_failed"
	ActionElevatedRevoked            = "elevated.revoked"

	ActionUnscopedRead = "scope.unscoped_read"

	ActionRecordCreated       = "record.created"
	ActionRecordDeleted       = "record.deleted"
	ActionOrganizationCreated = "organization.created"
)

// Critical reports whether losing an event with this action would hide a
// privilege change or a cross-organization access.
func Critical(action string) bool {
	switch action {
	case ActionElevatedAcquired, ActionElevatedAcquireFailed,
		ActionElevatedVerificationFailed, ActionElevatedRevoked,
		ActionUnscopedRead, ActionOrganizationCreated:
		return true
	}
	return false
}

const (
	SourceAPI    = "api"
	SourcePage   = "page"
	SourceSystem = "system"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// EventFor starts an event attributed to identity. IDs that are not UUIDs
// are left unset rather than failing the caller.
func EventFor(identity *auth.Identity, action string) Event {
	evt := Event{Action: action}
	if identity == nil {
		return evt
	}
	if uid, err := uuid.Parse(identity.UserID); err == nil {
		evt.UserID = &uid
	}
	if orgID, ok := identity.OrgID(); ok {
		if oid, err := uuid.Parse(orgID); err == nil {
			evt.OrganizationID = &oid
		}
	}
	return evt
}

// ParseID returns a pointer to the UUID in s, or nil.
func ParseID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
