// Package records stores the workshop's tenant-owned records. Every read and
// write is narrowed by the request's data scope before it reaches the
// database.
package records

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/wrenchbay/wrenchbay/internal/rbac"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrUnknownKind          = errors.New("unknown record kind")
	ErrOrganizationRequired = errors.New("organization_id is required for cross-organization writes")
	ErrOrganizationMismatch = errors.New("organization_id does not match the caller's organization")
	ErrOrganizationUnknown  = errors.New("organization_id names no organization")
)

// Kind maps a record resource to the table holding it.
type Kind struct {
	Name     string
	Resource rbac.Resource
	Table    string
}

var kinds = map[string]Kind{
	"customers":  {Name: "customers", Resource: rbac.ResourceCustomers, Table: "customers"},
	"vehicles":   {Name: "vehicles", Resource: rbac.ResourceVehicles, Table: "vehicles"},
	"invoices":   {Name: "invoices", Resource: rbac.ResourceInvoices, Table: "invoices"},
	"tasks":      {Name: "tasks", Resource: rbac.ResourceTasks, Table: "tasks"},
	"parts":      {Name: "parts", Resource: rbac.ResourceParts, Table: "parts"},
	"mechanics":  {Name: "mechanics", Resource: rbac.ResourceMechanics, Table: "mechanics"},
	"vendors":    {Name: "vendors", Resource: rbac.ResourceVendors, Table: "vendors"},
	"expenses":   {Name: "expenses", Resource: rbac.ResourceExpenses, Table: "expenses"},
	"attendance": {Name: "attendance", Resource: rbac.ResourceAttendance, Table: "attendance"},
}

// LookupKind returns the kind registered under name.
func LookupKind(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// Kinds returns every record kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, r := range rbac.AllResources() {
		if k, ok := kinds[string(r)]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Record is one tenant-owned row. Kind-specific fields live in Data.
type Record struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	Data           json.RawMessage `json:"data"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateInput is the body of a create request. OrganizationID is only
// honoured for cross-organization callers; tenant callers may omit it.
type CreateInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	OrganizationID string          `json:"organization_id" validate:"omitempty,uuid"`
	Data           json.RawMessage `json:"data"`
}

// ListParams pages a list query.
type ListParams struct {
	Limit  int
	Offset int
}
