package rbac

import "fmt"

// Resource is a protectable noun.
type Resource string

const (
	ResourceCustomers     Resource = "customers"
	ResourceVehicles      Resource = "vehicles"
	ResourceInvoices      Resource = "invoices"
	ResourceTasks         Resource = "tasks"
	ResourceParts         Resource = "parts"
	ResourceMechanics     Resource = "mechanics"
	ResourceVendors       Resource = "vendors"
	ResourceExpenses      Resource = "expenses"
	ResourceAttendance    Resource = "attendance"
	ResourceReports       Resource = "reports"
	ResourceUsers         Resource = "users"
	ResourceOrganizations Resource = "organizations"
	ResourceSettings      Resource = "settings"
)

// AllResources returns every declared resource kind.
func AllResources() []Resource {
	return []Resource{
		ResourceCustomers, ResourceVehicles, ResourceInvoices, ResourceTasks,
		ResourceParts, ResourceMechanics, ResourceVendors, ResourceExpenses,
		ResourceAttendance, ResourceReports, ResourceUsers,
		ResourceOrganizations, ResourceSettings,
	}
}

// Valid reports whether r is a declared resource.
func (r Resource) Valid() bool {
	for _, known := range AllResources() {
		if r == known {
			return true
		}
	}
	return false
}

// Action is something an identity does to a resource. ActionManage implies
// every other action on the same resource.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// AllActions returns every declared action.
func AllActions() []Action {
	return []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage}
}

func (a Action) bit() actionSet {
	switch a {
	case ActionView:
		return 1 << 0
	case ActionCreate:
		return 1 << 1
	case ActionEdit:
		return 1 << 2
	case ActionDelete:
		return 1 << 3
	case ActionManage:
		return 1 << 4
	}
	return 0
}

// Valid reports whether a is a declared action.
func (a Action) Valid() bool {
	return a.bit() != 0
}

type actionSet uint8

func (s actionSet) allows(a Action) bool {
	bit := a.bit()
	if bit == 0 {
		return false
	}
	return s&bit != 0 || s&ActionManage.bit() != 0
}

// Decision represents the result of an authorization check. A denial is an
// expected outcome, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// DenialMessage is the human-readable explanation shown in place of
// protected content.
func DenialMessage(a Action, r Resource) string {
	return fmt.Sprintf("You don't have permission to %s %s.", a, r)
}
