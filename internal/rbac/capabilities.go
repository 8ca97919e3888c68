package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wrenchbay/wrenchbay/internal/auth"
)

// ErrCapabilityGap is returned when the capability table does not cover
// every (role, resource) pair or names something undeclared.
var ErrCapabilityGap = errors.New("capability table incomplete")

// Capabilities maps a role and a resource to the actions it permits. Every
// (role, resource) pair must be present; an empty list is an explicit deny.
type Capabilities map[auth.Role]map[Resource][]Action

var workshopResources = []Resource{
	ResourceCustomers, ResourceVehicles, ResourceInvoices, ResourceTasks,
	ResourceParts, ResourceMechanics, ResourceVendors, ResourceExpenses,
	ResourceAttendance,
}

// DefaultCapabilities returns the process-wide capability table.
func DefaultCapabilities() Capabilities {
	manage := []Action{ActionManage}
	none := []Action{}

	owner := map[Resource][]Action{}
	admin := map[Resource][]Action{}
	member := map[Resource][]Action{}
	elevated := map[Resource][]Action{}

	for _, r := range AllResources() {
		owner[r] = manage
		admin[r] = none
		member[r] = none
		elevated[r] = manage
	}
	owner[ResourceOrganizations] = []Action{ActionView}

	for _, r := range workshopResources {
		admin[r] = manage
	}
	admin[ResourceUsers] = []Action{ActionView, ActionCreate, ActionEdit}
	admin[ResourceReports] = []Action{ActionView}
	admin[ResourceSettings] = []Action{ActionView}
	admin[ResourceOrganizations] = []Action{ActionView}

	for _, r := range []Resource{ResourceCustomers, ResourceVehicles, ResourceInvoices, ResourceTasks} {
		member[r] = []Action{ActionView, ActionCreate}
	}
	for _, r := range []Resource{ResourceParts, ResourceMechanics, ResourceAttendance} {
		member[r] = []Action{ActionView}
	}

	return Capabilities{
		auth.RoleOwner:      owner,
		auth.RoleAdmin:      admin,
		auth.RoleMember:     member,
		auth.RoleSuperAdmin: elevated,
		auth.RoleSuperUser:  copyRow(elevated),
	}
}

func copyRow(row map[Resource][]Action) map[Resource][]Action {
	out := make(map[Resource][]Action, len(row))
	for r, actions := range row {
		out[r] = append([]Action(nil), actions...)
	}
	return out
}

// ValidateCapabilities checks c against the declared roles, resources and
// actions and reports every problem at once.
func ValidateCapabilities(c Capabilities) error {
	var problems []string

	for role, row := range c {
		if !role.Valid() {
			problems = append(problems, fmt.Sprintf("unknown role %q", role))
			continue
		}
		for resource, actions := range row {
			if !resource.Valid() {
				problems = append(problems, fmt.Sprintf("%s: unknown resource %q", role, resource))
				continue
			}
			for _, a := range actions {
				if !a.Valid() {
					problems = append(problems, fmt.Sprintf("%s/%s: unknown action %q", role, resource, a))
				}
			}
		}
	}

	for _, role := range auth.AllRoles() {
		row, ok := c[role]
		if !ok {
			problems = append(problems, fmt.Sprintf("role %s has no capabilities", role))
			continue
		}
		for _, resource := range AllResources() {
			if _, ok := row[resource]; !ok {
				problems = append(problems, fmt.Sprintf("%s/%s: not declared", role, resource))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrCapabilityGap, strings.Join(problems, "; "))
}
