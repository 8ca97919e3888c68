package rbac

import (
	"fmt"

	"github.com/wrenchbay/wrenchbay/internal/auth"
)

// Evaluator answers (identity, resource, action) questions against a
// validated capability table. It is read-only after construction and safe
// for concurrent use without locking.
type Evaluator struct {
	table map[auth.Role]map[Resource]actionSet
}

// NewEvaluator validates c and compiles it into an Evaluator. The table is
// copied, so later changes to c have no effect.
func NewEvaluator(c Capabilities) (*Evaluator, error) {
	if err := ValidateCapabilities(c); err != nil {
		return nil, err
	}

	table := make(map[auth.Role]map[Resource]actionSet, len(c))
	for role, row := range c {
		compiled := make(map[Resource]actionSet, len(row))
		for resource, actions := range row {
			var set actionSet
			for _, a := range actions {
				set |= a.bit()
			}
			compiled[resource] = set
		}
		table[role] = compiled
	}
	return &Evaluator{table: table}, nil
}

// Allows reports whether identity may perform action on resource. Absent,
// inactive or unknown inputs deny.
func (e *Evaluator) Allows(identity *auth.Identity, resource Resource, action Action) bool {
	return e.Authorize(identity, resource, action).Allowed
}

// Authorize is Allows with a reason attached to denials.
func (e *Evaluator) Authorize(identity *auth.Identity, resource Resource, action Action) Decision {
	if identity == nil {
		return Decision{Reason: "no identity"}
	}
	if !identity.IsActive {
		return Decision{Reason: "identity inactive"}
	}

	row, ok := e.table[identity.Role]
	if !ok {
		return Decision{Reason: fmt.Sprintf("unknown role %q", identity.Role)}
	}
	set, ok := row[resource]
	if !ok {
		return Decision{Reason: fmt.Sprintf("unknown resource %q", resource)}
	}
	if !set.allows(action) {
		return Decision{Reason: fmt.Sprintf("role %s may not %s %s", identity.Role, action, resource)}
	}
	return Decision{Allowed: true}
}
