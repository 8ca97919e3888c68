// Package guard decides what a request may see: whole routes through the
// navigation guard, fragments of a page through the render guard. Both read
// the request's scope.Pass and never modify it.
package guard

import "strings"

// Outcome is a guard decision. Loading is distinct from both allow and deny
// and never lets protected content through.
type Outcome int

const (
	OutcomeLoading Outcome = iota
	OutcomeAllow
	OutcomeRedirect
	OutcomeFallback
	OutcomeDenied
	OutcomeNothing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeAllow:
		return "allow"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeFallback:
		return "fallback"
	case OutcomeDenied:
		return "denied"
	case OutcomeNothing:
		return "nothing"
	}
	return "unknown"
}

// Routes names the entry points the navigation guard redirects to.
type Routes struct {
	Root             string
	Login            string
	SuperAdminHome   string
	SuperAdminPrefix string
	// PublicOnly routes are for unauthenticated visitors only.
	PublicOnly []string
}

// DefaultRoutes returns the application's standard entry points.
func DefaultRoutes() Routes {
	return Routes{
		Root:             "/",
		Login:            "/login",
		SuperAdminHome:   "/superadmin",
		SuperAdminPrefix: "/superadmin",
		PublicOnly:       []string{"/login"},
	}
}

func (r Routes) publicOnly(path string) bool {
	for _, p := range r.PublicOnly {
		if path == p {
			return true
		}
	}
	return false
}

func (r Routes) inSuperAdmin(path string) bool {
	prefix := strings.TrimSuffix(r.SuperAdminPrefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
