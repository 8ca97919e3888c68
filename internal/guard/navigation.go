package guard

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wrenchbay/wrenchbay/internal/rbac"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

// NavRequest describes a navigation to a protected route. An empty Resource
// means the route only needs an authenticated identity.
type NavRequest struct {
	Resource   rbac.Resource
	Action     rbac.Action
	Path       string
	RedirectTo string
}

// NavDecision is the navigation guard's verdict. Location is set for
// redirects.
type NavDecision struct {
	Outcome  Outcome
	Location string
}

// Option configures a Navigator or Renderer.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	outcomes *prometheus.CounterVec
}

// WithLogger sets the logger used for guard decisions.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOutcomeCounter counts decisions by guard and outcome.
func WithOutcomeCounter(c *prometheus.CounterVec) Option {
	return func(o *options) { o.outcomes = c }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) count(guard string, outcome Outcome) {
	if o.outcomes != nil {
		o.outcomes.WithLabelValues(guard, outcome.String()).Inc()
	}
}

// Navigator is the whole-route guard.
type Navigator struct {
	eval   *rbac.Evaluator
	routes Routes
	opts   options
}

// NewNavigator creates a navigation guard over eval.
func NewNavigator(eval *rbac.Evaluator, routes Routes, opts ...Option) *Navigator {
	return &Navigator{eval: eval, routes: routes, opts: newOptions(opts)}
}

// Decide applies, in order: loading, public-only routes, authentication,
// the superadmin section boundary, then the route's permission.
func (n *Navigator) Decide(p scope.Pass, req NavRequest) NavDecision {
	if p.Loading {
		return NavDecision{Outcome: OutcomeLoading}
	}

	path := req.Path
	if path == "" {
		path = n.routes.Root
	}
	routePath := path
	if u, err := url.Parse(path); err == nil {
		routePath = u.Path
	}

	if n.routes.publicOnly(routePath) {
		if p.Identity != nil {
			return n.redirect(n.routes.Root, routePath)
		}
		return NavDecision{Outcome: OutcomeAllow}
	}

	if p.Identity == nil {
		return NavDecision{Outcome: OutcomeRedirect, Location: n.loginURL(path)}
	}

	inSuperAdmin := n.routes.inSuperAdmin(routePath)
	if p.Identity.Role.Elevated() && !inSuperAdmin {
		return n.redirect(n.routes.SuperAdminHome, routePath)
	}
	if !p.Identity.Role.Elevated() && inSuperAdmin {
		return n.redirect(n.fallback(req), routePath)
	}

	if req.Resource != "" && !n.eval.Allows(p.Identity, req.Resource, req.Action) {
		// Elevated identities are pinned to the superadmin section, so any
		// fallback outside it would bounce straight back.
		if p.Identity.Role.Elevated() {
			return NavDecision{Outcome: OutcomeDenied}
		}
		return n.redirect(n.fallback(req), routePath)
	}

	return NavDecision{Outcome: OutcomeAllow}
}

func (n *Navigator) fallback(req NavRequest) string {
	if req.RedirectTo != "" {
		return req.RedirectTo
	}
	return n.routes.Root
}

// redirect turns a redirect back onto the current route into a denial so a
// misconfigured fallback cannot loop.
func (n *Navigator) redirect(location, current string) NavDecision {
	target := location
	if u, err := url.Parse(location); err == nil {
		target = u.Path
	}
	if target == current {
		return NavDecision{Outcome: OutcomeDenied}
	}
	return NavDecision{Outcome: OutcomeRedirect, Location: location}
}

func (n *Navigator) loginURL(next string) string {
	if next == "" || next == n.routes.Root {
		return n.routes.Login
	}
	return n.routes.Login + "?" + url.Values{"next": {next}}.Encode()
}

// Protect returns middleware enforcing req on every request it wraps. The
// request's own URI is used when req.Path is empty.
func (n *Navigator) Protect(req NavRequest) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nav := req
			if nav.Path == "" {
				nav.Path = r.URL.RequestURI()
			}
			p := scope.PassFrom(r.Context())
			d := n.Decide(p, nav)
			n.opts.count("navigation", d.Outcome)

			switch d.Outcome {
			case OutcomeAllow:
				next.ServeHTTP(w, r)
			case OutcomeRedirect:
				n.opts.logger.Debug("navigation redirected",
					"path", r.URL.Path,
					"location", d.Location,
				)
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			case OutcomeLoading:
				w.Header().Set("Retry-After", "1")
				writePage(w, http.StatusServiceUnavailable, loadingIndicator)
			default:
				msg := "You don't have access to this page."
				if req.Resource != "" {
					msg = rbac.DenialMessage(req.Action, req.Resource)
				}
				writePage(w, http.StatusForbidden, deniedBlock(msg))
			}
		})
	}
}

// ResumePath returns the local path the login flow should resume at: the
// request's "next" parameter when it is a safe same-origin path, otherwise
// fallback.
func ResumePath(r *http.Request, fallback string) string {
	next := r.URL.Query().Get("next")
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsRune(next, '\\') {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return u.RequestURI()
}

func writePage(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
