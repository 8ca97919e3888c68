package rbac

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wrenchbay/wrenchbay/internal/audit"
	"github.com/wrenchbay/wrenchbay/internal/auth"
)

// MiddlewareOption configures RBAC middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	audit  audit.Logger
	denied *prometheus.CounterVec
}

// WithAuditLogger attaches an audit logger to log RBAC denials.
func WithAuditLogger(logger audit.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.audit = logger
	}
}

// WithDenialCounter counts denials by resource and action.
func WithDenialCounter(counter *prometheus.CounterVec) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.denied = counter
	}
}

// RequirePermission returns middleware that checks if the authenticated user
// may perform action on resource.
func RequirePermission(engine *Evaluator, resource Resource, action Action, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var mc middlewareConfig
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
				return
			}

			decision := engine.Authorize(identity, resource, action)
			if !decision.Allowed {
				if mc.denied != nil {
					mc.denied.WithLabelValues(string(resource), string(action)).Inc()
				}
				if mc.audit != nil {
					evt := audit.EventFor(identity, audit.ActionAccessDenied)
					evt.ResourceType = string(resource)
					evt.Metadata = map[string]any{
						"action": string(action),
						"reason": decision.Reason,
						"path":   r.URL.Path,
					}
					evt.Source = audit.SourceAPI
					mc.audit.Log(r.Context(), evt)
				}
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":   "forbidden",
					"message": DenialMessage(action, resource),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
