package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// SessionCookieName carries the access token for browser navigation.
const SessionCookieName = "wb_session"

// MiddlewareOption configures the auth middlewares.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	refresher IdentityRefresher
	logger    *slog.Logger
}

// WithRefresher re-reads the identity from the user store on every request.
func WithRefresher(r IdentityRefresher) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.refresher = r
	}
}

// WithLogger sets the logger used for refresh failures.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = l
	}
}

func newMiddlewareConfig(opts []MiddlewareOption) middlewareConfig {
	mc := middlewareConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&mc)
	}
	return mc
}

// Middleware returns HTTP middleware that requires a valid access token.
// Requests whose identity cannot be settled get 503 rather than a guess.
func Middleware(tokenSvc *TokenService, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			snap, err := mc.snapshot(r.Context(), tokenSvc, token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !snap.Ready {
				w.Header().Set("Retry-After", "1")
				writeAuthError(w, http.StatusServiceUnavailable, "identity unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSnapshot(r.Context(), snap)))
		})
	}
}

// OptionalMiddleware attaches the identity when a valid token is present and
// otherwise lets the request through unauthenticated. Page routes use it so
// the navigation guard can redirect to login instead of returning 401.
func OptionalMiddleware(tokenSvc *TokenService, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := Snapshot{Ready: true}
			if token, err := extractToken(r); err == nil {
				if s, err := mc.snapshot(r.Context(), tokenSvc, token); err == nil {
					snap = s
				}
			}
			next.ServeHTTP(w, r.WithContext(WithSnapshot(r.Context(), snap)))
		})
	}
}

// snapshot validates the token and refreshes the identity. An error means the
// caller is not authenticated; a non-ready snapshot means the identity could
// not be settled right now.
func (mc middlewareConfig) snapshot(ctx context.Context, tokenSvc *TokenService, token string) (Snapshot, error) {
	identity, err := tokenSvc.ValidateToken(token)
	if err != nil {
		return Snapshot{}, err
	}
	if mc.refresher == nil {
		return Snapshot{Identity: identity, Ready: true}, nil
	}

	fresh, err := mc.refresher.Refresh(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Snapshot{}, err
		}
		mc.logger.Warn("identity refresh failed", "user_id", identity.UserID, "error", err)
		return Snapshot{Ready: false}, nil
	}
	return Snapshot{Identity: fresh, Ready: true}, nil
}

func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
			return c.Value, nil
		}
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
